// Package store provides the relational persistence used by the real-time
// service: the user directory and the message/conversation store.
package store

import (
	"fmt"
	"strings"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/domain/messaging"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the database named by dsn and migrates the schema.
// Postgres URLs select the Postgres driver; anything else is treated as a
// SQLite path (":memory:" included).
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(dialector(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the tables owned by this service.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&messaging.User{},
		&messaging.Session{},
		&messaging.Conversation{},
		&messaging.Participant{},
		&messaging.Message{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func dialector(dsn string) gorm.Dialector {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgres.Open(dsn)
	}
	return sqlite.Open(dsn)
}
