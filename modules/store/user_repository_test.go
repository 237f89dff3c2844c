package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/domain/messaging"
	"gorm.io/gorm"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// Every pooled connection to ":memory:" is a separate database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

func createUser(t *testing.T, db *gorm.DB, id string, mutate ...func(*messaging.User)) *messaging.User {
	t.Helper()

	user := &messaging.User{ID: id, Username: "user-" + id}
	for _, fn := range mutate {
		fn(user)
	}
	if err := NewUserRepository(db).Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func TestUserRepository_FindByID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	createUser(t, db, "u1", func(u *messaging.User) {
		u.IsAdmin = true
		u.IsSuspended = true
	})

	found, err := repo.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if found.Username != "user-u1" {
		t.Errorf("Username = %q, want %q", found.Username, "user-u1")
	}
	if !found.IsAdmin || !found.IsSuspended {
		t.Errorf("flags = admin:%v suspended:%v, want both true", found.IsAdmin, found.IsSuspended)
	}

	_, err = repo.FindByID(ctx, "missing")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("FindByID(missing) error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_SetOnline(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	createUser(t, db, "u1")
	at := time.Now().Truncate(time.Second)

	if err := repo.SetOnline(ctx, "u1", true, at); err != nil {
		t.Fatalf("SetOnline(true) error = %v", err)
	}

	found, err := repo.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if !found.IsOnline {
		t.Error("IsOnline = false, want true")
	}
	if found.LastSeenAt == nil || !found.LastSeenAt.Equal(at) {
		t.Errorf("LastSeenAt = %v, want %v", found.LastSeenAt, at)
	}

	if err := repo.SetOnline(ctx, "u1", false, at.Add(time.Minute)); err != nil {
		t.Fatalf("SetOnline(false) error = %v", err)
	}
	found, _ = repo.FindByID(ctx, "u1")
	if found.IsOnline {
		t.Error("IsOnline = true after SetOnline(false)")
	}

	if err := repo.SetOnline(ctx, "ghost", true, at); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("SetOnline(ghost) error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_ListOnlineAndMarkOffline(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"u1", "u2", "u3"} {
		createUser(t, db, id)
		if err := repo.SetOnline(ctx, id, true, now); err != nil {
			t.Fatalf("SetOnline(%s) error = %v", id, err)
		}
	}

	online, err := repo.ListOnline(ctx)
	if err != nil {
		t.Fatalf("ListOnline() error = %v", err)
	}
	if len(online) != 3 {
		t.Fatalf("ListOnline() len = %d, want 3", len(online))
	}

	n, err := repo.MarkOffline(ctx, []string{"u2"}, now)
	if err != nil {
		t.Fatalf("MarkOffline(u2) error = %v", err)
	}
	if n != 1 {
		t.Errorf("MarkOffline(u2) = %d, want 1", n)
	}

	n, err = repo.MarkOffline(ctx, nil, now)
	if err != nil {
		t.Fatalf("MarkOffline(all) error = %v", err)
	}
	if n != 2 {
		t.Errorf("MarkOffline(all) = %d, want 2", n)
	}

	online, _ = repo.ListOnline(ctx)
	if len(online) != 0 {
		t.Errorf("ListOnline() after reset = %v, want empty", online)
	}
}
