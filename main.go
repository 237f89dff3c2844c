package main

import (
	"context"
	"log"
	"os"

	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/config"
	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/modules/api"
	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/modules/auth"
	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/modules/realtime"
	"github.com/UnitedWeRise-org/UnitedWeRise-sub012/modules/store"
	"github.com/go-monolith/mono"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Println("=== UnitedWeRise Realtime ===")
	log.Printf("HTTP Address: %s", cfg.Addr())
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Redis: %s", cfg.RedisAddr)

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	jwtConfig := auth.DefaultJWTConfig()
	jwtConfig.SecretKey = cfg.JWTSecretKey
	jwtConfig.Issuer = cfg.JWTIssuer

	// Create modules
	storeModule := store.NewModule(cfg.DatabaseURL, app.Logger())
	authModule := auth.NewModule(jwtConfig, &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}, storeModule, app.Logger())
	realtimeModule := realtime.NewModule(
		storeModule,
		realtime.Limits{EventsPerSecond: cfg.EventsPerSecond, Burst: cfg.EventBurst},
		cfg.ReconcileCron,
		reg,
		app.Logger(),
	)
	apiModule := api.NewModule(api.Config{
		Addr:           cfg.Addr(),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Cookies:        api.CookieNames{Access: cfg.AccessCookie, Refresh: cfg.RefreshCookie},
	}, reg, app.Logger())

	// Wire up dependencies
	apiModule.SetRealtime(realtimeModule)

	// Register modules
	for _, module := range []mono.Module{storeModule, authModule, realtimeModule, apiModule} {
		if err := app.Register(module); err != nil {
			log.Fatalf("Failed to register %s module: %v", module.Name(), err)
		}
	}

	// Start the application
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start app: %v", err)
	}

	log.Println("=== Application Started ===")
	log.Println("Endpoints:")
	log.Println("  GET    /health                      - Health check")
	log.Println("  GET    /metrics                     - Prometheus metrics")
	log.Println("  GET    /ws                          - WebSocket (cookie, ?token= or Bearer)")
	log.Println("  POST   /api/v1/auth/logout          - Revoke the access token")
	log.Println("  GET    /api/v1/presence/online      - List online users")
	log.Println("  GET    /api/v1/users/:id/presence   - One user's presence")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown")

	// Setup graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	// Wait for shutdown signal
	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}
