package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lovedev.org/internal/auth"
	"lovedev.org/internal/events"
	"lovedev.org/internal/httpapi"
	"lovedev.org/internal/obs"
	"lovedev.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	codec, err := auth.NewCodec(os.Getenv("LOVEDEV_AUTH_SECRET"),
		auth.WithIssuer(os.Getenv("LOVEDEV_ISSUER")),
		auth.WithAccessTTL(envDuration("LOVEDEV_ACCESS_TTL")),
		auth.WithRefreshTTL(envDuration("LOVEDEV_REFRESH_TTL")),
	)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	// Storage: PostgreSQL when a DSN is configured, in-memory otherwise so
	// the service still runs for local development.
	var (
		store       auth.Store
		probe       httpapi.ReadyProbe
		seedCatalog bool
	)
	if dsn := os.Getenv("LOVEDEV_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		probe = httpapi.ReadyProbe{Store: pgStore}
	} else {
		log.Print("LOVEDEV_PG_DSN not set, using in-memory store")
		mem := auth.NewMemoryStore()
		mem.Seed(&auth.Role{ID: "role_user", Name: auth.RoleUser, SystemRole: true},
			&auth.Role{ID: "role_employee", Name: auth.RoleEmployee, SystemRole: true},
			&auth.Role{ID: "role_manager", Name: auth.RoleManager, SystemRole: true},
			&auth.Role{ID: "role_admin", Name: auth.RoleAdmin, SystemRole: true})
		store = mem
		seedCatalog = true
	}

	var publisher events.Publisher = events.LogPublisher{}
	if brokers := os.Getenv("LOVEDEV_KAFKA_BROKERS"); brokers != "" {
		kp := events.NewKafkaPublisher(strings.Split(brokers, ","))
		defer kp.Close()
		publisher = kp
	}

	sessions := auth.NewSessionManager(store, codec)
	svc := auth.NewService(store, codec, sessions, publisher)

	// Migrations seed the catalog for PostgreSQL; the in-memory store gets
	// the same permissions and grants here.
	if seedCatalog {
		if err := svc.EnsurePermissionCatalog(context.Background()); err != nil {
			log.Fatalf("permission catalog: %v", err)
		}
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sessions.RunSweeper(rootCtx, 24*time.Hour)

	api := httpapi.New(svc, probe, version)

	addr := os.Getenv("LOVEDEV_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting lovedev-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

func envDuration(name string) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("%s: invalid duration %q", name, raw)
	}
	return d
}
