package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/task-manager/internal/config"
	"github.com/ayush/task-manager/internal/events"
	"github.com/ayush/task-manager/internal/server"
	"github.com/ayush/task-manager/internal/store"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:          "task-manager",
	Short:        "Users and tasks HTTP API",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the users and tasks tables if they don't exist, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		log.Println("schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./.env when present)")
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	// ── Relational store ─────────────────────────────────────
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// ── Event sinks ──────────────────────────────────────────
	var sinks events.Multi

	if cfg.RedisAddr != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer rdb.Close()
		sinks = append(sinks, store.NewRedisPublisher(rdb, cfg.RedisChannel))
		log.Printf("publishing events to redis channel %s", cfg.RedisChannel)
	}

	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return fmt.Errorf("mongo connect: %w", err)
		}
		defer mongoClient.Disconnect(context.Background())
		sinks = append(sinks, store.NewMongoAuditLog(mongoClient.Database(cfg.MongoDB)))
		log.Printf("recording audit events in mongo database %s", cfg.MongoDB)
	}

	// ── Router ───────────────────────────────────────────────
	handler := server.NewRouter(server.Deps{
		Store:          st,
		Events:         sinks,
		AllowedOrigins: cfg.AllowedOrigins,
		AccessLog:      true,
	})

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("task manager listening on :%s (%s)", cfg.Port, cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	log.Println("Shutting down...")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// openStore connects the configured backend and applies the schema.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	var st store.Store
	switch cfg.DBDriver {
	case config.DriverSQLite:
		s, err := store.OpenSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		st = s
	default:
		poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("postgres config: %w", err)
		}
		if cfg.DBMaxConns > 0 {
			poolCfg.MaxConns = cfg.DBMaxConns
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		st = store.NewPostgresStore(pool)
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
