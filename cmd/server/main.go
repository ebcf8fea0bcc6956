package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Tyrowin/directchat/internal/auth"
	"github.com/Tyrowin/directchat/internal/blob"
	"github.com/Tyrowin/directchat/internal/config"
	"github.com/Tyrowin/directchat/internal/server"
	"github.com/Tyrowin/directchat/internal/store"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes reported to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const (
	inspectPort     = 8081
	inspectEndpoint = "/inspect"
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "directchat terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a server failure.
// Returning instead of exiting lets deferred cleanup close the stores.
func run() (int, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messages, closeStore, err := openMessageStore(ctx, cfg, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer closeStore()

	blobs, err := blob.NewDiskStore(cfg.UploadDir, logger)
	if err != nil {
		return exitRuntime, err
	}

	relay := server.NewRelay(messages, blobs, cfg.PersistTimeout, logger)
	srv := server.New(cfg, auth.NewJWTVerifier([]byte(cfg.JWTSecret)), relay, logger)
	srv.StartHub()

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown incomplete", "error", err)
	}

	logger.Info("Server stopped")
	return code, runErr
}

// openMessageStore opens the configured backend and returns a function that
// releases it.
func openMessageStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.MessageStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		sqlite, err := store.NewSQLiteMessageStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite opening failed: %w", err)
		}
		logger.Info("Using SQLite message store", "path", cfg.SQLitePath)
		return sqlite, func() {
			logger.Info("Closing SQLite...")
			_ = sqlite.Close()
		}, nil

	default:
		db, err := badger.Open(buildBadgerOpts(ctx, cfg, logger))
		if err != nil {
			return nil, nil, fmt.Errorf("database opening failed: %w", err)
		}
		logger.Info("Using Badger message store", "path", cfg.BadgerPath)

		if logger.Enabled(ctx, slog.LevelDebug) {
			logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", inspectPort, inspectEndpoint))
			database.StartDebugServer(db, inspectPort, inspectEndpoint, messageMapper)
		}

		return store.NewBadgerMessageStore(db, logger), func() {
			logger.Info("Closing BadgerDB...")
			_ = db.Close()
		}, nil
	}
}

func buildBadgerOpts(ctx context.Context, cfg config.Config, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(cfg.BadgerPath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}

// messageMapper renders stored messages for the debug inspector.
func messageMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	var message store.Message
	if err := json.Unmarshal(val, &message); err != nil {
		row.Detail = "Error: unmarshal failed"
		return row
	}

	row.Type = "TEXT"
	if message.File != nil {
		row.Type = "FILE"
	}
	row.Detail = fmt.Sprintf("%s -> %s", message.Sender, message.Recipient)
	if message.Text != nil {
		row.Detail += ": " + *message.Text
	}
	return row
}
