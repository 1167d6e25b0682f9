package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/pagemark/pagemark/apply"
	"github.com/pagemark/pagemark/config"
	"github.com/pagemark/pagemark/observability"
	"github.com/pagemark/pagemark/server"
	"github.com/pagemark/pagemark/store"
)

func main() {
	// A missing .env is fine; the environment still applies.
	godotenv.Load()

	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	blobs, err := store.NewDiskBlobs(filepath.Join(cfg.DataDir, "blobs"))
	if err != nil {
		log.Error("blob store init failed", "error", err)
		os.Exit(1)
	}

	var docs store.DocumentStore
	if cfg.CatalogPath != "" {
		docs, err = store.OpenSQLite(cfg.CatalogPath)
		if err != nil {
			log.Error("catalog init failed", "error", err)
			os.Exit(1)
		}
		log.Info("catalog ready", "path", cfg.CatalogPath)
	} else {
		docs = store.NewMemoryDocs()
		log.Info("catalog kept in memory")
	}
	defer docs.Close()

	svc := apply.NewService(blobs, docs, observability.Slog(log))
	srv := server.New(svc, nil, int64(cfg.MaxUploadMB)<<20, log)

	httpServer := http.Server{
		Handler: srv.Router(),
		Addr:    ":" + strconv.Itoa(cfg.Port),
	}

	// signal.Notify requires the channel to be buffered
	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctrlc
		httpServer.Close()
	}()

	log.Info("Listening", "port", cfg.Port)
	err = httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Error("Server closed", "error", err)
	} else {
		log.Info("Server closed")
	}
}
