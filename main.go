// Package main starts one accessplane shard-group process: a writer
// path (Authorization Store + Temporal Event Buffer + redundant Bulk
// Persister), a reader refresh loop feeding local queries from the
// Event Cache, and the read-only admin/introspection HTTP surface.
//
// Split/merge orchestration and multi-shard-group routing (§4.8, §4.9)
// are driven out-of-process by an operator against the Instance
// Manager's published configuration; this binary runs a single shard
// group's storage and serving loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"accessplane/api"
	"accessplane/buffer"
	"accessplane/cache"
	"accessplane/config"
	"accessplane/instancemgr"
	"accessplane/logger"
	"accessplane/persist"
	"accessplane/reader"
	"accessplane/store"
)

// Version and BuildDate are overridden at build time via:
//
//	go build -ldflags "-X main.Version=x.y.z -X main.BuildDate=$(date +%Y-%m-%d)"
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

var (
	showVersion bool
	showHelp    bool
)

func init() {
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.BoolVar(&showHelp, "help", false, "print usage and exit")
}

func main() {
	flag.Parse()
	if showVersion {
		fmt.Printf("accessplane v%s (built %s)\n", Version, BuildDate)
		os.Exit(0)
	}
	if showHelp {
		fmt.Println("Usage: accessplane [options]")
		flag.PrintDefaults()
		fmt.Println("\nAll options can also be set via ACCESSPLANE_* environment variables.")
		os.Exit(0)
	}

	cfg := config.Load()
	if err := logger.SetLogLevel(cfg.LogLevel); err != nil {
		logger.Fatal("invalid log level: %v", err)
	}
	if traceSubsystems := os.Getenv("ACCESSPLANE_TRACE_SUBSYSTEMS"); traceSubsystems != "" {
		subsystems := strings.Split(traceSubsystems, ",")
		for i, s := range subsystems {
			subsystems[i] = strings.TrimSpace(s)
		}
		logger.EnableTrace(subsystems...)
		logger.Info("trace subsystems enabled: %s", strings.Join(subsystems, ", "))
	}
	logger.Info("starting %s with log level %s", cfg.AppName, strings.ToUpper(logger.GetLogLevel()))

	instances, err := instancemgr.New(cfg.InstanceManagerPath())
	if err != nil {
		logger.Fatal("failed to open instance manager: %v", err)
	}
	defer instances.Close()

	primary, err := persist.OpenSQLitePersister(cfg.SQLitePath())
	if err != nil {
		logger.Fatal("failed to open bulk persister: %v", err)
	}
	defer primary.Close()

	backupPersister, err := persist.NewFileBackupPersister(cfg.BackupPath())
	if err != nil {
		logger.Fatal("failed to open backup persister: %v", err)
	}
	redundant := persist.NewRedundantPersister(primary, backupPersister)
	defer redundant.Close()

	eventCache := cache.NewEventCache(cfg.CacheCapacity)
	distributor := persist.NewDistributor(redundant, eventCache, true)

	strategy := buffer.NewHybridStrategy(cfg.BufferSizeLimit, cfg.BufferFlushInterval)
	evBuffer := buffer.New(strategy, distributor, cfg.RetryCount)
	defer evBuffer.Close()

	localStore := store.New(true)
	localReader := reader.New(localStore, eventCache, redundant, cfg.BufferFlushInterval, cfg.RetryCount)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	localReader.Start(ctx)
	defer localReader.Stop()

	recoveryTicker := time.NewTicker(cfg.RetryInterval * 10)
	defer recoveryTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-recoveryTicker.C:
				if redundant.Degraded() {
					if err := redundant.Recover(); err != nil {
						logger.Warn("[main] redundant persister recovery attempt failed: %v", err)
					} else {
						logger.Info("[main] redundant persister recovered, primary path restored")
					}
				}
			}
		}
	}()

	adminServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.AdminPort),
		Handler: api.NewRouter(instances),
	}
	go func() {
		logger.Info("[main] admin surface listening on :%d", cfg.AdminPort)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("admin HTTP server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received signal %v, initiating graceful shutdown...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer shutdownCancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin HTTP server shutdown error: %v", err)
	}

	logger.Info("accessplane shutdown complete")
}
