// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main is the entry point for the Airwave broadcast-log
// identity resolver daemon.
//
// Airwave continuously reconciles a radio station's play logs against
// a catalog of canonical Works and Recordings: it ingests play-log CSVs,
// resolves every (raw artist, raw title) pair through the Identity
// Resolution Core, scans a library filesystem for new or moved audio
// files, and exposes a thin operator surface for reviewing anything the
// Matcher couldn't resolve with confidence.
//
// # Application Architecture
//
// The daemon initializes components in the following order:
//
//  1. Configuration: koanf-layered defaults -> YAML file -> environment
//  2. Database: embedded DuckDB catalog store
//  3. Threshold store: load persisted classification thresholds
//  4. Vector index: load the persisted embedding snapshot
//  5. Matcher, Verification service, RecordingResolver, Re-evaluator,
//     Scanner, Exporter, Ingester
//  6. Supervisor tree: Scanner and Re-evaluator on the data layer, the
//     HTTP operator surface on the API layer
//
// # Signal Handling
//
// The daemon handles graceful shutdown on SIGINT and SIGTERM: the
// supervisor tree is given its configured shutdown grace period to let
// an in-flight scan batch or HTTP request finish before the process
// exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airwave/radio-identity/internal/api"
	"github.com/airwave/radio-identity/internal/config"
	"github.com/airwave/radio-identity/internal/database"
	"github.com/airwave/radio-identity/internal/export"
	"github.com/airwave/radio-identity/internal/ingest"
	"github.com/airwave/radio-identity/internal/logging"
	"github.com/airwave/radio-identity/internal/matcher"
	"github.com/airwave/radio-identity/internal/recording"
	"github.com/airwave/radio-identity/internal/reevaluator"
	"github.com/airwave/radio-identity/internal/scanner"
	"github.com/airwave/radio-identity/internal/supervisor"
	"github.com/airwave/radio-identity/internal/supervisor/services"
	"github.com/airwave/radio-identity/internal/thresholdstore"
	"github.com/airwave/radio-identity/internal/vectorindex"
	"github.com/airwave/radio-identity/internal/verification"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Msg("starting airwave")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing database")
		}
	}()
	logging.Info().Str("path", cfg.Database.Path).Msg("database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	thresholds := thresholdstore.New(db)
	if err := thresholds.Load(ctx, cfg.Threshold); err != nil {
		logging.Fatal().Err(err).Msg("failed to load thresholds")
	}

	embeddingClient := vectorindex.NewHTTPEmbeddingClient(&cfg.Vector)
	vectorIndex := vectorindex.New(embeddingClient, cfg.Vector.IndexPath)
	if err := vectorIndex.Load(); err != nil {
		logging.Warn().Err(err).Msg("failed to load vector index snapshot, starting empty")
	}

	mat := matcher.New(db, vectorIndex, thresholds)
	verify := verification.New(db, thresholds.Current())
	resolver := recording.New(db)
	reeval := reevaluator.New(db, mat)
	exporter := export.New(db)
	ingester := ingest.New(db, mat)

	var exceptions *scanner.ExceptionList
	if cfg.Scanner.ExceptionsPath != "" {
		exceptions, err = scanner.LoadExceptions(cfg.Scanner.ExceptionsPath)
		if err != nil {
			logging.Warn().Err(err).Msg("failed to load collaboration exceptions, continuing without them")
		}
	}
	scan := scanner.New(db, vectorIndex, cfg.Scanner, exceptions)

	slogLogger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownGrace,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create supervisor tree")
	}

	reevalSvc := services.NewReevaluatorService(reeval, cfg.Scanner.ReevaluateInterval)
	tree.AddDataService(services.NewScannerService(scan, cfg.Scanner.ScanInterval))
	tree.AddDataService(reevalSvc)
	tree.AddMaintenanceService(services.NewVectorSnapshotService(vectorIndex, cfg.Vector.SnapshotInterval))

	handler := api.New(verify, db, thresholds, reeval, reevalSvc, resolver, exporter, ingester)
	router := api.NewRouter(handler, api.DefaultMiddlewareConfig())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownGrace))
	logging.Info().Str("addr", server.Addr).Msg("http server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	if err := vectorIndex.Save(); err != nil {
		logging.Error().Err(err).Msg("failed to persist vector index snapshot")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop")
		}
	}

	logging.Info().Msg("airwave stopped gracefully")
}
