// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package services provides suture.Service wrappers for Airwave's background
components.

This package adapts existing application components to the suture v4
supervision model, translating various lifecycle patterns (Start/Stop, Run,
ListenAndServe) into suture's context-aware Serve pattern.

# Overview

Each wrapper implements the suture.Service interface:

	type Service interface {
	    Serve(ctx context.Context) error
	}

The wrappers handle:
  - Lifecycle translation (Start/Stop to Serve pattern)
  - Graceful shutdown via context cancellation
  - Error propagation for supervisor restart decisions
  - Service identification via fmt.Stringer

# Available Services

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Converts ListenAndServe pattern to Serve
  - Configurable shutdown timeout for draining connections

Scanner (ScannerService):
  - Wraps the filesystem scanner on a fixed interval
  - Each tick runs one bounded scan pass and logs its summary
  - A scan already in flight when the context is canceled is allowed to
    finish its current batch before Serve returns

Re-evaluator (ReevaluatorService):
  - Wraps the threshold re-evaluation pass
  - Runs on a fixed interval and also whenever Trigger is called, which
    the threshold update handler does after each change
  - Coalesces rapid successive triggers into a single pending pass

Vector snapshot (VectorSnapshotService):
  - Persists the in-memory vector index to disk on a fixed interval
  - A failed snapshot is logged and retried next tick, never fatal
  - Writes one final snapshot on shutdown

# Usage Example

Creating and registering services:

	import (
	    "net/http"
	    "time"

	    "github.com/airwave/radio-identity/internal/supervisor"
	    "github.com/airwave/radio-identity/internal/supervisor/services"
	)

	func setupSupervisor(server *http.Server, scan *scanner.Scanner, re *reevaluator.Reevaluator) {
	    tree, _ := supervisor.NewSupervisorTree(logger, config)

	    httpSvc := services.NewHTTPServerService(server, 30*time.Second)
	    tree.AddAPIService(httpSvc)

	    tree.AddDataService(services.NewScannerService(scan, 5*time.Minute))
	    tree.AddDataService(services.NewReevaluatorService(re, 10*time.Minute))

	    tree.Serve(ctx)
	}

# Lifecycle Patterns

The package handles two common lifecycle patterns:

Ticker Pattern (Scanner, Re-evaluator):

	// Wrapped as:
	func (s *Service) Serve(ctx context.Context) error {
	    ticker := time.NewTicker(s.interval)
	    defer ticker.Stop()
	    for {
	        select {
	        case <-ticker.C:
	            if err := s.run(ctx); err != nil {
	                return err
	            }
	        case <-ctx.Done():
	            return ctx.Err()
	        }
	    }
	}

ListenAndServe Pattern (HTTP server):

	type Listener interface {
	    ListenAndServe() error
	    Shutdown(ctx context.Context) error
	}

	// Wrapped as:
	func (s *Service) Serve(ctx context.Context) error {
	    go s.server.ListenAndServe()
	    <-ctx.Done()
	    return s.server.Shutdown(shutdownCtx)
	}

# Error Handling

Return values determine supervisor behavior:

	nil         -> Service stopped cleanly, will not restart
	error       -> Service crashed, supervisor will restart
	ctx.Err()   -> Shutdown requested, normal termination

A single failed scan batch does not crash the ScannerService — only an
error from the scanner's own setup (e.g. the library root disappearing)
propagates and triggers a supervisor restart.

# Service Identification

All services implement fmt.Stringer for logging:

	func (s *HTTPServerService) String() string {
	    return "http-server"
	}

Suture uses this for log messages:

	INFO http-server: starting
	INFO scanner: starting
	ERROR scanner: restarting after failure

# Thread Safety

All service wrappers are safe for concurrent use:
  - State is protected by mutexes where needed
  - Context cancellation is handled atomically
  - Multiple Serve calls are not supported (undefined behavior)

# See Also

  - internal/supervisor: SupervisorTree that manages these services
  - github.com/thejerf/suture/v4: Underlying supervision library
  - internal/scanner: filesystem scan implementation
  - internal/reevaluator: threshold re-evaluation implementation
*/
package services
