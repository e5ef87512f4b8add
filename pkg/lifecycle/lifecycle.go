/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package lifecycle manages the startup and graceful shutdown of long-running
// services.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/devicelab/pkg/logger"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

// Service defines the interface for long-running services managed by RunServer.
type Service interface {
	// Start begins serving. It must not block; long-running work belongs in
	// goroutines owned by the service.
	Start(ctx context.Context) error

	// Stop gracefully shuts the service down. It must respect ctx deadlines.
	Stop(ctx context.Context) error
}

// ServerOptions holds configuration for RunServer.
type ServerOptions struct {
	ServiceName string
	Service     Service
	Logger      logger.Logger
}

// RunServer starts the service and blocks until SIGINT/SIGTERM is received,
// the context is canceled, or the service reports a fatal error. It then
// stops the service with a bounded shutdown timeout.
func RunServer(ctx context.Context, opts *ServerOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := opts.Logger
	if log == nil {
		log = logger.NewWithWriter(os.Stderr, zerolog.InfoLevel)
	}

	errCh := make(chan error, 1)

	go func() {
		if err := opts.Service.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info().
			Str("service", opts.ServiceName).
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("service %s failed: %w", opts.ServiceName, err)
		}
	case <-ctx.Done():
		log.Info().
			Str("service", opts.ServiceName).
			Msg("Context canceled, shutting down")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()

	if err := opts.Service.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop service %s: %w", opts.ServiceName, err)
	}

	return nil
}
