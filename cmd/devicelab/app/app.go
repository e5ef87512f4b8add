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

// Package app wires configuration, the lab server, and the HTTP API together
// and runs them under the lifecycle manager.
package app

import (
	"context"

	"github.com/carverauto/devicelab/pkg/core"
	"github.com/carverauto/devicelab/pkg/core/api"
	"github.com/carverauto/devicelab/pkg/lifecycle"
	"github.com/carverauto/devicelab/pkg/logger"
)

// Options contains runtime configuration derived from CLI flags.
type Options struct {
	ConfigPath string
}

// Run boots the lab controller using the provided options and blocks until
// shutdown.
func Run(ctx context.Context, opts Options) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := core.LoadConfig(ctx, opts.ConfigPath, nil)
	if err != nil {
		return err
	}

	logging := cfg.Logging
	if logging == nil {
		logging = logger.DefaultConfig()
	}

	if cfg.LogLevel != "" {
		logging.Level = cfg.LogLevel
	}

	mainLogger, err := logger.New(ctx, logging)
	if err != nil {
		return err
	}

	server := core.NewServer(cfg, mainLogger)

	apiServer := api.NewAPIServer(server, mainLogger,
		api.WithWebSocket(server.Hub().ServeWS),
		api.WithCORS(cfg.CORS()),
		api.WithAPIKey(cfg.APIKey),
		api.WithRateLimit(cfg.RateLimit()),
		api.WithUploadDir(cfg.UploadDir),
	)

	server.SetAPIHandler(apiServer.Handler())

	return lifecycle.RunServer(ctx, &lifecycle.ServerOptions{
		ServiceName: "devicelab",
		Service:     server,
		Logger:      mainLogger,
	})
}
