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

package core

import (
	"context"
	"fmt"
	"time"

	"github.com/carverauto/devicelab/pkg/appium"
	"github.com/carverauto/devicelab/pkg/config"
	"github.com/carverauto/devicelab/pkg/logger"
	"github.com/carverauto/devicelab/pkg/models"
)

const (
	defaultPort              = 5000
	defaultDiscoveryInterval = 30 * time.Second
	defaultHealthInterval    = 60 * time.Second
	defaultReaperInterval    = time.Minute
	defaultUploadDir         = "/tmp/devicelab-uploads"

	// EnvironmentProduction tightens the API rate limit.
	EnvironmentProduction = "production"

	rateLimitProduction = 100
	rateLimitDefault    = 600
)

// Config is the lab controller configuration. Every field maps to an
// environment variable through its JSON tag (PORT, ENVIRONMENT, FRONTEND_URL,
// LOG_LEVEL, and so on).
type Config struct {
	Port        int    `json:"port"`
	Environment string `json:"environment"`
	FrontendURL string `json:"frontend_url"`
	LogLevel    string `json:"log_level"`
	APIKey      string `json:"api_key"`

	DiscoveryInterval models.Duration `json:"discovery_interval"`
	HealthInterval    models.Duration `json:"health_interval"`

	// ReservationReaper enables the deadline auto-release ticker.
	ReservationReaper bool            `json:"reservation_reaper"`
	ReaperInterval    models.Duration `json:"reaper_interval"`

	// SeedMockDevices inserts a few offline demo records at startup.
	SeedMockDevices bool `json:"seed_mock_devices"`

	UploadDir string `json:"upload_dir"`

	Appium appium.Config `json:"appium"`

	Logging *logger.Config `json:"logging,omitempty"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}

	return nil
}

func (c *Config) withDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}

	if c.DiscoveryInterval == 0 {
		c.DiscoveryInterval = models.Duration(defaultDiscoveryInterval)
	}

	if c.HealthInterval == 0 {
		c.HealthInterval = models.Duration(defaultHealthInterval)
	}

	if c.ReaperInterval == 0 {
		c.ReaperInterval = models.Duration(defaultReaperInterval)
	}

	if c.UploadDir == "" {
		c.UploadDir = defaultUploadDir
	}
}

// CORS derives the cross-origin allow-list from FRONTEND_URL. Empty means any
// origin, which suits local lab deployments.
func (c *Config) CORS() models.CORSConfig {
	cors := models.CORSConfig{AllowCredentials: true}

	if c.FrontendURL != "" {
		cors.AllowedOrigins = []string{c.FrontendURL}
	}

	return cors
}

// RateLimit returns the per-client requests-per-minute threshold for the
// configured environment.
func (c *Config) RateLimit() int {
	if c.Environment == EnvironmentProduction {
		return rateLimitProduction
	}

	return rateLimitDefault
}

// LoadConfig reads the configuration file at path (optional) and applies
// environment overrides.
func LoadConfig(ctx context.Context, path string, log logger.Logger) (*Config, error) {
	cfg := &Config{}

	loader := config.NewConfig(log)
	if err := loader.LoadAndValidate(ctx, path, cfg); err != nil {
		return nil, err
	}

	cfg.withDefaults()

	return cfg, nil
}
