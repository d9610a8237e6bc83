// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/blinklabs-io/endorse"
	"github.com/blinklabs-io/endorse/auth"
	"github.com/blinklabs-io/endorse/database/plugin"
	"github.com/blinklabs-io/endorse/internal/config"
)

// Options derives the service options from the loaded configuration
func Options(
	cfg *config.Config,
	logger *slog.Logger,
	registry prometheus.Registerer,
) ([]endorse.ConfigOptionFunc, error) {
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return nil, err
	}
	artifactTimeout, err := cfg.ArtifactTimeoutDuration()
	if err != nil {
		return nil, err
	}
	urlTTL, err := cfg.UrlTtlDuration()
	if err != nil {
		return nil, err
	}
	credentials, err := auth.NewCredentials(cfg.Users)
	if err != nil {
		return nil, fmt.Errorf("invalid users: %w", err)
	}
	return []endorse.ConfigOptionFunc{
		endorse.WithLogger(logger),
		endorse.WithPrometheusRegistry(registry),
		endorse.WithDatabasePath(cfg.DatabasePath),
		endorse.WithBlobPlugin(cfg.BlobPlugin),
		endorse.WithMetadataPlugin(cfg.MetadataPlugin),
		endorse.WithListenAddress(cfg.ApiListenAddress()),
		endorse.WithTlsCertFilePath(cfg.TlsCertFilePath),
		endorse.WithTlsKeyFilePath(cfg.TlsKeyFilePath),
		endorse.WithCredentials(credentials),
		endorse.WithAdministrators(cfg.Administrators...),
		endorse.WithMaxUploadBytes(cfg.MaxUploadBytes),
		endorse.WithArtifactTimeout(artifactTimeout),
		endorse.WithURLTTL(urlTTL),
		endorse.WithEncryptArtifacts(cfg.EncryptArtifacts),
		endorse.WithNotifier(cfg.Notifier),
		endorse.WithTracing(cfg.Tracing),
		endorse.WithTracingStdout(cfg.TracingStdout),
		endorse.WithShutdownTimeout(shutdownTimeout),
	}, nil
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(
		fmt.Sprintf("config: %+v", redacted(cfg)),
		"component", "node",
	)
	registry := prometheus.DefaultRegisterer
	// Plugins built from cmdline options pick these up
	plugin.SetEnvironment(plugin.Environment{
		Logger:       logger,
		PromRegistry: registry,
	})
	opts, err := Options(cfg, logger, registry)
	if err != nil {
		return err
	}
	svc, err := endorse.New(endorse.NewConfig(opts...))
	if err != nil {
		return err
	}
	shutdownTimeout, _ := cfg.ShutdownTimeoutDuration()

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	g, ctx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		//nolint:contextcheck
		err := svc.Run(ctx)
		if err != nil {
			logger.Error("service error", "error", err, "component", "node")
		}
		return err
	})
	if addr := cfg.MetricsListenAddress(); addr != "" {
		metricsServer := newMetricsServer(addr)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			signalCtxStop()
			_ = g.Wait()
			return fmt.Errorf("failed to start metrics listener: %w", err)
		}
		logger.Info(
			"serving prometheus metrics on "+ln.Addr().String(),
			"component", "node",
		)
		g.Go(func() error {
			if err := metricsServer.Serve(ln); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			//nolint:contextcheck
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				shutdownTimeout,
			)
			defer cancel()
			//nolint:contextcheck
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown error", "error", err)
			}
			return nil
		})
	}

	err = g.Wait()
	if err != nil {
		return err
	}
	logger.Info("shutdown complete", "component", "node")
	return nil
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// redacted returns a copy of cfg safe for logging
func redacted(cfg *config.Config) config.Config {
	ret := *cfg
	if len(cfg.Users) > 0 {
		ret.Users = make(map[string]string, len(cfg.Users))
		for identity := range cfg.Users {
			ret.Users[identity] = "<redacted>"
		}
	}
	return ret
}
