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

// Package api exposes the signing workflow over HTTP
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/blinklabs-io/endorse/auth"
)

const (
	DefaultListenAddress  = ":8080"
	DefaultMaxUploadBytes = 32 << 20
	shutdownTimeout       = 30 * time.Second
)

type ApiConfig struct {
	// Credentials authenticates API callers with HTTP basic auth
	Credentials *auth.Credentials
	// Artifacts serves locally signed artifact URLs. Leave nil when the
	// blob store issues its own URLs.
	Artifacts       ArtifactStore
	ListenAddress   string
	TlsCertFilePath string
	TlsKeyFilePath  string
	MaxUploadBytes  int64
}

// Api is the HTTP server in front of the workflow controller
type Api struct {
	config     ApiConfig
	logger     *slog.Logger
	workflow   Workflow
	httpServer *http.Server
	mu         sync.Mutex
}

func New(
	cfg ApiConfig,
	wf Workflow,
	logger *slog.Logger,
) *Api {
	if logger == nil {
		logger = slog.New(
			slog.NewJSONHandler(io.Discard, nil),
		)
	}
	logger = logger.With("component", "api")
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Api{
		config:   cfg,
		logger:   logger,
		workflow: wf,
	}
}

// Handler returns the routed HTTP handler
func (a *Api) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.Handle("POST /api/v1/documents", a.authenticated(a.handleCreateDocument))
	mux.Handle("GET /api/v1/documents", a.authenticated(a.handleListOwned))
	mux.Handle("GET /api/v1/documents/{id}", a.authenticated(a.handleGetDocument))
	mux.Handle("GET /api/v1/documents/{id}/ledger", a.authenticated(a.handleGetLedger))
	mux.Handle("GET /api/v1/documents/{id}/audit", a.authenticated(a.handleGetAuditTrail))
	mux.Handle(
		"GET /api/v1/documents/{id}/artifact-url",
		a.authenticated(a.handleGetArtifactURL),
	)
	mux.Handle("POST /api/v1/documents/{id}/activate", a.authenticated(a.handleActivate))
	mux.Handle("POST /api/v1/documents/{id}/sign", a.authenticated(a.handleSign))
	mux.Handle("POST /api/v1/documents/{id}/reject", a.authenticated(a.handleReject))
	mux.Handle("POST /api/v1/documents/{id}/cancel", a.authenticated(a.handleCancel))
	mux.Handle("POST /api/v1/documents/{id}/remind", a.authenticated(a.handleRemind))
	mux.Handle("POST /api/v1/documents/{id}/status", a.authenticated(a.handleForceStatus))
	mux.Handle("GET /api/v1/pending", a.authenticated(a.handlePending))
	if a.config.Artifacts != nil {
		mux.HandleFunc("GET /artifacts/{key...}", a.handleArtifact)
	}
	return mux
}

// Start binds the listener and serves in a background goroutine. The server
// shuts down when ctx is cancelled.
func (a *Api) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.httpServer != nil {
		a.mu.Unlock()
		return errors.New("server already started")
	}
	if a.config.Credentials == nil || a.config.Credentials.Len() == 0 {
		a.logger.Warn("no API credentials configured, every document route will answer 401")
	}
	tlsEnabled := a.config.TlsCertFilePath != "" && a.config.TlsKeyFilePath != ""
	handler := a.Handler()
	if !tlsEnabled {
		// Use h2c so we can serve HTTP/2 without TLS
		handler = h2c.NewHandler(handler, &http2.Server{})
	}
	server := &http.Server{
		Addr:              a.config.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 60 * time.Second,
	}
	a.httpServer = server
	a.mu.Unlock()

	ln, err := a.startServer(server, tlsEnabled)
	if err != nil {
		a.mu.Lock()
		a.httpServer = nil
		a.mu.Unlock()
		return err
	}
	a.logger.Info(
		"API listener started on "+ln.Addr().String(),
		"tls", tlsEnabled,
	)

	go func() {
		<-ctx.Done()
		a.mu.Lock()
		srv := a.httpServer
		a.httpServer = nil
		a.mu.Unlock()
		if srv == nil {
			return
		}
		a.logger.Debug("context cancelled, shutting down API server")
		//nolint:contextcheck
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		//nolint:contextcheck
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error(
				"failed to shutdown API server on context cancellation",
				"error", err,
			)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server
func (a *Api) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.httpServer
	a.httpServer = nil
	a.mu.Unlock()
	if srv == nil {
		return nil
	}
	a.logger.Debug("shutting down API server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}
	return nil
}

// startServer binds the listening socket first so port conflicts are
// reported to the caller, then serves in a background goroutine
func (a *Api) startServer(
	server *http.Server,
	tlsEnabled bool,
) (net.Listener, error) {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for API server: %w", err)
	}
	go func() {
		var err error
		if tlsEnabled {
			err = server.ServeTLS(
				ln,
				a.config.TlsCertFilePath,
				a.config.TlsKeyFilePath,
			)
		} else {
			err = server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("API server error", "error", err)
		}
	}()
	return ln, nil
}
