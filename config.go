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

package endorse

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/endorse/auth"
	"github.com/blinklabs-io/endorse/event"
)

const DefaultShutdownTimeout = 30 * time.Second

type Config struct {
	promRegistry     prometheus.Registerer
	logger           *slog.Logger
	credentials      *auth.Credentials
	notifySender     event.Sender
	dataDir          string
	blobPlugin       string
	metadataPlugin   string
	listenAddress    string
	tlsCertFilePath  string
	tlsKeyFilePath   string
	administrators   []string
	maxUploadBytes   int64
	artifactTimeout  time.Duration
	urlTTL           time.Duration
	shutdownTimeout  time.Duration
	encryptArtifacts bool
	notifier         bool
	tracing          bool
	tracingStdout    bool
}

func (c *Config) validate() error {
	if c.listenAddress == "" {
		return errors.New("no API listen address defined")
	}
	if (c.tlsCertFilePath == "") != (c.tlsKeyFilePath == "") {
		return errors.New("TLS requires both a certificate and a key")
	}
	if c.urlTTL < 0 || c.artifactTimeout < 0 || c.shutdownTimeout < 0 {
		return fmt.Errorf(
			"negative duration: url ttl %s, artifact timeout %s, shutdown timeout %s",
			c.urlTTL,
			c.artifactTimeout,
			c.shutdownTimeout,
		)
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the service config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new endorse config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:        slog.New(slog.NewJSONHandler(io.Discard, nil)),
		listenAddress: ":8080",
		notifier:      true,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithBlobPlugin specifies the artifact storage plugin to use
func WithBlobPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.blobPlugin = plugin
	}
}

// WithMetadataPlugin specifies the metadata storage plugin to use
func WithMetadataPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataPlugin = plugin
	}
}

// WithListenAddress specifies the API listen address. The default is ":8080"
func WithListenAddress(addr string) ConfigOptionFunc {
	return func(c *Config) {
		c.listenAddress = addr
	}
}

// WithTlsCertFilePath specifies the path to the TLS certificate for the API listener
func WithTlsCertFilePath(path string) ConfigOptionFunc {
	return func(c *Config) {
		c.tlsCertFilePath = path
	}
}

// WithTlsKeyFilePath specifies the path to the TLS key for the API listener
func WithTlsKeyFilePath(path string) ConfigOptionFunc {
	return func(c *Config) {
		c.tlsKeyFilePath = path
	}
}

// WithCredentials specifies the basic auth credentials accepted by the API
func WithCredentials(credentials *auth.Credentials) ConfigOptionFunc {
	return func(c *Config) {
		c.credentials = credentials
	}
}

// WithAdministrators specifies the identities holding the administrator capability
func WithAdministrators(identities ...string) ConfigOptionFunc {
	return func(c *Config) {
		c.administrators = append(c.administrators, identities...)
	}
}

// WithMaxUploadBytes limits the size of API request bodies
func WithMaxUploadBytes(limit int64) ConfigOptionFunc {
	return func(c *Config) {
		c.maxUploadBytes = limit
	}
}

// WithArtifactTimeout bounds each artifact store call. The default is 30 seconds
func WithArtifactTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.artifactTimeout = timeout
	}
}

// WithURLTTL specifies the default lifetime of artifact download URLs
func WithURLTTL(ttl time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.urlTTL = ttl
	}
}

// WithEncryptArtifacts seals artifacts with sops before they are stored.
// Download URLs are unavailable when enabled.
func WithEncryptArtifacts(encrypt bool) ConfigOptionFunc {
	return func(c *Config) {
		c.encryptArtifacts = encrypt
	}
}

// WithNotifier toggles the next-signer notifier. It is enabled by default
func WithNotifier(enabled bool) ConfigOptionFunc {
	return func(c *Config) {
		c.notifier = enabled
	}
}

// WithNotificationSender specifies where the notifier delivers messages. The default logs them
func WithNotificationSender(sender event.Sender) ConfigOptionFunc {
	return func(c *Config) {
		c.notifySender = sender
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
