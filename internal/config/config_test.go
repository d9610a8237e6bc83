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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetGlobalConfig() {
	globalConfig = defaultConfig()
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile := filepath.Join(t.TempDir(), "endorse.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(content), 0o600))
	return tmpFile
}

func TestLoad_WithoutConfigFile_UsesDefaults(t *testing.T) {
	resetGlobalConfig()
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	assert.Equal(t, "0.0.0.0:8080", cfg.ApiListenAddress())
	assert.Equal(t, "0.0.0.0:12798", cfg.MetricsListenAddress())
}

func TestLoad_CompareFullStruct(t *testing.T) {
	resetGlobalConfig()
	tmpFile := writeConfig(t, `
databasePath: "/var/lib/endorse"
bindAddr: "127.0.0.1"
apiPort: 9000
metricsPort: 9001
shutdownTimeout: "10s"
artifactTimeout: "5s"
urlTtl: "1h"
maxUploadBytes: 1048576
encryptArtifacts: true
notifier: false
tracing: true
tracingStdout: true
tlsCertFilePath: "cert.pem"
tlsKeyFilePath: "key.pem"
administrators:
  - admin@example.com
users:
  alice@example.com: "$2a$10$abcdefghijklmnopqrstuv"
`)

	expected := &Config{
		Users: map[string]string{
			"alice@example.com": "$2a$10$abcdefghijklmnopqrstuv",
		},
		DatabasePath:     "/var/lib/endorse",
		BlobPlugin:       DefaultBlobPlugin,
		MetadataPlugin:   DefaultMetadataPlugin,
		BindAddr:         "127.0.0.1",
		TlsCertFilePath:  "cert.pem",
		TlsKeyFilePath:   "key.pem",
		ShutdownTimeout:  "10s",
		ArtifactTimeout:  "5s",
		UrlTtl:           "1h",
		Administrators:   []string{"admin@example.com"},
		MaxUploadBytes:   1048576,
		ApiPort:          9000,
		MetricsPort:      9001,
		EncryptArtifacts: true,
		Notifier:         false,
		Tracing:          true,
		TracingStdout:    true,
	}

	actual, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, expected, actual)

	ttl, err := actual.UrlTtlDuration()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, ttl)
}

func TestLoad_ConfigSection(t *testing.T) {
	resetGlobalConfig()
	tmpFile := writeConfig(t, `
config:
  apiPort: 8443
database:
  blob:
    plugin: badger
    badger:
      url-base: "https://docs.example.com/artifacts"
  metadata:
    plugin: sqlite
`)

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, uint(8443), cfg.ApiPort)
	assert.Equal(t, "badger", cfg.BlobPlugin)
	assert.Equal(t, "sqlite", cfg.MetadataPlugin)
	// Untouched values keep their defaults
	assert.Equal(t, ".endorse", cfg.DatabasePath)
	assert.Equal(t, "0.0.0.0", cfg.BindAddr)
	assert.Equal(t, uint(12798), cfg.MetricsPort)
	assert.True(t, cfg.Notifier)
	assert.Equal(t, int64(32<<20), cfg.MaxUploadBytes)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
}

func TestLoad_ConfigSectionOnly(t *testing.T) {
	resetGlobalConfig()
	tmpFile := writeConfig(t, "config:\n  apiPort: 8443\n")

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	expected := defaultConfig()
	expected.ApiPort = 8443
	assert.Equal(t, expected, cfg)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	resetGlobalConfig()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ENDORSE_API_PORT", "7000")
	t.Setenv("ENDORSE_DATABASE_METADATA_PLUGIN", "postgres")
	t.Setenv("ENDORSE_ADMINISTRATORS", "root@example.com,ops@example.com")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, uint(7000), cfg.ApiPort)
	assert.Equal(t, "postgres", cfg.MetadataPlugin)
	assert.Equal(
		t,
		[]string{"root@example.com", "ops@example.com"},
		cfg.Administrators,
	)
}

func TestLoad_InvalidValues(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "bad duration", content: `urlTtl: "soon"`},
		{name: "negative duration", content: `shutdownTimeout: "-1s"`},
		{name: "port clash", content: "apiPort: 9000\nmetricsPort: 9000"},
		{name: "tls half set", content: `tlsCertFilePath: "cert.pem"`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resetGlobalConfig()
			_, err := LoadConfig(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	resetGlobalConfig()
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMetricsDisabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.MetricsPort = 0
	assert.Empty(t, cfg.MetricsListenAddress())
	assert.NoError(t, cfg.Validate())
}

func TestContextRoundTrip(t *testing.T) {
	cfg := defaultConfig()
	ctx := WithContext(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}
