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
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name    string
		opts    []ConfigOptionFunc
		wantErr bool
	}{
		{name: "defaults"},
		{
			name:    "no listen address",
			opts:    []ConfigOptionFunc{WithListenAddress("")},
			wantErr: true,
		},
		{
			name:    "tls cert without key",
			opts:    []ConfigOptionFunc{WithTlsCertFilePath("cert.pem")},
			wantErr: true,
		},
		{
			name:    "negative url ttl",
			opts:    []ConfigOptionFunc{WithURLTTL(-time.Second)},
			wantErr: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(NewConfig(tc.opts...))
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestServiceRunAndStop(t *testing.T) {
	svc, err := New(
		NewConfig(
			WithListenAddress("127.0.0.1:0"),
			WithPrometheusRegistry(prometheus.NewRegistry()),
			WithAdministrators("admin@example.com"),
		),
	)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(context.Background())
	}()

	select {
	case <-svc.Ready():
	case err := <-errCh:
		t.Fatalf("service exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("service did not become ready")
	}
	require.NotNil(t, svc.Controller())

	svc.Stop()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("service did not stop")
	}
	// Stopping twice is harmless
	svc.Stop()
}

func TestServiceContextCancel(t *testing.T) {
	svc, err := New(NewConfig(WithListenAddress("127.0.0.1:0")))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()
	select {
	case <-svc.Ready():
	case err := <-errCh:
		t.Fatalf("service exited early: %v", err)
	}
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("service did not stop on cancel")
	}
}
