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

// Package endorse assembles the document signing service: storage, workflow
// controller, event bus, notifier and HTTP API.
package endorse

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/blinklabs-io/endorse/api"
	"github.com/blinklabs-io/endorse/auth"
	"github.com/blinklabs-io/endorse/database"
	"github.com/blinklabs-io/endorse/event"
	"github.com/blinklabs-io/endorse/workflow"
)

type Service struct {
	db            *database.Database
	eventBus      *event.EventBus
	controller    *workflow.Controller
	notifier      *event.Notifier
	api           *api.Api
	stopCh        chan struct{}
	readyCh       chan struct{}
	shutdownFuncs []func(context.Context) error
	config        Config
	stopOnce      sync.Once
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Service{
		config:  cfg,
		stopCh:  make(chan struct{}),
		readyCh: make(chan struct{}),
	}, nil
}

// Ready is closed once the API is accepting requests
func (s *Service) Ready() <-chan struct{} {
	return s.readyCh
}

// Controller returns the workflow controller. It is nil until Ready is closed.
func (s *Service) Controller() *workflow.Controller {
	return s.controller
}

// Run opens storage, starts the API and blocks until ctx is cancelled or
// Stop is called. Everything started is shut down before it returns.
func (s *Service) Run(ctx context.Context) error {
	err := s.start(ctx)
	if err == nil {
		err = s.serve(ctx)
	}
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.shutdown()
	})
	return errors.Join(err, shutdownErr)
}

func (s *Service) start(ctx context.Context) error {
	logger := s.config.logger
	if s.config.tracing {
		if err := s.setupTracing(ctx); err != nil {
			return err
		}
	}
	db, err := database.New(&database.Config{
		DataDir:          s.config.dataDir,
		Logger:           logger,
		PromRegistry:     s.config.promRegistry,
		BlobPlugin:       s.config.blobPlugin,
		MetadataPlugin:   s.config.metadataPlugin,
		ArtifactTimeout:  s.config.artifactTimeout,
		EncryptArtifacts: s.config.encryptArtifacts,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db
	s.eventBus = event.NewEventBus(s.config.promRegistry, logger)
	ctrlOpts := []workflow.ControllerOption{
		workflow.WithLogger(logger),
		workflow.WithAuthorizer(auth.NewStaticAuthorizer(s.config.administrators)),
		workflow.WithEventBus(s.eventBus),
		workflow.WithPromRegistry(s.config.promRegistry),
	}
	if s.config.urlTTL > 0 {
		ctrlOpts = append(ctrlOpts, workflow.WithURLTTL(s.config.urlTTL))
	}
	s.controller, err = workflow.NewController(db, ctrlOpts...)
	if err != nil {
		return fmt.Errorf("failed to create workflow controller: %w", err)
	}
	if s.config.notifier {
		notifierOpts := []event.NotifierOption{event.WithNotifierLogger(logger)}
		if s.config.notifySender != nil {
			notifierOpts = append(notifierOpts, event.WithSender(s.config.notifySender))
		}
		s.notifier = event.NewNotifier(s.eventBus, notifierOpts...)
		if err := s.notifier.Start(); err != nil {
			return fmt.Errorf("failed to start notifier: %w", err)
		}
	}
	var artifacts api.ArtifactStore
	if !s.config.encryptArtifacts {
		artifacts = api.LocalArtifacts(db)
	}
	s.api = api.New(
		api.ApiConfig{
			ListenAddress:   s.config.listenAddress,
			TlsCertFilePath: s.config.tlsCertFilePath,
			TlsKeyFilePath:  s.config.tlsKeyFilePath,
			Credentials:     s.config.credentials,
			Artifacts:       artifacts,
			MaxUploadBytes:  s.config.maxUploadBytes,
		},
		s.controller,
		logger,
	)
	return nil
}

func (s *Service) serve(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		if err := s.api.Start(gctx); err != nil {
			return err
		}
		close(s.readyCh)
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.stopCh:
			cancel()
		}
		return nil
	})
	return g.Wait()
}

// Stop asks a running service to shut down
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *Service) shutdown() error {
	shutdownTimeout := DefaultShutdownTimeout
	if s.config.shutdownTimeout > 0 {
		shutdownTimeout = s.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error
	s.config.logger.Debug("starting graceful shutdown", "component", "node")

	// Phase 1: Stop accepting requests
	if s.api != nil {
		if stopErr := s.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}

	// Phase 2: Drain queued events
	if s.notifier != nil {
		s.notifier.Stop()
	}
	if s.eventBus != nil {
		s.eventBus.Stop()
	}

	// Phase 3: Cleanup resources
	for _, fn := range s.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	s.shutdownFuncs = nil
	if s.db != nil {
		if closeErr := s.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	s.config.logger.Debug("graceful shutdown complete", "component", "node")
	return err
}
