package bridge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kestrelworks/mqtt2search/pkg/mapping"
	"github.com/kestrelworks/mqtt2search/pkg/opsserver"
	"github.com/kestrelworks/mqtt2search/pkg/pipeline"
	"github.com/kestrelworks/mqtt2search/pkg/searchstore"
)

// Service is the assembled bridge: an MQTT consumer feeding a single-worker
// streaming pipeline that routes documents into the search store, plus the
// optional ops HTTP server.
type Service struct {
	streaming *pipeline.StreamingService[Document]
	consumer  pipeline.MessageConsumer
	ops       *opsserver.Server
	logger    zerolog.Logger
}

// NewService assembles the bridge pipeline. The streaming service always runs
// a single worker so documents are written strictly in broker delivery order.
// ops may be nil when the HTTP listener is disabled.
func NewService(
	consumer pipeline.MessageConsumer,
	table *mapping.Table,
	provisioner *searchstore.Provisioner,
	store searchstore.DocumentStore,
	ops *opsserver.Server,
	logger zerolog.Logger,
) (*Service, error) {
	transformer, err := NewTransformer(table)
	if err != nil {
		return nil, err
	}
	processor, err := NewProcessor(provisioner, store, logger)
	if err != nil {
		return nil, err
	}

	streaming, err := pipeline.NewStreamingService[Document](
		pipeline.StreamingServiceConfig{NumWorkers: 1},
		consumer,
		transformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	return &Service{
		streaming: streaming,
		consumer:  consumer,
		ops:       ops,
		logger:    logger.With().Str("component", "BridgeService").Logger(),
	}, nil
}

// Start brings up the ops server (when configured) and then the pipeline,
// which connects and subscribes the consumer.
func (s *Service) Start(ctx context.Context) error {
	if s.ops != nil {
		if err := s.ops.Start(); err != nil {
			return fmt.Errorf("failed to start ops server: %w", err)
		}
	}

	if err := s.streaming.Start(ctx); err != nil {
		if s.ops != nil {
			_ = s.ops.Shutdown(context.Background())
		}
		return err
	}

	s.logger.Info().Msg("Bridge service started.")
	return nil
}

// Stop shuts down the pipeline (consumer first, then in-flight work) followed
// by the ops server.
func (s *Service) Stop(ctx context.Context) error {
	var firstErr error
	if err := s.streaming.Stop(ctx); err != nil {
		firstErr = err
	}
	if s.ops != nil {
		if err := s.ops.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		s.logger.Info().Msg("Bridge service stopped.")
	}
	return firstErr
}

// Done returns a channel that is closed once the consumer has fully shut down.
func (s *Service) Done() <-chan struct{} {
	return s.consumer.Done()
}
