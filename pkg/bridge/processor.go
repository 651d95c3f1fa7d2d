package bridge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kestrelworks/mqtt2search/pkg/pipeline"
	"github.com/kestrelworks/mqtt2search/pkg/searchstore"
)

// NewProcessor returns a StreamProcessor that writes one Document to the
// search store, provisioning the destination index first when it does not
// exist yet. The store's acknowledgment (e.g. "created") is logged with
// topic and index context.
func NewProcessor(
	provisioner *searchstore.Provisioner,
	store searchstore.DocumentStore,
	logger zerolog.Logger,
) (pipeline.StreamProcessor[Document], error) {
	if provisioner == nil {
		return nil, fmt.Errorf("provisioner cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	procLogger := logger.With().Str("component", "BridgeProcessor").Logger()

	return func(ctx context.Context, _ pipeline.Message, doc *Document) error {
		if err := provisioner.EnsureIndex(ctx, doc.Index, doc.Schema); err != nil {
			return fmt.Errorf("failed to provision index for topic %q: %w", doc.Topic, err)
		}

		result, err := store.IndexDocument(ctx, doc.Index, doc.Payload)
		if err != nil {
			return fmt.Errorf("failed to index document from topic %q into %q: %w", doc.Topic, doc.Index, err)
		}

		procLogger.Info().
			Str("topic", doc.Topic).
			Str("index", doc.Index).
			Str("result", result.Result).
			Msg("Document indexed.")
		return nil
	}, nil
}
