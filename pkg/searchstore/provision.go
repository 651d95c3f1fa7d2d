package searchstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelworks/mqtt2search/pkg/mapping"
)

// Provisioner creates and deletes indices ahead of document writes.
type Provisioner struct {
	store  DocumentStore
	logger zerolog.Logger
}

// NewProvisioner wraps a DocumentStore with index lifecycle operations.
func NewProvisioner(store DocumentStore, logger zerolog.Logger) *Provisioner {
	return &Provisioner{
		store:  store,
		logger: logger.With().Str("component", "Provisioner").Logger(),
	}
}

// EnsureIndex creates the index when it does not exist yet. It is idempotent,
// so the write path can call it for every message.
func (p *Provisioner) EnsureIndex(ctx context.Context, index string, body []byte) error {
	exists, err := p.store.IndexExists(ctx, index)
	if err != nil {
		return fmt.Errorf("failed to check index %q: %w", index, err)
	}
	if exists {
		p.logger.Debug().Str("index", index).Msg("Index already exists, skipping creation.")
		return nil
	}

	p.logger.Info().Str("index", index).Msg("Index not found, creating it.")
	if err := p.store.CreateIndex(ctx, index, body); err != nil {
		return fmt.Errorf("failed to create index %q: %w", index, err)
	}
	return nil
}

// RemoveIndex deletes the index. The caller decides whether an absent index
// (ErrIndexNotFound) is a problem.
func (p *Provisioner) RemoveIndex(ctx context.Context, index string) error {
	if err := p.store.DeleteIndex(ctx, index); err != nil {
		return fmt.Errorf("failed to delete index %q: %w", index, err)
	}
	p.logger.Info().Str("index", index).Msg("Index deleted.")
	return nil
}

// EnsureAll provisions the index of every mapping entry, with name templates
// resolved at time now.
func (p *Provisioner) EnsureAll(ctx context.Context, table *mapping.Table, now time.Time) error {
	for _, topic := range table.Topics() {
		entry, _ := table.Lookup(topic)
		if err := p.EnsureIndex(ctx, entry.ResolvedIndex(now), entry.Body); err != nil {
			return err
		}
	}
	return nil
}

// ResetAll is the removeIndex maintenance run. Every mapped index is deleted
// before any is recreated; indices that are already absent are skipped.
func (p *Provisioner) ResetAll(ctx context.Context, table *mapping.Table, now time.Time) error {
	topics := table.Topics()

	for _, topic := range topics {
		entry, _ := table.Lookup(topic)
		index := entry.ResolvedIndex(now)
		if err := p.RemoveIndex(ctx, index); err != nil {
			if errors.Is(err, ErrIndexNotFound) {
				p.logger.Debug().Str("index", index).Msg("Index already absent, nothing to delete.")
				continue
			}
			return err
		}
	}

	for _, topic := range topics {
		entry, _ := table.Lookup(topic)
		if err := p.EnsureIndex(ctx, entry.ResolvedIndex(now), entry.Body); err != nil {
			return err
		}
	}

	p.logger.Info().Int("indices", table.Len()).Msg("All mapped indices deleted and recreated.")
	return nil
}
