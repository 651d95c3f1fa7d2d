package searchstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog"
)

// ElasticsearchConfig holds the connection settings for an Elasticsearch cluster.
type ElasticsearchConfig struct {
	// Addresses lists the cluster endpoint URLs, scheme included.
	Addresses []string
	// APIKey is an optional base64 API key. When empty no Authorization
	// header is sent.
	APIKey string
	// Transport overrides the HTTP transport. Nil uses the client default.
	Transport http.RoundTripper
}

// ElasticsearchStore implements DocumentStore against an Elasticsearch cluster.
type ElasticsearchStore struct {
	client *elasticsearch.Client
	logger zerolog.Logger
}

var _ DocumentStore = (*ElasticsearchStore)(nil)

// NewElasticsearchStore creates the client. Requests are never retried; a
// failed call surfaces its error immediately.
func NewElasticsearchStore(cfg ElasticsearchConfig, logger zerolog.Logger) (*ElasticsearchStore, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("at least one elasticsearch endpoint URL is required")
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    cfg.Addresses,
		APIKey:       cfg.APIKey,
		DisableRetry: true,
		Transport:    cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &ElasticsearchStore{
		client: client,
		logger: logger.With().Str("component", "ElasticsearchStore").Logger(),
	}, nil
}

// IndexExists reports whether the named index exists.
func (s *ElasticsearchStore) IndexExists(ctx context.Context, index string) (bool, error) {
	res, err := esapi.IndicesExistsRequest{Index: []string{index}}.Do(ctx, s.client)
	if err != nil {
		return false, fmt.Errorf("exists check for index %q failed: %w", index, err)
	}
	defer func() { _ = res.Body.Close() }()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("exists check for index %q returned %s", index, res.String())
	}
}

// CreateIndex creates the named index with the given settings/mappings body.
func (s *ElasticsearchStore) CreateIndex(ctx context.Context, index string, body []byte) error {
	req := esapi.IndicesCreateRequest{Index: index}
	if len(body) > 0 {
		req.Body = bytes.NewReader(body)
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("create of index %q failed: %w", index, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("create of index %q returned %s", index, res.String())
	}
	s.logger.Debug().Str("index", index).Msg("Index created.")
	return nil
}

// DeleteIndex removes the named index.
func (s *ElasticsearchStore) DeleteIndex(ctx context.Context, index string) error {
	res, err := esapi.IndicesDeleteRequest{Index: []string{index}}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("delete of index %q failed: %w", index, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("delete of index %q: %w", index, ErrIndexNotFound)
	}
	if res.IsError() {
		return fmt.Errorf("delete of index %q returned %s", index, res.String())
	}
	return nil
}

// IndexDocument writes one JSON document, letting the cluster assign its ID.
func (s *ElasticsearchStore) IndexDocument(ctx context.Context, index string, document []byte) (*IndexResult, error) {
	res, err := esapi.IndexRequest{Index: index, Body: bytes.NewReader(document)}.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("indexing into %q failed: %w", index, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, fmt.Errorf("indexing into %q returned %s", index, res.String())
	}

	var result IndexResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode index response from %q: %w", index, err)
	}
	return &result, nil
}
