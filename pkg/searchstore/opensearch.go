package searchstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/rs/zerolog"
)

// OpenSearchConfig holds the connection settings for an OpenSearch cluster.
type OpenSearchConfig struct {
	// Hosts lists the cluster nodes. A zero Port falls back to 9200.
	Hosts []OpenSearchHost
	// Username and Password enable basic auth when both are non-empty.
	Username string
	Password string
	// UseTLS switches the node addresses to https.
	UseTLS bool
	// VerifyCerts enables certificate verification against the CA bundle at
	// CACertsPath. When false, TLS connections skip verification entirely.
	VerifyCerts bool
	CACertsPath string
	// Transport overrides the HTTP transport. Nil uses the client default.
	Transport http.RoundTripper
}

// OpenSearchHost is a single node address.
type OpenSearchHost struct {
	Host string
	Port int
}

// OpenSearchStore implements DocumentStore against an OpenSearch cluster.
type OpenSearchStore struct {
	client *opensearch.Client
	logger zerolog.Logger
}

var _ DocumentStore = (*OpenSearchStore)(nil)

// NewOpenSearchStore creates the client. Request bodies are gzip-compressed
// and requests are never retried.
func NewOpenSearchStore(cfg OpenSearchConfig, logger zerolog.Logger) (*OpenSearchStore, error) {
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("at least one opensearch host is required")
	}

	scheme := "http"
	if cfg.UseTLS {
		scheme = "https"
	}
	addresses := make([]string, 0, len(cfg.Hosts))
	for _, h := range cfg.Hosts {
		port := h.Port
		if port == 0 {
			port = 9200
		}
		addresses = append(addresses, fmt.Sprintf("%s://%s:%d", scheme, h.Host, port))
	}

	osCfg := opensearch.Config{
		Addresses:           addresses,
		CompressRequestBody: true,
		DisableRetry:        true,
		Transport:           cfg.Transport,
	}
	if cfg.Username != "" && cfg.Password != "" {
		osCfg.Username = cfg.Username
		osCfg.Password = cfg.Password
	}
	// The client rejects CACert combined with a custom Transport, so TLS
	// settings only apply when no override is in place.
	if cfg.UseTLS && cfg.Transport == nil {
		if cfg.VerifyCerts {
			caCert, err := os.ReadFile(cfg.CACertsPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read CA bundle %s: %w", cfg.CACertsPath, err)
			}
			osCfg.CACert = caCert
		} else {
			osCfg.Transport = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}
		}
	}

	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	return &OpenSearchStore{
		client: client,
		logger: logger.With().Str("component", "OpenSearchStore").Logger(),
	}, nil
}

// IndexExists reports whether the named index exists.
func (s *OpenSearchStore) IndexExists(ctx context.Context, index string) (bool, error) {
	res, err := opensearchapi.IndicesExistsRequest{Index: []string{index}}.Do(ctx, s.client)
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
func (s *OpenSearchStore) CreateIndex(ctx context.Context, index string, body []byte) error {
	req := opensearchapi.IndicesCreateRequest{Index: index}
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
func (s *OpenSearchStore) DeleteIndex(ctx context.Context, index string) error {
	res, err := opensearchapi.IndicesDeleteRequest{Index: []string{index}}.Do(ctx, s.client)
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
func (s *OpenSearchStore) IndexDocument(ctx context.Context, index string, document []byte) (*IndexResult, error) {
	res, err := opensearchapi.IndexRequest{Index: index, Body: bytes.NewReader(document)}.Do(ctx, s.client)
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
