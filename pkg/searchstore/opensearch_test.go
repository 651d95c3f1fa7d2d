package searchstore_test

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/mqtt2search/pkg/searchstore"
)

func osResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// newOSStore builds a store whose transport answers the client's one-off
// product check and forwards everything else to handle.
func newOSStore(t *testing.T, cfg searchstore.OpenSearchConfig, handle roundTripFunc) *searchstore.OpenSearchStore {
	t.Helper()
	cfg.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == "/" {
			return osResponse(http.StatusOK, `{"version":{"number":"2.11.0","distribution":"opensearch"}}`), nil
		}
		return handle(r)
	})
	store, err := searchstore.NewOpenSearchStore(cfg, zerolog.Nop())
	require.NoError(t, err)
	return store
}

func TestNewOpenSearchStore_RequiresHosts(t *testing.T) {
	_, err := searchstore.NewOpenSearchStore(searchstore.OpenSearchConfig{}, zerolog.Nop())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "at least one opensearch host is required")
}

func TestNewOpenSearchStore_MissingCABundle(t *testing.T) {
	_, err := searchstore.NewOpenSearchStore(searchstore.OpenSearchConfig{
		Hosts:       []searchstore.OpenSearchHost{{Host: "os.local"}},
		UseTLS:      true,
		VerifyCerts: true,
		CACertsPath: filepath.Join(t.TempDir(), "missing-ca.pem"),
	}, zerolog.Nop())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read CA bundle")
}

func TestOpenSearchStore_DefaultsPortAndScheme(t *testing.T) {
	var gotHost, gotScheme string
	store := newOSStore(t, searchstore.OpenSearchConfig{
		Hosts: []searchstore.OpenSearchHost{{Host: "os.local"}},
	}, func(r *http.Request) (*http.Response, error) {
		gotHost, gotScheme = r.URL.Host, r.URL.Scheme
		return osResponse(http.StatusOK, ""), nil
	})

	exists, err := store.IndexExists(context.Background(), "events")

	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "os.local:9200", gotHost)
	assert.Equal(t, "http", gotScheme)
}

func TestOpenSearchStore_BasicAuthOnlyWhenBothSet(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		wantAuth bool
	}{
		{name: "both set", username: "admin", password: "secret", wantAuth: true},
		{name: "username only", username: "admin", wantAuth: false},
		{name: "neither", wantAuth: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser, gotPass string
			var gotOK bool
			store := newOSStore(t, searchstore.OpenSearchConfig{
				Hosts:    []searchstore.OpenSearchHost{{Host: "os.local"}},
				Username: tt.username,
				Password: tt.password,
			}, func(r *http.Request) (*http.Response, error) {
				gotUser, gotPass, gotOK = r.BasicAuth()
				return osResponse(http.StatusOK, ""), nil
			})

			_, err := store.IndexExists(context.Background(), "events")

			require.NoError(t, err)
			assert.Equal(t, tt.wantAuth, gotOK)
			if tt.wantAuth {
				assert.Equal(t, "admin", gotUser)
				assert.Equal(t, "secret", gotPass)
			}
		})
	}
}

func TestOpenSearchStore_CreateIndex_CompressesBody(t *testing.T) {
	var gotEncoding, gotBody string
	store := newOSStore(t, searchstore.OpenSearchConfig{
		Hosts: []searchstore.OpenSearchHost{{Host: "os.local", Port: 9201}},
	}, func(r *http.Request) (*http.Response, error) {
		gotEncoding = r.Header.Get("Content-Encoding")
		reader, err := gzip.NewReader(r.Body)
		require.NoError(t, err)
		b, err := io.ReadAll(reader)
		require.NoError(t, err)
		gotBody = string(b)
		return osResponse(http.StatusOK, `{"acknowledged":true}`), nil
	})

	schema := []byte(`{"settings":{"number_of_shards":1}}`)
	require.NoError(t, store.CreateIndex(context.Background(), "events", schema))

	assert.Equal(t, "gzip", gotEncoding)
	assert.JSONEq(t, string(schema), gotBody)
}

func TestOpenSearchStore_DeleteIndex_Missing(t *testing.T) {
	store := newOSStore(t, searchstore.OpenSearchConfig{
		Hosts: []searchstore.OpenSearchHost{{Host: "os.local"}},
	}, func(r *http.Request) (*http.Response, error) {
		return osResponse(http.StatusNotFound, `{"error":"index_not_found_exception"}`), nil
	})

	err := store.DeleteIndex(context.Background(), "gone")

	require.Error(t, err)
	assert.ErrorIs(t, err, searchstore.ErrIndexNotFound)
}

func TestOpenSearchStore_IndexDocument(t *testing.T) {
	var gotPath string
	store := newOSStore(t, searchstore.OpenSearchConfig{
		Hosts: []searchstore.OpenSearchHost{{Host: "os.local"}},
	}, func(r *http.Request) (*http.Response, error) {
		gotPath = r.URL.Path
		return osResponse(http.StatusCreated, `{"_id":"k2d8","result":"created"}`), nil
	})

	result, err := store.IndexDocument(context.Background(), "events", []byte(`{"temp":21.5}`))

	require.NoError(t, err)
	assert.Equal(t, "created", result.Result)
	assert.Equal(t, "k2d8", result.ID)
	assert.Equal(t, "/events/_doc", gotPath)
}
