package bridge_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/mqtt2search/pkg/mapping"
	"github.com/kestrelworks/mqtt2search/pkg/pipeline"
	"github.com/kestrelworks/mqtt2search/pkg/searchstore"
)

// newTestTable builds the routing table shared by the bridge tests: one
// wildcard filter with a dated index template and one catch-all alert filter.
func newTestTable(t *testing.T) *mapping.Table {
	t.Helper()
	table, err := mapping.New(map[string]mapping.Entry{
		"sensors/+/temp": {Index: "temp-{Y}", Body: []byte(`{"mappings":{}}`)},
		"alerts/#":       {Index: "alerts"},
	})
	require.NoError(t, err)
	return table
}

// newBridgeMessage builds a pipeline.Message the way the MQTT consumer emits
// them. Tests that care about acknowledgments replace Ack/Nack.
func newBridgeMessage(id, topic string, payload []byte) pipeline.Message {
	return pipeline.Message{
		MessageData: pipeline.MessageData{ID: id, Payload: payload, PublishTime: time.Now()},
		Attributes:  map[string]string{"mqtt_topic": topic},
		Ack:         func() {},
		Nack:        func() {},
	}
}

// mockConsumer is a MessageConsumer fed by the test via Push.
type mockConsumer struct {
	msgChan  chan pipeline.Message
	doneChan chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	started  int
	stopped  int
}

func newMockConsumer(bufferSize int) *mockConsumer {
	return &mockConsumer{
		msgChan:  make(chan pipeline.Message, bufferSize),
		doneChan: make(chan struct{}),
	}
}

func (m *mockConsumer) Push(msg pipeline.Message) {
	m.msgChan <- msg
}

func (m *mockConsumer) Messages() <-chan pipeline.Message {
	return m.msgChan
}

func (m *mockConsumer) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
	return nil
}

func (m *mockConsumer) Stop(_ context.Context) error {
	m.mu.Lock()
	m.stopped++
	m.mu.Unlock()
	m.stopOnce.Do(func() {
		close(m.msgChan)
		close(m.doneChan)
	})
	return nil
}

func (m *mockConsumer) Done() <-chan struct{} {
	return m.doneChan
}

func (m *mockConsumer) StopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// fakeStore is an in-memory DocumentStore that records calls in order and
// keeps every written document per index.
type fakeStore struct {
	mu       sync.Mutex
	existing map[string]bool
	calls    []string
	docs     map[string][]string

	existsErr error
	createErr error
	indexErr  error
}

func newFakeStore(existing ...string) *fakeStore {
	s := &fakeStore{
		existing: make(map[string]bool),
		docs:     make(map[string][]string),
	}
	for _, index := range existing {
		s.existing[index] = true
	}
	return s
}

func (s *fakeStore) IndexExists(_ context.Context, index string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "exists:"+index)
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.existing[index], nil
}

func (s *fakeStore) CreateIndex(_ context.Context, index string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "create:"+index)
	if s.createErr != nil {
		return s.createErr
	}
	s.existing[index] = true
	return nil
}

func (s *fakeStore) DeleteIndex(_ context.Context, index string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "delete:"+index)
	if !s.existing[index] {
		return fmt.Errorf("delete of index %q: %w", index, searchstore.ErrIndexNotFound)
	}
	delete(s.existing, index)
	return nil
}

func (s *fakeStore) IndexDocument(_ context.Context, index string, document []byte) (*searchstore.IndexResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "index:"+index)
	if s.indexErr != nil {
		return nil, s.indexErr
	}
	s.docs[index] = append(s.docs[index], string(document))
	return &searchstore.IndexResult{ID: fmt.Sprintf("doc-%d", len(s.docs[index])), Result: "created"}, nil
}

func (s *fakeStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *fakeStore) Docs(index string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.docs[index]))
	copy(out, s.docs[index])
	return out
}

func (s *fakeStore) Exists(index string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existing[index]
}
