package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Entry describes the destination for one topic filter: the index-name
// template and the body (settings/mappings) used when the index is created.
type Entry struct {
	Index string          `json:"elasticIndex"`
	Body  json.RawMessage `json:"elasticBody"`
}

// Table is the static topic-to-index routing table loaded at startup.
// Keys are MQTT topic filters and may contain the + and # wildcards.
type Table struct {
	entries map[string]Entry
	// filters holds the topic filters in sorted order so that subscription
	// and wildcard lookup are deterministic.
	filters []string
}

// Load reads and parses the JSON mapping file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse mapping JSON: %w", err)
	}

	return New(entries)
}

// New builds a Table from already-decoded entries.
func New(entries map[string]Entry) (*Table, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("mapping contains no entries")
	}

	filters := make([]string, 0, len(entries))
	for filter, entry := range entries {
		if filter == "" {
			return nil, fmt.Errorf("mapping contains an empty topic filter")
		}
		if entry.Index == "" {
			return nil, fmt.Errorf("mapping entry for %q has no elasticIndex", filter)
		}
		filters = append(filters, filter)
	}
	sort.Strings(filters)

	return &Table{entries: entries, filters: filters}, nil
}

// Topics returns every topic filter in the table, sorted. The subscriber
// subscribes to exactly this set.
func (t *Table) Topics() []string {
	out := make([]string, len(t.filters))
	copy(out, t.filters)
	return out
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.filters)
}

// Lookup finds the entry responsible for a concrete topic name. An exact
// match wins; otherwise the filters are scanned in sorted order and the first
// one that matches under MQTT wildcard rules is returned.
func (t *Table) Lookup(topic string) (Entry, bool) {
	if entry, ok := t.entries[topic]; ok {
		return entry, true
	}
	for _, filter := range t.filters {
		if MatchesFilter(filter, topic) {
			return t.entries[filter], true
		}
	}
	return Entry{}, false
}

// MatchesFilter reports whether an MQTT topic filter matches a concrete topic
// name. The + wildcard matches exactly one level, # matches the remainder of
// the topic (including the parent level) and is only valid at the end.
func MatchesFilter(filter, topic string) bool {
	if filter == topic {
		return true
	}
	filterLevels := strings.Split(filter, "/")
	topicLevels := strings.Split(topic, "/")

	for i, level := range filterLevels {
		if level == "#" {
			return i == len(filterLevels)-1
		}
		if i >= len(topicLevels) {
			return false
		}
		if level != "+" && level != topicLevels[i] {
			return false
		}
	}
	return len(filterLevels) == len(topicLevels)
}
