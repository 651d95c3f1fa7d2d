package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Environment variables and fallback locations for the two input files.
const (
	EnvConfigFile  = "CONFIG_FILE"
	EnvMappingFile = "MAPPING_FILE"

	DefaultConfigPath  = "/etc/mqtt2search/config.json"
	DefaultMappingPath = "/etc/mqtt2search/mappings.json"
)

// Backend enumerates the supported search backends. Exactly one is selected
// per process, fixed for its lifetime.
type Backend int

const (
	BackendElasticsearch Backend = iota + 1
	BackendOpenSearch
)

// String returns the backend name as it appears in the configuration.
func (b Backend) String() string {
	switch b {
	case BackendElasticsearch:
		return "elasticsearch"
	case BackendOpenSearch:
		return "opensearch"
	default:
		return "unknown"
	}
}

// Config represents the complete configuration for the bridge process.
type Config struct {
	Debug         bool                 `json:"DEBUG"`
	RemoveIndices bool                 `json:"removeIndex"`
	HTTPPort      int                  `json:"http_port"`
	MQTT          MQTTConfig           `json:"mqtt"`
	Elasticsearch *ElasticsearchConfig `json:"elasticsearch,omitempty"`
	OpenSearch    *OpenSearchConfig    `json:"opensearch,omitempty"`
}

// Backend returns the search backend this config selects. Validation
// guarantees exactly one backend block is present.
func (c *Config) Backend() Backend {
	if c.Elasticsearch != nil {
		return BackendElasticsearch
	}
	return BackendOpenSearch
}

// MQTTConfig defines the broker connection settings.
type MQTTConfig struct {
	Server   string `json:"server"`
	Port     int    `json:"port"`
	ClientID string `json:"client_id"`
	User     string `json:"user"`
	Password string `json:"password"`
	TLS      bool   `json:"tls"`
	// HostnameValidation defaults to true; setting it to false disables
	// certificate hostname checks on TLS connections.
	HostnameValidation *bool `json:"hostname_validation"`
	// ProtocolVersion selects the MQTT protocol: 3 (MQTT 3.1.1) or 5.
	ProtocolVersion int `json:"protocol_version"`
}

// ElasticsearchConfig defines an Elasticsearch backend.
type ElasticsearchConfig struct {
	Cluster []string `json:"cluster"`
	APIKey  string   `json:"api_key"`
}

// OpenSearchConfig defines an OpenSearch backend.
type OpenSearchConfig struct {
	Hosts       []OpenSearchHost `json:"hosts"`
	Username    string           `json:"username"`
	Password    string           `json:"password"`
	TLS         bool             `json:"tls"`
	VerifyCerts bool             `json:"verify_certs"`
	CACertsPath string           `json:"ca_certs_path"`
}

// OpenSearchHost is a single node address.
type OpenSearchHost struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Load parses the JSON configuration file and validates all settings.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	setDefaults(&config)

	return &config, nil
}

// PathFromEnv resolves an input-file path: an explicit override wins, then the
// environment variable, then the built-in default.
func PathFromEnv(override, envKey, fallback string) string {
	if override != "" {
		return override
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return fallback
}

// HostnameValidationEnabled reports whether certificate hostname checks stay on.
func (m *MQTTConfig) HostnameValidationEnabled() bool {
	return m.HostnameValidation == nil || *m.HostnameValidation
}

// validateConfig performs validation to catch configuration errors before any
// broker or store connection is attempted.
func validateConfig(config *Config) error {
	if config.MQTT.Server == "" {
		return fmt.Errorf("mqtt.server is required")
	}
	if config.MQTT.Port == 0 {
		return fmt.Errorf("mqtt.port is required")
	}
	if config.MQTT.Port < 1 || config.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt.port must be between 1 and 65535, got %d", config.MQTT.Port)
	}
	if v := config.MQTT.ProtocolVersion; v != 0 && v != 3 && v != 5 {
		return fmt.Errorf("mqtt.protocol_version must be 3 or 5, got %d", v)
	}

	// Exactly one search backend must be configured.
	if config.Elasticsearch != nil && config.OpenSearch != nil {
		return fmt.Errorf("elasticsearch and opensearch are mutually exclusive, configure exactly one")
	}
	if config.Elasticsearch == nil && config.OpenSearch == nil {
		return fmt.Errorf("a search backend is required, configure either elasticsearch or opensearch")
	}

	if config.Elasticsearch != nil && len(config.Elasticsearch.Cluster) == 0 {
		return fmt.Errorf("elasticsearch.cluster must list at least one endpoint URL")
	}
	if config.OpenSearch != nil {
		if len(config.OpenSearch.Hosts) == 0 {
			return fmt.Errorf("opensearch.hosts must list at least one host")
		}
		for i, h := range config.OpenSearch.Hosts {
			if h.Host == "" {
				return fmt.Errorf("opensearch.hosts[%d].host is required", i)
			}
		}
	}

	if config.HTTPPort < 0 || config.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 0 and 65535, got %d", config.HTTPPort)
	}

	return nil
}

// setDefaults applies default values for optional configuration fields.
func setDefaults(config *Config) {
	if config.MQTT.ProtocolVersion == 0 {
		config.MQTT.ProtocolVersion = 3
	}
	if config.MQTT.HostnameValidation == nil {
		enabled := true
		config.MQTT.HostnameValidation = &enabled
	}

	if config.OpenSearch != nil {
		for i := range config.OpenSearch.Hosts {
			if config.OpenSearch.Hosts[i].Port == 0 {
				config.OpenSearch.Hosts[i].Port = 9200
			}
		}
		if config.OpenSearch.CACertsPath == "" {
			config.OpenSearch.CACertsPath = "/etc/ssl/certs/ca-certificates.crt"
		}
	}
}
