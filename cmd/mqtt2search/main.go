// mqtt2search subscribes to a set of MQTT topics and writes every received
// JSON payload into an Elasticsearch or OpenSearch index chosen by a static
// topic mapping. Indices are provisioned up front and on demand; an optional
// maintenance mode resets all mapped indices and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelworks/mqtt2search/pkg/bridge"
	"github.com/kestrelworks/mqtt2search/pkg/config"
	"github.com/kestrelworks/mqtt2search/pkg/mapping"
	"github.com/kestrelworks/mqtt2search/pkg/mqttsource"
	"github.com/kestrelworks/mqtt2search/pkg/opsserver"
	"github.com/kestrelworks/mqtt2search/pkg/searchstore"
)

const version = "1.0.0"

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to the config file (overrides $"+config.EnvConfigFile+")")
	mappingPath := flag.String("mapping", "", "path to the topic mapping file (overrides $"+config.EnvMappingFile+")")
	flag.Parse()

	logger := zerolog.New(os.Stdout).Level(zerolog.InfoLevel).With().Timestamp().Logger()

	cfg, err := config.Load(config.PathFromEnv(*configPath, config.EnvConfigFile, config.DefaultConfigPath))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration.")
	}
	if cfg.Debug {
		logger = logger.Level(zerolog.DebugLevel)
	}

	logger.Info().Str("version", version).Msg("MQTT to search-store bridge started.")

	table, err := mapping.Load(config.PathFromEnv(*mappingPath, config.EnvMappingFile, config.DefaultMappingPath))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load topic mapping.")
	}
	logger.Debug().Strs("topics", table.Topics()).Msg("Topic mapping loaded.")

	store, err := newDocumentStore(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create search-store client.")
	}
	logger.Debug().Stringer("backend", cfg.Backend()).Msg("Search-store client created.")
	provisioner := searchstore.NewProvisioner(store, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.RemoveIndices {
		if err := provisioner.ResetAll(ctx, table, time.Now()); err != nil {
			logger.Fatal().Err(err).Msg("Index reset failed.")
		}
		logger.Info().Str("version", version).Msg("Index reset complete, MQTT to search-store bridge stopped.")
		return
	}

	if err := provisioner.EnsureAll(ctx, table, time.Now()); err != nil {
		logger.Fatal().Err(err).Msg("Startup index provisioning failed.")
	}

	consumer, err := mqttsource.NewConsumer(&mqttsource.ClientConfig{
		BrokerHost:         cfg.MQTT.Server,
		BrokerPort:         cfg.MQTT.Port,
		ClientID:           cfg.MQTT.ClientID,
		Username:           cfg.MQTT.User,
		Password:           cfg.MQTT.Password,
		UseTLS:             cfg.MQTT.TLS,
		InsecureSkipVerify: !cfg.MQTT.HostnameValidationEnabled(),
		ProtocolVersion:    cfg.MQTT.ProtocolVersion,
		Topics:             table.Topics(),
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create MQTT consumer.")
	}

	var ops *opsserver.Server
	if cfg.HTTPPort > 0 {
		ops = opsserver.New(logger, cfg.HTTPPort)
	}

	service, err := bridge.NewService(consumer, table, provisioner, store, ops, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to assemble bridge service.")
	}
	if err := service.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start bridge service.")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received.")
	case <-service.Done():
		logger.Warn().Msg("Consumer shut down on its own, exiting.")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := service.Stop(stopCtx); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown.")
	}

	logger.Info().Str("version", version).Msg("MQTT to search-store bridge stopped.")
}

// newDocumentStore builds the store variant the configuration selects.
func newDocumentStore(cfg *config.Config, logger zerolog.Logger) (searchstore.DocumentStore, error) {
	switch backend := cfg.Backend(); backend {
	case config.BackendElasticsearch:
		return searchstore.NewElasticsearchStore(searchstore.ElasticsearchConfig{
			Addresses: cfg.Elasticsearch.Cluster,
			APIKey:    cfg.Elasticsearch.APIKey,
		}, logger)
	case config.BackendOpenSearch:
		hosts := make([]searchstore.OpenSearchHost, 0, len(cfg.OpenSearch.Hosts))
		for _, h := range cfg.OpenSearch.Hosts {
			hosts = append(hosts, searchstore.OpenSearchHost{Host: h.Host, Port: h.Port})
		}
		return searchstore.NewOpenSearchStore(searchstore.OpenSearchConfig{
			Hosts:       hosts,
			Username:    cfg.OpenSearch.Username,
			Password:    cfg.OpenSearch.Password,
			UseTLS:      cfg.OpenSearch.TLS,
			VerifyCerts: cfg.OpenSearch.VerifyCerts,
			CACertsPath: cfg.OpenSearch.CACertsPath,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported search backend %d", backend)
	}
}
