package mqttsource

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kestrelworks/mqtt2search/pkg/pipeline"
)

// NewConsumer validates the config and returns the consumer for the selected
// protocol version. The consumer does not connect until Start is called; a
// refused or timed-out initial connect is returned as an error from Start.
func NewConsumer(cfg *ClientConfig, logger zerolog.Logger) (pipeline.MessageConsumer, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid MQTT configuration: %w", err)
	}
	cfg.setDefaults()

	switch cfg.ProtocolVersion {
	case ProtocolV5:
		return newV5Consumer(cfg, logger), nil
	default:
		return newPahoConsumer(cfg, logger), nil
	}
}
