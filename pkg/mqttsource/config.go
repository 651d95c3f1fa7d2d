package mqttsource

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Protocol versions accepted in ClientConfig.ProtocolVersion.
const (
	ProtocolV311 = 3
	ProtocolV5   = 5
)

// ClientConfig holds the connection parameters shared by both protocol
// variants of the consumer.
type ClientConfig struct {
	// BrokerHost is the broker hostname or IP address.
	BrokerHost string
	// BrokerPort is the broker port.
	BrokerPort int
	// ClientID identifies this client to the broker. When empty a unique ID
	// with the "mqtt2search-" prefix is generated.
	ClientID string
	// Username and Password are only presented to the broker when both are
	// non-empty.
	Username string
	Password string
	// UseTLS enables TLS on the broker connection.
	UseTLS bool
	// InsecureSkipVerify disables certificate verification, for brokers whose
	// certificate does not match their hostname.
	InsecureSkipVerify bool
	// ProtocolVersion selects the MQTT protocol: 3 (MQTT 3.1.1) or 5.
	ProtocolVersion int
	// Topics are the topic filters subscribed to on every (re)connect.
	Topics []string
	// KeepAlive is the interval at which the client pings the broker.
	KeepAlive time.Duration
	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration
	// ReconnectWaitMin is the delay before the first reconnect attempt.
	ReconnectWaitMin time.Duration
	// ReconnectWaitMax is the maximum backoff between reconnect attempts.
	ReconnectWaitMax time.Duration
}

func (c *ClientConfig) validate() error {
	if c.BrokerHost == "" {
		return fmt.Errorf("broker host is required")
	}
	if len(c.Topics) == 0 {
		return fmt.Errorf("at least one topic filter is required")
	}
	switch c.ProtocolVersion {
	case 0, ProtocolV311, ProtocolV5:
	default:
		return fmt.Errorf("unsupported MQTT protocol version %d", c.ProtocolVersion)
	}
	return nil
}

func (c *ClientConfig) setDefaults() {
	if c.BrokerPort == 0 {
		c.BrokerPort = 1883
	}
	if c.ProtocolVersion == 0 {
		c.ProtocolVersion = ProtocolV311
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 60 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ReconnectWaitMin == 0 {
		c.ReconnectWaitMin = 1 * time.Second
	}
	if c.ReconnectWaitMax == 0 {
		c.ReconnectWaitMax = 120 * time.Second
	}
}

// brokerURL assembles the broker address, switching the scheme with TLS.
func (c *ClientConfig) brokerURL() string {
	scheme := "tcp"
	if c.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.BrokerHost, c.BrokerPort)
}

// clientID returns the configured client ID, or a freshly generated one.
func (c *ClientConfig) clientID() string {
	if c.ClientID != "" {
		return c.ClientID
	}
	return "mqtt2search-" + uuid.NewString()[:8]
}

// tlsConfig returns the TLS settings for the broker connection, nil for
// plaintext connections.
func (c *ClientConfig) tlsConfig() *tls.Config {
	if !c.UseTLS {
		return nil
	}
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
}
