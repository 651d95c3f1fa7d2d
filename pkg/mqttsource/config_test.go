package mqttsource

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		wantErr string
	}{
		{
			name: "missing host",
			cfg:  ClientConfig{Topics: []string{"a/b"}},

			wantErr: "broker host is required",
		},
		{
			name:    "no topics",
			cfg:     ClientConfig{BrokerHost: "broker.local"},
			wantErr: "at least one topic filter is required",
		},
		{
			name:    "unsupported protocol version",
			cfg:     ClientConfig{BrokerHost: "broker.local", Topics: []string{"a/b"}, ProtocolVersion: 4},
			wantErr: "unsupported MQTT protocol version 4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	valid := ClientConfig{BrokerHost: "broker.local", Topics: []string{"a/b"}, ProtocolVersion: ProtocolV5}
	assert.NoError(t, valid.validate())
}

func TestClientConfig_SetDefaults(t *testing.T) {
	cfg := ClientConfig{BrokerHost: "broker.local", Topics: []string{"a/b"}}
	cfg.setDefaults()

	assert.Equal(t, 1883, cfg.BrokerPort)
	assert.Equal(t, ProtocolV311, cfg.ProtocolVersion)
	assert.Equal(t, 60*time.Second, cfg.KeepAlive)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 1*time.Second, cfg.ReconnectWaitMin)
	assert.Equal(t, 120*time.Second, cfg.ReconnectWaitMax)
}

func TestClientConfig_BrokerURL(t *testing.T) {
	cfg := ClientConfig{BrokerHost: "broker.local", BrokerPort: 1883}
	assert.Equal(t, "tcp://broker.local:1883", cfg.brokerURL())

	cfg.UseTLS = true
	cfg.BrokerPort = 8883
	assert.Equal(t, "ssl://broker.local:8883", cfg.brokerURL())
}

func TestClientConfig_ClientID(t *testing.T) {
	cfg := ClientConfig{ClientID: "bridge-7"}
	assert.Equal(t, "bridge-7", cfg.clientID())

	cfg = ClientConfig{}
	id := cfg.clientID()
	assert.True(t, strings.HasPrefix(id, "mqtt2search-"), "generated ID %q should carry the service prefix", id)
	assert.NotEqual(t, id, cfg.clientID(), "generated IDs should be unique")
}

func TestClientConfig_TLSConfig(t *testing.T) {
	cfg := ClientConfig{}
	assert.Nil(t, cfg.tlsConfig())

	cfg.UseTLS = true
	tlsCfg := cfg.tlsConfig()
	require.NotNil(t, tlsCfg)
	assert.False(t, tlsCfg.InsecureSkipVerify)

	cfg.InsecureSkipVerify = true
	assert.True(t, cfg.tlsConfig().InsecureSkipVerify)
}

func TestNewConsumer_SelectsProtocolVariant(t *testing.T) {
	logger := zerolog.Nop()

	consumer, err := NewConsumer(&ClientConfig{BrokerHost: "broker.local", Topics: []string{"a/b"}}, logger)
	require.NoError(t, err)
	_, ok := consumer.(*pahoConsumer)
	assert.True(t, ok, "default protocol should build the 3.1.1 consumer")

	consumer, err = NewConsumer(&ClientConfig{BrokerHost: "broker.local", Topics: []string{"a/b"}, ProtocolVersion: ProtocolV5}, logger)
	require.NoError(t, err)
	_, ok = consumer.(*v5Consumer)
	assert.True(t, ok, "protocol_version 5 should build the v5 consumer")
}

func TestNewConsumer_RejectsInvalidConfig(t *testing.T) {
	_, err := NewConsumer(&ClientConfig{}, zerolog.Nop())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid MQTT configuration")
}
