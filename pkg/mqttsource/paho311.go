package mqttsource

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/kestrelworks/mqtt2search/pkg/pipeline"
)

const subscribeTimeout = 5 * time.Second

// pahoConsumer implements pipeline.MessageConsumer over paho.mqtt.golang,
// which speaks MQTT 3.1.1.
type pahoConsumer struct {
	pahoClient mqtt.Client
	logger     zerolog.Logger
	outputChan chan pipeline.Message
	doneChan   chan struct{}
	cfg        *ClientConfig
	stopOnce   sync.Once
	// sendMu serializes handler sends with Stop's close of outputChan, so a
	// callback still in flight during shutdown can never send on a closed
	// channel.
	sendMu sync.Mutex
	closed bool
	// newClient is swapped out by unit tests.
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

func newPahoConsumer(cfg *ClientConfig, logger zerolog.Logger) *pahoConsumer {
	return &pahoConsumer{
		logger:     logger.With().Str("component", "MQTTConsumer").Str("protocol", "3.1.1").Logger(),
		outputChan: make(chan pipeline.Message, 1000),
		doneChan:   make(chan struct{}),
		cfg:        cfg,
		newClient:  mqtt.NewClient,
	}
}

// Messages returns the read-only channel from which messages can be consumed.
func (c *pahoConsumer) Messages() <-chan pipeline.Message {
	return c.outputChan
}

// Start connects to the broker. A refused CONNECT or a timeout is returned
// as an error; reconnects after an established connection drops are handled
// by the Paho client, which resubscribes through the on-connect hook.
func (c *pahoConsumer) Start(ctx context.Context) error {
	opts := c.createMqttOptions(ctx)
	c.pahoClient = c.newClient(opts)

	c.logger.Info().Str("broker", c.cfg.brokerURL()).Msg("Connecting to MQTT broker...")
	token := c.pahoClient.Connect()
	if !token.WaitTimeout(c.cfg.ConnectTimeout) {
		return fmt.Errorf("timed out connecting to MQTT broker %s", c.cfg.brokerURL())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", c.cfg.brokerURL(), err)
	}

	go func() {
		<-ctx.Done()
		c.logger.Info().Msg("Shutdown signal received, ensuring consumer is stopped.")
		_ = c.Stop(context.Background())
	}()

	return nil
}

// Stop gracefully ceases message consumption.
func (c *pahoConsumer) Stop(_ context.Context) error {
	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping MQTT consumer...")
		if c.pahoClient != nil && c.pahoClient.IsConnected() {
			if token := c.pahoClient.Unsubscribe(c.cfg.Topics...); token.WaitTimeout(2*time.Second) && token.Error() != nil {
				c.logger.Warn().Err(token.Error()).Msg("Failed to unsubscribe from MQTT topics.")
			}
			c.pahoClient.Disconnect(500) // 500ms grace period
			c.logger.Info().Msg("MQTT client disconnected.")
		}
		// Waits for any delivery still inside send before closing under it.
		c.sendMu.Lock()
		c.closed = true
		close(c.outputChan)
		c.sendMu.Unlock()
		close(c.doneChan)
		c.logger.Info().Msg("MQTT consumer stopped.")
	})
	return nil
}

// Done returns a channel that is closed when the consumer has fully stopped.
func (c *pahoConsumer) Done() <-chan struct{} {
	return c.doneChan
}

// IsConnected returns the connection status of the underlying Paho client.
func (c *pahoConsumer) IsConnected() bool {
	return c.pahoClient != nil && c.pahoClient.IsConnected()
}

// handleIncomingMessage is the callback that converts MQTT messages to the
// pipeline format.
func (c *pahoConsumer) handleIncomingMessage(ctx context.Context) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		c.logger.Debug().Str("topic", msg.Topic()).Msg("Received MQTT message.")
		payloadCopy := make([]byte, len(msg.Payload()))
		copy(payloadCopy, msg.Payload())

		consumedMsg := pipeline.Message{
			MessageData: pipeline.MessageData{
				ID:          fmt.Sprintf("%d", msg.MessageID()),
				Payload:     payloadCopy,
				PublishTime: time.Now().UTC(),
			},
			Attributes: map[string]string{"mqtt_topic": msg.Topic()},
			// For MQTT the acknowledgment happens at the protocol level inside
			// the Paho client; the pipeline hooks have nothing left to do.
			Ack:  func() {},
			Nack: func() {},
		}
		c.send(ctx, consumedMsg, msg.Topic())
	}
}

// send hands a message to the pipeline channel. Sends hold sendMu so Stop
// cannot close the channel under an in-flight delivery; once the consumer is
// stopped, late callbacks drop their message.
func (c *pahoConsumer) send(ctx context.Context, msg pipeline.Message, topic string) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		c.logger.Warn().Str("topic", topic).Msg("Consumer is stopped, dropping MQTT message.")
		return
	}
	select {
	case c.outputChan <- msg:
	case <-ctx.Done():
		c.logger.Warn().Str("topic", topic).Msg("Consumer is shutting down, dropping MQTT message.")
	}
}

// createMqttOptions assembles the Paho client options from the config.
func (c *pahoConsumer) createMqttOptions(ctx context.Context) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.brokerURL())
	opts.SetProtocolVersion(4) // MQTT 3.1.1
	opts.SetClientID(c.cfg.clientID())
	opts.SetCleanSession(true)
	if c.cfg.Username != "" && c.cfg.Password != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}
	opts.SetKeepAlive(c.cfg.KeepAlive)
	opts.SetConnectTimeout(c.cfg.ConnectTimeout)
	// The initial CONNECT is all-or-nothing; only established connections are
	// retried, with resubscription through the on-connect hook.
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(c.cfg.ReconnectWaitMax)
	// Deliver callbacks in broker order so the channel preserves it.
	opts.SetOrderMatters(true)

	handler := c.handleIncomingMessage(ctx)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		c.logger.Info().Str("broker", c.cfg.brokerURL()).Msg("Connected to MQTT broker.")
		c.subscribeAll(client, handler)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Error().Err(err).Msg("Lost MQTT connection.")
	})

	if tlsCfg := c.cfg.tlsConfig(); tlsCfg != nil {
		opts.SetTLSConfig(tlsCfg)
		c.logger.Debug().Bool("insecure_skip_verify", tlsCfg.InsecureSkipVerify).Msg("TLS configured for MQTT client.")
	}
	return opts
}

// subscribeAll subscribes to every mapped topic filter with QoS 1. It runs on
// every successful (re)connect.
func (c *pahoConsumer) subscribeAll(client mqtt.Client, handler mqtt.MessageHandler) {
	filters := make(map[string]byte, len(c.cfg.Topics))
	for _, topic := range c.cfg.Topics {
		filters[topic] = 1
	}
	token := client.SubscribeMultiple(filters, handler)
	go func() {
		if !token.WaitTimeout(subscribeTimeout) {
			c.logger.Error().Strs("topics", c.cfg.Topics).Msg("Timed out subscribing to MQTT topics.")
			return
		}
		if err := token.Error(); err != nil {
			c.logger.Error().Err(err).Strs("topics", c.cfg.Topics).Msg("Failed to subscribe to MQTT topics.")
			return
		}
		c.logger.Info().Strs("topics", c.cfg.Topics).Msg("Subscribed to MQTT topics.")
	}()
}
