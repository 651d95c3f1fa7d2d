package mqttsource

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	paholog "github.com/eclipse/paho.golang/paho/log"
	"github.com/rs/zerolog"

	"github.com/kestrelworks/mqtt2search/pkg/pipeline"
)

// v5Consumer implements pipeline.MessageConsumer over eclipse/paho.golang,
// which speaks MQTT 5. The autopaho connection manager owns reconnects after
// the first successful connect; subscriptions are re-established on every
// connection-up, mirroring the 3.1.1 consumer.
type v5Consumer struct {
	cm         *autopaho.ConnectionManager
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

	connUpOnce sync.Once
	connUp     chan struct{}
	connErr    chan error
}

func newV5Consumer(cfg *ClientConfig, logger zerolog.Logger) *v5Consumer {
	return &v5Consumer{
		logger:     logger.With().Str("component", "MQTTConsumer").Str("protocol", "5").Logger(),
		outputChan: make(chan pipeline.Message, 1000),
		doneChan:   make(chan struct{}),
		cfg:        cfg,
		connUp:     make(chan struct{}),
		connErr:    make(chan error, 1),
	}
}

// Messages returns the read-only channel from which messages can be consumed.
func (c *v5Consumer) Messages() <-chan pipeline.Message {
	return c.outputChan
}

// Start connects to the broker and waits for the first CONNACK. A rejected or
// timed-out initial connect is returned as an error; once the first connection
// is up, later drops are retried by the connection manager.
func (c *v5Consumer) Start(ctx context.Context) error {
	clientCfg, err := c.buildClientConfig(ctx)
	if err != nil {
		return err
	}

	c.logger.Info().Str("broker", c.cfg.brokerURL()).Msg("Connecting to MQTT broker...")
	cm, err := autopaho.NewConnection(ctx, clientCfg)
	if err != nil {
		return fmt.Errorf("failed to create MQTT v5 connection: %w", err)
	}
	c.cm = cm

	select {
	case <-c.connUp:
	case err := <-c.connErr:
		_ = cm.Disconnect(context.Background())
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", c.cfg.brokerURL(), err)
	case <-time.After(c.cfg.ConnectTimeout):
		_ = cm.Disconnect(context.Background())
		return fmt.Errorf("timed out connecting to MQTT broker %s", c.cfg.brokerURL())
	case <-ctx.Done():
		return ctx.Err()
	}

	go func() {
		<-ctx.Done()
		c.logger.Info().Msg("Shutdown signal received, ensuring consumer is stopped.")
		_ = c.Stop(context.Background())
	}()

	return nil
}

// Stop gracefully ceases message consumption.
func (c *v5Consumer) Stop(_ context.Context) error {
	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping MQTT consumer...")
		if c.cm != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if _, err := c.cm.Unsubscribe(stopCtx, &paho.Unsubscribe{Topics: c.cfg.Topics}); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to unsubscribe from MQTT topics.")
			}
			if err := c.cm.Disconnect(stopCtx); err != nil {
				c.logger.Warn().Err(err).Msg("Error while disconnecting MQTT client.")
			} else {
				c.logger.Info().Msg("MQTT client disconnected.")
			}
			cancel()
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
func (c *v5Consumer) Done() <-chan struct{} {
	return c.doneChan
}

// buildClientConfig assembles the autopaho configuration from the consumer
// config.
func (c *v5Consumer) buildClientConfig(ctx context.Context) (autopaho.ClientConfig, error) {
	serverURL, err := url.Parse(c.cfg.brokerURL())
	if err != nil {
		return autopaho.ClientConfig{}, fmt.Errorf("invalid broker URL %q: %w", c.cfg.brokerURL(), err)
	}

	clientCfg := autopaho.ClientConfig{
		ServerUrls:        []*url.URL{serverURL},
		KeepAlive:         uint16(c.cfg.KeepAlive / time.Second),
		ConnectTimeout:    c.cfg.ConnectTimeout,
		ConnectRetryDelay: c.cfg.ReconnectWaitMin,
		// A fresh session per connection; subscriptions are re-established by
		// the connection-up hook, matching the 3.1.1 consumer's clean session.
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         0,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.logger.Info().Str("broker", c.cfg.brokerURL()).Msg("Connected to MQTT broker.")
			c.subscribeAll(cm)
			c.connUpOnce.Do(func() { close(c.connUp) })
		},
		OnConnectError: func(err error) {
			c.logger.Error().Err(err).Msg("MQTT connect attempt failed.")
			select {
			case c.connErr <- err:
			default:
			}
		},
		Debug:  pahoLogger{logger: c.logger, level: zerolog.DebugLevel},
		Errors: pahoLogger{logger: c.logger, level: zerolog.ErrorLevel},
		ClientConfig: paho.ClientConfig{
			ClientID:          c.cfg.clientID(),
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){c.handleIncomingPublish(ctx)},
			OnClientError: func(err error) {
				c.logger.Error().Err(err).Msg("MQTT client error.")
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				c.logger.Error().Int("reason_code", int(d.ReasonCode)).Msg("Server requested disconnect.")
			},
		},
	}

	if c.cfg.Username != "" && c.cfg.Password != "" {
		clientCfg.ConnectUsername = c.cfg.Username
		clientCfg.ConnectPassword = []byte(c.cfg.Password)
	}
	if tlsCfg := c.cfg.tlsConfig(); tlsCfg != nil {
		clientCfg.TlsCfg = tlsCfg
		c.logger.Debug().Bool("insecure_skip_verify", tlsCfg.InsecureSkipVerify).Msg("TLS configured for MQTT client.")
	}
	return clientCfg, nil
}

// handleIncomingPublish converts received publishes to the pipeline format.
func (c *v5Consumer) handleIncomingPublish(ctx context.Context) func(paho.PublishReceived) (bool, error) {
	return func(pr paho.PublishReceived) (bool, error) {
		packet := pr.Packet
		c.logger.Debug().Str("topic", packet.Topic).Msg("Received MQTT message.")
		payloadCopy := make([]byte, len(packet.Payload))
		copy(payloadCopy, packet.Payload)

		consumedMsg := pipeline.Message{
			MessageData: pipeline.MessageData{
				ID:          fmt.Sprintf("%d", packet.PacketID),
				Payload:     payloadCopy,
				PublishTime: time.Now().UTC(),
			},
			Attributes: map[string]string{"mqtt_topic": packet.Topic},
			// Acknowledgment happens at the protocol level inside the client;
			// the pipeline hooks have nothing left to do.
			Ack:  func() {},
			Nack: func() {},
		}
		c.send(ctx, consumedMsg, packet.Topic)
		return true, nil
	}
}

// send hands a message to the pipeline channel. Sends hold sendMu so Stop
// cannot close the channel under an in-flight delivery; once the consumer is
// stopped, late callbacks drop their message.
func (c *v5Consumer) send(ctx context.Context, msg pipeline.Message, topic string) {
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

// subscriptions builds the subscription set for every mapped topic filter,
// QoS 1 like the 3.1.1 consumer.
func (c *v5Consumer) subscriptions() []paho.SubscribeOptions {
	subs := make([]paho.SubscribeOptions, 0, len(c.cfg.Topics))
	for _, topic := range c.cfg.Topics {
		subs = append(subs, paho.SubscribeOptions{Topic: topic, QoS: 1})
	}
	return subs
}

// subscribeAll subscribes to every mapped topic filter. It runs on every
// successful (re)connect.
func (c *v5Consumer) subscribeAll(cm *autopaho.ConnectionManager) {
	subs := c.subscriptions()
	go func() {
		subCtx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
		defer cancel()
		if _, err := cm.Subscribe(subCtx, &paho.Subscribe{Subscriptions: subs}); err != nil {
			c.logger.Error().Err(err).Strs("topics", c.cfg.Topics).Msg("Failed to subscribe to MQTT topics.")
			return
		}
		c.logger.Info().Strs("topics", c.cfg.Topics).Msg("Subscribed to MQTT topics.")
	}()
}

// pahoLogger adapts zerolog to the paho logging interface.
type pahoLogger struct {
	logger zerolog.Logger
	level  zerolog.Level
}

var _ paholog.Logger = pahoLogger{}

func (l pahoLogger) Println(v ...interface{}) {
	l.logger.WithLevel(l.level).Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (l pahoLogger) Printf(format string, v ...interface{}) {
	l.logger.WithLevel(l.level).Msgf(strings.TrimSuffix(format, "\n"), v...)
}
