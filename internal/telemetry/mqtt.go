package telemetry

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"codeberg.org/mutker/ocxoctl/internal/discipline"
	"codeberg.org/mutker/ocxoctl/internal/errors"
	"codeberg.org/mutker/ocxoctl/internal/logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // ms
)

// MQTTPublisher sends one JSON payload per sample to a broker topic. Samples
// are queued and sent from a single goroutine.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	qos    byte
	retain bool
	queue  chan Payload
	wg     sync.WaitGroup
	once   sync.Once
	logger logger.Logger
}

func clientID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "ocxoctl_" + hex.EncodeToString(b)
}

// NewMQTTPublisher connects to cfg.MQTTBroker.
func NewMQTTPublisher(cfg Config) (*MQTTPublisher, error) {
	errFactory := errors.New()
	log := logger.For("mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(clientID())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Str("broker", cfg.MQTTBroker).Msg("Connected to broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("Broker connection lost")
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Debug().Msg("Reconnecting to broker")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return nil, errFactory.Wrap(ErrBrokerConnect, token.Error())
	}

	return newMQTTPublisher(client, cfg), nil
}

func newMQTTPublisher(client mqtt.Client, cfg Config) *MQTTPublisher {
	p := &MQTTPublisher{
		client: client,
		topic:  cfg.MQTTTopic,
		qos:    cfg.MQTTQoS,
		retain: cfg.MQTTRetain,
		queue:  make(chan Payload, defaultQueue),
		logger: logger.For("mqtt"),
	}

	p.wg.Add(1)
	go p.run()

	return p
}

// Publish queues the snapshot. It is dropped while the queue is full.
func (p *MQTTPublisher) Publish(s discipline.Snapshot) {
	select {
	case p.queue <- NewPayload(s):
	default:
		p.logger.Warn().Msg("MQTT queue full, dropping sample")
	}
}

func (p *MQTTPublisher) run() {
	defer p.wg.Done()

	for payload := range p.queue {
		if err := p.send(payload); err != nil {
			p.logger.Error().Err(err).Str("topic", p.topic).Msg("Failed to publish sample")
		}
	}
}

func (p *MQTTPublisher) send(payload Payload) error {
	errFactory := errors.New()

	data, err := json.Marshal(payload)
	if err != nil {
		return errFactory.Wrap(ErrPublish, err)
	}

	token := p.client.Publish(p.topic, p.qos, p.retain, data)
	if !token.WaitTimeout(publishTimeout) {
		return errFactory.WithMessage(ErrPublish, "publish timed out")
	}
	if err := token.Error(); err != nil {
		return errFactory.Wrap(ErrPublish, err)
	}
	return nil
}

// Close sends what is queued and disconnects.
func (p *MQTTPublisher) Close() error {
	p.once.Do(func() { close(p.queue) })
	p.wg.Wait()
	p.client.Disconnect(disconnectQuiesce)
	return nil
}
