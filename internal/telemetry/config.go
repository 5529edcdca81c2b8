package telemetry

import (
	"net/url"

	"codeberg.org/mutker/ocxoctl/internal/errors"
)

const (
	defaultTopic = "ocxoctl"
	defaultQueue = 64
)

type Config struct {
	Listen     string // Prometheus /metrics address, empty disables the endpoint
	MQTTBroker string // e.g. tcp://localhost:1883, empty disables publishing
	MQTTTopic  string
	MQTTQoS    byte
	MQTTRetain bool
	Username   string
	Password   string
}

func DefaultConfig() Config {
	return Config{
		MQTTTopic: defaultTopic,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.MQTTBroker == "" {
		return nil
	}
	u, err := url.Parse(c.MQTTBroker)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errFactory.WithData(ErrInvalidBroker, c.MQTTBroker)
	}
	if c.MQTTTopic == "" {
		return errFactory.New(ErrInvalidTopic)
	}
	if c.MQTTQoS > 2 {
		return errFactory.WithData(ErrInvalidConfig, struct{ QoS byte }{c.MQTTQoS})
	}
	return nil
}
