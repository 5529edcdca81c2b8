package telemetry

import "codeberg.org/mutker/ocxoctl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrorCode("telemetry_invalid_config")
	ErrInvalidBroker = errors.ErrorCode("telemetry_invalid_broker")
	ErrInvalidTopic  = errors.ErrorCode("telemetry_invalid_topic")

	// Export Errors
	ErrRegisterFailed = errors.ErrorCode("telemetry_register_failed")
	ErrServeFailed    = errors.ErrorCode("telemetry_serve_failed")

	// MQTT Errors
	ErrBrokerConnect = errors.ErrorCode("telemetry_broker_connect_failed")
	ErrPublish       = errors.ErrorCode("telemetry_publish_failed")

	// Operation Errors
	ErrServiceShutdown = errors.ErrorCode("telemetry_service_shutdown_failed")
)
