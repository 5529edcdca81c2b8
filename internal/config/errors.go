package config

import "codeberg.org/mutker/ocxoctl/internal/errors"

const (
	ErrInvalidCounterBits = errors.ErrorCode("config_invalid_counter_bits")
	ErrInvalidTimebase    = errors.ErrorCode("config_invalid_timebase")
	ErrInvalidFilter      = errors.ErrorCode("config_invalid_filter")
	ErrInvalidAntiWindup  = errors.ErrorCode("config_invalid_antiwindup")
	ErrInvalidCapacity    = errors.ErrorCode("config_invalid_capacity")
	ErrInvalidVCO         = errors.ErrorCode("config_invalid_vco")
	ErrInvalidRange       = errors.ErrorCode("config_invalid_range")
	ErrInvalidMode        = errors.ErrorCode("config_invalid_mode")
	ErrInvalidEdge        = errors.ErrorCode("config_invalid_edge")
	ErrInvalidSource      = errors.ErrorCode("config_invalid_source")
	ErrInvalidDriver      = errors.ErrorCode("config_invalid_driver")
	ErrInvalidCalibration = errors.ErrorCode("config_invalid_calibration")
)
