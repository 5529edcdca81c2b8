package dac

import "codeberg.org/mutker/ocxoctl/internal/errors"

const (
	ErrHostInit      = errors.ErrorCode("dac_host_init_failed")
	ErrBusOpen       = errors.ErrorCode("dac_bus_open_failed")
	ErrWriteFailed   = errors.ErrorCode("dac_write_failed")
	ErrCodeRange     = errors.ErrorCode("dac_code_out_of_range")
	ErrUnknownDriver = errors.ErrorCode("dac_unknown_driver")
)
