package capture

import "codeberg.org/mutker/ocxoctl/internal/errors"

const (
	ErrPPSOpen        = errors.ErrorCode("capture_pps_open_failed")
	ErrPPSFetch       = errors.ErrorCode("capture_pps_fetch_failed")
	ErrPPSUnsupported = errors.ErrorCode("capture_pps_unsupported")
)
