//go:build !linux

package capture

import (
	"context"

	"codeberg.org/mutker/ocxoctl/internal/errors"
)

// PPSSource is only available on Linux.
type PPSSource struct{}

func NewPPSSource(_, _ string, _ Timebase) (*PPSSource, error) {
	return nil, errors.New().New(ErrPPSUnsupported)
}

func (*PPSSource) Run(context.Context, EdgeSink) error {
	return errors.New().New(ErrPPSUnsupported)
}
