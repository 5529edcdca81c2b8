package command

import (
	"bufio"
	"context"
	"io"

	"codeberg.org/mutker/ocxoctl/internal/errors"
	"go.bug.st/serial"
)

const (
	ErrOpenPort = errors.ErrorCode("command_open_port_failed")
	ErrRead     = errors.ErrorCode("command_read_failed")
)

// DefaultBaud is used when no rate is configured; USB CDC ignores it.
const DefaultBaud = 115200

// OpenSerial opens the command port in 8N1.
func OpenSerial(port string, baud int) (serial.Port, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(port, mode)
	if err != nil {
		return nil, errors.New().Wrap(ErrOpenPort, err).WithData(port)
	}

	return p, nil
}

// Serve splits r into lines and submits them until r fails or ctx is done.
// r is closed when ctx is cancelled to unblock the pending read.
func (c *Channel) Serve(ctx context.Context, r io.ReadCloser) error {
	stop := context.AfterFunc(ctx, func() { r.Close() })
	defer stop()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if !c.Submit(scanner.Text()) {
			c.logger.Warn().Msg("Command queue full, dropping line")
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return errors.New().Wrap(ErrRead, err)
	}

	return nil
}
