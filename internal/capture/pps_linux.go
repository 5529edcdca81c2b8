//go:build linux

package capture

import (
	"context"
	"os"
	"time"
	"unsafe"

	"codeberg.org/mutker/ocxoctl/internal/errors"
	"codeberg.org/mutker/ocxoctl/internal/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// Layout of struct pps_fdata from <linux/pps.h>.
type ppsKTime struct {
	Sec   int64
	Nsec  int32
	Flags uint32
}

type ppsKInfo struct {
	AssertSequence uint32
	ClearSequence  uint32
	AssertTu       ppsKTime
	ClearTu        ppsKTime
	CurrentMode    int32
	_              int32
}

type ppsFData struct {
	Info    ppsKInfo
	Timeout ppsKTime
}

// _IOWR('p', 0xa4, struct pps_fdata *)
var ppsFetch = uintptr(3<<30 | unsafe.Sizeof(uintptr(0))<<16 | 'p'<<8 | 0xa4)

// PPSSource reads both pulse trains from Linux PPS devices and converts the kernel
// timestamps into counter values of the configured timebase.
type PPSSource struct {
	devices [2]string // [signal]
	tb      Timebase
	timeout time.Duration
	fetch   func(fd uintptr, data *ppsFData) unix.Errno
	log     logger.Logger
}

// NewPPSSource binds the reference and OCXO pulse devices, e.g. /dev/pps0 and /dev/pps1.
func NewPPSSource(referenceDevice, ocxoDevice string, tb Timebase) (*PPSSource, error) {
	return &PPSSource{
		devices: [2]string{referenceDevice, ocxoDevice},
		tb:      tb,
		timeout: 2 * time.Second,
		fetch:   ioctlFetch,
		log:     logger.For("pps"),
	}, nil
}

func ioctlFetch(fd uintptr, data *ppsFData) unix.Errno {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, ppsFetch, uintptr(unsafe.Pointer(data)))
	return errno
}

// Run fetches events from both devices until ctx is done or a device fails.
// The devices stay open until both pollers have returned.
func (s *PPSSource) Run(ctx context.Context, sink EdgeSink) error {
	var files [2]*os.File
	for sig, path := range s.devices {
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return errors.New().Wrap(ErrPPSOpen, err).WithData(path)
		}
		defer f.Close()
		files[sig] = f
	}

	g, gctx := errgroup.WithContext(ctx)
	for sig, f := range files {
		g.Go(func() error { return s.poll(gctx, Signal(sig), f, sink) })
	}

	return g.Wait()
}

func (s *PPSSource) poll(ctx context.Context, sig Signal, f *os.File, sink EdgeSink) error {
	var lastAssert, lastClear uint32
	primed := false

	for ctx.Err() == nil {
		var data ppsFData
		data.Timeout.Sec = int64(s.timeout / time.Second)

		switch errno := s.fetch(f.Fd(), &data); errno {
		case 0:
		case unix.EINTR, unix.ETIMEDOUT:
			continue
		default:
			return errors.New().Wrap(ErrPPSFetch, errno).WithData(f.Name())
		}

		info := data.Info
		if !primed {
			lastAssert, lastClear = info.AssertSequence, info.ClearSequence
			primed = true
			continue
		}

		if info.AssertSequence != lastAssert {
			lastAssert = info.AssertSequence
			sink.OnEdge(sig, Rising, s.counter(info.AssertTu))
		}
		if info.ClearSequence != lastClear {
			lastClear = info.ClearSequence
			sink.OnEdge(sig, Falling, s.counter(info.ClearTu))
		}
	}

	s.log.Debug().Str("device", f.Name()).Msg("PPS polling stopped")

	return nil
}

// counter maps a kernel timestamp onto the free-running capture counter.
func (s *PPSSource) counter(t ppsKTime) uint32 {
	hz := uint64(s.tb.TickFrequency)
	ticks := uint64(t.Sec)*hz + uint64(t.Nsec)*hz/uint64(time.Second)

	bits := s.tb.CounterBits
	if bits == 0 || bits >= 32 {
		return uint32(ticks)
	}

	return uint32(ticks & (uint64(1)<<bits - 1))
}
