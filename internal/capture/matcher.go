package capture

import "codeberg.org/mutker/ocxoctl/internal/ringbuf"

// Match looks for a reference edge and an OCXO edge of the same polarity that lie
// within half a reference period of each other and turns the pair into one
// instantaneous frequency sample, pushed to out.
//
// The scan starts at the newest OCXO edge and walks the reference edges from newest
// to oldest, moving to an older OCXO edge when none fits. The first pair inside the
// window wins, even if a later pair is closer.
//
// On a match the matched entries and everything older are trimmed from both rings.
// Without a match nothing is trimmed, so the next capture can retry.
//
// Match must run in the producer context of both edge rings.
func Match(ref, ocxo *ringbuf.Ring[uint32], out *ringbuf.Ring[float64], tb Timebase) (float64, bool) {
	refLen, ocxoLen := ref.Len(), ocxo.Len()
	if refLen < 1 || ocxoLen < 1 {
		return 0, false
	}

	period := tb.ReferencePeriod()
	half := period / 2
	secondsPerTick := tb.SecondsPerTick()

	for ocxoIndex := 0; ocxoIndex < ocxoLen; ocxoIndex++ {
		ocxoStamp, ok := ocxo.PeekAt(ocxoIndex)
		if !ok {
			break
		}

		for refIndex := 0; refIndex < refLen; refIndex++ {
			refStamp, ok := ref.PeekAt(refIndex)
			if !ok {
				break
			}

			delta := float64(tb.SignedDelta(ocxoStamp, refStamp)) * secondsPerTick
			if delta < -half || delta > half {
				continue
			}

			ref.FreeN(refLen - refIndex)
			ocxo.FreeN(ocxoLen - ocxoIndex)

			// The OCXO period is the reference period plus the measured skew.
			freq := tb.ReferenceFrequency * period / (delta + period)
			out.Push(freq)

			return freq, true
		}
	}

	return 0, false
}
