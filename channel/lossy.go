package channel

import (
	"context"
	"math/rand"
	"time"

	"github.com/benthic/hydrolink/frame"
)

// LossParams configures per-direction drop/corrupt probabilities and a
// fixed latency, as required by spec §3's channel parameters. DATA and
// ACK frames are identified by the wire format's type byte so the two
// directions can have independent behavior.
type LossParams struct {
	DropData    float64
	DropAck     float64
	CorruptData float64
	CorruptAck  float64
	Latency     time.Duration
}

// Lossy wraps any Channel and, on every Send, drops, corrupts, or passes
// through the frame according to LossParams. It never reorders or merges
// frames — only a frame's arrival or non-arrival is randomized, matching
// the "whole encoded frame or nothing" contract of the real modem.
type Lossy struct {
	under Channel
	rng   *rand.Rand
	p     LossParams
}

// NewLossy wraps under with the given parameters. rng must not be shared
// across goroutines; each Lossy owns its own source so tests can seed it
// for reproducible trials.
func NewLossy(under Channel, p LossParams, rng *rand.Rand) *Lossy {
	return &Lossy{under: under, rng: rng, p: p}
}

func (l *Lossy) Send(ctx context.Context, fr []byte) error {
	isAck := len(fr) > 0 && frame.Kind(fr[0]) == frame.KindAck

	drop := l.p.DropData
	corrupt := l.p.CorruptData
	if isAck {
		drop = l.p.DropAck
		corrupt = l.p.CorruptAck
	}

	if l.rng.Float64() < drop {
		return nil // dropped: the modem just never decodes this transmission
	}

	out := fr
	if l.rng.Float64() < corrupt {
		out = append([]byte(nil), fr...)
		flipCorruptableByte(out, l.rng)
	}

	if l.p.Latency > 0 {
		select {
		case <-time.After(l.p.Latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return l.under.Send(ctx, out)
}

func (l *Lossy) Recv(ctx context.Context, timeout time.Duration) ([]byte, error) {
	return l.under.Recv(ctx, timeout)
}

func (l *Lossy) Close() error { return l.under.Close() }

// flipCorruptableByte flips one bit of a byte chosen from the part of the
// frame that varies the checksum (header+payload, i.e. everything but the
// trailing CRC) so corruption reliably fails CRC verification rather than
// occasionally landing on the CRC bytes themselves and cancelling out.
func flipCorruptableByte(b []byte, rng *rand.Rand) {
	if len(b) <= 2 {
		return
	}
	idx := rng.Intn(len(b) - 2)
	bit := uint(rng.Intn(8))
	b[idx] ^= 1 << bit
}
