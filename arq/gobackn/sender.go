// Package gobackn implements the windowed Go-Back-N ARQ sender and
// cumulative-ACK receiver (spec §4.5–4.6). It follows the same shape as
// arq/stopwait — built on the teacher's send/arm-timer/wait-for-ack
// pattern from protocol/transport_host.go — generalized from a single
// outstanding frame to a sliding window of up to N.
package gobackn

import (
	"context"
	"time"

	"github.com/benthic/hydrolink/arq"
	"github.com/benthic/hydrolink/channel"
	"github.com/benthic/hydrolink/clock"
	"github.com/benthic/hydrolink/frame"
	"github.com/benthic/hydrolink/logging"
)

// Sender drives one Go-Back-N send. At every observable step
// 0 ≤ base ≤ next_seq ≤ min(base+N, total) (testable property 5), and a
// single timer covers the whole outstanding window rather than one timer
// per frame.
type Sender struct {
	ch         channel.Channel
	clk        clock.Clock
	timeout    time.Duration
	window     int
	maxRetries int

	// OnStep, if set, is called after every base/next_seq transition.
	// Tests use it to observe the window invariant; production callers
	// leave it nil.
	OnStep func(base, nextSeq, total int)
}

// NewSender builds a Sender with the given window size N.
func NewSender(ch channel.Channel, clk clock.Clock, timeout time.Duration, window, maxRetries int) *Sender {
	return &Sender{ch: ch, clk: clk, timeout: timeout, window: window, maxRetries: maxRetries}
}

// Send transmits fragments under msgID, retransmitting the whole
// outstanding window on timeout until base reaches total or the retry
// budget is exhausted.
func (s *Sender) Send(ctx context.Context, msgID uint8, fragments []frame.Fragment) (arq.Result, error) {
	start := s.clk.Now()
	total := len(fragments)

	wire := make([][]byte, total)
	for i, f := range fragments {
		wire[i] = frame.EncodeData(msgID, f.Seq, f.Total, f.Payload)
	}

	base, nextSeq := 0, 0
	timer := clock.NewTimer(s.clk)
	retries := 0

	sendWindow := func() error {
		for nextSeq < total && nextSeq-base < s.window {
			if base == nextSeq {
				timer.Arm(s.timeout)
			}
			if err := s.ch.Send(ctx, wire[nextSeq]); err != nil {
				return err
			}
			nextSeq++
			if s.OnStep != nil {
				s.OnStep(base, nextSeq, total)
			}
		}
		return nil
	}
	if err := sendWindow(); err != nil {
		return arq.Result{}, err
	}

	for base < total {
		raw, err := s.ch.Recv(ctx, timer.Remaining())
		if err != nil {
			if err != channel.ErrTimeout && !timer.Expired() {
				return arq.Result{}, err
			}
			if retries == s.maxRetries {
				logging.Log.WithFields(logging.Fields{"msg_id": msgID, "base": base}).
					Warn("gobackn: retries exhausted, unreachable")
				return arq.Result{OK: false, Retries: retries, Duration: s.clk.Now().Sub(start)}, arq.ErrUnreachable
			}
			retries++
			timer.Arm(s.timeout)
			logging.Log.WithFields(logging.Fields{"msg_id": msgID, "base": base, "next_seq": nextSeq, "retry": retries}).
				Debug("gobackn: retransmitting outstanding window")
			for seq := base; seq < nextSeq; seq++ {
				if err := s.ch.Send(ctx, wire[seq]); err != nil {
					return arq.Result{}, err
				}
			}
			continue
		}

		parsed, perr := frame.Parse(raw)
		if perr != nil {
			logging.Log.WithFields(logging.Fields{"msg_id": msgID, "base": base, "err": perr}).
				Debug("gobackn: dropping unparseable frame, treated as no ack")
			continue
		}
		if parsed.Kind != frame.KindAck || parsed.MsgID != msgID {
			continue
		}
		k := int(parsed.Seq)
		if k < base {
			continue // stale cumulative ack, ignored
		}

		base = k + 1
		if s.OnStep != nil {
			s.OnStep(base, nextSeq, total)
		}
		if base == nextSeq {
			timer.Cancel()
		} else {
			timer.Arm(s.timeout)
		}
		if base < total {
			if err := sendWindow(); err != nil {
				return arq.Result{}, err
			}
		}
	}

	return arq.Result{OK: true, Retries: retries, Duration: s.clk.Now().Sub(start)}, nil
}
