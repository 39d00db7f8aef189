// Package stopwait implements the single-in-flight Stop-and-Wait ARQ
// sender and receiver (spec §4.3–4.4), grounded on the teacher's
// protocol.HostTransport.SendCommandWithTimeout/waitForAck (sender half:
// send, arm a timer, block for an ACK, retransmit on expiry) and
// protocol.Transport.Receive (receiver half: sequence tracking, ACK/NAK,
// resync on anything unexpected).
package stopwait

import (
	"context"
	"time"

	"github.com/benthic/hydrolink/arq"
	"github.com/benthic/hydrolink/channel"
	"github.com/benthic/hydrolink/clock"
	"github.com/benthic/hydrolink/frame"
	"github.com/benthic/hydrolink/logging"
)

// Sender drives one Stop-and-Wait send: at most one DATA frame from this
// sender is ever outstanding on the channel at a time (testable property 7).
type Sender struct {
	ch         channel.Channel
	clk        clock.Clock
	timeout    time.Duration
	maxRetries int
}

// NewSender builds a Sender bound to ch, using clk for its retransmission
// timer so tests can drive it with a clock.Fake.
func NewSender(ch channel.Channel, clk clock.Clock, timeout time.Duration, maxRetries int) *Sender {
	return &Sender{ch: ch, clk: clk, timeout: timeout, maxRetries: maxRetries}
}

// Send transmits fragments (all sharing msgID and Total) in order,
// retransmitting each on timeout until acknowledged or the per-fragment
// retry budget is exhausted.
func (s *Sender) Send(ctx context.Context, msgID uint8, fragments []frame.Fragment) (arq.Result, error) {
	start := s.clk.Now()
	totalRetries := 0

	for _, frag := range fragments {
		seq, total := frag.Seq, frag.Total
		wire := frame.EncodeData(msgID, seq, total, frag.Payload)
		timer := clock.NewTimer(s.clk)

		if err := s.ch.Send(ctx, wire); err != nil {
			return arq.Result{}, err
		}
		timer.Arm(s.timeout)

		localRetries := 0
		for {
			remaining := timer.Remaining()
			raw, err := s.ch.Recv(ctx, remaining)
			if err != nil {
				if err != channel.ErrTimeout && !timer.Expired() {
					return arq.Result{}, err
				}
				// Timeout: no ack for this seq within the deadline.
				if localRetries == s.maxRetries {
					logging.Log.WithFields(logging.Fields{"msg_id": msgID, "seq": seq}).
						Warn("stopwait: retries exhausted, unreachable")
					return arq.Result{OK: false, Retries: totalRetries, Duration: s.clk.Now().Sub(start)}, arq.ErrUnreachable
				}
				localRetries++
				totalRetries++
				logging.Log.WithFields(logging.Fields{"msg_id": msgID, "seq": seq, "retry": localRetries}).
					Debug("stopwait: retransmitting")
				if err := s.ch.Send(ctx, wire); err != nil {
					return arq.Result{}, err
				}
				timer.Arm(s.timeout)
				continue
			}

			parsed, perr := frame.Parse(raw)
			if perr != nil {
				logging.Log.WithFields(logging.Fields{"msg_id": msgID, "seq": seq, "err": perr}).
					Debug("stopwait: dropping unparseable frame, treated as no ack")
				continue // malformed/corrupt: treated as "no ack", keep waiting
			}
			if parsed.Kind != frame.KindAck || parsed.MsgID != msgID {
				continue // stale/foreign frame, ignored
			}
			if parsed.Seq != seq {
				continue // ack for a seq < current is stale; seq > current can't happen
			}
			timer.Cancel()
			break
		}
	}

	return arq.Result{OK: true, Retries: totalRetries, Duration: s.clk.Now().Sub(start)}, nil
}
