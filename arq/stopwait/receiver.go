package stopwait

import (
	"context"
	"time"

	"github.com/benthic/hydrolink/channel"
	"github.com/benthic/hydrolink/clock"
	"github.com/benthic/hydrolink/frame"
	"github.com/benthic/hydrolink/logging"
)

// Receiver implements the Stop-and-Wait receiver of spec §4.4: it accepts
// at most one outstanding fragment at a time, ACKs every in-order or
// duplicate DATA frame of the current message (so a retransmission whose
// first ACK was lost still gets one), and reassembles once expected_seq
// reaches total. Frames ahead of expected_seq and frames of another
// msg_id are dropped without an ACK.
type Receiver struct {
	ch          channel.Channel
	clk         clock.Clock
	idleTimeout time.Duration

	msgID       *uint8
	expectedSeq uint8
	total       uint8
	fragments   map[uint8][]byte
	lastActive  time.Time

	// lastDelivered remembers the most recently completed msg_id so a
	// retransmission of its final fragment (sent because our ACK for it
	// was lost) gets re-ACKed without being delivered to the application
	// a second time.
	lastDelivered *uint8
}

// NewReceiver builds a Receiver. idleTimeout bounds how long a
// partially-assembled message may sit before its session state is
// dropped (spec §9 Open Question).
func NewReceiver(ch channel.Channel, clk clock.Clock, idleTimeout time.Duration) *Receiver {
	return &Receiver{ch: ch, clk: clk, idleTimeout: idleTimeout}
}

// Recv blocks until one full message has been reassembled, ctx is
// cancelled, or an unrecoverable channel error occurs.
func (r *Receiver) Recv(ctx context.Context) ([]byte, error) {
	for {
		raw, err := r.ch.Recv(ctx, r.idleTimeout)
		if err != nil {
			if err == channel.ErrTimeout {
				r.maybeExpireSession()
				continue
			}
			return nil, err
		}

		fr, perr := frame.Parse(raw)
		if perr != nil {
			logging.Log.WithError(perr).Debug("stopwait: dropping unparseable frame, never arrived")
			continue // malformed or CRC-failed: never arrived
		}
		if fr.Kind != frame.KindData {
			continue // a stray ACK looped back to the receiver side; ignore
		}

		if payload, done := r.accept(ctx, fr); done {
			return payload, nil
		}
	}
}

func (r *Receiver) maybeExpireSession() {
	if r.msgID != nil && r.clk.Now().Sub(r.lastActive) > r.idleTimeout {
		logging.Log.WithFields(logging.Fields{"msg_id": *r.msgID}).
			Debug("stopwait: abandoning idle reassembly session")
		r.reset()
	}
}

func (r *Receiver) accept(ctx context.Context, fr frame.Frame) ([]byte, bool) {
	if r.msgID == nil {
		if r.lastDelivered != nil && fr.MsgID == *r.lastDelivered {
			// A retransmission of a message we already delivered, sent
			// because our ACK for one of its fragments never arrived.
			// Re-ACK so the sender can finish, but never re-deliver.
			_ = r.ch.Send(ctx, frame.EncodeAck(fr.MsgID, fr.Seq))
			return nil, false
		}
		id := fr.MsgID
		r.msgID = &id
		r.expectedSeq = 0
		r.total = fr.Total
		r.fragments = make(map[uint8][]byte, fr.Total)
	} else if fr.MsgID != *r.msgID {
		return nil, false // stale frame from an older message: ignored
	}
	r.lastActive = r.clk.Now()

	switch {
	case fr.Seq == r.expectedSeq:
		r.fragments[fr.Seq] = fr.Payload
		r.expectedSeq++
		_ = r.ch.Send(ctx, frame.EncodeAck(*r.msgID, fr.Seq))
		if r.expectedSeq == r.total {
			payload, err := frame.Reassemble(r.fragments, r.total)
			delivered := *r.msgID
			r.reset()
			r.lastDelivered = &delivered
			if err != nil {
				logging.Log.WithError(err).Warn("stopwait: reassembly failed despite complete prefix")
				return nil, false
			}
			return payload, true
		}
	case fr.Seq < r.expectedSeq:
		// Duplicate: the sender's retransmission whose ACK was lost.
		_ = r.ch.Send(ctx, frame.EncodeAck(*r.msgID, fr.Seq))
	default:
		// fr.Seq > expectedSeq: cannot happen from a correct Stop-and-Wait
		// peer. Defensive drop, no ACK.
		logging.Log.WithFields(logging.Fields{"msg_id": *r.msgID, "seq": fr.Seq, "expected": r.expectedSeq}).
			Warn("stopwait: protocol violation, seq ahead of window")
	}
	return nil, false
}

func (r *Receiver) reset() {
	r.msgID = nil
	r.expectedSeq = 0
	r.total = 0
	r.fragments = nil
}
