package gobackn

import (
	"context"
	"time"

	"github.com/benthic/hydrolink/channel"
	"github.com/benthic/hydrolink/clock"
	"github.com/benthic/hydrolink/frame"
	"github.com/benthic/hydrolink/logging"
)

// Receiver implements the Go-Back-N receiver of spec §4.6: it accepts
// only strictly in-order fragments (never buffering ahead-of-window
// data), and ACKs cumulatively so the sender's base advances as fast as
// possible even on a duplicate or out-of-order frame.
type Receiver struct {
	ch          channel.Channel
	clk         clock.Clock
	idleTimeout time.Duration

	msgID       *uint8
	expectedSeq uint8
	total       uint8
	buf         []byte
	lastActive  time.Time

	lastDelivered      *uint8
	lastDeliveredTotal uint8
}

// NewReceiver builds a Receiver.
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
			logging.Log.WithError(perr).Debug("gobackn: dropping unparseable frame, never arrived")
			continue
		}
		if fr.Kind != frame.KindData {
			continue
		}

		if payload, done := r.accept(ctx, fr); done {
			return payload, nil
		}
	}
}

func (r *Receiver) maybeExpireSession() {
	if r.msgID != nil && r.clk.Now().Sub(r.lastActive) > r.idleTimeout {
		logging.Log.WithFields(logging.Fields{"msg_id": *r.msgID}).
			Debug("gobackn: abandoning idle reassembly session")
		r.reset()
	}
}

func (r *Receiver) accept(ctx context.Context, fr frame.Frame) ([]byte, bool) {
	if r.msgID == nil {
		if r.lastDelivered != nil && fr.MsgID == *r.lastDelivered {
			_ = r.ch.Send(ctx, frame.EncodeAck(fr.MsgID, r.lastDeliveredTotal-1))
			return nil, false
		}
		id := fr.MsgID
		r.msgID = &id
		r.expectedSeq = 0
		r.total = fr.Total
		r.buf = make([]byte, 0, int(fr.Total)*frame.MaxPayload)
	} else if fr.MsgID != *r.msgID {
		return nil, false
	}
	r.lastActive = r.clk.Now()

	if fr.Seq == r.expectedSeq {
		r.buf = append(r.buf, fr.Payload...)
		r.expectedSeq++
		_ = r.ch.Send(ctx, frame.EncodeAck(*r.msgID, r.expectedSeq-1))

		if r.expectedSeq == r.total {
			payload := append([]byte(nil), r.buf...)
			delivered, deliveredTotal := *r.msgID, r.total
			r.reset()
			r.lastDelivered = &delivered
			r.lastDeliveredTotal = deliveredTotal
			return payload, true
		}
		return nil, false
	}

	// Out of order (duplicate retransmission or a frame ahead of what we
	// can accept without buffering): drop the payload, re-ACK the
	// newest contiguous prefix so the sender's base keeps advancing.
	if r.expectedSeq > 0 {
		_ = r.ch.Send(ctx, frame.EncodeAck(*r.msgID, r.expectedSeq-1))
	}
	return nil, false
}

func (r *Receiver) reset() {
	r.msgID = nil
	r.expectedSeq = 0
	r.total = 0
	r.buf = nil
}
