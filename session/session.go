// Package session wires a config.Config and a channel.Channel together
// into a running Stop-and-Wait or Go-Back-N endpoint, the way the
// teacher's host/mcu.MCU wires a protocol.HostTransport to a serial.Port:
// construction-time setup, then a small synchronous API (SendCommand /
// here, SendMessage/RecvMessage) that hides the state machine underneath.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/benthic/hydrolink/arq"
	"github.com/benthic/hydrolink/arq/gobackn"
	"github.com/benthic/hydrolink/arq/stopwait"
	"github.com/benthic/hydrolink/channel"
	"github.com/benthic/hydrolink/clock"
	"github.com/benthic/hydrolink/config"
	"github.com/benthic/hydrolink/frame"
	"github.com/benthic/hydrolink/logging"
)

// Session is one endpoint of a reliable link over ch, speaking either
// Stop-and-Wait (window == 1) or Go-Back-N (window > 1) depending on
// cfg.Window. SendMessage and RecvMessage both read from the same ch and
// do not demultiplex frames: a sender discards DATA frames and a receiver
// discards ACK frames, so a Session carries one direction at a time and
// SendMessage and RecvMessage must not run at once. It is not safe for
// concurrent SendMessage calls against each other either.
type Session struct {
	ch  channel.Channel
	clk clock.Clock
	cfg *config.Config

	mu     sync.Mutex
	nextID uint8

	swSender  *stopwait.Sender
	swRecv    *stopwait.Receiver
	gbnSender *gobackn.Sender
	gbnRecv   *gobackn.Receiver
}

// New builds a Session over ch using cfg. clk defaults to clock.Real{}
// when nil, which is what every caller outside of tests wants.
func New(ch channel.Channel, cfg *config.Config, clk clock.Clock) *Session {
	if clk == nil {
		clk = clock.Real{}
	}

	timeout := time.Duration(cfg.Timeout * float64(time.Second))
	idle := time.Duration(cfg.ReassemblyIdle * float64(time.Second))

	s := &Session{ch: ch, clk: clk, cfg: cfg}

	if cfg.Window <= 1 {
		s.swSender = stopwait.NewSender(ch, clk, timeout, cfg.MaxRetries)
		s.swRecv = stopwait.NewReceiver(ch, clk, idle)
	} else {
		s.gbnSender = gobackn.NewSender(ch, clk, timeout, cfg.Window, cfg.MaxRetries)
		s.gbnRecv = gobackn.NewReceiver(ch, clk, idle)
	}
	return s
}

// SendMessage fragments payload and drives it to completion, returning
// once the peer has ACKed every fragment or the retry budget is spent.
func (s *Session) SendMessage(ctx context.Context, payload []byte) (arq.Result, error) {
	if s.cfg.MaxPayload <= 0 {
		return arq.Result{}, arq.ErrOversize
	}

	fragments, err := frame.FragmentPayload(payload, s.cfg.MaxPayload)
	if err != nil {
		return arq.Result{}, arq.ErrOversize
	}

	msgID := s.allocMsgID()
	logging.Log.WithFields(logging.Fields{"msg_id": msgID, "fragments": len(fragments)}).
		Info("session: sending message")

	var result arq.Result
	if s.swSender != nil {
		result, err = s.swSender.Send(ctx, msgID, fragments)
	} else {
		result, err = s.gbnSender.Send(ctx, msgID, fragments)
	}

	if err != nil {
		logging.Log.WithFields(logging.Fields{"msg_id": msgID, "err": err}).
			Warn("session: send did not complete")
	} else {
		logging.Log.WithFields(logging.Fields{"msg_id": msgID, "retries": result.Retries}).
			Info("session: message delivered")
	}
	return result, err
}

// RecvMessage blocks until one complete message sent from the other end
// of ch has been reassembled here, or ctx is cancelled.
func (s *Session) RecvMessage(ctx context.Context) ([]byte, error) {
	var (
		payload []byte
		err     error
	)
	if s.swRecv != nil {
		payload, err = s.swRecv.Recv(ctx)
	} else {
		payload, err = s.gbnRecv.Recv(ctx)
	}
	if err != nil {
		return nil, err
	}
	logging.Log.WithFields(logging.Fields{"bytes": len(payload)}).Info("session: message received")
	return payload, nil
}

// allocMsgID hands out sequential message IDs, wrapping at 256. The
// teacher's equivalent is the implicit per-transport sequence counter in
// protocol/transport_host.go; here it is explicit state on Session
// because a single Session may carry many messages over its lifetime.
func (s *Session) allocMsgID() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	return id
}
