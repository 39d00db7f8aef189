package stopwait

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/benthic/hydrolink/arq"
	"github.com/benthic/hydrolink/channel"
	"github.com/benthic/hydrolink/clock"
	"github.com/benthic/hydrolink/frame"
)

// dropN wraps a channel.Channel and drops the first n frames of a given
// kind sent through it, then passes everything else untouched. It exists
// to reproduce the exact "first ACK lost" / "first two DATA lost"
// scenarios from spec §8 deterministically, where Lossy's probabilistic
// model would only be able to approximate them.
type dropN struct {
	under channel.Channel
	kind  frame.Kind
	n     int
}

func (d *dropN) Send(ctx context.Context, fr []byte) error {
	if len(fr) > 0 && frame.Kind(fr[0]) == d.kind && d.n > 0 {
		d.n--
		return nil
	}
	return d.under.Send(ctx, fr)
}
func (d *dropN) Recv(ctx context.Context, timeout time.Duration) ([]byte, error) {
	return d.under.Recv(ctx, timeout)
}
func (d *dropN) Close() error { return d.under.Close() }

func runRoundTrip(t *testing.T, senderCh, receiverCh channel.Channel, payload []byte, maxPayload, maxRetries int, timeout time.Duration) (arq.Result, []byte) {
	t.Helper()

	fragments, err := frame.FragmentPayload(payload, maxPayload)
	if err != nil {
		t.Fatalf("FragmentPayload: %v", err)
	}

	sender := NewSender(senderCh, clock.Real{}, timeout, maxRetries)
	receiver := NewReceiver(receiverCh, clock.Real{}, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	recvDone := make(chan []byte, 1)
	recvErr := make(chan error, 1)
	// A real session's receiver loop runs continuously rather than
	// returning after one message; keep calling Recv so a trailing
	// retransmission (sent because its own ACK was lost) still gets
	// re-ACKed by lastDelivered bookkeeping instead of being stranded.
	go func() {
		for {
			got, err := receiver.Recv(ctx)
			if err != nil {
				select {
				case recvErr <- err:
				default:
				}
				return
			}
			select {
			case recvDone <- got:
			default:
				t.Errorf("receiver delivered the message a second time: %q", got)
			}
		}
	}()

	result, sendErr := sender.Send(ctx, 1, fragments)
	if sendErr != nil && sendErr != arq.ErrUnreachable {
		t.Fatalf("Send: %v", sendErr)
	}
	if !result.OK {
		return result, nil
	}

	select {
	case got := <-recvDone:
		return result, got
	case err := <-recvErr:
		t.Fatalf("Recv: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("receiver never completed")
	}
	return result, nil
}

func TestE1_LosslessDelivery(t *testing.T) {
	a, b := channel.NewPipePair()
	result, got := runRoundTrip(t, a, b, []byte("abcdefghij"), 4, 3, 100*time.Millisecond)

	if !result.OK || result.Retries != 0 {
		t.Fatalf("result = %+v, want OK with 0 retries", result)
	}
	if string(got) != "abcdefghij" {
		t.Fatalf("got %q, want %q", got, "abcdefghij")
	}
}

func TestE2_FirstAckLost(t *testing.T) {
	a, b := channel.NewPipePair()
	droppingB := &dropN{under: b, kind: frame.KindAck, n: 1}

	result, got := runRoundTrip(t, a, droppingB, []byte("xy"), 32, 3, 100*time.Millisecond)

	if !result.OK {
		t.Fatalf("result = %+v, want OK", result)
	}
	if result.Retries < 1 {
		t.Fatalf("Retries = %d, want >= 1", result.Retries)
	}
	if string(got) != "xy" {
		t.Fatalf("got %q, want %q (exactly once, no duplication)", got, "xy")
	}
}

func TestE3_FirstTwoDataLost(t *testing.T) {
	a, b := channel.NewPipePair()
	droppingA := &dropN{under: a, kind: frame.KindData, n: 2}

	result, got := runRoundTrip(t, droppingA, b, []byte("z"), 32, 5, 80*time.Millisecond)

	if !result.OK || result.Retries != 2 {
		t.Fatalf("result = %+v, want OK with 2 retries", result)
	}
	if string(got) != "z" {
		t.Fatalf("got %q, want %q", got, "z")
	}
}

func TestE6_AlwaysDropData(t *testing.T) {
	a, b := channel.NewPipePair()
	lossy := channel.NewLossy(a, channel.LossParams{DropData: 1.0}, rand.New(rand.NewSource(7)))

	fragments, _ := frame.FragmentPayload([]byte("!"), 32)
	sender := NewSender(lossy, clock.Real{}, 30*time.Millisecond, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := sender.Send(ctx, 1, fragments)
	_ = b // receiver is never reached; b only exists to keep the pipe pair valid

	if err != arq.ErrUnreachable {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
	if result.Retries != 2 {
		t.Fatalf("Retries = %d, want 2", result.Retries)
	}
}

func TestNoDuplicateDeliveryUnderRepeatedAckLoss(t *testing.T) {
	a, b := channel.NewPipePair()
	droppingB := &dropN{under: b, kind: frame.KindAck, n: 3}

	result, got := runRoundTrip(t, a, droppingB, []byte("hello world"), 4, 10, 50*time.Millisecond)

	if !result.OK {
		t.Fatalf("result = %+v, want OK", result)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q exactly once", got, "hello world")
	}
}

func TestReliableDeliveryUnderBoundedLoss(t *testing.T) {
	// Scaled-down version of property 4: with drop<=0.3 and generous
	// retries, delivery must still succeed.
	const trials = 20

	for i := 0; i < trials; i++ {
		a, b := channel.NewPipePair()
		params := channel.LossParams{DropData: 0.3, DropAck: 0.3, CorruptData: 0.05, CorruptAck: 0.05}
		// Separate rand sources: sender and receiver run on different
		// goroutines and a *rand.Rand is not safe for concurrent use.
		lossyA := channel.NewLossy(a, params, rand.New(rand.NewSource(int64(42+2*i))))
		lossyB := channel.NewLossy(b, params, rand.New(rand.NewSource(int64(43+2*i))))

		payload := []byte("the quick brown fox jumps over the lazy dog")
		result, got := runRoundTrip(t, lossyA, lossyB, payload, 8, 50, 20*time.Millisecond)

		if !result.OK {
			t.Fatalf("trial %d: result = %+v, want OK", i, result)
		}
		if string(got) != string(payload) {
			t.Fatalf("trial %d: got %q, want %q", i, got, payload)
		}
	}
}
