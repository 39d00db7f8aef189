package channel

import (
	"bufio"
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// Serial is the acoustic modem's physical-layer stand-in: it delegates to
// a serial port exactly as the teacher's host/serial package delegates to
// an MCU, via github.com/tarm/serial. A real acoustic link would sit
// behind the same io.ReadWriteCloser, encoding/decoding audio out of
// scope of this package; Serial only ever sees already-framed bytes.
//
// frame.Parse works on whole buffers, so Serial delimits frames itself:
// callers pass already-encoded frame.EncodeData/EncodeAck output, Send
// writes each with a 2-byte big-endian length prefix, and Recv reads one
// length-prefixed frame per call so the physical byte stream can be split
// back into frames on the far end.
type Serial struct {
	port   io.ReadWriteCloser
	reader *bufio.Reader
}

// OpenSerial opens a native serial port with the given device and baud
// rate, mirroring host/serial.Open + DefaultConfig from the teacher.
func OpenSerial(device string, baud int) (*Serial, error) {
	cfg := &serial.Config{Name: device, Baud: baud, ReadTimeout: 100 * time.Millisecond}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %s", device)
	}
	return NewSerial(port), nil
}

// NewSerial wraps an already-open port, useful for tests with a fake
// io.ReadWriteCloser in place of real hardware.
func NewSerial(port io.ReadWriteCloser) *Serial {
	return &Serial{port: port, reader: bufio.NewReader(port)}
}

func (s *Serial) Send(ctx context.Context, fr []byte) error {
	if len(fr) > 0xFFFF {
		return errors.New("serial: frame too large for length prefix")
	}
	prefixed := make([]byte, 2+len(fr))
	prefixed[0] = byte(len(fr) >> 8)
	prefixed[1] = byte(len(fr))
	copy(prefixed[2:], fr)

	_, err := s.port.Write(prefixed)
	return errors.Wrap(err, "serial: write")
}

func (s *Serial) Recv(ctx context.Context, timeout time.Duration) ([]byte, error) {
	// tarm/serial's own ReadTimeout governs each individual Read; deadline
	// bounds the whole two-stage read (length prefix + payload) since
	// hydrolink's Recv timeout is per-frame, not per-syscall.
	deadline := time.Now().Add(timeout)
	if timeout <= 0 {
		deadline = time.Now()
	}

	header := make([]byte, 2)
	if err := s.readFull(ctx, header, deadline); err != nil {
		return nil, err
	}
	n := int(header[0])<<8 | int(header[1])
	payload := make([]byte, n)
	if err := s.readFull(ctx, payload, deadline); err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *Serial) readFull(ctx context.Context, buf []byte, deadline time.Time) error {
	read := 0
	for read < len(buf) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		n, err := s.reader.Read(buf[read:])
		read += n
		if err != nil {
			if err == io.EOF {
				continue // tarm/serial's ReadTimeout surfaces as a zero-byte read, not EOF, but stay defensive
			}
			return errors.Wrap(err, "serial: read")
		}
	}
	return nil
}

func (s *Serial) Close() error {
	return errors.Wrap(s.port.Close(), "serial: close")
}
