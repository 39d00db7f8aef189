// Package frame implements the hydrolink wire format: a small CRC-guarded
// header for DATA and ACK frames, plus the fragmentation and reassembly of
// an application payload into a sequence of DATA frames.
//
// The layout mirrors the teacher's Klipper transport (protocol.MessageBlock,
// protocol.Transport.EncodeFrame): a type/length-ish header, a payload, and
// a trailing CRC, built incrementally into a scratch buffer.
package frame

import (
	"github.com/benthic/hydrolink/crc"
)

// Kind distinguishes the two frame types carried on a hydrolink channel.
type Kind byte

const (
	KindData Kind = 0x01
	KindAck  Kind = 0x02
)

// MaxPayload bounds a single DATA frame's payload. Config.MaxPayload may
// set a smaller per-session limit, but no frame may ever exceed this.
const MaxPayload = 250

// dataHeaderLen is type, msg_id, seq, total, plen.
const dataHeaderLen = 5

// ackHeaderLen is type, msg_id, seq.
const ackHeaderLen = 3

const crcLen = 2

// Frame is a parsed, CRC-verified protocol unit.
type Frame struct {
	Kind    Kind
	MsgID   uint8
	Seq     uint8
	Total   uint8 // only meaningful for KindData
	Payload []byte
}

// EncodeData serializes a DATA frame: header + payload + big-endian CRC.
// len(payload) must equal plen implicitly (plen is derived from the slice).
func EncodeData(msgID, seq, total uint8, payload []byte) []byte {
	out := make([]byte, dataHeaderLen+len(payload)+crcLen)
	out[0] = byte(KindData)
	out[1] = msgID
	out[2] = seq
	out[3] = total
	out[4] = uint8(len(payload))
	copy(out[dataHeaderLen:], payload)

	sum := crc.CRC16(out[:dataHeaderLen+len(payload)])
	out[len(out)-2] = byte(sum >> 8)
	out[len(out)-1] = byte(sum)
	return out
}

// EncodeAck serializes an ACK frame: header + big-endian CRC.
func EncodeAck(msgID, seq uint8) []byte {
	out := make([]byte, ackHeaderLen+crcLen)
	out[0] = byte(KindAck)
	out[1] = msgID
	out[2] = seq

	sum := crc.CRC16(out[:ackHeaderLen])
	out[len(out)-2] = byte(sum >> 8)
	out[len(out)-1] = byte(sum)
	return out
}

// Parse validates length, type byte and CRC and returns the decoded
// Frame. Any mismatch is a ParseError; callers must treat it exactly as
// "this frame never arrived" — never as a protocol abort.
func Parse(b []byte) (Frame, error) {
	switch {
	case len(b) < ackHeaderLen+crcLen:
		return Frame{}, ErrParse
	}

	switch Kind(b[0]) {
	case KindAck:
		if len(b) != ackHeaderLen+crcLen {
			return Frame{}, ErrParse
		}
		want := crc.CRC16(b[:ackHeaderLen])
		got := uint16(b[ackHeaderLen])<<8 | uint16(b[ackHeaderLen+1])
		if want != got {
			return Frame{}, ErrCRC
		}
		return Frame{Kind: KindAck, MsgID: b[1], Seq: b[2]}, nil

	case KindData:
		if len(b) < dataHeaderLen+crcLen {
			return Frame{}, ErrParse
		}
		plen := int(b[4])
		if len(b) != dataHeaderLen+plen+crcLen {
			return Frame{}, ErrParse
		}
		want := crc.CRC16(b[:dataHeaderLen+plen])
		got := uint16(b[dataHeaderLen+plen])<<8 | uint16(b[dataHeaderLen+plen+1])
		if want != got {
			return Frame{}, ErrCRC
		}
		payload := make([]byte, plen)
		copy(payload, b[dataHeaderLen:dataHeaderLen+plen])
		total := b[3]
		seq := b[2]
		if total == 0 || seq >= total {
			return Frame{}, ErrProtocolViolation
		}
		return Frame{Kind: KindData, MsgID: b[1], Seq: seq, Total: total, Payload: payload}, nil

	default:
		return Frame{}, ErrParse
	}
}
