package frame

// Fragment is one slice of an application payload, numbered within a
// message's Total fragment count.
type Fragment struct {
	Seq     uint8
	Total   uint8
	Payload []byte
}

// FragmentPayload splits payload into ordered chunks of at most maxPayload bytes
// each (the last chunk may be shorter). It rejects inputs that would need
// more than 255 fragments or a non-positive chunk size — total must fit in
// one byte by construction of the wire format.
func FragmentPayload(payload []byte, maxPayload int) ([]Fragment, error) {
	if maxPayload <= 0 {
		return nil, ErrInvalidMaxPayload
	}
	total := (len(payload) + maxPayload - 1) / maxPayload
	if total == 0 {
		total = 1 // a zero-length payload is still one empty fragment
	}
	if total > 255 {
		return nil, ErrOversize
	}

	fragments := make([]Fragment, 0, total)
	for seq := 0; seq < total; seq++ {
		start := seq * maxPayload
		end := start + maxPayload
		if end > len(payload) {
			end = len(payload)
		}
		fragments = append(fragments, Fragment{
			Seq:     uint8(seq),
			Total:   uint8(total),
			Payload: payload[start:end],
		})
	}
	return fragments, nil
}

// Reassemble concatenates fragments keyed by sequence number, in order. It
// fails with ErrMissingFragment if any seq in [0, total) is absent.
func Reassemble(fragments map[uint8][]byte, total uint8) ([]byte, error) {
	out := make([]byte, 0, int(total)*MaxPayload)
	for seq := uint8(0); seq < total; seq++ {
		payload, ok := fragments[seq]
		if !ok {
			return nil, ErrMissingFragment
		}
		out = append(out, payload...)
		if seq == 255 {
			break // avoid wraparound if total == 0 were ever reached here
		}
	}
	return out, nil
}
