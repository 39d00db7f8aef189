package frame

import "errors"

// ErrParse and ErrCRC are never surfaced to the application: every caller
// along the receive path treats them identically to "frame not arrived".
// They exist as distinct sentinels only so logging can tell the two apart.
var (
	ErrParse             = errors.New("frame: malformed")
	ErrCRC               = errors.New("frame: crc mismatch")
	ErrProtocolViolation = errors.New("frame: protocol violation")
	ErrMissingFragment   = errors.New("frame: missing fragment in reassembly")
	ErrInvalidMaxPayload = errors.New("frame: max payload must be positive")
	ErrOversize          = errors.New("frame: payload needs more than 255 fragments")
)
