// Package arq holds the error taxonomy and result type shared by the
// Stop-and-Wait and Go-Back-N ARQ implementations (spec §7).
package arq

import (
	"errors"
	"time"
)

var (
	// ErrUnreachable is returned when a send exceeds its retry budget.
	ErrUnreachable = errors.New("arq: peer unreachable after max retries")
	// ErrOversize is returned before any frame is built when a payload
	// would need more than 255 fragments, or MaxPayload is non-positive.
	ErrOversize = errors.New("arq: payload exceeds 255 fragments")
)

// Result reports the outcome of a single SendMessage call.
type Result struct {
	OK       bool
	Retries  int
	Duration time.Duration
}
