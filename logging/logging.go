// Package logging sets up the single structured logger hydrolink's
// ARQ senders, receivers and session package share. The teacher logs with
// bare fmt.Println at the CLI layer only; hydrolink's protocol layer logs
// every dropped unparseable or CRC-failed frame and every retransmission
// for observability (ParseError/CrcError/ProtocolViolation are logged,
// never surfaced). Duplicate frames and ACKs are not logged.
package logging

import "github.com/sirupsen/logrus"

// Log is the package-level logger used throughout hydrolink. Callers
// should prefer Log.WithFields over the bare logger so every line carries
// structured context (msg_id, seq, event).
var Log = logrus.New()

// Fields is a convenience alias so callers don't need their own import of
// logrus just to build a structured log line.
type Fields = logrus.Fields

func init() {
	Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	Log.SetLevel(logrus.InfoLevel)
}

// SetLevel adjusts verbosity at runtime, e.g. from a CLI --verbose flag.
func SetLevel(debug bool) {
	if debug {
		Log.SetLevel(logrus.DebugLevel)
	} else {
		Log.SetLevel(logrus.InfoLevel)
	}
}
