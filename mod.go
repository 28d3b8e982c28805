// Package rgb is the root of the client-side-validation engine. Contract
// state never reaches the chain; only compact commitments do. Peers exchange
// consignments and every recipient re-validates the whole history from
// genesis, using witness transactions anchored in the public chain as the
// anti-double-spend backbone.
//
// The packages are organized leaves first: amount and encode carry the
// arithmetic and canonical-encoding primitives, commit the Pedersen
// commitment capability, seal and contract the single-use-seal and operation
// graph model, schema and validation the type-checking and replay engine,
// consignment the transport container, store the persistence providers and
// inventory the orchestrating workflows.
package rgb

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance.
var Logger = zerolog.New(logout).
	With().Timestamp().Logger().
	With().Caller().Logger().
	Level(defaultLevel())

func defaultLevel() zerolog.Level {
	if os.Getenv("RGB_LOG") == "debug" {
		return zerolog.DebugLevel
	}

	return zerolog.InfoLevel
}
