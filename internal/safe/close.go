// Package safe holds small helpers for cleanup whose errors are logged
// rather than returned.
package safe

import (
	"io"

	"github.com/rs/zerolog"
)

// Close closes c, logging a failure with msg.
func Close(c io.Closer, logger zerolog.Logger, msg string) {
	if err := c.Close(); err != nil {
		logger.Error().Err(err).Msg(msg)
	}
}
