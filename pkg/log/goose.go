package log

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// MigrationLogger satisfies goose.Logger. goose reports failures through the
// returned errors as well, so Fatalf logs instead of exiting and the caller
// decides what a failed migration means.
type MigrationLogger struct {
	logger *zerolog.Logger
}

func NewMigrationLogger(ctx context.Context) *MigrationLogger {
	return &MigrationLogger{logger: FromCtx(WithComponent(ctx, "migrations"))}
}

func (m *MigrationLogger) Fatalf(format string, v ...interface{}) {
	m.logger.Error().Msgf(strings.TrimSpace(format), v...)
}

func (m *MigrationLogger) Printf(format string, v ...interface{}) {
	m.logger.Debug().Msgf(strings.TrimSpace(format), v...)
}
