// Package cmd provides common initialization for the command-line binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sleng75/slimail/pkg/persistence"
	"github.com/sleng75/slimail/pkg/persistence/file"
	"github.com/sleng75/slimail/pkg/persistence/postgresql"
)

// NewPersistence selects the persistence implementation from the database
// URL scheme: postgres:// connects to PostgreSQL, everything else is treated
// as a file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL), nil
	}
}
