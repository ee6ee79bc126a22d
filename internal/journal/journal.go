// Package journal holds fetch outcome journals that need no external backend.
package journal

import (
	"context"

	"github.com/JakeFAU/webfetch-archive/internal/webfetch"
)

// Nop discards every entry. It is used when no journal DSN is configured.
type Nop struct{}

// Record implements webfetch.Journal.
func (Nop) Record(context.Context, webfetch.JournalEntry) error { return nil }

// Ping always succeeds.
func (Nop) Ping(context.Context) error { return nil }

// Close is a no-op.
func (Nop) Close() {}
