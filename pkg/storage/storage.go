// Package storage persists the handful of settings the reconciler needs
// between invocations. Each setting is typed at this boundary; malformed
// stored values surface as ConfigError rather than being coerced.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/reservetender/reservetender/pkg/types"
)

// Setting keys. These are the wire names in the store and must not change
// without migrating existing records.
const (
	KeyRefreshToken = "refreshToken"
	KeyAuthToken    = "authToken"
	KeyTokenExpires = "tokenExpires"
	KeyHolidays     = "holidays"
	KeyPeakReserve  = "peakReserve"
)

// Database is the settings store.
type Database interface {
	// GetCredential returns the stored token triple. Absent keys come back as
	// zero fields; callers decide what a partially-present credential means.
	GetCredential(ctx context.Context) (types.Credential, error)
	// SetCredential persists all three credential fields as one atomic
	// logical update. Persisting only part of the triple is a correctness
	// bug: a refresh token without its matching access token strands the
	// session.
	//
	// There is no conditional write: two overlapping invocations can both
	// refresh and the later write wins, possibly invalidating the earlier
	// invocation's in-flight token. Accepted because the external scheduler
	// serializes invocations at a cadence far above one call's latency.
	SetCredential(ctx context.Context, cred types.Credential) error

	// GetHolidays returns the stored holiday dates in canonical form, empty
	// when unset.
	GetHolidays(ctx context.Context) ([]string, error)
	SetHolidays(ctx context.Context, holidays []string) error

	// GetPeakReserve returns the configured peak reserve percentage and
	// whether one was stored. The default when absent belongs to the caller.
	GetPeakReserve(ctx context.Context) (int, bool, error)
	// SetPeakReserve stores the value as-is; clamping happens at the write
	// entry point, not here.
	SetPeakReserve(ctx context.Context, percent int) error

	// Outcome history
	InsertOutcome(ctx context.Context, outcome types.Outcome) error
	GetOutcomeHistory(ctx context.Context, start, end time.Time) ([]types.Outcome, error)

	// Lifecycle
	Close() error
}

// Configured sets up the storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
