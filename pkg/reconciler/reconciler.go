// Package reconciler drives one reconciliation pass: compare the reserve the
// schedule calls for against what the device reports and push an update only
// when they differ.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reservetender/reservetender/pkg/log"
	"github.com/reservetender/reservetender/pkg/notify"
	"github.com/reservetender/reservetender/pkg/powerwall"
	"github.com/reservetender/reservetender/pkg/schedule"
	"github.com/reservetender/reservetender/pkg/session"
	"github.com/reservetender/reservetender/pkg/storage"
	"github.com/reservetender/reservetender/pkg/types"
)

const (
	// DefaultPeakReserve is used when no peak reserve has ever been stored.
	DefaultPeakReserve = 20

	// OffPeakReserve is the reserve outside peak windows and on holidays:
	// fill the battery from the grid while energy is cheap.
	OffPeakReserve = 100
)

// Engine runs reconciliation passes. It is stateless between passes; every
// pass re-reads both the settings store and the device.
type Engine struct {
	db   storage.Database
	gw   powerwall.Gateway
	sess *session.Manager
	n    notify.Notifier
	now  func() time.Time
}

// New returns an Engine over the given store, gateway and notifier.
func New(db storage.Database, gw powerwall.Gateway, n notify.Notifier) *Engine {
	return &Engine{
		db:   db,
		gw:   gw,
		sess: session.New(db, gw),
		n:    n,
		now:  time.Now,
	}
}

// Reconcile runs one pass and reports what it did. It never returns an
// error: failures are alerted, recorded in the outcome history and folded
// into the returned Outcome so an unattended invocation always completes.
//
// Running twice in a row is safe. The second pass observes the reserve the
// first one set and comes back a no-op.
func (e *Engine) Reconcile(ctx context.Context) types.Outcome {
	outcome := e.reconcile(ctx)

	switch outcome.Kind {
	case types.OutcomeFailed:
		log.Ctx(ctx).ErrorContext(ctx, "reconciliation failed",
			slog.String("reason", outcome.Reason),
			slog.Any("error", outcome.Err))
		e.alert(ctx, outcome)
	case types.OutcomeUpdated:
		log.Ctx(ctx).InfoContext(ctx, "updated battery reserve",
			slog.Int("fromReserve", outcome.FromReserve),
			slog.Int("toReserve", outcome.ToReserve))
	case types.OutcomeSkipped:
		log.Ctx(ctx).InfoContext(ctx, "skipped reconciliation", slog.String("reason", outcome.Reason))
	default:
		log.Ctx(ctx).InfoContext(ctx, "battery reserve already correct")
	}

	// History is best-effort. A pass that did its job but could not record
	// itself is still a success.
	if err := e.db.InsertOutcome(ctx, outcome); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to record outcome", slog.Any("error", err))
	}

	return outcome
}

func (e *Engine) reconcile(ctx context.Context) types.Outcome {
	if err := e.sess.EnsureSession(ctx); err != nil {
		return types.Failed(e.now(), "authenticating with the vendor API", err)
	}

	status, err := e.gw.GetStatus(ctx)
	if err != nil {
		return types.Failed(e.now(), "reading the site status", err)
	}

	if !status.TOUEnabled {
		return types.Skipped(e.now(), "device is not in time-based control mode")
	}

	holidays, err := e.db.GetHolidays(ctx)
	if err != nil {
		return types.Failed(e.now(), "reading the holiday list", err)
	}

	peakReserve, ok, err := e.db.GetPeakReserve(ctx)
	if err != nil {
		return types.Failed(e.now(), "reading the peak reserve setting", err)
	}
	if !ok {
		peakReserve = DefaultPeakReserve
	}

	// All calendar decisions happen in the site's own timezone; the schedule
	// offsets and holiday dates mean nothing anywhere else.
	localNow := e.now().In(status.Location)

	desired := OffPeakReserve
	if !schedule.IsHoliday(localNow, holidays) && schedule.InPeakWindow(localNow, status.PeakBlocks()) {
		desired = peakReserve
	}

	log.Ctx(ctx).DebugContext(ctx, "computed desired reserve",
		slog.Int("desired", desired),
		slog.Int("current", status.ReserveLevel))

	if desired == status.ReserveLevel {
		return types.NoOp(e.now())
	}

	if err := e.gw.SetReserve(ctx, status.SiteID, desired); err != nil {
		return types.Failed(e.now(), "setting the battery reserve", err)
	}

	return types.Updated(e.now(), status.ReserveLevel, desired)
}

// alert publishes one notification for a failed pass. A notification that
// itself fails is only logged; there is nowhere further to escalate.
func (e *Engine) alert(ctx context.Context, outcome types.Outcome) {
	subject := fmt.Sprintf("ReserveTender: error %s", outcome.Reason)
	message := fmt.Sprintf("An error was encountered setting the battery reserve:\n\n%v", outcome.Err)
	if err := e.n.Notify(ctx, subject, message); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to send failure notification", slog.Any("error", err))
	}
}
