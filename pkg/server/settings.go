package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/reservetender/reservetender/pkg/log"
	"github.com/reservetender/reservetender/pkg/notify"
	"github.com/reservetender/reservetender/pkg/reconciler"
	"github.com/reservetender/reservetender/pkg/schedule"
	"github.com/reservetender/reservetender/pkg/types"
	"golang.org/x/sync/errgroup"
)

const (
	minReserve = 5
	maxReserve = 100
)

type allSettings struct {
	Holidays    []string              `json:"holidays"`
	PeakReserve int                   `json:"peakReserve"`
	Notify      []notify.Subscription `json:"notify"`
}

// handleGetSettings returns all settings in one response. The three reads are
// independent, so they run concurrently.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var out allSettings
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		holidays, err := s.db.GetHolidays(gctx)
		if err != nil {
			return err
		}
		out.Holidays = holidays
		return nil
	})
	g.Go(func() error {
		reserve, ok, err := s.db.GetPeakReserve(gctx)
		if err != nil {
			return err
		}
		if !ok {
			reserve = reconciler.DefaultPeakReserve
		}
		out.PeakReserve = reserve
		return nil
	})
	g.Go(func() error {
		subs, err := s.notifier.Subscriptions(gctx)
		if err != nil {
			return err
		}
		out.Notify = subs
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to read settings", slog.Any("error", err))
		writeJSONError(w, "failed to read settings", http.StatusInternalServerError)
		return
	}
	if out.Holidays == nil {
		out.Holidays = []string{}
	}
	if out.Notify == nil {
		out.Notify = []notify.Subscription{}
	}

	writeJSON(w, out)
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.PathValue("setting") {
	case "holiday":
		holidays, err := s.db.GetHolidays(ctx)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to read holidays", slog.Any("error", err))
			writeJSONError(w, "failed to read holidays", http.StatusInternalServerError)
			return
		}
		if holidays == nil {
			holidays = []string{}
		}
		writeJSON(w, struct {
			Holidays []string `json:"holidays"`
		}{Holidays: holidays})
	case "reserve":
		reserve, ok, err := s.db.GetPeakReserve(ctx)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to read peak reserve", slog.Any("error", err))
			writeJSONError(w, "failed to read peak reserve", http.StatusInternalServerError)
			return
		}
		if !ok {
			reserve = reconciler.DefaultPeakReserve
		}
		writeJSON(w, struct {
			PeakReserve int `json:"peakReserve"`
		}{PeakReserve: reserve})
	case "notify":
		subs, err := s.notifier.Subscriptions(ctx)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to list subscriptions", slog.Any("error", err))
			writeJSONError(w, "failed to list subscriptions", http.StatusInternalServerError)
			return
		}
		if subs == nil {
			subs = []notify.Subscription{}
		}
		writeJSON(w, struct {
			Notify []notify.Subscription `json:"notify"`
		}{Notify: subs})
	default:
		writeJSONError(w, "unknown setting", http.StatusNotFound)
	}
}

func (s *Server) handleUpdateSetting(w http.ResponseWriter, r *http.Request) {
	switch r.PathValue("setting") {
	case "holiday":
		s.handleUpdateHolidays(w, r)
	case "reserve":
		s.handleUpdateReserve(w, r)
	case "notify":
		s.handleSubscribe(w, r)
	default:
		writeJSONError(w, "unknown setting", http.StatusNotFound)
	}
}

// holidayList accepts either a single date string or a list of them.
type holidayList []string

func (h *holidayList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*h = holidayList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*h = holidayList(many)
	return nil
}

func (s *Server) handleUpdateHolidays(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Holiday holidayList `json:"holiday"`
		Remove  bool        `json:"remove"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Holiday) == 0 {
		writeJSONError(w, "holiday is required", http.StatusBadRequest)
		return
	}

	dates, err := schedule.NormalizeDates(req.Holiday)
	if err != nil {
		var ve *types.ValidationError
		if errors.As(err, &ve) {
			writeJSONError(w, ve.Msg, http.StatusBadRequest)
			return
		}
		writeJSONError(w, "invalid holiday", http.StatusBadRequest)
		return
	}

	current, err := s.db.GetHolidays(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to read holidays", slog.Any("error", err))
		writeJSONError(w, "failed to read holidays", http.StatusInternalServerError)
		return
	}

	var updated []string
	if req.Remove {
		updated = schedule.RemoveHolidays(current, dates)
	} else {
		updated = schedule.AddHolidays(current, dates)
	}

	if err := s.db.SetHolidays(ctx, updated); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save holidays", slog.Any("error", err))
		writeJSONError(w, "failed to save holidays", http.StatusInternalServerError)
		return
	}

	log.Ctx(ctx).InfoContext(ctx, "updated holidays",
		slog.Int("count", len(updated)), slog.Bool("remove", req.Remove))
	writeJSON(w, struct {
		Holidays []string `json:"holidays"`
	}{Holidays: updated})
}

func (s *Server) handleUpdateReserve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		PeakReserve int `json:"peakReserve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// clamp rather than reject so the device is never asked for a reserve it
	// cannot hold
	reserve := req.PeakReserve
	if reserve < minReserve {
		reserve = minReserve
	} else if reserve > maxReserve {
		reserve = maxReserve
	}

	if err := s.db.SetPeakReserve(ctx, reserve); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save peak reserve", slog.Any("error", err))
		writeJSONError(w, "failed to save peak reserve", http.StatusInternalServerError)
		return
	}

	log.Ctx(ctx).InfoContext(ctx, "updated peak reserve", slog.Int("peakReserve", reserve))
	writeJSON(w, struct {
		PeakReserve int `json:"peakReserve"`
	}{PeakReserve: reserve})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.notifier.Subscribe(ctx, req.Email); err != nil {
		var ve *types.ValidationError
		if errors.As(err, &ve) {
			writeJSONError(w, ve.Msg, http.StatusBadRequest)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to subscribe", slog.Any("error", err))
		writeJSONError(w, "failed to subscribe", http.StatusInternalServerError)
		return
	}

	log.Ctx(ctx).InfoContext(ctx, "subscribed for notifications", slog.String("email", req.Email))
	w.WriteHeader(http.StatusNoContent)
}
