package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cory-johannsen/chatrelay/internal/config"
)

// TimeWindow is a daily opening interval in the server's local time.
// A window whose end is before its start spans midnight.
type TimeWindow struct {
	start, end time.Duration // offset from midnight
	label      string
}

// NewTimeWindow parses the configured "15:04" bounds.
func NewTimeWindow(cfg config.TimeWindowConfig) (TimeWindow, error) {
	start, err := time.Parse("15:04", cfg.Start)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("parsing time_window.start %q: %w", cfg.Start, err)
	}
	end, err := time.Parse("15:04", cfg.End)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("parsing time_window.end %q: %w", cfg.End, err)
	}
	return TimeWindow{
		start: sinceMidnight(start),
		end:   sinceMidnight(end),
		label: cfg.Start + "-" + cfg.End,
	}, nil
}

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

// Contains reports whether t falls strictly between start and end; both
// bounds are closed. A window with equal bounds is always open.
func (w TimeWindow) Contains(t time.Time) bool {
	d := sinceMidnight(t)
	switch {
	case w.start == w.end:
		return true
	case w.start < w.end:
		return d > w.start && d < w.end
	default:
		return d > w.start || d < w.end
	}
}

// timeWindowMiddleware rejects requests outside the window with 403,
// except for paths in exempt.
func timeWindowMiddleware(w TimeWindow, now func() time.Time, exempt map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if exempt[r.URL.Path] || r.Method == http.MethodOptions || w.Contains(now()) {
				next.ServeHTTP(rw, r)
				return
			}
			writeError(rw, http.StatusForbidden, "service is open "+w.label)
		})
	}
}
