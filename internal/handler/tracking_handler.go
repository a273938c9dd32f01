package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// transparentGIF is a 1x1 transparent GIF89a.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// EngagementCounter records opens and clicks in the day buckets.
type EngagementCounter interface {
	IncrementOpens(ctx context.Context, day time.Time) error
	IncrementClicks(ctx context.Context, day time.Time) error
}

// TrackingHandler serves the open pixel and the click redirect embedded in
// campaign mails.
type TrackingHandler struct {
	Counters EngagementCounter
	// AllowedHost is the only host clicks may redirect to.
	AllowedHost string
	Now         func() time.Time
	Log         zerolog.Logger
}

// NewTrackingHandler allows redirects to the host of baseLink.
func NewTrackingHandler(counters EngagementCounter, baseLink string, log zerolog.Logger) *TrackingHandler {
	host := ""
	if u, err := url.Parse(baseLink); err == nil {
		host = u.Host
	}
	return &TrackingHandler{Counters: counters, AllowedHost: host, Log: log}
}

// OpenPixel counts an open. The pixel is served even when counting fails.
func (h *TrackingHandler) OpenPixel(w http.ResponseWriter, r *http.Request) {
	if err := h.Counters.IncrementOpens(r.Context(), h.now()); err != nil {
		h.Log.Error().Err(err).Msg("failed to count open")
	}
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(transparentGIF)
}

// Click counts a click and redirects to the campaign link in ?to=.
func (h *TrackingHandler) Click(w http.ResponseWriter, r *http.Request) {
	target, ok := h.redirectTarget(r.URL.Query().Get("to"))
	if !ok {
		http.Error(w, "invalid redirect target", http.StatusBadRequest)
		return
	}
	if err := h.Counters.IncrementClicks(r.Context(), h.now()); err != nil {
		h.Log.Error().Err(err).Msg("failed to count click")
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *TrackingHandler) redirectTarget(raw string) (string, bool) {
	if raw == "" || h.AllowedHost == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if !strings.EqualFold(u.Host, h.AllowedHost) {
		return "", false
	}
	return u.String(), true
}

func (h *TrackingHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}
