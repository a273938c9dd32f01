package controller

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
)

// CampaignRunner executes one dispatch run.
type CampaignRunner interface {
	Run(ctx context.Context) (*model.RunResult, error)
}

// StatsReader produces the campaign stats report.
type StatsReader interface {
	GetStats(ctx context.Context) (*model.Stats, error)
}

type CampaignController struct {
	Runner    CampaignRunner
	Stats     StatsReader
	Publisher queue.Queue
	Log       zerolog.Logger
}

// RunCampaign runs the campaign synchronously and reports how many were sent.
func (c *CampaignController) RunCampaign(w http.ResponseWriter, r *http.Request) {
	result, err := c.Runner.Run(r.Context())
	if err != nil {
		sent := 0
		if result != nil {
			sent = result.Sent
		}
		c.Log.Error().Err(err).Int("sent", sent).Msg("campaign run did not complete")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "campaign run did not complete",
			"sent":  sent,
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RunCampaignAsync queues a run request and returns immediately.
func (c *CampaignController) RunCampaignAsync(w http.ResponseWriter, r *http.Request) {
	req := queue.NewRunRequest("http")
	if err := c.Publisher.Publish(queue.TopicCampaignRuns, req); err != nil {
		c.Log.Error().Err(err).Msg("failed to enqueue campaign run")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "could not queue campaign run"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"queued":     true,
		"request_id": req.RequestID,
	})
}

func (c *CampaignController) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.Stats.GetStats(r.Context())
	if err != nil {
		c.Log.Error().Err(err).Msg("failed to read campaign stats")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
