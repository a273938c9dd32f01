package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// TopicCampaignRuns carries requests to execute a dispatch run.
const TopicCampaignRuns = "campaign_runs"

type RunRequest struct {
	RequestID   uuid.UUID `json:"request_id"`
	RequestedAt time.Time `json:"requested_at"`
	Source      string    `json:"source"`
}

func NewRunRequest(source string) RunRequest {
	return RunRequest{RequestID: uuid.New(), RequestedAt: time.Now().UTC(), Source: source}
}

// Runner executes one dispatch run.
type Runner interface {
	Run(ctx context.Context) (*model.RunResult, error)
}

// StartCampaignRunSubscriber runs the campaign for every request on
// TopicCampaignRuns. A failed run is returned to the queue for retry;
// undecodable requests are dropped.
func StartCampaignRunSubscriber(ctx context.Context, q Queue, runner Runner, log zerolog.Logger) error {
	return q.Subscribe(TopicCampaignRuns, func(payload []byte) error {
		var req RunRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			log.Warn().Err(err).Msg("invalid run request, dropping")
			return nil
		}

		reqLog := log.With().Str("request_id", req.RequestID.String()).Str("source", req.Source).Logger()
		reqLog.Info().Time("requested_at", req.RequestedAt).Msg("processing queued campaign run")

		result, err := runner.Run(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Shutting down; retrying would only delay it.
			reqLog.Warn().Err(err).Msg("queued campaign run interrupted, dropping")
			return nil
		}
		if err != nil {
			reqLog.Error().Err(err).Msg("queued campaign run failed")
			return err
		}
		reqLog.Info().Int("sent", result.Sent).Str("run_id", result.RunID.String()).Msg("queued campaign run done")
		return nil
	})
}
