package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/delivery"
	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/metrics"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
)

const (
	subjectWithOffer = "%s: an offer picked for you"
	subjectFallback  = "A special offer picked for you"
	defaultFirstName = "there"
)

// BudgetChecker answers whether the daily quota still allows a send.
type BudgetChecker interface {
	HasBudget(ctx context.Context, day time.Time) (bool, error)
}

// Sender delivers one rendered campaign message.
type Sender interface {
	Send(ctx context.Context, to string, vars map[string]any, subject string) (delivery.Outcome, error)
}

// Dispatcher runs the campaign: one recipient at a time until the quota or
// the recipient pool is exhausted.
type Dispatcher struct {
	Quota           BudgetChecker
	Recipients      repository.RecipientRepositoryInterface
	Sender          Sender
	Campaign        config.Campaign
	TrackingBaseURL string
	Now             func() time.Time
	Log             zerolog.Logger
}

// Run executes one dispatch run. Recipients that were skipped or failed are
// released when the run ends, so none is visited twice within a run.
// A store failure ends the run; the partial result is returned with the error.
func (d *Dispatcher) Run(ctx context.Context) (result *model.RunResult, err error) {
	result = &model.RunResult{RunID: uuid.New(), StartedAt: d.now()}
	log := d.Log.With().Str("run_id", result.RunID.String()).Logger()
	log.Info().Str("campaign", d.Campaign.Name).Msg("dispatch run started")

	var released []int64
	defer func() {
		// Releases must happen even when ctx was canceled mid-run.
		releaseCtx := context.WithoutCancel(ctx)
		for _, id := range released {
			if relErr := d.Recipients.Release(releaseCtx, id); relErr != nil {
				log.Error().Err(relErr).Int64("recipient_id", id).Msg("failed to release recipient")
				if err == nil {
					err = fmt.Errorf("release recipient %d: %w", id, relErr)
				}
			}
		}
		result.FinishedAt = d.now()
		metrics.ObserveRun(result.Sent, err)

		event := log.Info()
		if err != nil {
			event = log.Error().Err(err)
		}
		event.
			Int("sent", result.Sent).
			Int("skipped", result.Skipped).
			Int("failed", result.Failed).
			Dur("took", result.FinishedAt.Sub(result.StartedAt)).
			Msg("dispatch run finished")
	}()

	err = d.loop(ctx, result, &released, log)
	return result, err
}

func (d *Dispatcher) loop(ctx context.Context, result *model.RunResult, released *[]int64, log zerolog.Logger) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ok, err := d.Quota.HasBudget(ctx, d.now())
		if err != nil {
			return fmt.Errorf("check quota: %w", err)
		}
		if !ok {
			log.Info().Msg("daily send limit reached")
			return nil
		}

		rec, err := d.Recipients.ClaimNext(ctx)
		if err != nil {
			return fmt.Errorf("claim recipient: %w", err)
		}
		if rec == nil {
			log.Info().Msg("no claimable recipients left")
			return nil
		}

		if !rec.HasAddress() {
			*released = append(*released, rec.ID)
			result.Skipped++
			metrics.IncSkipped("no_address")
			log.Warn().Int64("recipient_id", rec.ID).Msg("recipient has no email address, skipped")
			continue
		}

		vars := d.Variables(rec)
		outcome, err := d.Sender.Send(ctx, strings.TrimSpace(rec.Email), vars, SubjectFor(vars))
		switch {
		case err == nil && outcome == delivery.Delivered:
			result.Sent++
			log.Debug().Int64("recipient_id", rec.ID).Msg("campaign message sent")
		case err == nil:
			*released = append(*released, rec.ID)
			result.Failed++
			metrics.IncSkipped("not_attempted")
			log.Warn().Int64("recipient_id", rec.ID).Msg("no provider took the message, recipient released")
		case appErrors.IsDeliveryError(err):
			*released = append(*released, rec.ID)
			result.Failed++
			metrics.IncSkipped("delivery_failed")
			log.Warn().Err(err).Int64("recipient_id", rec.ID).Msg("delivery failed, recipient released")
		default:
			// The provider may have accepted the message before the store failed.
			if outcome == delivery.Delivered {
				result.Sent++
			}
			return err
		}
	}
}

// Variables composes the merge variables for rec.
func (d *Dispatcher) Variables(rec *model.Recipient) map[string]any {
	firstName := strings.TrimSpace(rec.FirstName)
	if firstName == "" {
		firstName = defaultFirstName
	}
	link := DeepLink(d.Campaign.BaseLink, d.Campaign.Name, rec.ID)

	vars := map[string]any{
		"first_name":  firstName,
		"offer_title": d.Campaign.OfferTitle,
		"promo_code":  d.Campaign.PromoCode,
		"discount":    d.Campaign.Discount,
		"link":        link,
	}
	if d.Campaign.OfferSubject != "" {
		vars["offer_subject"] = d.Campaign.OfferSubject
	}
	if base := strings.TrimRight(d.TrackingBaseURL, "/"); base != "" {
		vars["tracking_pixel"] = base + "/t/open.gif"
		vars["click_link"] = base + "/t/click?to=" + url.QueryEscape(link)
	}
	return vars
}

// SubjectFor derives the subject line from the merge variables.
func SubjectFor(vars map[string]any) string {
	if v, ok := vars["offer_subject"]; ok {
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return fmt.Sprintf(subjectWithOffer, s)
		}
	}
	return subjectFallback
}

// DeepLink tags base with the campaign's UTM parameters and the recipient id.
// A base that does not parse is returned unchanged.
func DeepLink(base, campaign string, recipientID int64) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("utm_source", "email")
	q.Set("utm_medium", "campaign")
	q.Set("utm_campaign", campaign)
	q.Set("rid", strconv.FormatInt(recipientID, 10))
	u.RawQuery = q.Encode()
	return u.String()
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}
