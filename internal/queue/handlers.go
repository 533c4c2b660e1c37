package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gocardless-connect/internal/connect"
	"github.com/noah-isme/gocardless-connect/internal/gocardless"
	"github.com/noah-isme/gocardless-connect/internal/obs"
)

// Confirmer confirms hosted-page resources with the service API.
type Confirmer interface {
	ConfirmResource(ctx context.Context, p gocardless.ConfirmParams) (gocardless.ConfirmResult, error)
}

// Processor consumes connect and webhook tasks.
type Processor struct {
	Confirmer Confirmer
	Logger    zerolog.Logger
}

// Register attaches the processor's handlers to mux.
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeConnectConfirm, p.HandleConfirm)
	mux.HandleFunc(TypeWebhookReceived, p.HandleWebhook)
}

// HandleConfirm calls the confirm endpoint for the task's resource. Caller
// mistakes and 4xx answers are not retried.
func (p *Processor) HandleConfirm(ctx context.Context, task *asynq.Task) error {
	var payload ConfirmPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		ProcessedTotal.WithLabelValues(TypeConnectConfirm, "malformed").Inc()
		return fmt.Errorf("decode confirm payload: %v: %w", err, asynq.SkipRetry)
	}
	log := p.Logger.With().
		Str("task", TypeConnectConfirm).
		Str("resource_id", payload.ResourceID).
		Str("resource_type", payload.ResourceType).
		Str("request_id", payload.RequestID).
		Logger()

	start := time.Now()
	res, err := p.Confirmer.ConfirmResource(log.WithContext(ctx), payload.ConfirmParams)
	elapsed := obs.DurationMillis(time.Since(start))
	if err != nil {
		obs.ObserveConfirm("error", elapsed)
		if permanent(err) {
			ProcessedTotal.WithLabelValues(TypeConnectConfirm, "rejected").Inc()
			log.Error().Err(err).Msg("confirm_rejected")
			return fmt.Errorf("confirm %s: %v: %w", payload.ResourceID, err, asynq.SkipRetry)
		}
		ProcessedTotal.WithLabelValues(TypeConnectConfirm, "retry").Inc()
		log.Warn().Err(err).Msg("confirm_failed")
		return fmt.Errorf("confirm %s: %w", payload.ResourceID, err)
	}
	if !res.Success {
		obs.ObserveConfirm("unconfirmed", elapsed)
		ProcessedTotal.WithLabelValues(TypeConnectConfirm, "rejected").Inc()
		log.Error().Msg("confirm_unsuccessful")
		return fmt.Errorf("confirm %s: service reported failure: %w", payload.ResourceID, asynq.SkipRetry)
	}
	obs.ObserveConfirm("ok", elapsed)
	ProcessedTotal.WithLabelValues(TypeConnectConfirm, "ok").Inc()
	log.Info().Float64("duration_ms", elapsed).Msg("resource_confirmed")
	return nil
}

// HandleWebhook records each resource carried by a validated webhook.
func (p *Processor) HandleWebhook(_ context.Context, task *asynq.Task) error {
	var payload WebhookPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		ProcessedTotal.WithLabelValues(TypeWebhookReceived, "malformed").Inc()
		return fmt.Errorf("decode webhook payload: %v: %w", err, asynq.SkipRetry)
	}
	var body map[string]any
	dec := json.NewDecoder(bytes.NewReader(payload.Body))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		ProcessedTotal.WithLabelValues(TypeWebhookReceived, "malformed").Inc()
		return fmt.Errorf("decode webhook body: %v: %w", err, asynq.SkipRetry)
	}

	resources := Resources(body, payload.ResourceType)
	log := p.Logger.With().
		Str("task", TypeWebhookReceived).
		Str("resource_type", payload.ResourceType).
		Str("action", payload.Action).
		Str("request_id", payload.RequestID).
		Logger()
	for _, r := range resources {
		evt := log.Info()
		for _, k := range []string{"id", "status", "source_type", "source_id", "amount"} {
			if v, ok := r[k]; ok {
				evt = evt.Interface(k, v)
			}
		}
		evt.Msg("webhook_resource")
	}
	obs.CountWebhookEvent(payload.ResourceType, payload.Action)
	ProcessedTotal.WithLabelValues(TypeWebhookReceived, "ok").Inc()
	log.Info().Int("resources", len(resources)).Time("received_at", payload.ReceivedAt).Msg("webhook_processed")
	return nil
}

// Resources returns the objects listed under the plural key for resourceType,
// e.g. "bills" for "bill".
func Resources(body map[string]any, resourceType string) []map[string]any {
	if resourceType == "" {
		return nil
	}
	list, ok := body[resourceType+"s"].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func permanent(err error) bool {
	if errors.Is(err, connect.ErrArgument) {
		return true
	}
	var apiErr *gocardless.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusBadRequest && apiErr.Status < http.StatusInternalServerError &&
			apiErr.Status != http.StatusTooManyRequests
	}
	return false
}
