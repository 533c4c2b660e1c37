// Package payment exposes the HTTP surface for hosted-page connect flows:
// building signed URLs, receiving payers back and accepting webhooks.
package payment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gocardless-connect/internal/common"
	"github.com/noah-isme/gocardless-connect/internal/connect"
	"github.com/noah-isme/gocardless-connect/internal/gocardless"
	"github.com/noah-isme/gocardless-connect/internal/obs"
	"github.com/noah-isme/gocardless-connect/internal/queue"
	"github.com/noah-isme/gocardless-connect/internal/signing"
)

// URLBuilder renders signed hosted-page URLs; *connect.Client implements it.
type URLBuilder interface {
	NewURL(req connect.Request) (string, error)
}

// CredentialSource yields the current credentials snapshot.
type CredentialSource interface {
	Current() connect.Credentials
}

// Handler serves the connect and webhook endpoints.
type Handler struct {
	URLs   URLBuilder
	Creds  CredentialSource
	Queue  queue.Enqueuer
	Replay ReplayGuard
	Now    func() time.Time
}

type connectReq struct {
	Fields      map[string]any `json:"fields"`
	RedirectURI string         `json:"redirectUri"`
	CancelURI   string         `json:"cancelUri"`
	State       string         `json:"state"`
}

type connectResp struct {
	URL string `json:"url"`
}

// ConnectURL builds a signed hosted-page URL for the {type} route parameter.
func (h *Handler) ConnectURL(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.URLs == nil {
		common.JSONError(w, http.StatusInternalServerError, "CONNECT_NOT_CONFIGURED", "connect handler unavailable", nil)
		return
	}
	rawType := chi.URLParam(r, "type")
	t, err := connect.ParseRequestType(rawType)
	if err != nil {
		obs.CountConnectURL("unknown", "invalid")
		common.WriteError(w, invalidRequest(err))
		return
	}
	var body connectReq
	if err := common.DecodeJSON(w, r, &body); err != nil {
		obs.CountConnectURL(string(t), "invalid")
		common.WriteError(w, err)
		return
	}

	url, err := h.URLs.NewURL(connect.Request{
		Type:        t,
		Fields:      body.Fields,
		RedirectURI: strings.TrimSpace(body.RedirectURI),
		CancelURI:   strings.TrimSpace(body.CancelURI),
		State:       body.State,
	})
	if err != nil {
		if isCallerError(err) {
			obs.CountConnectURL(string(t), "invalid")
			common.WriteError(w, invalidRequest(err))
			return
		}
		obs.CountConnectURL(string(t), "error")
		zerolog.Ctx(r.Context()).Error().Err(err).Str("type", string(t)).Msg("connect_url_failed")
		common.WriteError(w, err)
		return
	}
	obs.CountConnectURL(string(t), "ok")
	common.JSON(w, http.StatusOK, connectResp{URL: url})
}

// Return receives the payer back from the hosted page, checks the signed
// query and schedules confirmation of the new resource.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Creds == nil || h.Queue == nil {
		common.JSONError(w, http.StatusInternalServerError, "CONNECT_NOT_CONFIGURED", "connect handler unavailable", nil)
		return
	}
	query := r.URL.Query()
	if !connect.ValidateRedirect(query, h.Creds.Current()) {
		obs.CountWebhookValidation("redirect_invalid")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	obs.CountWebhookValidation("redirect_valid")

	params := gocardless.ConfirmParamsFromQuery(query)
	err := h.Queue.EnqueueConfirm(r.Context(), queue.ConfirmPayload{
		ConfirmParams: params,
		RequestID:     middleware.GetReqID(r.Context()),
	})
	if err != nil {
		if errors.Is(err, connect.ErrArgument) {
			common.WriteError(w, invalidRequest(err))
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Str("resource_id", params.ResourceID).Msg("enqueue_confirm_failed")
		common.JSONError(w, http.StatusInternalServerError, "QUEUE_ERROR", "unable to schedule confirmation", nil)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]string{
		"status":       "accepted",
		"resourceId":   params.ResourceID,
		"resourceType": params.ResourceType,
		"state":        params.State,
	})
}

// Webhook validates an inbound webhook, rejects replays and hands the
// payload to the worker.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Creds == nil || h.Queue == nil {
		common.JSONError(w, http.StatusInternalServerError, "WEBHOOK_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	var envelope map[string]any
	if err := common.DecodeJSON(w, r, &envelope); err != nil {
		obs.CountWebhookValidation("malformed")
		common.WriteError(w, err)
		return
	}
	payload := connect.UnwrapPayload(envelope)
	if !connect.ValidateWebhook(payload, h.Creds.Current()) {
		obs.CountWebhookValidation("invalid")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	obs.CountWebhookValidation("valid")

	ctx := r.Context()
	signature, _ := payload[connect.SignatureKey].(string)
	fresh, err := h.Replay.Acquire(ctx, signature)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("replay_store_failed")
		common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "replay store unavailable", nil)
		return
	}
	if !fresh {
		obs.CountWebhookValidation("replay")
		common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook", nil)
		return
	}

	raw, err := json.Marshal(payload)
	if err == nil {
		resourceType, _ := payload["resource_type"].(string)
		action, _ := payload["action"].(string)
		err = h.Queue.EnqueueWebhook(ctx, queue.WebhookPayload{
			ResourceType: resourceType,
			Action:       action,
			Signature:    signature,
			Body:         raw,
			ReceivedAt:   h.now(),
			RequestID:    middleware.GetReqID(ctx),
		})
	}
	if err != nil {
		if rerr := h.Replay.Release(ctx, signature); rerr != nil {
			zerolog.Ctx(ctx).Error().Err(rerr).Msg("replay_release_failed")
		}
		zerolog.Ctx(ctx).Error().Err(err).Msg("enqueue_webhook_failed")
		common.JSONError(w, http.StatusInternalServerError, "QUEUE_ERROR", "unable to accept webhook", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func isCallerError(err error) bool {
	return errors.Is(err, connect.ErrArgument) ||
		errors.Is(err, signing.ErrInvalidKey) ||
		errors.Is(err, signing.ErrUnsupportedValue)
}

func invalidRequest(err error) *common.AppError {
	appErr := common.NewAppError("INVALID_REQUEST", err.Error(), http.StatusBadRequest, err)
	var argErr *connect.ArgumentError
	if errors.As(err, &argErr) && argErr.Field != "" {
		appErr = appErr.WithDetails(map[string]string{"field": argErr.Field})
	}
	return appErr
}
