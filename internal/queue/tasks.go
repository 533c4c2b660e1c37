// Package queue hands connect confirmations and webhook events to background
// workers over asynq.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/gocardless-connect/internal/common"
	"github.com/noah-isme/gocardless-connect/internal/gocardless"
)

// Task type names.
const (
	TypeConnectConfirm  = "connect:confirm"
	TypeWebhookReceived = "webhook:received"
)

// DefaultQueue is the asynq queue every task is placed on.
const DefaultQueue = "default"

// ConfirmPayload carries a resource returned from the hosted page.
type ConfirmPayload struct {
	gocardless.ConfirmParams
	RequestID string `json:"request_id,omitempty"`
}

// WebhookPayload carries a validated webhook body for asynchronous handling.
type WebhookPayload struct {
	ResourceType string          `json:"resource_type"`
	Action       string          `json:"action"`
	Signature    string          `json:"signature"`
	Body         json.RawMessage `json:"body"`
	ReceivedAt   time.Time       `json:"received_at"`
	RequestID    string          `json:"request_id,omitempty"`
}

// NewConfirmTask builds a connect:confirm task. The task id is derived from
// the resource so a payer reloading the return page confirms only once.
func NewConfirmTask(p ConfirmPayload) (*asynq.Task, string, error) {
	if err := p.Validate(); err != nil {
		return nil, "", err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, "", fmt.Errorf("marshal confirm payload: %w", err)
	}
	id := "confirm:" + common.Sha256Hex(p.ResourceType+":"+p.ResourceID)
	return asynq.NewTask(TypeConnectConfirm, body), id, nil
}

// NewWebhookTask builds a webhook:received task keyed by the signature.
func NewWebhookTask(p WebhookPayload) (*asynq.Task, string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, "", fmt.Errorf("marshal webhook payload: %w", err)
	}
	id := "webhook:" + common.Sha256Hex(p.Signature)
	return asynq.NewTask(TypeWebhookReceived, body), id, nil
}
