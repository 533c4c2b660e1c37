package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gocardless-connect/internal/connect"
	"github.com/noah-isme/gocardless-connect/internal/payment"
	"github.com/noah-isme/gocardless-connect/internal/queue"
	"github.com/noah-isme/gocardless-connect/internal/signing"
)

var testCreds = connect.Credentials{AppID: "app", AppSecret: "secret", AccessToken: "token", MerchantID: "258584"}

type fakeQueue struct {
	confirms []queue.ConfirmPayload
	webhooks []queue.WebhookPayload
	err      error
}

func (f *fakeQueue) EnqueueConfirm(_ context.Context, p queue.ConfirmPayload) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	f.confirms = append(f.confirms, p)
	return nil
}

func (f *fakeQueue) EnqueueWebhook(_ context.Context, p queue.WebhookPayload) error {
	if f.err != nil {
		return f.err
	}
	f.webhooks = append(f.webhooks, p)
	return nil
}

type fixture struct {
	router http.Handler
	queue  *fakeQueue
	store  *connect.CredentialStore
	redis  *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := connect.NewCredentialStore(testCreds)
	q := &fakeQueue{}
	h := &payment.Handler{
		URLs: &connect.Client{
			Store:       store,
			BaseURL:     connect.SandboxURL,
			RedirectURI: "https://shop.example/return",
			Signer: connect.Signer{
				Now:   func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
				Nonce: func() (string, error) { return "n0nce", nil },
			},
		},
		Creds:  store,
		Queue:  q,
		Replay: payment.ReplayGuard{Client: rdb, TTL: time.Hour},
	}
	r := chi.NewRouter()
	r.Post("/api/v1/connect/{type}", h.ConnectURL)
	r.Get("/api/v1/connect/return", h.Return)
	r.Post("/api/v1/webhooks/gocardless", h.Webhook)
	return &fixture{router: r, queue: q, store: store, redis: mr}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func signedWebhook(t *testing.T, fields map[string]any) string {
	t.Helper()
	canonical, err := signing.Canonicalize(fields)
	require.NoError(t, err)
	payload := map[string]any{}
	for k, v := range fields {
		payload[k] = v
	}
	payload["signature"] = signing.Sign(canonical, testCreds.AppSecret)
	raw, err := json.Marshal(map[string]any{"payload": payload})
	require.NoError(t, err)
	return string(raw)
}

func TestConnectURL(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodPost, "/api/v1/connect/subscription",
		`{"fields":{"amount":"10.00","interval_length":1,"interval_unit":"month"},"state":"order-9"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp.URL, connect.SandboxURL+"/connect/subscriptions/new?"))
	require.Contains(t, resp.URL, "subscription[amount]=10.00")
	require.Contains(t, resp.URL, "subscription[interval_length]=1")
	require.Contains(t, resp.URL, "subscription[merchant_id]=258584")

	parsed, err := url.Parse(resp.URL)
	require.NoError(t, err)
	require.Equal(t, "https://shop.example/return", parsed.Query().Get("redirect_uri"))
	require.Equal(t, "order-9", parsed.Query().Get("state"))
}

func TestConnectURLRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name, target, body, field string
	}{
		{"unknown type", "/api/v1/connect/invoice", `{"fields":{"amount":"1"}}`, "type"},
		{"missing amount", "/api/v1/connect/bill", `{"fields":{}}`, "bill.amount"},
		{"unknown field", "/api/v1/connect/bill", `{"fields":{"amount":"1","colour":"red"}}`, "bill.colour"},
		{"reserved key", "/api/v1/connect/bill", `{"fields":{"amount":"1","user":{"a&b":"x"}}}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := f.do(http.MethodPost, tc.target, tc.body)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			var body struct {
				Error struct {
					Code    string            `json:"code"`
					Details map[string]string `json:"details"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			require.Equal(t, "INVALID_REQUEST", body.Error.Code)
			require.Equal(t, tc.field, body.Error.Details["field"])
		})
	}

	rr := f.do(http.MethodPost, "/api/v1/connect/bill", `not json`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "INVALID_BODY")
}

func signedReturnQuery(secret string) url.Values {
	q := url.Values{
		"resource_id":   {"0NZ71WBMVF"},
		"resource_type": {"subscription"},
		"resource_uri":  {"https://sandbox.gocardless.com/api/v1/subscriptions/0NZ71WBMVF"},
		"state":         {"order-9"},
	}
	flat := signing.Params{}
	for k, v := range q {
		flat = append(flat, signing.Param{Key: k, Value: v[0]})
	}
	signing.Sort(flat)
	q.Set("signature", signing.Sign(signing.Encode(flat), secret))
	return q
}

func TestReturnEnqueuesConfirm(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodGet, "/api/v1/connect/return?"+signedReturnQuery("secret").Encode(), "")
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	require.Len(t, f.queue.confirms, 1)
	require.Equal(t, "0NZ71WBMVF", f.queue.confirms[0].ResourceID)
	require.Equal(t, "subscription", f.queue.confirms[0].ResourceType)
}

func TestReturnRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	q := signedReturnQuery("secret")
	q.Set("resource_id", "OTHER")
	rr := f.do(http.MethodGet, "/api/v1/connect/return?"+q.Encode(), "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Empty(t, f.queue.confirms)

	rr = f.do(http.MethodGet, "/api/v1/connect/return?"+signedReturnQuery("wrong").Encode(), "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestWebhookAcceptsOnceThenReplays(t *testing.T) {
	f := newFixture(t)
	body := signedWebhook(t, map[string]any{
		"resource_type": "bill",
		"action":        "paid",
		"bills":         []any{map[string]any{"id": "AKJ398H8KA", "status": "paid"}},
	})

	rr := f.do(http.MethodPost, "/api/v1/webhooks/gocardless", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, f.queue.webhooks, 1)
	require.Equal(t, "bill", f.queue.webhooks[0].ResourceType)
	require.Equal(t, "paid", f.queue.webhooks[0].Action)
	require.Contains(t, string(f.queue.webhooks[0].Body), "AKJ398H8KA")

	rr = f.do(http.MethodPost, "/api/v1/webhooks/gocardless", body)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "REPLAY")
	require.Len(t, f.queue.webhooks, 1)

	f.redis.FastForward(2 * time.Hour)
	rr = f.do(http.MethodPost, "/api/v1/webhooks/gocardless", body)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestWebhookRejectsTamperedPayload(t *testing.T) {
	f := newFixture(t)
	body := signedWebhook(t, map[string]any{"resource_id": "X", "resource_type": "bill"})
	tampered := strings.Replace(body, `"resource_id":"X"`, `"resource_id":"Y"`, 1)
	require.NotEqual(t, body, tampered)

	rr := f.do(http.MethodPost, "/api/v1/webhooks/gocardless", tampered)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "INVALID_SIGNATURE")
	require.Empty(t, f.queue.webhooks)
}

func TestWebhookRotatedSecret(t *testing.T) {
	f := newFixture(t)
	body := signedWebhook(t, map[string]any{"resource_id": "X", "resource_type": "bill"})
	rotated := testCreds
	rotated.AppSecret = "next"
	f.store.Rotate(rotated)

	rr := f.do(http.MethodPost, "/api/v1/webhooks/gocardless", body)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestWebhookQueueFailureReleasesReplayKey(t *testing.T) {
	f := newFixture(t)
	body := signedWebhook(t, map[string]any{"resource_id": "X", "resource_type": "bill"})

	f.queue.err = errors.New("redis down")
	rr := f.do(http.MethodPost, "/api/v1/webhooks/gocardless", body)
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	f.queue.err = nil
	rr = f.do(http.MethodPost, "/api/v1/webhooks/gocardless", body)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestWebhookEnvelopeTakesPrecedence(t *testing.T) {
	fields := map[string]any{"resource_id": "X", "resource_type": "bill"}
	canonical, err := signing.Canonicalize(fields)
	require.NoError(t, err)
	good := signing.Sign(canonical, testCreds.AppSecret)

	f := newFixture(t)
	inner := map[string]any{"resource_id": "X", "resource_type": "bill", "signature": good}
	raw, err := json.Marshal(map[string]any{"payload": inner, "signature": "ffff"})
	require.NoError(t, err)
	rr := f.do(http.MethodPost, "/api/v1/webhooks/gocardless", string(raw))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, good, f.queue.webhooks[0].Signature)

	f = newFixture(t)
	raw, err = json.Marshal(map[string]any{
		"resource_id":   "X",
		"resource_type": "bill",
		"signature":     good,
		"payload":       map[string]any{"resource_id": "X", "signature": "ffff"},
	})
	require.NoError(t, err)
	rr = f.do(http.MethodPost, "/api/v1/webhooks/gocardless", string(raw))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Empty(t, f.queue.webhooks)
}
