package gocardless_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gocardless-connect/internal/connect"
	"github.com/noah-isme/gocardless-connect/internal/gocardless"
	"github.com/noah-isme/gocardless-connect/internal/resilience"
	"github.com/noah-isme/gocardless-connect/internal/signing"
)

var testCreds = connect.Credentials{AppID: "app", AppSecret: "secret", AccessToken: "token", MerchantID: "258584"}

func newClient(t *testing.T, h http.HandlerFunc) (*gocardless.Client, *connect.CredentialStore) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	store := connect.NewCredentialStore(testCreds)
	return &gocardless.Client{
		BaseURL: srv.URL,
		Store:   store,
		HTTP:    &resilience.HTTPClient{Client: srv.Client(), Target: "gocardless"},
	}, store
}

func TestConfirmResource(t *testing.T) {
	var got url.Values
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/confirm", r.URL.Path)
		require.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "app", user)
		require.Equal(t, "secret", pass)
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, "resource_id=0NZ71WBMVF&resource_type=subscription", string(body))
		got, _ = url.ParseQuery(string(body))
		_, _ = io.WriteString(w, `{"success":true}`)
	})

	res, err := client.ConfirmResource(context.Background(), gocardless.ConfirmParams{
		ResourceID:   "0NZ71WBMVF",
		ResourceType: "subscription",
		State:        "ignored",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "0NZ71WBMVF", got.Get("resource_id"))
}

func TestConfirmResourceSendsRedirectURI(t *testing.T) {
	var body string
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.WriteHeader(http.StatusOK)
	})
	client.RedirectURI = "https://shop.example/return"

	res, err := client.ConfirmResource(context.Background(), gocardless.ConfirmParams{ResourceID: "X", ResourceType: "bill"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "redirect_uri=https%3A%2F%2Fshop.example%2Freturn&resource_id=X&resource_type=bill", body)
}

func TestConfirmResourceRequiresIdentifiers(t *testing.T) {
	called := false
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := client.ConfirmResource(context.Background(), gocardless.ConfirmParams{ResourceType: "bill"})
	var argErr *connect.ArgumentError
	require.True(t, errors.As(err, &argErr))
	require.Equal(t, "resource_id", argErr.Field)

	_, err = client.ConfirmResource(context.Background(), gocardless.ConfirmParams{ResourceID: "X"})
	require.ErrorIs(t, err, connect.ErrArgument)
	require.False(t, called)
}

func TestNon2xxBecomesAPIError(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"string error", http.StatusUnauthorized, `{"error":"Invalid credentials"}`, "Invalid credentials"},
		{"list error", http.StatusUnprocessableEntity, `{"error":["resource_id is invalid","state too long"]}`, "resource_id is invalid; state too long"},
		{"plain body", http.StatusBadGateway, `<html>bad gateway</html>`, "Bad Gateway"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			body, status, err := client.Post(context.Background(), "confirm", nil, gocardless.AuthBasic)
			var apiErr *gocardless.APIError
			require.True(t, errors.As(err, &apiErr))
			require.Equal(t, tc.status, apiErr.Status)
			require.Equal(t, tc.status, status)
			require.Equal(t, tc.message, apiErr.Message)
			require.Equal(t, tc.body, string(apiErr.Body))
			require.Equal(t, tc.body, string(body))
		})
	}
}

func TestGetEncodesQueryAndBearer(t *testing.T) {
	client, store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/bills/AKJ398H8KA", r.URL.Path)
		require.Equal(t, "expand=true&note=a%20b", r.URL.RawQuery)
		require.Equal(t, "bearer "+testCreds.AccessToken, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"id":"AKJ398H8KA"}`)
	})

	body, status, err := client.Get(context.Background(), "/bills/AKJ398H8KA", signing.Params{
		{Key: "note", Value: "a b"},
		{Key: "expand", Value: "true"},
	}, gocardless.AuthBearer)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"id":"AKJ398H8KA"}`, string(body))

	rotated := testCreds
	rotated.AccessToken = ""
	store.Rotate(rotated)
	_, _, err = client.Get(context.Background(), "/bills/AKJ398H8KA", nil, gocardless.AuthBearer)
	require.ErrorIs(t, err, connect.ErrArgument)
}

func TestBasicAuthUsesRotatedCredentials(t *testing.T) {
	var secret string
	client, store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, secret, _ = r.BasicAuth()
		_, _ = io.WriteString(w, `{"success":true}`)
	})
	rotated := testCreds
	rotated.AppSecret = "rotated"
	store.Rotate(rotated)

	_, err := client.ConfirmResource(context.Background(), gocardless.ConfirmParams{ResourceID: "X", ResourceType: "bill"})
	require.NoError(t, err)
	require.Equal(t, "rotated", secret)
}

func TestNoAuthSendsNoCredentials(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})
	_, status, err := client.Do(context.Background(), http.MethodGet, "ping", nil, gocardless.AuthNone)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, status)
}

func TestConfirmParamsFromQuery(t *testing.T) {
	p := gocardless.ConfirmParamsFromQuery(url.Values{
		"resource_id":   {" X "},
		"resource_type": {"bill"},
		"resource_uri":  {"https://gocardless.com/api/v1/bills/X"},
		"state":         {"s"},
	})
	require.Equal(t, gocardless.ConfirmParams{
		ResourceID:   "X",
		ResourceType: "bill",
		ResourceURI:  "https://gocardless.com/api/v1/bills/X",
		State:        "s",
	}, p)
	require.NoError(t, p.Validate())
}
