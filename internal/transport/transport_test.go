package transport_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/harborpay/checkout/internal/transport"
)

func TestDoJSONBody(t *testing.T) {
	var gotContentType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ord_1"}`))
	}))
	defer srv.Close()

	client := transport.New(time.Second, zerolog.Nop())
	resp, err := client.Do(context.Background(), transport.Request{
		Method: http.MethodPost,
		URL:    srv.URL,
		JSON:   map[string]string{"intent": "CAPTURE"},
	})
	require.NoError(t, err)
	require.True(t, resp.Success())
	require.Equal(t, http.StatusCreated, resp.Status)
	require.Equal(t, `{"id":"ord_1"}`, resp.Body)
	require.Equal(t, "application/json", gotContentType)
	require.Equal(t, "CAPTURE", gotBody["intent"])
}

func TestDoFormBody(t *testing.T) {
	var gotContentType, gotForm string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		gotForm = string(raw)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	form := url.Values{}
	form.Set("name", "Gold Plan")
	client := transport.New(time.Second, zerolog.Nop())
	resp, err := client.Do(context.Background(), transport.Request{
		Method: http.MethodPost,
		URL:    srv.URL,
		Form:   form,
	})
	require.NoError(t, err)
	require.True(t, resp.Success())
	require.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	require.Equal(t, "name=Gold+Plan", gotForm)
}

func TestDoErrorStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := transport.New(time.Second, zerolog.Nop())
	resp, err := client.Do(context.Background(), transport.Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	require.False(t, resp.Success())
	require.Equal(t, http.StatusUnauthorized, resp.Status)
	require.Contains(t, resp.Body, "invalid_client")
}

func TestDoCustomHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer token-123")
	client := transport.New(time.Second, zerolog.Nop())
	_, err := client.Do(context.Background(), transport.Request{Method: http.MethodGet, URL: srv.URL, Header: header})
	require.NoError(t, err)
	require.Equal(t, "Bearer token-123", gotAuth)
}
