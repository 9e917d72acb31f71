package attestation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchCompleteAttestation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/messages/5", r.URL.Path)
		require.Equal(t, "sig123", r.URL.Query().Get("transactionHash"))
		w.Write([]byte(`{"messages":[{"message":"0xdead","attestation":"0xbeef","status":"complete"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	msg, err := c.Fetch(context.Background(), 5, "sig123")
	require.NoError(t, err)
	require.Equal(t, "0xdead", msg.Message)
	require.Equal(t, "0xbeef", msg.Attestation)
}

func TestFetchPendingIsNotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"messages":[{"message":"","attestation":"","status":"pending_confirmations"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.Fetch(context.Background(), 5, "sig123")
	require.ErrorIs(t, err, ErrNotReady)
}

func TestFetchUnindexedBurnIsNotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.Fetch(context.Background(), 5, "sig123")
	require.ErrorIs(t, err, ErrNotReady)

	srvEmpty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"messages":[]}`))
	}))
	defer srvEmpty.Close()

	c = NewClient(Config{BaseURL: srvEmpty.URL, Timeout: time.Second})
	_, err = c.Fetch(context.Background(), 5, "sig123")
	require.ErrorIs(t, err, ErrNotReady)
}

func TestFetchServerErrorIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.Fetch(context.Background(), 5, "sig123")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotReady)
}
