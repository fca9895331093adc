package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTwilioConfig(baseURL string) TwilioConfig {
	return TwilioConfig{
		AccountSID: "AC_test",
		AuthToken:  "secret",
		FromNumber: "+15550001111",
		BaseURL:    baseURL,
	}
}

func TestTwilioTransport_Configured(t *testing.T) {
	assert.True(t, NewTwilioTransport(testTwilioConfig("")).Configured())

	partial := TwilioConfig{AccountSID: "AC_test", AuthToken: "secret"}
	assert.False(t, NewTwilioTransport(partial).Configured())

	assert.False(t, NewTwilioTransport(TwilioConfig{}).Configured())
}

func TestTwilioTransport_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2010-04-01/Accounts/AC_test/Messages.json", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "AC_test", user)
		assert.Equal(t, "secret", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+16505551234", r.PostForm.Get("To"))
		assert.Equal(t, "+15550001111", r.PostForm.Get("From"))
		assert.Equal(t, "see you at 4", r.PostForm.Get("Body"))

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	tr := NewTwilioTransport(testTwilioConfig(srv.URL))
	sid, err := tr.Send(context.Background(), "+16505551234", "see you at 4")
	require.NoError(t, err)
	assert.Equal(t, "SM123", sid)
}

func TestTwilioTransport_SendUnconfigured(t *testing.T) {
	tr := NewTwilioTransport(TwilioConfig{})
	_, err := tr.Send(context.Background(), "+16505551234", "hi")
	require.Error(t, err)
}

func TestTwilioTransport_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM456","status":"queued"}`))
	}))
	defer srv.Close()

	tr := NewTwilioTransport(testTwilioConfig(srv.URL))
	sid, err := tr.Send(context.Background(), "+16505551234", "hi")
	require.NoError(t, err)
	assert.Equal(t, "SM456", sid)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTwilioTransport_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM789"}`))
	}))
	defer srv.Close()

	tr := NewTwilioTransport(testTwilioConfig(srv.URL))
	sid, err := tr.Send(context.Background(), "+16505551234", "hi")
	require.NoError(t, err)
	assert.Equal(t, "SM789", sid)
}

func TestTwilioTransport_RejectionIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`))
	}))
	defer srv.Close()

	tr := NewTwilioTransport(testTwilioConfig(srv.URL))
	_, err := tr.Send(context.Background(), "not-a-number", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid 'To' Phone Number")
	assert.Equal(t, int32(1), calls.Load())
}

func TestTwilioTransport_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewTwilioTransport(testTwilioConfig(srv.URL))
	_, err := tr.Send(context.Background(), "+16505551234", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), calls.Load()) // initial attempt plus two retries
}
