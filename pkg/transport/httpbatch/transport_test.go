package httpbatch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/mailflow/pkg/testutil"
	"github.com/dukex/mailflow/pkg/transport"
	"github.com/dukex/mailflow/pkg/transport/httpbatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messages() []transport.Message {
	return []transport.Message{
		{ID: "m1", TenantID: "t1", To: "a@example.com", FromEmail: "hi@acme.test", Subject: "One", HTML: "<p>1</p>"},
		{ID: "m2", TenantID: "t1", To: "b@example.com", FromEmail: "hi@acme.test", Subject: "Two", HTML: "<p>2</p>"},
	}
}

func TestTransport_SendBatch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Messages []transport.Message `json:"messages"`
		}

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body.Messages, 2)
		assert.Equal(t, "a@example.com", body.Messages[0].To)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"id":"m1","success":true,"provider_id":"p-1"},
			{"id":"m2","success":false,"error":"mailbox full"}
		]}`))
	}))
	t.Cleanup(server.Close)

	tr, err := httpbatch.New(server.URL, "s3cret", testutil.Logger())
	require.NoError(t, err)

	results, err := tr.SendBatch(context.Background(), messages())
	require.NoError(t, err)

	assert.Equal(t, []transport.Result{
		{ID: "m1", Success: true, ProviderID: "p-1"},
		{ID: "m2", Success: false, Error: "mailbox full"},
	}, results)
}

func TestTransport_SendBatch_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
			},
			wantErr: httpbatch.ErrProviderStatus,
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			wantErr: httpbatch.ErrProviderStatus,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(tt.handler)
			t.Cleanup(server.Close)

			tr, err := httpbatch.New(server.URL, "", testutil.Logger())
			require.NoError(t, err)

			_, err = tr.SendBatch(context.Background(), messages())
			require.Error(t, err)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestTransport_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	tr, err := httpbatch.New(server.URL, "", testutil.Logger(), httpbatch.WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = tr.SendBatch(context.Background(), messages())
	require.Error(t, err)
}

func TestNew_RejectsInvalidEndpoint(t *testing.T) {
	t.Parallel()

	for _, endpoint := range []string{"", "ftp://mail.example.com", "https://", "::"} {
		_, err := httpbatch.New(endpoint, "", testutil.Logger())
		assert.ErrorIs(t, err, httpbatch.ErrInvalidEndpoint, endpoint)
	}
}
