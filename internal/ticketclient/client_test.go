package ticketclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*httptest.Server, *[]string) {
	var statusCalls []string
	mux := http.NewServeMux()
	mux.HandleFunc("/tickets/t-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"t-1","user_id":"u-1","event_id":"e-1","status":"valid"}`))
	})
	mux.HandleFunc("/tickets/t-404", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/tickets/t-500", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	mux.HandleFunc("/tickets/t-1/status", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		var body statusUpdate
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		statusCalls = append(statusCalls, body.Status)
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &statusCalls
}

func TestGetTicket(t *testing.T) {
	srv, _ := newTestServer(t)
	c := NewClient(srv.URL, "secret", 2*time.Second, zap.NewNop())
	ctx := context.Background()

	ticket, err := c.GetTicket(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.Equal(t, "u-1", ticket.UserID)
	assert.Equal(t, "valid", ticket.Status)

	missing, err := c.GetTicket(ctx, "t-404")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = c.GetTicket(ctx, "t-500")
	assert.Error(t, err)
}

func TestSetTicketStatus(t *testing.T) {
	srv, calls := newTestServer(t)
	c := NewClient(srv.URL, "secret", 2*time.Second, zap.NewNop())

	require.NoError(t, c.SetTicketStatus(context.Background(), "t-1", "checked_in"))
	assert.Equal(t, []string{"checked_in"}, *calls)

	assert.Error(t, c.SetTicketStatus(context.Background(), "t-missing", "checked_in"))
}
