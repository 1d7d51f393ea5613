package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func TestAccountStreamDeliversUpdates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		ctx := r.Context()
		_ = conn.Write(ctx, websocket.MessageText, []byte(
			`{"account_id":"pf1","name":"Main","currency":"USD","begin_value":"100","current_value":"110","blocked_value":"0","leverage":"2","commission":"1.5"}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"broken":`)) // must be skipped
		_ = conn.Write(ctx, websocket.MessageText, []byte(
			`{"account_id":"pf2","name":"Second","currency":"EUR","begin_value":"50","current_value":"55","blocked_value":"5","leverage":"1","commission":"0.5"}`))

		// Keep the connection open until the client disconnects
		_, _, _ = conn.Read(context.Background())
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	updates := make(chan AccountUpdate, 4)
	stream := NewAccountStream(wsURL, func(u AccountUpdate) {
		updates <- u
	}, zerolog.Nop())

	stream.Start()
	defer stream.Stop()

	first := waitForUpdate(t, updates)
	assert.Equal(t, "pf1", first.AccountID)
	assert.True(t, first.CurrentValue.Equal(decimal.NewFromInt(110)))

	second := waitForUpdate(t, updates)
	assert.Equal(t, "pf2", second.AccountID)
	assert.Equal(t, "EUR", second.Currency)
}

func TestAccountStreamStopIsIdempotent(t *testing.T) {
	stream := NewAccountStream("ws://localhost:1", func(AccountUpdate) {}, zerolog.Nop())
	stream.Start()
	stream.Stop()
	stream.Stop()
}

func waitForUpdate(t *testing.T, updates chan AccountUpdate) AccountUpdate {
	t.Helper()
	select {
	case u := <-updates:
		return u
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for account update")
		return AccountUpdate{}
	}
}
