package connector

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"nhooyr.io/websocket"
)

const (
	dialTimeout        = 30 * time.Second
	baseReconnectDelay = 5 * time.Second
	maxReconnectDelay  = 5 * time.Minute
)

// AccountUpdate is one live account-state message from the connector stream.
// Money fields are decimal strings on the wire to avoid float drift.
type AccountUpdate struct {
	AccountID    string          `json:"account_id"`
	Name         string          `json:"name"`
	Currency     string          `json:"currency"`
	BeginValue   decimal.Decimal `json:"begin_value"`
	CurrentValue decimal.Decimal `json:"current_value"`
	BlockedValue decimal.Decimal `json:"blocked_value"`
	Leverage     decimal.Decimal `json:"leverage"`
	Commission   decimal.Decimal `json:"commission"`
}

// UpdateHandler consumes account updates from the stream.
type UpdateHandler func(AccountUpdate)

// AccountStream maintains a websocket subscription to the connector's
// account-update channel, reconnecting with exponential backoff.
type AccountStream struct {
	url     string
	handler UpdateHandler
	log     zerolog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	cancel   context.CancelFunc
	stopChan chan struct{}
	stopped  bool
}

// NewAccountStream creates a new account update stream client.
func NewAccountStream(url string, handler UpdateHandler, log zerolog.Logger) *AccountStream {
	return &AccountStream{
		url:      url,
		handler:  handler,
		log:      log.With().Str("component", "account_stream").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start connects and begins consuming updates. If the initial connection
// fails the stream keeps retrying in the background.
func (s *AccountStream) Start() {
	s.log.Info().Str("url", s.url).Msg("Starting account update stream")
	go s.run()
}

// Stop gracefully shuts down the stream.
func (s *AccountStream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopChan)
	cancel := s.cancel
	conn := s.conn
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "shutting down")
	}

	s.log.Info().Msg("Account update stream stopped")
}

// run is the connect/read/reconnect loop.
func (s *AccountStream) run() {
	delay := baseReconnectDelay

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		conn, ctx, err := s.connect()
		if err != nil {
			s.log.Warn().Err(err).Dur("retry_in", delay).Msg("Connection failed")
			select {
			case <-s.stopChan:
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}

		delay = baseReconnectDelay
		s.readMessages(ctx, conn)
	}
}

// connect dials the websocket endpoint.
func (s *AccountStream) connect() (*websocket.Conn, context.Context, error) {
	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, s.url, nil)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.conn = conn
	s.cancel = cancel
	s.mu.Unlock()

	s.log.Info().Msg("Connected to connector account stream")
	return conn, ctx, nil
}

// readMessages consumes updates until the connection drops or Stop is called.
func (s *AccountStream) readMessages(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		_ = conn.Close(websocket.StatusInternalError, "read loop exited")
	}()

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if !stopped {
				s.log.Warn().Err(err).Msg("Stream read failed, reconnecting")
			}
			return
		}

		var update AccountUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			s.log.Warn().Err(err).Msg("Failed to parse account update, skipping")
			continue
		}
		if update.AccountID == "" {
			s.log.Warn().Msg("Account update without account_id, skipping")
			continue
		}

		s.handler(update)
	}
}
