package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/Aero25x/ton-wallet-tracker/business/domain/tracker"
	"github.com/Aero25x/ton-wallet-tracker/entities"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"sync"
	"time"
)

const (
	accountUpdateMethod = "account_update"
	subscribeRequestID  = 1
)

type Config struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
}

// Client subscribes to account change notifications over a json-rpc websocket.
type Client struct {
	url    string
	cfg    Config
	logger *zap.SugaredLogger
}

func NewClient(url string, cfg Config, logger *zap.SugaredLogger) *Client {
	return &Client{
		url:    url,
		cfg:    cfg,
		logger: logger,
	}
}

type rpcRequest struct {
	ID      int           `json:"id"`
	JsonRpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  requestParams `json:"params"`
}

type requestParams struct {
	Accounts []string `json:"accounts"`
}

type rpcMessage struct {
	ID     *int            `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Subscribe dials the endpoint and subscribes to the account. ctx only bounds
// the handshake, the returned subscription lives until it fails or is closed.
func (c *Client) Subscribe(ctx context.Context, account string) (tracker.Subscription, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing [%s]: %w", entities.ErrConnection, c.url, err)
	}

	pending, err := c.handshake(ctx, conn, account)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	sub := &subscription{
		conn:         conn,
		cfg:          c.cfg,
		logger:       c.logger,
		signals:      make(chan struct{}, 1),
		errs:         make(chan error, 1),
		done:         make(chan struct{}),
		readerClosed: make(chan struct{}),
	}
	if pending {
		sub.signals <- struct{}{}
	}
	sub.start()

	return sub, nil
}

// handshake subscribes and waits for the reply to the request. It reports
// whether an account update arrived before the reply.
func (c *Client) handshake(ctx context.Context, conn *websocket.Conn, account string) (bool, error) {
	request := rpcRequest{
		ID:      subscribeRequestID,
		JsonRpc: "2.0",
		Method:  "subscribe",
		Params:  requestParams{Accounts: []string{account}},
	}

	var deadline time.Time // zero means none
	if c.cfg.HandshakeTimeout > 0 {
		deadline = time.Now().Add(c.cfg.HandshakeTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}

	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(request); err != nil {
		return false, fmt.Errorf("%w: sending subscription: %w", entities.ErrConnection, err)
	}

	_ = conn.SetReadDeadline(deadline)
	pending := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return false, fmt.Errorf("%w: reading subscription reply: %w", entities.ErrSubscription, err)
		}

		var msg rpcMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warnw("Ignoring undecodable message during subscription", "error", err)
			continue
		}
		if msg.Method == accountUpdateMethod {
			pending = true
			continue
		}
		if msg.ID == nil || *msg.ID != subscribeRequestID {
			continue
		}
		if msg.Error != nil {
			return false, fmt.Errorf("%w: code [%d]: %s", entities.ErrSubscription, msg.Error.Code, msg.Error.Message)
		}
		return pending, nil
	}
}

type subscription struct {
	conn   *websocket.Conn
	cfg    Config
	logger *zap.SugaredLogger

	signals      chan struct{}
	errs         chan error
	done         chan struct{}
	readerClosed chan struct{}
	closeOnce    sync.Once
}

func (s *subscription) Signals() <-chan struct{} {
	return s.signals
}

func (s *subscription) Errors() <-chan error {
	return s.errs
}

func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
		<-s.readerClosed
	})
	return err
}

func (s *subscription) start() {
	_ = s.extendReadDeadline()
	s.conn.SetPongHandler(func(string) error {
		return s.extendReadDeadline()
	})

	go s.readLoop()
	if s.cfg.PingInterval > 0 {
		go s.pingLoop()
	}
}

func (s *subscription) readLoop() {
	defer close(s.readerClosed)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done: // closed by us
			default:
				s.errs <- fmt.Errorf("%w: reading message: %w", entities.ErrConnection, err)
			}
			return
		}
		_ = s.extendReadDeadline()

		var msg rpcMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warnw("Ignoring undecodable notification", "error", err)
			continue
		}
		if msg.Method != accountUpdateMethod {
			continue
		}

		// keep at most one pending signal
		select {
		case s.signals <- struct{}{}:
		default:
		}
	}
}

// a zero WriteTimeout falls back to the ping interval
func (s *subscription) writeDeadline() time.Time {
	timeout := s.cfg.WriteTimeout
	if timeout <= 0 {
		timeout = s.cfg.PingInterval
	}
	return time.Now().Add(timeout)
}

// a zero ReadTimeout disables the deadline
func (s *subscription) extendReadDeadline() error {
	if s.cfg.ReadTimeout <= 0 {
		return s.conn.SetReadDeadline(time.Time{})
	}
	return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
}

func (s *subscription) pingLoop() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.readerClosed:
			return
		case <-ticker.C:
			err := s.conn.WriteControl(websocket.PingMessage, nil, s.writeDeadline())
			if err != nil {
				s.logger.Warnw("Sending ping", "error", err)
			}
		}
	}
}
