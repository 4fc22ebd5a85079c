// Package vts is a session client for the VTube Studio public API. One
// Client owns one websocket connection and never has more than one request
// in flight.
package vts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/jiuai233/StreamDeck/internal/policy"
	"github.com/jiuai233/StreamDeck/internal/protocol"
)

const authOngoingMarker = "authentication is currently ongoing"

// Config holds what the client needs to reach and identify itself to the remote.
type Config struct {
	Endpoint        string
	PluginName      string
	PluginDeveloper string
	Retry           policy.Retry
}

// Client is a VTube Studio session.
type Client struct {
	cfg        Config
	classifier *policy.Classifier
	dialer     *websocket.Dialer
	log        *logrus.Entry

	// mu serializes requests; the protocol is strictly request/response.
	mu     sync.Mutex
	conn   *websocket.Conn
	token  string
	authed bool
}

// NewClient creates a client. No connection is opened until Connect or the first request.
func NewClient(cfg Config, classifier *policy.Classifier) *Client {
	return &Client{
		cfg:        cfg,
		classifier: classifier,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		log: logrus.WithFields(logrus.Fields{
			"component": "vts",
			"endpoint":  cfg.Endpoint,
		}),
	}
}

// Endpoint returns the websocket URL the client dials.
func (c *Client) Endpoint() string {
	return c.cfg.Endpoint
}

// Authenticated reports whether the handshake completed.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authed
}

// Connect opens the underlying connection, replacing any existing one.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	c.dropLocked()

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.Endpoint, nil)
	if err != nil {
		return &ConnectionError{Endpoint: c.cfg.Endpoint, Err: err}
	}
	c.conn = conn
	c.log.Info("Connected to VTube Studio")
	return nil
}

// reconnectLocked dials again and, if the session was authenticated,
// redeems the stored token on the new connection.
func (c *Client) reconnectLocked(ctx context.Context) error {
	if err := c.connectLocked(ctx); err != nil {
		return err
	}
	if !c.authed || c.token == "" {
		return nil
	}
	if err := c.redeemLocked(ctx); err != nil {
		return fmt.Errorf("re-authenticate after reconnect: %w", err)
	}
	c.log.Debug("Session re-authenticated on new connection")
	return nil
}

// Authenticate performs the token request and redemption. If the remote
// reports that an approval popup is already open it returns
// *AuthPendingError without sending anything else.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connectLocked(ctx); err != nil {
			return err
		}
	}

	resp, err := c.requestLocked(ctx, protocol.TypeAuthenticationToken, c.identity())
	if err != nil {
		var remoteErr *RemoteError
		if errors.As(err, &remoteErr) && strings.Contains(strings.ToLower(remoteErr.Message), authOngoingMarker) {
			return &AuthPendingError{Message: remoteErr.Message}
		}
		return fmt.Errorf("request authentication token: %w", err)
	}

	var tokenData protocol.AuthenticationTokenData
	if err := resp.Decode(&tokenData); err != nil {
		return err
	}
	if tokenData.AuthenticationToken == "" {
		return &AuthFailedError{Reason: "remote issued an empty token"}
	}
	c.token = tokenData.AuthenticationToken
	c.log.Info("Authentication token issued, approve the plugin in VTube Studio if asked")

	if err := c.redeemLocked(ctx); err != nil {
		return err
	}
	c.authed = true
	c.log.Info("Authenticated")
	return nil
}

func (c *Client) redeemLocked(ctx context.Context) error {
	data := c.identity()
	data[protocol.TokenField] = c.token

	resp, err := c.roundTripLocked(ctx, protocol.TypeAuthentication, data)
	if err != nil {
		var remoteErr *RemoteError
		if errors.As(err, &remoteErr) {
			return &AuthFailedError{Reason: remoteErr.Message}
		}
		return fmt.Errorf("redeem authentication token: %w", err)
	}
	var auth protocol.AuthenticationData
	if err := resp.Decode(&auth); err != nil {
		return &AuthFailedError{Reason: err.Error()}
	}
	if !auth.Authenticated {
		if auth.Reason == "" {
			return &AuthFailedError{Reason: "remote did not confirm the token"}
		}
		return &AuthFailedError{Reason: auth.Reason}
	}
	return nil
}

func (c *Client) identity() map[string]any {
	return map[string]any{
		"pluginName":      c.cfg.PluginName,
		"pluginDeveloper": c.cfg.PluginDeveloper,
	}
}

// Request sends one request and waits for its response. If the remote closed
// the connection, it reconnects once and retries once. APIError responses are
// returned as *RemoteError.
func (c *Client) Request(ctx context.Context, requestType string, payload map[string]any) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestLocked(ctx, requestType, payload)
}

func (c *Client) requestLocked(ctx context.Context, requestType string, payload map[string]any) (*protocol.Response, error) {
	if c.conn == nil {
		c.log.Debug("No open connection, reconnecting")
		if err := c.reconnectLocked(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := c.roundTripLocked(ctx, requestType, payload)
	if err == nil || !isPeerClosed(err) {
		return resp, err
	}

	c.log.WithError(err).Warn("Connection closed by VTube Studio, reconnecting")
	if err := c.reconnectLocked(ctx); err != nil {
		return nil, err
	}
	resp, err = c.roundTripLocked(ctx, requestType, payload)
	if err != nil && isPeerClosed(err) {
		return nil, &ConnectionError{Endpoint: c.cfg.Endpoint, Err: err}
	}
	return resp, err
}

// roundTripLocked writes one envelope and reads until the matching response
// arrives. Socket deadlines follow the context deadline; a socket that hit a
// deadline is discarded because gorilla connections cannot be read after a
// read timeout.
func (c *Client) roundTripLocked(ctx context.Context, requestType string, payload map[string]any) (*protocol.Response, error) {
	conn := c.conn
	if conn == nil {
		return nil, &ConnectionError{Endpoint: c.cfg.Endpoint, Err: net.ErrClosed}
	}

	req := c.envelope(requestType, payload)

	deadline, _ := ctx.Deadline()
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		past := time.Unix(1, 0)
		_ = conn.SetWriteDeadline(past)
		_ = conn.SetReadDeadline(past)
	})
	defer stop()

	if err := conn.WriteJSON(req); err != nil {
		return nil, c.transportErrLocked(ctx, requestType, err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, c.transportErrLocked(ctx, requestType, err)
		}

		var resp protocol.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("unmarshal %s response: %w", requestType, err)
		}
		if resp.RequestID != "" && resp.RequestID != req.RequestID {
			c.log.WithFields(logrus.Fields{
				"request_id":  req.RequestID,
				"received_id": resp.RequestID,
				"type":        resp.MessageType,
			}).Debug("Discarding stale response")
			continue
		}

		if resp.IsError() {
			var errData protocol.ErrorData
			if err := resp.Decode(&errData); err != nil {
				return nil, err
			}
			return nil, &RemoteError{RequestType: requestType, ErrorID: errData.ErrorID, Message: errData.Message}
		}
		return &resp, nil
	}
}

func (c *Client) envelope(requestType string, payload map[string]any) protocol.Request {
	data := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		data[k] = v
	}
	if c.authed {
		data[protocol.TokenField] = c.token
	}
	return protocol.Request{
		APIName:     protocol.APIName,
		APIVersion:  protocol.APIVersion,
		RequestID:   uuid.NewString(),
		MessageType: requestType,
		Data:        data,
	}
}

// transportErrLocked drops the connection and maps err: caller cancellation
// is returned as is, deadlines become *TimeoutError.
func (c *Client) transportErrLocked(ctx context.Context, requestType string, err error) error {
	c.dropLocked()

	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TimeoutError{Op: requestType, Err: err}
	}
	return err
}

func (c *Client) dropLocked() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	c.conn = nil
}

func isPeerClosed(err error) bool {
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

// ListModels returns every model the remote can load, in its order.
func (c *Client) ListModels(ctx context.Context) ([]protocol.Model, error) {
	resp, err := c.Request(ctx, protocol.TypeAvailableModels, nil)
	if err != nil {
		return nil, err
	}
	var data protocol.AvailableModelsData
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}
	if data.AvailableModels == nil {
		return []protocol.Model{}, nil
	}
	return data.AvailableModels, nil
}

// CurrentModelInfo describes the model that is loaded right now.
func (c *Client) CurrentModelInfo(ctx context.Context) (*protocol.CurrentModelData, error) {
	resp, err := c.Request(ctx, protocol.TypeCurrentModel, nil)
	if err != nil {
		return nil, err
	}
	var data protocol.CurrentModelData
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// CurrentHotkeys lists the hotkeys of the loaded model. A missing list is empty.
func (c *Client) CurrentHotkeys(ctx context.Context) ([]protocol.Hotkey, error) {
	resp, err := c.Request(ctx, protocol.TypeHotkeysInCurrentModel, nil)
	if err != nil {
		return nil, err
	}
	var data protocol.HotkeysData
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}
	if data.AvailableHotkeys == nil {
		return []protocol.Hotkey{}, nil
	}
	return data.AvailableHotkeys, nil
}

// ProbeLiveness sends a state request with the short probe timeout. It never
// returns an error: any failure means the remote is not answering.
func (c *Client) ProbeLiveness(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, c.cfg.Retry.ProbeTimeout)
	defer cancel()

	if _, err := c.Request(pctx, protocol.TypeAPIState, nil); err != nil {
		c.log.WithError(err).Debug("Liveness probe failed")
		return false
	}
	return true
}

// Close releases the connection and forgets the session. Safe to call twice.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.authed = false
	c.token = ""
	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return conn.Close()
}
