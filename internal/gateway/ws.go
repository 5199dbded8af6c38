package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Enriquefft/openclaw-sms-webhook/internal/bus"
	"github.com/Enriquefft/openclaw-sms-webhook/internal/sms"
)

// GatewayMessage is the message format sent to the OpenClaw gateway.
type GatewayMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	ID      string `json:"id,omitempty"`
	From    string `json:"from"`
	To      string `json:"to,omitempty"`
	Text    string `json:"text"`
}

// Client manages a WebSocket connection to the OpenClaw gateway.
type Client struct {
	url    string
	token  string
	logger *slog.Logger
	conn   *websocket.Conn
	mu     sync.Mutex
}

// NewClient creates a new gateway WebSocket client.
func NewClient(url, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:    url,
		token:  token,
		logger: logger,
	}
}

// Connect establishes the WebSocket connection. The dial is bounded by ctx as
// well as the handshake timeout.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("connect to gateway: %w", err)
	}

	c.conn = conn
	c.logger.Info("connected to gateway", "url", c.url)
	return nil
}

// Send sends a message to the gateway, dialling first if there is no live
// connection. A failed write drops the connection so the next Send redials.
func (c *Client) Send(ctx context.Context, msg GatewayMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connectLocked(ctx); err != nil {
			return err
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	} else {
		c.conn.SetWriteDeadline(time.Time{})
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.conn.Close()
		c.conn = nil
		return fmt.Errorf("write message: %w", err)
	}

	return nil
}

// Handle forwards a published SMS envelope to the gateway.
func (c *Client) Handle(ctx context.Context, env bus.Envelope) error {
	msg := MessageFromEnvelope(env)
	if err := c.Send(ctx, msg); err != nil {
		return err
	}
	c.logger.Info("forwarded sms to gateway", "from", msg.From, "id", msg.ID, "text", truncate(msg.Text, 50))
	return nil
}

// Close closes the WebSocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// MessageFromEnvelope maps an inbound SMS onto the gateway message format.
func MessageFromEnvelope(env bus.Envelope) GatewayMessage {
	ev := env.Event
	id := ev.MessageID()
	if id == "" {
		id = env.ID
	}
	return GatewayMessage{
		Type:    "message",
		Channel: "sms",
		ID:      id,
		From:    phone(ev.MSISDN()),
		To:      phone(ev.To()),
		Text:    formatText(ev),
	}
}

// formatText renders the event body. Binary payloads are not forwarded, only
// described.
func formatText(ev sms.MessageEvent) string {
	if !ev.IsBinary() {
		return ev.Text()
	}
	parts := []string{"[binary]"}
	if udh := ev.UDH(); udh != "" {
		parts = append(parts, "(udh "+udh+")")
	}
	if data := ev.Data(); data != "" {
		parts = append(parts, fmt.Sprintf("%d hex chars", len(data)))
	}
	return strings.Join(parts, " ")
}

// phone adds the leading + that the provider omits from MSISDNs.
func phone(msisdn string) string {
	if msisdn == "" || strings.HasPrefix(msisdn, "+") {
		return msisdn
	}
	return "+" + msisdn
}

// truncate cuts s to max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

var _ bus.Listener = (*Client)(nil)
