package cfddns

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	maxFieldName  = 256
	maxFieldValue = 1024
)

// Field is a single name/value pair shown in a message embed.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Message is a chat webhook message with optional content and a single embed.
//
// The zero value is an empty message with the default color.
type Message struct {
	Content string
	Title   string
	Color   int
	Fields  []Field

	logger logrus.FieldLogger
}

// NewMessage returns an empty message which logs validation warnings to logger.
func NewMessage(logger logrus.FieldLogger) *Message {
	return &Message{logger: logger}
}

func (m *Message) log() logrus.FieldLogger {
	if m.logger == nil {
		return discard
	}
	return m.logger
}

// SetColor sets the embed color from a "#RRGGBB" string.
// Malformed values reset the color to 0.
func (m *Message) SetColor(hex string) {
	if len(hex) != 7 || !strings.HasPrefix(hex, "#") {
		m.log().Warnf("invalid color input: %q, using default color 0x000000", hex)
		m.Color = 0
		return
	}
	c, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		m.log().Errorf("invalid hex color format: %q, using default color", hex)
		m.Color = 0
		return
	}
	m.Color = int(c)
}

// AddField appends a field to the embed.
// Fields with an empty name or value are dropped; long names and values are truncated.
func (m *Message) AddField(name, value string, inline bool) {
	if name == "" || value == "" {
		m.log().Warn("field name or value cannot be empty, skipping field")
		return
	}
	if n, ok := truncate(name, maxFieldName); ok {
		m.log().Warnf("field name %q is too long (max %d chars), truncating", preview(name), maxFieldName)
		name = n
	}
	if v, ok := truncate(value, maxFieldValue); ok {
		m.log().Warnf("field value for %q starting with %q is too long (max %d chars), truncating", name, preview(value), maxFieldValue)
		value = v
	}
	m.Fields = append(m.Fields, Field{Name: name, Value: value, Inline: inline})
}

// truncate cuts s to max characters and reports whether it did.
func truncate(s string, max int) (string, bool) {
	r := []rune(s)
	if len(r) <= max {
		return s, false
	}
	return string(r[:max]), true
}

func preview(s string) string {
	p, cut := truncate(s, 20)
	if cut {
		return p + "..."
	}
	return p
}

type embed struct {
	Title  string  `json:"title,omitempty"`
	Color  int     `json:"color"`
	Fields []Field `json:"fields,omitempty"`
}

type payload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds,omitempty"`
}

// payload builds the JSON body.
// The embed is only included when it has a title or at least one field.
func (m *Message) payload() (payload, error) {
	var p payload
	p.Content = m.Content
	if m.Title != "" || len(m.Fields) > 0 {
		p.Embeds = append(p.Embeds, embed{Title: m.Title, Color: m.Color, Fields: m.Fields})
	}
	if p.Content == "" && len(p.Embeds) == 0 {
		return payload{}, ErrEmptyMessage
	}
	return p, nil
}

// MarshalJSON encodes the message as it is sent to the webhook.
func (m *Message) MarshalJSON() ([]byte, error) {
	p, err := m.payload()
	if err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// Webhook delivers messages to a chat webhook URL.
type Webhook struct {
	url        string
	httpClient *http.Client
	logger     logrus.FieldLogger
}

// NewWebhook validates webhookURL and returns a Webhook posting to it.
func NewWebhook(webhookURL string) (*Webhook, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("webhook URL cannot be empty")
	}
	u, err := url.Parse(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, fmt.Errorf("invalid webhook URL %q: expected an http(s) URL", webhookURL)
	}
	return &Webhook{url: u.String(), logger: discard}, nil
}

func (w *Webhook) SetLogger(l logrus.FieldLogger) {
	w.logger = l
}

func (w *Webhook) SetHTTPClient(c *http.Client) {
	w.httpClient = c
}

// Send posts m to the webhook.
// An empty message is refused with ErrEmptyMessage before any request is made.
func (w *Webhook) Send(ctx context.Context, m *Message) error {
	p, err := m.payload()
	if err != nil {
		w.logger.Error(err)
		return err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("error encoding message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpclient := w.httpClient
	if httpclient == nil {
		httpclient = defaultHTTPClient()
	}
	resp, err := httpclient.Do(req)
	if err != nil {
		w.logger.Errorf("error sending webhook notification: %s", err)
		return fmt.Errorf("%w: %s", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		w.logger.WithField("status", resp.StatusCode).Errorf("HTTP error sending webhook notification: %s", strings.TrimSpace(string(respBody)))
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))}
	}
	w.logger.WithField("status", resp.StatusCode).Info("webhook notification sent successfully")
	return nil
}
