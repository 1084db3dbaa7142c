package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m3rciful/mbot/core/buildinfo"
	coreconfig "github.com/m3rciful/mbot/core/config"
	"github.com/m3rciful/mbot/core/logger"
	"github.com/m3rciful/mbot/core/messenger/netutil"
	"github.com/m3rciful/mbot/core/messenger/template"
	"log/slog"
)

// Graph API endpoints used by the client.
const (
	endpointMe       = "/me"
	endpointMessages = "/me/messages"
	endpointProfile  = "/me/messenger_profile"
)

// Sender actions understood by the platform.
const (
	SenderActionTypingOn  = "typing_on"
	SenderActionTypingOff = "typing_off"
	SenderActionMarkSeen  = "mark_seen"
)

const maxResponseBytes = 1 << 20

// Page identifies the page behind an access token.
type Page struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// APIError is a structured Graph API error response.
type APIError struct {
	Status  int
	Message string
	Type    string
	Code    int
	Subcode int
	TraceID string
}

func (e *APIError) Error() string {
	if e.Subcode != 0 {
		return fmt.Sprintf("messenger: %s (code %d, subcode %d)", e.Message, e.Code, e.Subcode)
	}
	return fmt.Sprintf("messenger: %s (code %d)", e.Message, e.Code)
}

// StatusCode reports the HTTP status the error arrived with.
func (e *APIError) StatusCode() int {
	return e.Status
}

// ClientOptions configures a Graph API client.
type ClientOptions struct {
	Token   string
	APIURL  string
	Version string
	Client  *http.Client
}

// Client performs Graph API calls on behalf of one page token.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient builds a client, falling back to the production endpoint
// and the tuned HTTP client for zero options.
func NewClient(opts ClientOptions) *Client {
	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = coreconfig.DefaultAPIURL
	}
	version := opts.Version
	if version == "" {
		version = coreconfig.DefaultAPIVersion
	}
	httpClient := opts.Client
	if httpClient == nil {
		httpClient = BuildHTTPClient()
	}
	return &Client{
		token:   opts.Token,
		baseURL: strings.TrimRight(apiURL, "/") + "/" + version,
		http:    httpClient,
	}
}

// wire shapes for the send endpoint

type recipient struct {
	ID string `json:"id"`
}

type sendRequest struct {
	MessagingType string       `json:"messaging_type,omitempty"`
	Recipient     recipient    `json:"recipient"`
	Message       *messageBody `json:"message,omitempty"`
	SenderAction  string       `json:"sender_action,omitempty"`
}

type messageBody struct {
	Text         string                `json:"text,omitempty"`
	QuickReplies []template.QuickReply `json:"quick_replies,omitempty"`
	Attachment   *attachmentBody       `json:"attachment,omitempty"`
}

type attachmentBody struct {
	Type    string         `json:"type"`
	Payload attachmentData `json:"payload"`
}

type attachmentData struct {
	URL          string            `json:"url,omitempty"`
	IsReusable   bool              `json:"is_reusable,omitempty"`
	TemplateType string            `json:"template_type,omitempty"`
	Text         string            `json:"text,omitempty"`
	Buttons      []template.Button `json:"buttons,omitempty"`
}

// encodeMessage maps a payload variant to its wire shape. Every
// template.Kind needs a case here; an unhandled kind is a programming
// error reported to the caller, not sent.
func encodeMessage(msg *template.Message) (*messageBody, error) {
	switch msg.Kind {
	case template.KindText:
		if msg.Text == "" {
			return nil, fmt.Errorf("messenger: empty text message")
		}
		return &messageBody{Text: msg.Text}, nil
	case template.KindQuickReplies:
		if len(msg.QuickReplies) == 0 {
			return nil, fmt.Errorf("messenger: quick replies message without replies")
		}
		return &messageBody{Text: msg.Text, QuickReplies: msg.QuickReplies}, nil
	case template.KindButtons:
		if len(msg.Buttons) == 0 {
			return nil, fmt.Errorf("messenger: button template without buttons")
		}
		return &messageBody{Attachment: &attachmentBody{
			Type: "template",
			Payload: attachmentData{
				TemplateType: "button",
				Text:         msg.Text,
				Buttons:      msg.Buttons,
			},
		}}, nil
	case template.KindAttachment:
		if msg.Attachment == nil || msg.Attachment.URL == "" {
			return nil, fmt.Errorf("messenger: attachment message without media")
		}
		return &messageBody{Attachment: &attachmentBody{
			Type: msg.Attachment.Type,
			Payload: attachmentData{
				URL:        msg.Attachment.URL,
				IsReusable: msg.Attachment.Reusable,
			},
		}}, nil
	default:
		return nil, fmt.Errorf("messenger: unhandled payload kind %q", msg.Kind)
	}
}

// SendMessage delivers one payload to the recipient.
func (cl *Client) SendMessage(ctx context.Context, recipientID string, msg *template.Message) error {
	body, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	req := sendRequest{
		MessagingType: "RESPONSE",
		Recipient:     recipient{ID: recipientID},
		Message:       body,
	}
	return cl.post(ctx, endpointMessages, req, nil)
}

// SenderAction toggles a typing indicator or marks the conversation
// seen for the recipient.
func (cl *Client) SenderAction(ctx context.Context, recipientID, action string) error {
	req := sendRequest{
		Recipient:    recipient{ID: recipientID},
		SenderAction: action,
	}
	return cl.post(ctx, endpointMessages, req, nil)
}

type greetingEntry struct {
	Locale string `json:"locale"`
	Text   string `json:"text"`
}

type getStartedEntry struct {
	Payload string `json:"payload"`
}

type profileRequest struct {
	Greeting   []greetingEntry  `json:"greeting,omitempty"`
	GetStarted *getStartedEntry `json:"get_started,omitempty"`
}

// SetGreeting configures the default-locale greeting shown before the
// first conversation.
func (cl *Client) SetGreeting(ctx context.Context, text string) error {
	req := profileRequest{Greeting: []greetingEntry{{Locale: "default", Text: text}}}
	return cl.post(ctx, endpointProfile, req, nil)
}

// SetGetStarted configures the payload delivered as a postback when a
// new user presses the get started button.
func (cl *Client) SetGetStarted(ctx context.Context, payload string) error {
	req := profileRequest{GetStarted: &getStartedEntry{Payload: payload}}
	return cl.post(ctx, endpointProfile, req, nil)
}

// Me fetches the page identity behind the token.
func (cl *Client) Me(ctx context.Context) (*Page, error) {
	var page Page
	if err := cl.get(ctx, endpointMe, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

type apiResponse struct {
	Error *struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		Subcode   int    `json:"error_subcode"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

func (cl *Client) post(ctx context.Context, endpoint string, payload, out any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("messenger: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cl.url(endpoint), bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("messenger: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return cl.do(req, endpoint, out)
}

func (cl *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cl.url(endpoint), nil)
	if err != nil {
		return fmt.Errorf("messenger: build request: %w", err)
	}
	return cl.do(req, endpoint, out)
}

func (cl *Client) do(req *http.Request, endpoint string, out any) error {
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	ctx := req.Context()
	start := time.Now()

	resp, err := cl.http.Do(req)
	if err != nil {
		logAPIFailure(ctx, endpoint, 0, nil, err, time.Since(start))
		return fmt.Errorf("messenger: %s: %s", endpoint, netutil.RedactToken(err.Error()))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		logAPIFailure(ctx, endpoint, resp.StatusCode, nil, err, time.Since(start))
		return fmt.Errorf("messenger: %s: read response: %w", endpoint, err)
	}

	var probe apiResponse
	if err := json.Unmarshal(raw, &probe); err != nil && resp.StatusCode < http.StatusBadRequest {
		logAPIFailure(ctx, endpoint, resp.StatusCode, nil, err, time.Since(start))
		return fmt.Errorf("messenger: %s: decode response: %w", endpoint, err)
	}

	if probe.Error != nil || resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if probe.Error != nil {
			apiErr.Message = probe.Error.Message
			apiErr.Type = probe.Error.Type
			apiErr.Code = probe.Error.Code
			apiErr.Subcode = probe.Error.Subcode
			apiErr.TraceID = probe.Error.FBTraceID
		}
		logAPIFailure(ctx, endpoint, resp.StatusCode, apiErr, nil, time.Since(start))
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("messenger: %s: decode response: %w", endpoint, err)
		}
	}

	logger.Debug(ctx, "api", "api.call",
		slog.String("path", endpoint),
		slog.Int("http_code", resp.StatusCode),
		slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
	)
	return nil
}

func logAPIFailure(ctx context.Context, endpoint string, httpCode int, apiErr *APIError, cause error, took time.Duration) {
	attrs := []slog.Attr{
		slog.String("status", "fail"),
		slog.String("path", endpoint),
		slog.Int64("duration_ms", logger.RoundMS(took).Milliseconds()),
	}
	if httpCode != 0 {
		attrs = append(attrs, slog.Int("http_code", httpCode))
	}
	if apiErr != nil {
		attrs = append(attrs,
			slog.Int("api_code", apiErr.Code),
			slog.String("err", logger.SanitizeLimit(apiErr.Message, 256)),
		)
		if apiErr.Subcode != 0 {
			attrs = append(attrs, slog.Int("api_subcode", apiErr.Subcode))
		}
	}
	if cause != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(netutil.RedactToken(cause.Error()), 256)))
	}
	logger.Error(ctx, "api", "api.call.fail", attrs...)
}

func (cl *Client) url(endpoint string) string {
	q := url.Values{}
	q.Set("access_token", cl.token)
	return cl.baseURL + endpoint + "?" + q.Encode()
}
