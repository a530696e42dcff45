// Package sessionview is the client-side session contract of the study
// hub: it authenticates, keeps a single live subscription to the user's
// entitlement record, and issues gated AI calls. UI layers consume the
// snapshot feed; they never decide entitlement themselves.
package sessionview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// FreeTierWordLimit is the free-tier word budget for one generation call.
// The server recounts independently; this value only drives client-side
// affordances (warnings, upgrade prompts) and the advisory request flag.
const FreeTierWordLimit = 500

const (
	summarizerInstruction = "You are an expert academic summarizer. Your goal is to provide a concise, clear, and accurate summary of the provided text. Focus on the main ideas, key points, and overall argument. Use clear language. Respond only with the summary."

	studyHelperInstruction = "You are a friendly and knowledgeable study helper. Your goal is to answer the user's question clearly and concisely, as if you were tutoring them. Break down complex topics into simple steps. Respond only with the answer to the question."
)

// Snapshot is one observed state of the user's entitlement record.
type Snapshot struct {
	UserID    string    `json:"user_id"`
	IsPremium bool      `json:"is_premium"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tokens is the credential pair returned by the auth endpoints.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// APIError carries the backend's status code so callers can distinguish
// payment-required (upgrade prompt) from other failures.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// PaymentHint is the transient marker carried on the post-checkout
// redirect. It is a display hint only: it can be stale, spoofed or arrive
// before the webhook has landed, so it never feeds entitlement decisions.
type PaymentHint string

const (
	PaymentHintSuccess PaymentHint = "success"
	PaymentHintCancel  PaymentHint = "cancel"
)

type Option func(*View)

func WithHTTPClient(client *http.Client) Option {
	return func(v *View) { v.httpClient = client }
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(v *View) { v.dialer = dialer }
}

// View tracks one user session. It holds at most one live entitlement
// subscription at a time: every credential transition tears the previous
// one down before the next is established.
type View struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer

	mu         sync.Mutex
	token      string
	conn       *websocket.Conn
	generation int

	current   Snapshot
	hasRecord bool
	updates   chan Snapshot
}

func New(baseURL string, opts ...Option) *View {
	v := &View{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		dialer:     websocket.DefaultDialer,
		updates:    make(chan Snapshot, 8),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Register creates an account (and with it the free-tier entitlement
// record) and returns the token pair.
func (v *View) Register(ctx context.Context, email, password string) (*Tokens, error) {
	return v.authCall(ctx, "/api/auth/register", email, password)
}

// Login exchanges credentials for a token pair.
func (v *View) Login(ctx context.Context, email, password string) (*Tokens, error) {
	return v.authCall(ctx, "/api/auth/login", email, password)
}

func (v *View) authCall(ctx context.Context, path, email, password string) (*Tokens, error) {
	body := map[string]string{"email": email, "password": password}
	var resp Tokens
	if err := v.postJSON(ctx, path, "", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetCredential switches the session to a new bearer credential. The
// previous live subscription, if any, is torn down first; exactly one
// subscription exists afterwards.
func (v *View) SetCredential(token string) error {
	v.mu.Lock()
	v.teardownLocked()
	v.token = token
	v.generation++
	gen := v.generation
	v.mu.Unlock()

	if token == "" {
		return nil
	}

	wsURL, err := v.liveURL(token)
	if err != nil {
		return err
	}

	conn, _, err := v.dialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to open live entitlement feed: %w", err)
	}

	v.mu.Lock()
	// A concurrent credential change won the race; this subscription is
	// already obsolete.
	if v.generation != gen || v.token != token {
		v.mu.Unlock()
		conn.Close()
		return nil
	}
	v.conn = conn
	v.mu.Unlock()

	go v.readLoop(conn, gen)
	return nil
}

// ClearCredential signs the session out and drops the live subscription.
func (v *View) ClearCredential() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.teardownLocked()
	v.token = ""
	v.generation++
	v.current = Snapshot{}
	v.hasRecord = false
}

// Close tears the session down entirely.
func (v *View) Close() {
	v.ClearCredential()
}

func (v *View) teardownLocked() {
	if v.conn != nil {
		v.conn.Close()
		v.conn = nil
	}
}

// Snapshot returns the last observed entitlement state. The second result
// is false until the live feed delivered its first record.
func (v *View) Snapshot() (Snapshot, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current, v.hasRecord
}

// Updates exposes the live record feed. Slow consumers lose intermediate
// snapshots; each snapshot is a full state, so the latest one suffices.
func (v *View) Updates() <-chan Snapshot {
	return v.updates
}

type liveMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (v *View) readLoop(conn *websocket.Conn, gen int) {
	defer conn.Close()
	for {
		var msg liveMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != "entitlement" {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(msg.Data, &snap); err != nil {
			continue
		}

		v.mu.Lock()
		if v.generation != gen {
			// Stale subscription; a newer credential owns the feed now.
			v.mu.Unlock()
			return
		}
		v.current = snap
		v.hasRecord = true
		v.mu.Unlock()

		select {
		case v.updates <- snap:
		default:
		}
	}
}

func (v *View) liveURL(token string) (string, error) {
	u, err := url.Parse(v.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/api/entitlement/live"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// Generate sends one prompt through the gated backend proxy. The over-limit
// flag is computed from the query's word count, matching what the server
// re-derives.
func (v *View) Generate(ctx context.Context, userQuery, systemInstruction string) (string, error) {
	v.mu.Lock()
	token := v.token
	v.mu.Unlock()
	if token == "" {
		return "", fmt.Errorf("you must be logged in to do that")
	}

	payload := map[string]interface{}{
		"userQuery":         userQuery,
		"systemInstruction": systemInstruction,
		"isOverLimit":       countWords(userQuery) > FreeTierWordLimit,
	}

	var resp struct {
		Text string `json:"text"`
	}
	if err := v.postJSON(ctx, "/api/generate", token, payload, &resp); err != nil {
		return "", err
	}
	if resp.Text == "" {
		return "", fmt.Errorf("received an empty response from the server")
	}
	return resp.Text, nil
}

// Summarize runs the notes through the summarizer persona.
func (v *View) Summarize(ctx context.Context, notes string) (string, error) {
	query := fmt.Sprintf("Please summarize the following text:\n\n%s\n", notes)
	return v.Generate(ctx, query, summarizerInstruction)
}

// AskStudyHelper answers a study question with the tutor persona.
func (v *View) AskStudyHelper(ctx context.Context, question string) (string, error) {
	return v.Generate(ctx, question, studyHelperInstruction)
}

// StartUpgrade creates a checkout session and returns the hosted payment
// URL to redirect the user to.
func (v *View) StartUpgrade(ctx context.Context) (string, error) {
	v.mu.Lock()
	token := v.token
	v.mu.Unlock()
	if token == "" {
		return "", fmt.Errorf("must be logged in to upgrade")
	}

	var resp struct {
		URL string `json:"url"`
	}
	if err := v.postJSON(ctx, "/api/create-checkout-session", token, nil, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// ConsumePaymentHint extracts the transient payment marker from a redirect
// query string. The marker drives a one-off banner at most; the live
// entitlement feed remains the only authority on premium status.
func ConsumePaymentHint(rawQuery string) (PaymentHint, bool) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", false
	}
	switch values.Get("payment") {
	case "success":
		return PaymentHintSuccess, true
	case "cancel":
		return PaymentHintCancel, true
	}
	return "", false
}

func (v *View) postJSON(ctx context.Context, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Message}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func countWords(s string) int {
	return len(strings.Fields(s))
}
