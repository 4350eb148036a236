// Package supabase is the hosted storage and identity backend. It talks to
// PostgREST (/rest/v1) and GoTrue (/auth/v1) over HTTP.
//
// The client holds no per-user state. Every call that is subject to the
// hosted row policies takes a domain.Actor and forwards the actor's own
// access token; the project key is sent only as the apikey header.
//
// Outbound calls pass through a circuit breaker. Transport errors and 5xx
// responses count as failures; while the breaker is open calls fail fast as
// domain.KindUnavailable. Nothing is retried.
package supabase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tbourn/crystarise-backend/internal/domain"
)

// Config configures a Client.
type Config struct {
	// URL is the project URL, e.g. https://xyz.supabase.co.
	URL string
	// Key is the project's anon key.
	Key string
	// Timeout bounds every outbound request. Zero means 10s.
	Timeout time.Duration
	// BreakerFailures is the number of consecutive failures that opens the
	// breaker. Zero means 5.
	BreakerFailures uint32
	// BreakerCooldown is how long the breaker stays open. Zero means 30s.
	BreakerCooldown time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client is a thin PostgREST/GoTrue client. It is safe for concurrent use.
type Client struct {
	base *url.URL
	key  string
	http *http.Client
	cb   *gobreaker.CircuitBreaker[*response]
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// request describes one outbound call.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// token is the bearer token; empty means the project key.
	token  string
	prefer []string
	// object asks PostgREST for a single JSON object instead of an array.
	object bool
}

// errServer marks responses the breaker counts as failures.
var errServer = errors.New("server error")

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" || strings.TrimSpace(cfg.Key) == "" {
		return nil, errors.New("supabase: url and key are required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("supabase: invalid url %q", cfg.URL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	failures := cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "supabase",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})

	return &Client{base: base, key: cfg.Key, http: hc, cb: cb}, nil
}

// do executes r through the breaker. A non-nil error is always classified;
// 4xx responses are returned to the caller for mapping.
func (c *Client) do(ctx context.Context, r request) (*response, error) {
	res, err := c.cb.Execute(func() (*response, error) {
		return c.roundTrip(ctx, r)
	})
	if err == nil {
		return res, nil
	}
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, domain.Unavailable("backend temporarily unavailable", err)
	case errors.Is(err, errServer) && res != nil:
		return nil, mapError(res)
	default:
		return nil, domain.Unavailable("backend request failed", err)
	}
}

func (c *Client) roundTrip(ctx context.Context, r request) (*response, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + r.path
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return nil, err
	}
	token := r.token
	if token == "" {
		token = c.key
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+token)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.object {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	if len(r.prefer) > 0 {
		req.Header.Set("Prefer", strings.Join(r.prefer, ","))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	out := &response{status: resp.StatusCode, header: resp.Header, body: b}
	if resp.StatusCode >= 500 {
		return out, errServer
	}
	return out, nil
}

// decode checks the status and unmarshals the body into v (if non-nil).
func decode(res *response, v any) error {
	if res.status >= 300 {
		return mapError(res)
	}
	if v == nil || len(bytes.TrimSpace(res.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.body, v); err != nil {
		return domain.Unavailable("decode backend response", err)
	}
	return nil
}

// apiError covers both PostgREST and GoTrue error bodies.
type apiError struct {
	Code             any    `json:"code"`
	Message          string `json:"message"`
	Details          string `json:"details"`
	Hint             string `json:"hint"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	ErrorCode        string `json:"error_code"`
}

func (e apiError) code() string {
	switch v := e.Code.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return e.ErrorCode
}

func (e apiError) text() string {
	for _, s := range []string{e.Message, e.Msg, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// mapError translates an error response into the domain taxonomy.
func mapError(res *response) error {
	var e apiError
	_ = json.Unmarshal(res.body, &e)
	code := e.code()
	msg := e.text()
	if msg == "" {
		msg = http.StatusText(res.status)
	}
	cause := fmt.Errorf("status %d code %s: %s", res.status, code, msg)

	switch {
	case res.status >= 500:
		return domain.Unavailable(msg, cause)
	case code == "PGRST116", res.status == http.StatusNotFound:
		return domain.Wrap(domain.KindNotFound, "not found", cause)
	case code == "23505", res.status == http.StatusConflict && code != "23503":
		return domain.Wrap(domain.KindConflict, msg, cause)
	case code == "23503", code == "42501", res.status == http.StatusForbidden:
		// Missing parent rows and row-policy denials look the same to callers.
		return domain.Wrap(domain.KindNotFound, "not found", cause)
	case res.status == http.StatusUnauthorized, strings.HasPrefix(code, "PGRST30"):
		return domain.Wrap(domain.KindUnauthorized, msg, cause)
	case code == "22P02", code == "22003", code == "23514", code == "23502", res.status == http.StatusBadRequest,
		res.status == http.StatusUnprocessableEntity:
		return domain.Wrap(domain.KindInvalid, msg, cause)
	default:
		return domain.Unavailable(msg, cause)
	}
}
