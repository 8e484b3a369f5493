package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SmarTanom/sessionguard/middleware"
	"github.com/SmarTanom/sessionguard/session"
)

const maxBodyBytes = 1 << 20

// Config describes where the accounts API lives.
type Config struct {
	BaseURL      string
	LoginPath    string
	RegisterPath string
	ProfilePath  string
	ActivatePath string
	Timeout      time.Duration
	UserAgent    string
}

// Client talks to the accounts API.
type Client struct {
	http *http.Client
	base *url.URL
	cfg  Config
}

// AuthResponse is the body of a successful login or activation.
type AuthResponse struct {
	Token string
	User  session.User
}

// RegisterPayload is the sign-up request body.
type RegisterPayload struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
	Contact   string `json:"contact,omitempty"`
}

// RegisterResponse is the body of a successful sign-up.
type RegisterResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UserID  int64  `json:"user_id"`
	Email   string `json:"email"`
}

type authBody struct {
	Token string        `json:"token"`
	User  *session.User `json:"user"`
}

// New creates a Client. httpClient may be nil; its transport is wrapped so
// every request carries a request id.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend: unsupported scheme %q", base.Scheme)
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("backend: timeout must be > 0")
	}

	hc := &http.Client{}
	if httpClient != nil {
		clone := *httpClient
		hc = &clone
	}
	hc.Transport = middleware.RequestID(hc.Transport)

	return &Client{http: hc, base: base, cfg: cfg}, nil
}

// Login posts credentials and returns the issued token and user.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}
	status, data, err := c.do(ctx, http.MethodPost, c.cfg.LoginPath, body, "")
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &StatusError{StatusCode: status, Message: ExtractMessage(data)}
	}
	return decodeAuth(data)
}

// Register creates an account. Accounts start inactive; no token is issued.
func (c *Client) Register(ctx context.Context, payload RegisterPayload) (*RegisterResponse, error) {
	status, data, err := c.do(ctx, http.MethodPost, c.cfg.RegisterPath, payload, "")
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &StatusError{StatusCode: status, Message: ExtractMessage(data)}
	}

	var out RegisterResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &out, nil
}

// Activate follows an activation link and returns the session it grants.
func (c *Client) Activate(ctx context.Context, uid, token string) (*AuthResponse, error) {
	path := strings.TrimRight(c.cfg.ActivatePath, "/") + "/" + url.PathEscape(uid) + "/" + url.PathEscape(token) + "/"
	status, data, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &StatusError{StatusCode: status, Message: ExtractMessage(data)}
	}
	return decodeAuth(data)
}

// Profile fetches the user the token belongs to.
func (c *Client) Profile(ctx context.Context, token string) (session.User, error) {
	status, data, err := c.do(ctx, http.MethodGet, c.cfg.ProfilePath, nil, token)
	if err != nil {
		return session.User{}, err
	}
	if status < 200 || status > 299 {
		return session.User{}, &StatusError{StatusCode: status, Message: ExtractMessage(data)}
	}

	u, err := session.DecodeUser(string(data))
	if err != nil {
		return session.User{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return u, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = c.base.Path + "/" + strings.TrimLeft(path, "/")
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, payload any, token string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if token != "" {
		middleware.SetAuthorization(req, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, classify(ctx, err)
	}
	return resp.StatusCode, data, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

func decodeAuth(data []byte) (*AuthResponse, error) {
	var body authBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if body.Token == "" {
		return nil, fmt.Errorf("%w: missing token", ErrMalformedResponse)
	}
	if body.User == nil || body.User.IsZero() {
		return nil, fmt.Errorf("%w: missing user", ErrMalformedResponse)
	}
	return &AuthResponse{Token: body.Token, User: *body.User}, nil
}
