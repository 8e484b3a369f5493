// Package backendtest is an in-process fake of the accounts API. It mirrors
// the real backend's routes, status codes and error bodies closely enough for
// the Guard's tests and the demo backend, and counts every call per endpoint.
package backendtest

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/SmarTanom/sessionguard/middleware"
	"github.com/SmarTanom/sessionguard/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
)

// Endpoint names accepted by [Server.Calls].
const (
	EndpointLogin    = "login"
	EndpointRegister = "register"
	EndpointActivate = "activate"
	EndpointProfile  = "profile"
)

type account struct {
	user       session.User
	password   string
	activation string
}

type forcedResponse struct {
	status int
	body   string
}

// Server is the fake accounts API.
type Server struct {
	mu            sync.Mutex
	accounts      map[string]*account
	tokens        map[string]string
	calls         map[string]int
	nextID        int64
	delay         time.Duration
	loginOverride *forcedResponse
	lastRequestID string

	router chi.Router
}

// Option configures a [Server].
type Option func(*options)

type options struct {
	loginRatePerMinute int
	delay              time.Duration
}

// WithLoginRateLimit limits login calls per client IP per minute.
func WithLoginRateLimit(perMinute int) Option {
	return func(o *options) { o.loginRatePerMinute = perMinute }
}

// WithDelay makes every handler sleep before answering (or until the client
// gives up).
func WithDelay(d time.Duration) Option {
	return func(o *options) { o.delay = d }
}

// New builds the fake API.
func New(opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		accounts: make(map[string]*account),
		tokens:   make(map[string]string),
		calls:    make(map[string]int),
		delay:    o.delay,
	}

	r := chi.NewRouter()
	r.Use(s.observe)
	r.Route("/api/accounts", func(r chi.Router) {
		login := r.With()
		if o.loginRatePerMinute > 0 {
			login = r.With(httprate.Limit(
				o.loginRatePerMinute,
				time.Minute,
				httprate.WithKeyByRealIP(),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeJSON(w, http.StatusTooManyRequests, map[string]any{"detail": "Request was throttled."})
				}),
			))
		}
		login.Post("/login/", s.count(EndpointLogin, s.handleLogin))
		r.Post("/register/", s.count(EndpointRegister, s.handleRegister))
		r.Get("/profile/", s.count(EndpointProfile, s.handleProfile))
		r.Get("/activate/{uid}/{token}/", s.count(EndpointActivate, s.handleActivate))
	})
	s.router = r

	return s
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// AddUser seeds an account. Inactive accounts get an activation link.
func (s *Server) AddUser(u session.User, password string, active bool) session.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(u, password, active).user
}

// ActivationLink returns the uid/token pair that activates email.
func (s *Server) ActivationLink(email string) (string, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[strings.ToLower(email)]
	if !ok || acc.activation == "" {
		return "", "", false
	}
	return encodeUID(acc.user.ID), acc.activation, true
}

// IssueToken returns a valid token for email, creating the account's token
// if needed.
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenLocked(strings.ToLower(email))
}

// RevokeTokens invalidates every issued token.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]string)
}

// UpdateUser replaces the stored user record for email.
func (s *Server) UpdateUser(email string, mutate func(*session.User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[strings.ToLower(email)]; ok {
		mutate(&acc.user)
	}
}

// ForceLoginResponse makes every login answer with status and the raw body
// until [Server.ClearLoginResponse] is called.
func (s *Server) ForceLoginResponse(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginOverride = &forcedResponse{status: status, body: body}
}

// ClearLoginResponse restores normal login handling.
func (s *Server) ClearLoginResponse() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginOverride = nil
}

// Calls returns how many requests reached endpoint.
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// LastRequestID returns the X-Request-ID of the most recent request.
func (s *Server) LastRequestID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRequestID
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.lastRequestID = r.Header.Get(middleware.HeaderRequestID)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) count(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[endpoint]++
		delay := s.delay
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		h(w, r)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	override := s.loginOverride
	s.mu.Unlock()
	if override != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(override.status)
		_, _ = w.Write([]byte(override.body))
		return
	}

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "JSON parse error."})
		return
	}
	if req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"email": []string{"This field is required."}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[strings.ToLower(req.Email)]
	if !ok || acc.password != req.Password {
		writeJSON(w, http.StatusBadRequest, map[string]any{"non_field_errors": []string{"Invalid credentials."}})
		return
	}
	if !acc.user.IsActive {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "Account is not active. Please verify your email first.",
		})
		return
	}
	if !acc.user.EmailVerified {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "Email not verified. Please check your email for verification link.",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   s.tokenLocked(strings.ToLower(req.Email)),
		"user":    acc.user,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		Name      string `json:"name"`
		Password  string `json:"password"`
		Password2 string `json:"password2"`
		Contact   string `json:"contact"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "JSON parse error."})
		return
	}
	if req.Password != req.Password2 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"non_field_errors": []string{"Passwords don't match"}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(req.Email)
	if _, exists := s.accounts[email]; exists {
		writeJSON(w, http.StatusBadRequest, map[string]any{"email": []string{"user with this email already exists."}})
		return
	}

	acc := s.addLocked(session.User{Email: email, Name: req.Name, Contact: req.Contact}, req.Password, false)
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Registration successful! Please check your email to activate your account.",
		"user_id": acc.user.ID,
		"email":   acc.user.Email,
	})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	token := chi.URLParam(r, "token")

	s.mu.Lock()
	defer s.mu.Unlock()

	for email, acc := range s.accounts {
		if encodeUID(acc.user.ID) != uid || acc.activation == "" || acc.activation != token {
			continue
		}
		acc.user.IsActive = true
		acc.user.EmailVerified = true
		acc.activation = ""
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Account activated successfully!",
			"token":   s.tokenLocked(email),
			"user":    acc.user,
		})
		return
	}

	writeJSON(w, http.StatusBadRequest, map[string]any{
		"success": false,
		"message": "Activation link is invalid or has expired.",
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.TokenFromHeader(r.Header.Get("Authorization"))
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Authentication credentials were not provided."})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.tokens[token]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Invalid token."})
		return
	}
	writeJSON(w, http.StatusOK, s.accounts[email].user)
}

func (s *Server) addLocked(u session.User, password string, active bool) *account {
	s.nextID++
	u.ID = s.nextID
	u.Email = strings.ToLower(u.Email)
	u.IsActive = active
	u.EmailVerified = active

	acc := &account{user: u, password: password}
	if !active {
		acc.activation = uuid.NewString()
	}
	s.accounts[u.Email] = acc
	return acc
}

func (s *Server) tokenLocked(email string) string {
	for tok, owner := range s.tokens {
		if owner == email {
			return tok
		}
	}
	tok := strings.ReplaceAll(uuid.NewString(), "-", "")
	s.tokens[tok] = email
	return tok
}

func encodeUID(id int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
