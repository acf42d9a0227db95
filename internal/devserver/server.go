package devserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Config controls a Server. Zero fields are replaced by DefaultConfig values.
type Config struct {
	// AnonKey must be sent by clients in the apikey header.
	AnonKey  string
	TokenTTL time.Duration
	// RequireConfirmation withholds a session at sign-up until the
	// account is verified with the logged confirmation token.
	RequireConfirmation bool
	SignInRate          rate.Limit
	SignInBurst         int
	Argon               ArgonParams
	Logger              *slog.Logger
	Now                 func() time.Time
}

// DefaultConfig returns the settings used by cmd/vaultx-devserver.
func DefaultConfig() Config {
	return Config{
		AnonKey:     "vaultx-dev-anon-key",
		TokenTTL:    time.Hour,
		SignInRate:  rate.Every(time.Second),
		SignInBurst: 5,
		Argon:       DefaultArgon,
		Logger:      slog.Default(),
		Now:         time.Now,
	}
}

// Server serves the /auth/v1 and /rest/v1 endpoints.
type Server struct {
	cfg     Config
	repo    *repo
	signer  *signer
	limiter *multiLimiter
	log     *slog.Logger
	mux     *http.ServeMux
}

// New creates a server over a migrated database.
func New(db *DB, cfg Config) (*Server, error) {
	def := DefaultConfig()
	if cfg.AnonKey == "" {
		cfg.AnonKey = def.AnonKey
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = def.TokenTTL
	}
	if cfg.SignInRate == 0 {
		cfg.SignInRate = def.SignInRate
	}
	if cfg.SignInBurst <= 0 {
		cfg.SignInBurst = def.SignInBurst
	}
	if cfg.Argon == (ArgonParams{}) {
		cfg.Argon = def.Argon
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}

	sig, err := newSigner(cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		repo:    &repo{db: db},
		signer:  sig,
		limiter: newMultiLimiter(cfg.SignInRate, cfg.SignInBurst, 10*time.Minute),
		log:     cfg.Logger,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /auth/v1/signup", s.handleSignUp)
	s.mux.HandleFunc("POST /auth/v1/token", s.handleToken)
	s.mux.HandleFunc("POST /auth/v1/logout", s.handleLogout)
	s.mux.HandleFunc("GET /auth/v1/user", s.handleUser)
	s.mux.HandleFunc("POST /auth/v1/verify", s.handleVerify)

	s.mux.HandleFunc("GET /rest/v1/vault_items", s.handleListItems)
	s.mux.HandleFunc("POST /rest/v1/vault_items", s.handleInsertItems)
	s.mux.HandleFunc("DELETE /rest/v1/vault_items", s.handleDeleteItems)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("request", "method", r.Method, "path", r.URL.Path)
	if r.URL.Path != "/health" && r.Header.Get("apikey") != s.cfg.AnonKey {
		writeJSONStatus(w, http.StatusUnauthorized, map[string]string{"message": "Invalid API key"})
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

var (
	errMissingBearer  = errors.New("missing bearer token")
	errSessionRevoked = errors.New("session revoked")
)

// authenticate validates the bearer token and that its session has not
// been logged out.
func (s *Server) authenticate(r *http.Request) (*Claims, error) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return nil, errMissingBearer
	}
	claims, err := s.signer.parse(strings.TrimPrefix(h, "Bearer "))
	if err != nil {
		return nil, err
	}

	active, err := s.repo.sessionActive(r.Context(), claims.SessionID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, errSessionRevoked
	}
	return claims, nil
}

// authError is the GoTrue error body.
type authError struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code"`
	Msg       string `json:"msg"`
}

func writeAuthError(w http.ResponseWriter, status int, code, msg string) {
	writeJSONStatus(w, status, authError{Code: status, ErrorCode: code, Msg: msg})
}

// restError is the PostgREST error body.
type restError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeRestError(w http.ResponseWriter, status int, code, msg string) {
	writeJSONStatus(w, status, restError{Code: code, Message: msg})
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
