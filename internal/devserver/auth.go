package devserver

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const minPasswordLength = 6

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyReq struct {
	Type  string `json:"type"`
	Email string `json:"email"`
	Token string `json:"token"`
}

type userResp struct {
	ID                 string     `json:"id"`
	Aud                string     `json:"aud"`
	Role               string     `json:"role"`
	Email              string     `json:"email"`
	EmailConfirmedAt   *time.Time `json:"email_confirmed_at,omitempty"`
	ConfirmationSentAt *time.Time `json:"confirmation_sent_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

type sessionResp struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int64    `json:"expires_in"`
	ExpiresAt   int64    `json:"expires_at"`
	User        userResp `json:"user"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow("signup:" + clientIP(r)) {
		writeAuthError(w, http.StatusTooManyRequests, "over_request_rate_limit", "Request rate limit reached")
		return
	}

	var req credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if !strings.Contains(req.Email, "@") {
		writeAuthError(w, http.StatusBadRequest, "validation_failed", "Unable to validate email address: invalid format")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeAuthError(w, http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters.")
		return
	}

	hash, err := hashPassword(s.cfg.Argon, req.Password)
	if err != nil {
		s.internalError(w, "hash password", err)
		return
	}

	now := s.cfg.Now()
	u := &user{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	if s.cfg.RequireConfirmation {
		u.ConfirmationToken = randomToken()
	} else {
		u.ConfirmedAt = now
	}

	err = s.repo.createUser(r.Context(), u)
	if errors.Is(err, errUserExists) {
		writeAuthError(w, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
		return
	}
	if err != nil {
		s.internalError(w, "create user", err)
		return
	}

	if s.cfg.RequireConfirmation {
		s.log.Info("confirmation token issued", "email", u.Email, "token", u.ConfirmationToken)
		resp := toUserResp(u)
		resp.ConfirmationSentAt = &now
		writeJSONStatus(w, http.StatusOK, resp)
		return
	}

	s.log.Info("user signed up", "user_id", u.ID)
	s.writeSession(w, r, u)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if grant := r.URL.Query().Get("grant_type"); grant != "password" {
		writeAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "Unsupported grant type")
		return
	}
	if !s.limiter.allow("token:" + clientIP(r)) {
		writeAuthError(w, http.StatusTooManyRequests, "over_request_rate_limit", "Request rate limit reached")
		return
	}

	var req credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
		return
	}

	u, err := s.repo.userByEmail(r.Context(), strings.TrimSpace(req.Email))
	if errors.Is(err, errUserNotFound) {
		writeAuthError(w, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
		return
	}
	if err != nil {
		s.internalError(w, "lookup user", err)
		return
	}

	ok, err := verifyPassword(req.Password, u.PasswordHash)
	if err != nil {
		s.internalError(w, "verify password", err)
		return
	}
	if !ok {
		writeAuthError(w, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
		return
	}
	if u.ConfirmedAt.IsZero() {
		writeAuthError(w, http.StatusBadRequest, "email_not_confirmed", "Email not confirmed")
		return
	}

	s.writeSession(w, r, u)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		writeAuthError(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT")
		return
	}
	if err := s.repo.deleteSession(r.Context(), claims.SessionID); err != nil {
		s.internalError(w, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		writeAuthError(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT")
		return
	}
	u, err := s.repo.userByID(r.Context(), claims.Subject)
	if errors.Is(err, errUserNotFound) {
		writeAuthError(w, http.StatusNotFound, "user_not_found", "User from sub claim in JWT does not exist")
		return
	}
	if err != nil {
		s.internalError(w, "lookup user", err)
		return
	}
	writeJSONStatus(w, http.StatusOK, toUserResp(u))
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
		return
	}
	if req.Type != "signup" || req.Token == "" {
		writeAuthError(w, http.StatusBadRequest, "validation_failed", "Verify requires type signup and a token")
		return
	}

	u, err := s.repo.confirmUser(r.Context(), strings.TrimSpace(req.Email), req.Token, s.cfg.Now())
	if errors.Is(err, errUserNotFound) {
		writeAuthError(w, http.StatusForbidden, "otp_expired", "Token has expired or is invalid")
		return
	}
	if err != nil {
		s.internalError(w, "confirm user", err)
		return
	}

	s.log.Info("user confirmed", "user_id", u.ID)
	s.writeSession(w, r, u)
}

func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, u *user) {
	now := s.cfg.Now()
	expires := now.Add(s.cfg.TokenTTL)

	sessionID, err := s.repo.createSession(r.Context(), u.ID, expires)
	if err != nil {
		s.internalError(w, "create session", err)
		return
	}
	token, exp, err := s.signer.issue(u.ID, u.Email, sessionID, now)
	if err != nil {
		s.internalError(w, "issue token", err)
		return
	}

	writeJSONStatus(w, http.StatusOK, sessionResp{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.cfg.TokenTTL / time.Second),
		ExpiresAt:   exp.Unix(),
		User:        toUserResp(u),
	})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.log.Error("request failed", "op", op, "error", err)
	writeAuthError(w, http.StatusInternalServerError, "unexpected_failure", "Internal server error")
}

func toUserResp(u *user) userResp {
	resp := userResp{
		ID:        u.ID,
		Aud:       tokenAudience,
		Role:      tokenAudience,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
	if !u.ConfirmedAt.IsZero() {
		confirmed := u.ConfirmedAt
		resp.EmailConfirmedAt = &confirmed
	}
	return resp
}

func randomToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
