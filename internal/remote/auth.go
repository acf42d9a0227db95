package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/illarion/vaultx/internal/identity"
)

type userJSON struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
}

type sessionJSON struct {
	AccessToken string   `json:"access_token"`
	ExpiresAt   int64    `json:"expires_at"`
	ExpiresIn   int64    `json:"expires_in"`
	User        userJSON `json:"user"`
}

// authErrorJSON covers both GoTrue error shapes
type authErrorJSON struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (u userJSON) toUser() identity.User {
	user := identity.User{ID: u.ID, Email: u.Email}
	if u.EmailConfirmedAt != nil {
		user.ConfirmedAt = *u.EmailConfirmedAt
	}
	return user
}

func (s sessionJSON) toSession(now time.Time) *identity.Session {
	expires := time.Unix(s.ExpiresAt, 0)
	if s.ExpiresAt == 0 {
		expires = now.Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	if exp, ok := tokenExpiry(s.AccessToken); ok && exp.Before(expires) {
		expires = exp
	}
	return &identity.Session{AccessToken: s.AccessToken, ExpiresAt: expires, User: s.User.toUser()}
}

// tokenExpiry reads exp from a JWT without verifying it. The client has
// no key to verify with; the server does that.
func tokenExpiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// SignUp creates an account. The session is nil when the server requires
// email confirmation first.
func (c *Client) SignUp(ctx context.Context, email, password string) (*identity.User, *identity.Session, error) {
	status, body, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body:   credentials{Email: email, Password: password},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("sign-up request failed: %w", err)
	}
	if !success(status) {
		return nil, nil, authError(status, body)
	}

	var sess sessionJSON
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, nil, fmt.Errorf("failed to decode sign-up response: %w", err)
	}
	if sess.AccessToken == "" {
		var u userJSON
		if err := json.Unmarshal(body, &u); err != nil {
			return nil, nil, fmt.Errorf("failed to decode sign-up response: %w", err)
		}
		user := u.toUser()
		c.log.Info("sign-up pending confirmation", "user_id", user.ID)
		return &user, nil, nil
	}

	session := sess.toSession(time.Now())
	c.adopt(session)
	return &session.User, session, nil
}

// SignInWithPassword authenticates and adopts the returned session
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	status, body, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   credentials{Email: email, Password: password},
	})
	if err != nil {
		return nil, fmt.Errorf("sign-in request failed: %w", err)
	}
	if !success(status) {
		return nil, authError(status, body)
	}

	var sess sessionJSON
	if err := json.Unmarshal(body, &sess); err != nil || sess.AccessToken == "" {
		return nil, fmt.Errorf("failed to decode sign-in response: %w", errors.Join(err, identity.ErrNoSession))
	}

	session := sess.toSession(time.Now())
	c.adopt(session)
	return session, nil
}

// SignOut revokes the session on the server when possible and always
// forgets it locally
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()

	c.forgetPersisted()
	if session == nil {
		return nil
	}

	var remoteErr error
	status, body, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		bearer: session.AccessToken,
	})
	switch {
	case err != nil:
		remoteErr = fmt.Errorf("sign-out request failed: %w", err)
	case !success(status) && status != http.StatusUnauthorized:
		remoteErr = authError(status, body)
	}

	c.Emit(identity.Event{Kind: identity.SignedOut})
	return remoteErr
}

// GetSession returns the current session, or nil if there is none or it
// has expired
func (c *Client) GetSession(context.Context) (*identity.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Expired(time.Now()) {
		return nil, nil
	}
	s := *c.session
	return &s, nil
}

// GetUser asks the server who the current token belongs to
func (c *Client) GetUser(ctx context.Context) (*identity.User, error) {
	token, err := c.accessToken()
	if err != nil {
		return nil, identity.ErrNoSession
	}

	status, body, err := c.do(ctx, request{method: http.MethodGet, path: "/auth/v1/user", bearer: token})
	if err != nil {
		return nil, fmt.Errorf("user request failed: %w", err)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, identity.ErrNoSession
	}
	if !success(status) {
		return nil, authError(status, body)
	}

	var u userJSON
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	user := u.toUser()
	return &user, nil
}

// Verify confirms a pending sign-up with the token from the confirmation
// email. The session the server returns is not adopted.
func (c *Client) Verify(ctx context.Context, email, token string) (*identity.User, error) {
	status, body, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/verify",
		body: map[string]string{
			"type":  "signup",
			"email": email,
			"token": token,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("verify request failed: %w", err)
	}
	if !success(status) {
		return nil, authError(status, body)
	}

	var sess sessionJSON
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode verify response: %w", err)
	}
	user := sess.User.toUser()
	return &user, nil
}

// Restore adopts a session persisted by an earlier run, emitting
// SignedIn. Expired or unreadable entries are discarded.
func (c *Client) Restore(context.Context) (*identity.Session, error) {
	if c.tokens == nil {
		return nil, nil
	}
	raw, err := c.tokens.Get(c.URL())
	if err != nil {
		c.log.Debug("no persisted session", "error", err)
		return nil, nil
	}

	var session identity.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil || session.AccessToken == "" {
		c.forgetPersisted()
		return nil, nil
	}
	if session.Expired(time.Now()) {
		c.forgetPersisted()
		return nil, nil
	}

	c.adopt(&session)
	return &session, nil
}

// HasPersisted reports whether a session is stored for this URL
func (c *Client) HasPersisted() bool {
	if c.tokens == nil {
		return false
	}
	_, err := c.tokens.Get(c.URL())
	return err == nil
}

func (c *Client) adopt(session *identity.Session) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	if c.tokens != nil {
		if raw, err := json.Marshal(session); err == nil {
			if err := c.tokens.Set(c.URL(), string(raw)); err != nil {
				c.log.Warn("failed to persist session", "error", err)
			}
		}
	}
	c.Emit(identity.Event{Kind: identity.SignedIn, Session: session})
}

func (c *Client) forgetPersisted() {
	if c.tokens == nil {
		return
	}
	if err := c.tokens.Delete(c.URL()); err != nil {
		c.log.Debug("failed to delete persisted session", "error", err)
	}
}

// accessToken returns the current bearer token or identity.ErrNoSession
// if the session is missing or past its expiry
func (c *Client) accessToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Expired(time.Now()) {
		return "", identity.ErrNoSession
	}
	return c.session.AccessToken, nil
}

func authError(status int, body []byte) error {
	var e authErrorJSON
	_ = json.Unmarshal(body, &e)

	code := e.ErrorCode
	msg := e.Msg
	if msg == "" {
		msg = e.ErrorDescription
	}
	if code == "" {
		code = e.Error
	}

	switch {
	case status == http.StatusTooManyRequests || code == "over_request_rate_limit":
		return identity.ErrRateLimited
	case code == "invalid_credentials" || strings.EqualFold(msg, "Invalid login credentials"):
		return identity.ErrInvalidCredentials
	case code == "email_not_confirmed" || strings.EqualFold(msg, "Email not confirmed"):
		return identity.ErrEmailNotConfirmed
	case code == "user_already_exists" || strings.EqualFold(msg, "User already registered"):
		return identity.ErrUserExists
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Status: status, Code: code, Message: msg}
}
