// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package gotrue implements auth.Backend over the GoTrue REST API used by
// Supabase Auth.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// DefaultTimeout bounds a single backend request.
const DefaultTimeout = 10 * time.Second

const (
	pathSignUp = "/auth/v1/signup"
	pathToken  = "/auth/v1/token"
	pathLogout = "/auth/v1/logout"
	pathUser   = "/auth/v1/user"

	opGetUser = "get_user"
	opRefresh = "refresh"

	// maxBody caps how much of a response is read.
	maxBody = 1 << 20
)

// Client talks to a GoTrue server. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout. A client passed to WithHTTPClient
// is copied rather than modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClock overrides time.Now for expires_in arithmetic.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Client for the project at baseURL using the public apiKey.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, oops.Code("GOTRUE_INVALID_URL").
			With("url", baseURL).
			Errorf("backend url must be absolute, got %q", baseURL)
	}
	if apiKey == "" {
		return nil, oops.Code("GOTRUE_MISSING_API_KEY").Errorf("backend api key is required")
	}
	c := &Client{
		baseURL:    u,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c, nil
}

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type sessionResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	User         *userResponse `json:"user"`
}

// errorResponse covers both the current and the legacy GoTrue error shapes.
type errorResponse struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
	Error            string `json:"error"`
	ErrorCode        string `json:"error_code"`
}

func (e errorResponse) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SignUp implements auth.Backend.
func (c *Client) SignUp(ctx context.Context, creds auth.Credentials) error {
	return c.do(ctx, auth.OpSignUp, http.MethodPost, pathSignUp, nil, "",
		credentialsBody{Email: creds.Email, Password: creds.Password}, nil)
}

// SignInWithPassword implements auth.Backend.
func (c *Client) SignInWithPassword(ctx context.Context, creds auth.Credentials) (*auth.Session, error) {
	var resp sessionResponse
	err := c.do(ctx, auth.OpSignIn, http.MethodPost, pathToken, url.Values{"grant_type": {"password"}}, "",
		credentialsBody{Email: creds.Email, Password: creds.Password}, &resp)
	if err != nil {
		return nil, err
	}
	return c.toSession(auth.OpSignIn, resp)
}

// SignOut implements auth.Backend.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, auth.OpSignOut, http.MethodPost, pathLogout, nil, accessToken, nil, nil)
}

// GetUser implements auth.Backend.
func (c *Client) GetUser(ctx context.Context, accessToken string) (auth.Identity, error) {
	var resp userResponse
	if err := c.do(ctx, opGetUser, http.MethodGet, pathUser, nil, accessToken, nil, &resp); err != nil {
		return auth.Identity{}, err
	}
	return toIdentity(opGetUser, &resp)
}

// Refresh implements auth.Backend.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*auth.Session, error) {
	var resp sessionResponse
	err := c.do(ctx, opRefresh, http.MethodPost, pathToken, url.Values{"grant_type": {"refresh_token"}}, "",
		refreshBody{RefreshToken: refreshToken}, &resp)
	if err != nil {
		return nil, err
	}
	return c.toSession(opRefresh, resp)
}

func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, bearer string, in, out any) error {
	endpoint := c.baseURL.JoinPath(path)
	endpoint.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return oops.Code(auth.CodeBackendProtocol).With("operation", operation).Wrap(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return oops.Code(auth.CodeBackendProtocol).With("operation", operation).Wrap(err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return auth.Unreachable(operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return auth.Unreachable(operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(operation, resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return oops.Code(auth.CodeBackendProtocol).
			With("operation", operation).
			With("status", resp.StatusCode).
			Wrap(err)
	}
	return nil
}

// decodeError turns a failed response into an auth error. Server errors
// without a readable message are treated as the backend being unavailable.
func decodeError(operation string, status int, data []byte) error {
	var body errorResponse
	decoded := json.Unmarshal(data, &body) == nil
	msg := body.text()
	if status >= http.StatusInternalServerError && (!decoded || msg == "") {
		return oops.Code(auth.CodeBackendUnreachable).
			With("operation", operation).
			With("status", status).
			Errorf("backend returned %d", status)
	}
	return auth.Rejected(status, body.ErrorCode, msg)
}

func (c *Client) toSession(operation string, resp sessionResponse) (*auth.Session, error) {
	if resp.AccessToken == "" {
		return nil, oops.Code(auth.CodeBackendProtocol).
			With("operation", operation).
			Errorf("response has no access token")
	}

	var claims accessClaims
	_, _, claimsErr := jwt.NewParser().ParseUnverified(resp.AccessToken, &claims)

	sess := &auth.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	switch {
	case resp.ExpiresAt > 0:
		sess.ExpiresAt = time.Unix(resp.ExpiresAt, 0).UTC()
	case resp.ExpiresIn > 0:
		sess.ExpiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	case claimsErr == nil && claims.ExpiresAt != nil:
		sess.ExpiresAt = claims.ExpiresAt.UTC()
	}

	user := resp.User
	if user == nil && claimsErr == nil {
		user = &userResponse{ID: claims.Subject, Email: claims.Email}
	}
	identity, err := toIdentity(operation, user)
	if err != nil {
		return nil, err
	}
	sess.Identity = identity
	return sess, nil
}

func toIdentity(operation string, user *userResponse) (auth.Identity, error) {
	if user == nil {
		return auth.Identity{}, oops.Code(auth.CodeBackendProtocol).
			With("operation", operation).
			Errorf("response has no user")
	}
	id, err := uuid.Parse(user.ID)
	if err != nil {
		return auth.Identity{}, oops.Code(auth.CodeBackendProtocol).
			With("operation", operation).
			With("user_id", user.ID).
			Wrap(err)
	}
	return auth.Identity{UserID: id.String(), Email: user.Email}, nil
}

var _ auth.Backend = (*Client)(nil)
