// Package api is the HTTP gateway to the remote OKR service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"okr-go/internal/okr"
)

// TokenSource yields the bearer token of the current session, or "" when
// nobody is logged in.
type TokenSource interface {
	Token() (string, error)
}

// Client issues one request per call: no retry, no backoff.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     okr.Logger
}

var (
	_ okr.Gateway       = (*Client)(nil)
	_ okr.Authenticator = (*Client)(nil)
)

// NewClient returns a client for the API rooted at baseURL. A nil
// httpClient uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client, tokens TokenSource, logger okr.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = okr.NewNopLogger()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger,
	}
}

type request struct {
	op       string
	method   string
	path     string
	body     any
	auth     bool
	fallback string
}

// do sends req and decodes a successful response body into out.
func (c *Client) do(ctx context.Context, req request, out any) error {
	var token string
	if req.auth {
		if c.tokens != nil {
			t, err := c.tokens.Token()
			if err != nil {
				return fmt.Errorf("reading session: %w", err)
			}
			token = t
		}
		if token == "" {
			return okr.ErrNotAuthenticated
		}
	}

	var body io.Reader
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", req.fallback, err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", req.fallback, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("api request", "op", req.op, "method", req.method, "path", req.path)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%s: %w", req.fallback, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", req.fallback, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Op: req.op, StatusCode: resp.StatusCode, Message: req.fallback}
		var eb errorBody
		if json.Unmarshal(respBody, &eb) == nil && strings.TrimSpace(eb.Error) != "" {
			apiErr.Message = eb.Error
		}
		c.logger.Warn("api error", "op", req.op, "status", resp.StatusCode, "message", apiErr.Message)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", req.fallback, err)
	}
	return nil
}

func objectivePath(id string) string { return "/okrs/" + url.PathEscape(id) }
func keyResultPath(id string) string { return "/key-results/" + url.PathEscape(id) }

// Register creates an account. No token is needed.
func (c *Client) Register(ctx context.Context, in okr.RegisterInput) (*okr.AuthResponse, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var out okr.AuthResponse
	err := c.do(ctx, request{op: "register", method: http.MethodPost, path: "/auth/register", body: in, fallback: msgRegister}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a token. No token is needed.
func (c *Client) Login(ctx context.Context, in okr.LoginInput) (*okr.AuthResponse, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var out okr.AuthResponse
	err := c.do(ctx, request{op: "login", method: http.MethodPost, path: "/auth/login", body: in, fallback: msgLogin}, &out)
	if err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, errors.New(msgLogin + ": response carried no token")
	}
	return &out, nil
}

// ListObjectives fetches every objective with key results and comments.
func (c *Client) ListObjectives(ctx context.Context) ([]okr.Objective, error) {
	var out []okr.Objective
	err := c.do(ctx, request{op: "list_objectives", method: http.MethodGet, path: "/okrs", auth: true, fallback: msgListObjectives}, &out)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []okr.Objective{}
	}
	return out, nil
}

// CreateObjective creates an objective without key results.
func (c *Client) CreateObjective(ctx context.Context, in okr.ObjectiveInput) (*okr.Objective, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var out okr.Objective
	err := c.do(ctx, request{op: "create_objective", method: http.MethodPost, path: "/okrs", body: in, auth: true, fallback: msgCreateObjective}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateObjective replaces the editable fields of objective id.
func (c *Client) UpdateObjective(ctx context.Context, id string, in okr.ObjectiveInput) (*okr.Objective, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var out okr.Objective
	err := c.do(ctx, request{op: "update_objective", method: http.MethodPut, path: objectivePath(id), body: in, auth: true, fallback: msgUpdateObjective}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteObjective deletes objective id and its key results.
func (c *Client) DeleteObjective(ctx context.Context, id string) error {
	return c.do(ctx, request{op: "delete_objective", method: http.MethodDelete, path: objectivePath(id), auth: true, fallback: msgDeleteObjective}, nil)
}

// CreateKeyResult adds a key result to objective okrID.
func (c *Client) CreateKeyResult(ctx context.Context, okrID string, in okr.KeyResultInput) (*okr.KeyResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var out okr.KeyResult
	err := c.do(ctx, request{op: "create_key_result", method: http.MethodPost, path: objectivePath(okrID) + "/key-results", body: in, auth: true, fallback: msgCreateKeyResult}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateKeyResult replaces key result id.
func (c *Client) UpdateKeyResult(ctx context.Context, id string, in okr.KeyResultInput) (*okr.KeyResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var out okr.KeyResult
	err := c.do(ctx, request{op: "update_key_result", method: http.MethodPut, path: keyResultPath(id), body: in, auth: true, fallback: msgUpdateKeyResult}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteKeyResult deletes key result id.
func (c *Client) DeleteKeyResult(ctx context.Context, id string) error {
	return c.do(ctx, request{op: "delete_key_result", method: http.MethodDelete, path: keyResultPath(id), auth: true, fallback: msgDeleteKeyResult}, nil)
}

// ListComments fetches the comments of objective okrID.
func (c *Client) ListComments(ctx context.Context, okrID string) ([]okr.Comment, error) {
	var out []okr.Comment
	err := c.do(ctx, request{op: "list_comments", method: http.MethodGet, path: objectivePath(okrID) + "/comments", auth: true, fallback: msgListComments}, &out)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []okr.Comment{}
	}
	return out, nil
}

// CreateComment posts a comment on objective okrID.
func (c *Client) CreateComment(ctx context.Context, okrID string, in okr.CommentInput) (*okr.Comment, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var out okr.Comment
	err := c.do(ctx, request{op: "create_comment", method: http.MethodPost, path: objectivePath(okrID) + "/comments", body: in, auth: true, fallback: msgCreateComment}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListNotifications fetches the notifications of the session user.
func (c *Client) ListNotifications(ctx context.Context) ([]okr.Notification, error) {
	var out []okr.Notification
	err := c.do(ctx, request{op: "list_notifications", method: http.MethodGet, path: "/okrs/notifications", auth: true, fallback: msgListNotification}, &out)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []okr.Notification{}
	}
	return out, nil
}
