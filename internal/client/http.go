package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskboard-api/internal/domain"
)

// APIError is a non-2xx response from the server, carrying the sanitized
// message from the response body when one was provided.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// Client is an HTTP client for the task API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// New creates a Client for the API at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetToken sets the access token sent with subsequent requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Token returns the access token currently in use, if any.
func (c *Client) Token() string {
	return c.token
}

// LoginResult is the decoded response of a successful login.
type LoginResult struct {
	AccessToken string      `json:"access_token"`
	User        domain.User `json:"user"`
}

// Login authenticates with the server and stores the returned token on
// the client for subsequent requests.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}

	var result LoginResult
	if err := c.do(ctx, http.MethodPost, "/login", body, &result); err != nil {
		return nil, err
	}

	c.token = result.AccessToken
	return &result, nil
}

// Logout tells the server to end the session and clears the local token.
// The token is cleared even if the request fails; the caller is logging
// out either way.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/logout", nil, nil)
	c.token = ""
	return err
}

// CurrentUser fetches the authenticated user. The endpoint returns the
// user as a bare object, not wrapped in a data envelope.
func (c *Client) CurrentUser(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, http.MethodGet, "/user", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListTasks fetches one page of tasks.
func (c *Client) ListTasks(ctx context.Context, page, limit int) (*Page, error) {
	path := fmt.Sprintf("/tasks?page=%d&limit=%d", page, limit)

	var envelope struct {
		Data []domain.Task `json:"data"`
		Meta PageMeta      `json:"meta"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}

	return &Page{Tasks: envelope.Data, Meta: envelope.Meta}, nil
}

// GetTask fetches a single task.
func (c *Client) GetTask(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	var envelope struct {
		Data domain.Task `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/tasks/"+taskID.String(), nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// CreateTask creates a task and returns the stored version.
func (c *Client) CreateTask(ctx context.Context, title, description string) (*domain.Task, error) {
	body := map[string]string{"title": title, "description": description}

	var envelope struct {
		Data domain.Task `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/tasks", body, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// UpdateTaskStatus changes a task's status and returns the stored version.
func (c *Client) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status domain.TaskStatus) (*domain.Task, error) {
	body := map[string]string{"status": string(status)}

	var envelope struct {
		Data domain.Task `json:"data"`
	}
	path := "/tasks/" + taskID.String() + "/status"
	if err := c.do(ctx, http.MethodPatch, path, body, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+taskID.String(), nil, nil)
}

// do runs one request. Non-2xx responses become an *APIError using the
// server's error message when the body carries one, a generic message
// otherwise; transport failures are returned as-is.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{
		Status:  resp.StatusCode,
		Message: "request failed",
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return apiErr
	}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
	}

	return apiErr
}
