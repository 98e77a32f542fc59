// Package apiclient talks to the chat REST API on behalf of cmd/client.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"employee_directory/internal/domain"
	apperrors "employee_directory/pkg/errors"
	"employee_directory/pkg/logger"
)

// LoginResponse mirrors the server's login body.
type LoginResponse struct {
	Employee    domain.Employee `json:"employee"`
	AccessToken string          `json:"access_token"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// Client implements chatclient.API over HTTP. Login stores the access token
// used by every later call.
type Client struct {
	baseURL string
	http    *http.Client
	log     logger.Logger

	mu    sync.RWMutex
	token string
}

func New(baseURL string, log logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Identity is the chat identity of the logged-in employee.
func (r *LoginResponse) Identity() domain.Identity {
	return domain.Identity{
		UserID:      r.Employee.ID,
		Email:       r.Employee.Email,
		DisplayName: r.Employee.DisplayName,
	}
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", body, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.AccessToken)
	return &resp, nil
}

func (c *Client) ListGroups(ctx context.Context) ([]domain.Group, error) {
	var groups []domain.Group
	if err := c.do(ctx, http.MethodGet, "/api/v1/groups", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (c *Client) CreateGroup(ctx context.Context, req domain.CreateGroupRequest) (*domain.Group, error) {
	var g domain.Group
	if err := c.do(ctx, http.MethodPost, "/api/v1/groups", req, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) MarkRead(ctx context.Context, groupID uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/api/v1/groups/"+groupID.String()+"/read", nil, nil)
}

func (c *Client) ListMessages(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]domain.Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var msgs []domain.Message
	path := "/api/v1/groups/" + groupID.String() + "/messages?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) CreateMessage(ctx context.Context, groupID uuid.UUID, req domain.CreateMessageRequest) (*domain.Message, error) {
	var m domain.Message
	if err := c.do(ctx, http.MethodPost, "/api/v1/groups/"+groupID.String()+"/messages", req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) UpdateMessage(ctx context.Context, messageID int64, content string) (*domain.Message, error) {
	var m domain.Message
	path := "/api/v1/messages/" + strconv.FormatInt(messageID, 10)
	if err := c.do(ctx, http.MethodPatch, path, domain.UpdateMessageRequest{Content: content}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageID int64) (*domain.Message, error) {
	var m domain.Message
	path := "/api/v1/messages/" + strconv.FormatInt(messageID, 10)
	if err := c.do(ctx, http.MethodDelete, path, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		err := decodeError(resp)
		c.log.Debug("API request failed", "method", method, "path", path, "status", resp.StatusCode, "error", err)
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// decodeError turns an error response into an error wrapping the status
// sentinel, plus the domain sentinel when the message names one, so callers
// can use errors.Is.
func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}

	status := apperrors.FromHTTPStatus(resp.StatusCode)
	for _, known := range domainErrors {
		if body.Error == known.Error() {
			return fmt.Errorf("%w: %w", known, status)
		}
	}
	if body.Error == "" || body.Error == status.Error() {
		return status
	}
	return fmt.Errorf("%s: %w", body.Error, status)
}

var domainErrors = []error{
	apperrors.ErrNotMember,
	apperrors.ErrNotSender,
	apperrors.ErrMessageDeleted,
	apperrors.ErrMessageNotFound,
	apperrors.ErrGroupNotFound,
	apperrors.ErrEmptyMessage,
	apperrors.ErrContentTooLong,
	apperrors.ErrInvalidCredentials,
	apperrors.ErrRateLimited,
}
