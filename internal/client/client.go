// Package client talks to the linkpage HTTP API. Client implements
// editor.Remote so an Editor can save straight to a server.
package client

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
	"sync"
	"time"

	"linkpage/api/internal/editor"
	"linkpage/api/internal/validate"
)

// APIError is a non-2xx response. It unwraps to the matching editor error so
// callers can use errors.Is and errors.As.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details json.RawMessage
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return editor.ErrUnauthenticated
	case e.Status == http.StatusNotFound && e.Code == "PROFILE_NOT_FOUND":
		return editor.ErrNoProfile
	case e.Status == http.StatusNotFound:
		return editor.ErrNotFound
	case e.Status == http.StatusTooManyRequests:
		return editor.ErrThrottled
	case (e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity) && e.Code == "VALIDATION_ERROR":
		fieldErr := &validate.FieldError{}
		if len(e.Details) == 0 || json.Unmarshal(e.Details, fieldErr) != nil || fieldErr.Field == "" {
			fieldErr = &validate.FieldError{Field: "request", Reason: e.Message}
		}
		return fieldErr
	}
	return editor.ErrSaveFailed
}

type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// New returns a client for the API at baseURL. A nil httpClient gets a
// client with a 15 second timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type wireProfile struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
	AvatarURL   string `json:"avatarUrl"`
	Theme       string `json:"theme"`
}

func (p wireProfile) toEditor() editor.Profile {
	return editor.Profile{
		ID:   p.ID,
		Slug: p.Slug,
		Fields: editor.Fields{
			DisplayName: p.DisplayName,
			Bio:         p.Bio,
			AvatarURL:   p.AvatarURL,
			Theme:       p.Theme,
		},
	}
}

type wireItem struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Position int    `json:"position"`
}

func (i wireItem) toEditor() editor.Item {
	return editor.Item{
		ID:       editor.RemoteID(i.ID),
		Kind:     editor.Kind(i.Kind),
		Title:    i.Title,
		Target:   i.URL,
		Position: i.Position,
	}
}

type wirePage struct {
	Profile *wireProfile `json:"profile"`
	Items   []wireItem   `json:"items"`
}

func (p wirePage) toSnapshot() editor.Snapshot {
	snapshot := editor.Snapshot{Profile: p.Profile.toEditor(), Items: make([]editor.Item, 0, len(p.Items))}
	for _, item := range p.Items {
		snapshot.Items = append(snapshot.Items, item.toEditor())
	}
	return snapshot
}

// Tokens is a signed-in session.
type Tokens struct {
	AccessToken  string `json:"accessToken" yaml:"accessToken"`
	RefreshToken string `json:"refreshToken" yaml:"refreshToken"`
	UserID       string `json:"userId" yaml:"userId"`
	UserName     string `json:"userName" yaml:"userName"`
	ExpiresAt    int64  `json:"expiresAt" yaml:"expiresAt"`
}

// SignUp creates an account and returns the verification token the server
// hands out when it cannot send mail (empty otherwise).
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (string, error) {
	var out struct {
		DevVerificationToken string `json:"devVerificationToken"`
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/signup", map[string]string{
		"email":       email,
		"password":    password,
		"displayName": displayName,
	}, &out)
	return out.DevVerificationToken, err
}

func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/verify-email", map[string]string{"token": token}, nil)
}

// SignIn stores the returned access token on the client.
func (c *Client) SignIn(ctx context.Context, email, password string) (Tokens, error) {
	var tokens Tokens
	if err := c.do(ctx, http.MethodPost, "/api/auth/signin", map[string]string{
		"email":    email,
		"password": password,
	}, &tokens); err != nil {
		return Tokens{}, err
	}
	c.SetToken(tokens.AccessToken)
	return tokens, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	var tokens Tokens
	if err := c.do(ctx, http.MethodPost, "/api/session/refresh", map[string]string{"refreshToken": refreshToken}, &tokens); err != nil {
		return Tokens{}, err
	}
	c.SetToken(tokens.AccessToken)
	return tokens, nil
}

// SlugStatus is the answer to a slug availability check.
type SlugStatus struct {
	Slug      string `json:"slug"`
	Available bool   `json:"available"`
	Reason    string `json:"error,omitempty"`
}

func (c *Client) CheckSlug(ctx context.Context, slug string) (SlugStatus, error) {
	var status SlugStatus
	err := c.do(ctx, http.MethodGet, "/api/slug/check?slug="+url.QueryEscape(slug), nil, &status)
	return status, err
}

func (c *Client) CreateProfile(ctx context.Context, slug string, fields editor.Fields) (editor.Profile, error) {
	var out wirePage
	err := c.do(ctx, http.MethodPost, "/api/profile", map[string]string{
		"slug":        slug,
		"displayName": fields.DisplayName,
		"bio":         fields.Bio,
		"avatarUrl":   fields.AvatarURL,
		"theme":       fields.Theme,
	}, &out)
	if err != nil {
		return editor.Profile{}, err
	}
	if out.Profile == nil {
		return editor.Profile{}, fmt.Errorf("%w: empty profile in response", editor.ErrSaveFailed)
	}
	return out.Profile.toEditor(), nil
}

// PublicPage fetches the page anyone can see at slug.
func (c *Client) PublicPage(ctx context.Context, slug string) (editor.Snapshot, error) {
	var out wirePage
	if err := c.do(ctx, http.MethodGet, "/api/public/"+url.PathEscape(slug), nil, &out); err != nil {
		return editor.Snapshot{}, err
	}
	if out.Profile == nil {
		return editor.Snapshot{}, editor.ErrNoProfile
	}
	return out.toSnapshot(), nil
}

func (c *Client) UpdateProfile(ctx context.Context, fields editor.Fields) (editor.Profile, error) {
	var out wirePage
	err := c.do(ctx, http.MethodPut, "/api/profile", map[string]string{
		"displayName": fields.DisplayName,
		"bio":         fields.Bio,
		"avatarUrl":   fields.AvatarURL,
		"theme":       fields.Theme,
	}, &out)
	if err != nil {
		return editor.Profile{}, err
	}
	if out.Profile == nil {
		return editor.Profile{}, editor.ErrNoProfile
	}
	return out.Profile.toEditor(), nil
}

func (c *Client) DeleteItem(ctx context.Context, id string) (bool, error) {
	var out struct {
		Removed bool `json:"removed"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/items/"+url.PathEscape(id), nil, &out); err != nil {
		return false, err
	}
	return out.Removed, nil
}

func (c *Client) CreateItem(ctx context.Context, draft editor.ItemDraft) (editor.Item, error) {
	var out struct {
		Item wireItem `json:"item"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/items", map[string]string{
		"kind":  string(draft.Kind),
		"title": draft.Title,
		"url":   draft.Target,
	}, &out); err != nil {
		return editor.Item{}, err
	}
	if out.Item.ID == "" {
		return editor.Item{}, fmt.Errorf("%w: created item has no id", editor.ErrSaveFailed)
	}
	return out.Item.toEditor(), nil
}

func (c *Client) RepositionItems(ctx context.Context, placements []editor.Placement) error {
	items := make([]map[string]any, 0, len(placements))
	for _, p := range placements {
		items = append(items, map[string]any{"id": p.ID, "position": p.Position})
	}
	return c.do(ctx, http.MethodPut, "/api/items/reorder", map[string]any{"items": items}, nil)
}

// FetchProfile returns the caller's page. A caller without a profile gets
// editor.ErrNoProfile.
func (c *Client) FetchProfile(ctx context.Context) (editor.Snapshot, error) {
	var out wirePage
	if err := c.do(ctx, http.MethodGet, "/api/profile", nil, &out); err != nil {
		return editor.Snapshot{}, err
	}
	if out.Profile == nil {
		return editor.Snapshot{}, editor.ErrNoProfile
	}
	return out.toSnapshot(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	var envelope struct {
		Code    string          `json:"code"`
		Error   string          `json:"error"`
		Details json.RawMessage `json:"details"`
	}
	apiErr := &APIError{Status: status, Message: http.StatusText(status)}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		apiErr.Code = envelope.Code
		apiErr.Details = envelope.Details
		if envelope.Error != "" {
			apiErr.Message = envelope.Error
		}
	}
	return apiErr
}

var _ editor.Remote = (*Client)(nil)

// IsAPIError reports whether err carries an HTTP error response.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
