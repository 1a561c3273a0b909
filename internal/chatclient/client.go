// Package chatclient is an HTTP client for the brandchat API together with
// a polling session that keeps a local view of one conversation.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/npezzotti/brandchat/internal/types"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("brandchat: %d %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL    *url.URL
	http       *http.Client
	senderType string
	brandId    string
	userId     string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// AsBrand makes every request act for brandId instead of as the buyer.
func AsBrand(brandId string) Option {
	return func(c *Client) {
		c.senderType = "BRAND"
		c.brandId = brandId
	}
}

// WithIdentityHeader sends userId as x-user-id. Only servers that trust
// identity headers accept it.
func WithIdentityHeader(userId string) Option {
	return func(c *Client) {
		c.userId = userId
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: 15 * time.Second, Jar: jar},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		c.http.Jar = jar
	}

	return c, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (int, error) {
	u := *c.baseURL
	u.Path += path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var r io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		r = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.senderType != "" {
		req.Header.Set("x-sender-type", c.senderType)
	}
	if c.brandId != "" {
		req.Header.Set("x-brand-id", c.brandId)
	}
	if c.userId != "" {
		req.Header.Set("x-user-id", c.userId)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.ToLower(http.StatusText(resp.StatusCode))
		}
		apiErr.StatusCode = resp.StatusCode
		return resp.StatusCode, apiErr
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

type authResponse struct {
	User types.User `json:"user"`
}

func (c *Client) Register(ctx context.Context, email, password, name string) (types.User, error) {
	var resp authResponse
	_, err := c.do(ctx, http.MethodPost, "/api/auth/register", nil, map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	}, &resp)
	return resp.User, err
}

func (c *Client) Login(ctx context.Context, email, password string) (types.User, error) {
	var resp authResponse
	_, err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	return resp.User, err
}

func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/api/auth/logout", nil, nil, nil)
	return err
}

func (c *Client) Session(ctx context.Context) (types.Session, error) {
	var sess types.Session
	_, err := c.do(ctx, http.MethodGet, "/api/auth/session", nil, nil, &sess)
	return sess, err
}

// OpenConversation resolves the conversation with brandId. created is true
// when the server had to create it.
func (c *Client) OpenConversation(ctx context.Context, brandId string) (types.Conversation, bool, error) {
	var conv types.Conversation
	status, err := c.do(ctx, http.MethodPost, "/api/conversations", nil, map[string]string{"brandId": brandId}, &conv)
	return conv, status == http.StatusCreated, err
}

func (c *Client) ListConversations(ctx context.Context) ([]types.ConversationSummary, error) {
	var convs []types.ConversationSummary
	_, err := c.do(ctx, http.MethodGet, "/api/conversations", nil, nil, &convs)
	return convs, err
}

// ListMessages returns up to limit messages after cursor. A zero limit
// uses the server default and an empty cursor starts from the beginning.
func (c *Client) ListMessages(ctx context.Context, conversationId string, limit int, cursor string) ([]types.Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var msgs []types.Message
	_, err := c.do(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(conversationId)+"/messages", q, nil, &msgs)
	return msgs, err
}

// SendMessage posts content. Repeating a call with the same
// clientMessageId returns the stored message with replayed set.
func (c *Client) SendMessage(ctx context.Context, conversationId, content, clientMessageId string) (types.Message, bool, error) {
	var msg types.Message
	body := map[string]string{"content": content}
	if clientMessageId != "" {
		body["clientMessageId"] = clientMessageId
	}
	status, err := c.do(ctx, http.MethodPost, "/api/conversations/"+url.PathEscape(conversationId)+"/messages", nil, body, &msg)
	return msg, status == http.StatusOK, err
}

func (c *Client) MarkRead(ctx context.Context, conversationId string) (time.Time, error) {
	var receipt types.ReadReceipt
	_, err := c.do(ctx, http.MethodPost, "/api/conversations/"+url.PathEscape(conversationId)+"/read", nil, nil, &receipt)
	return receipt.ReadAt, err
}

func (c *Client) Banners(ctx context.Context) ([]types.Banner, error) {
	var banners []types.Banner
	_, err := c.do(ctx, http.MethodGet, "/api/banners", nil, nil, &banners)
	return banners, err
}
