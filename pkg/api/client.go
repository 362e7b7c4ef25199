package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hola0123/z-study-chat/pkg/chat"
)

// Client talks to the chat backend. It is safe for concurrent use; all
// blocking calls take a context.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

type ClientOption func(*Client)

func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(baseURL string, options ...ClientOption) *Client {
	ret := &Client{
		baseURL: baseURL,
		// streams stay open well past any sane request timeout,
		// cancellation is the caller's job via ctx
		httpClient: &http.Client{Timeout: 0},
		logger:     log.Logger,
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// CompletionStream starts a completion and returns the raw SSE body. The
// caller owns the body and must close it.
func (c *Client) CompletionStream(ctx context.Context, req *StreamRequest) (io.ReadCloser, error) {
	return c.stream(ctx, http.MethodPost, "/chat/completions/stream", req)
}

// EditMessage rewrites a user turn without regenerating the reply.
func (c *Client) EditMessage(ctx context.Context, chatID string, req *EditMessageRequest) (*EditMessageResponse, error) {
	var ret EditMessageResponse
	if err := c.do(ctx, http.MethodPut, "/chat/"+chatID+"/edit", nil, req, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

// EditAndCompleteStream rewrites a user turn and streams a fresh reply.
func (c *Client) EditAndCompleteStream(ctx context.Context, chatID string, req *EditMessageRequest) (io.ReadCloser, error) {
	req_ := *req
	req_.AutoComplete = true
	return c.stream(ctx, http.MethodPut, "/chat/"+chatID+"/edit-and-complete", &req_)
}

// RegenerateStream streams a new assistant version for an existing reply.
func (c *Client) RegenerateStream(ctx context.Context, chatID string, req *RegenerateRequest) (io.ReadCloser, error) {
	return c.stream(ctx, http.MethodPost, "/chat/"+chatID+"/regenerate", req)
}

// RetryChat regenerates a reply without streaming, returning the finished
// assistant row in one response.
func (c *Client) RetryChat(ctx context.Context, chatID string, req *RegenerateRequest) (*RetryResponse, error) {
	var ret RetryResponse
	if err := c.do(ctx, http.MethodPost, "/chat/"+chatID+"/retry", nil, req, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (c *Client) SwitchVersion(ctx context.Context, chatID string, req *SwitchVersionRequest) (*SwitchVersionResponse, error) {
	var ret SwitchVersionResponse
	if err := c.do(ctx, http.MethodPost, "/chat/"+chatID+"/switch-version", nil, req, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (c *Client) GetChatVersions(ctx context.Context, chatID string, versionType string, limit int, page int) (*VersionsResponse, error) {
	if limit <= 0 {
		limit = 10
	}
	if page <= 0 {
		page = 1
	}

	query := url.Values{}
	if versionType != "" {
		query.Set("versionType", versionType)
	}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("page", strconv.Itoa(page))

	var ret VersionsResponse
	if err := c.do(ctx, http.MethodGet, "/chat/"+chatID+"/versions", query, nil, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (c *Client) GetConversationChats(ctx context.Context, conversationID string, opts PageOptions) (*ChatsPage, error) {
	query := url.Values{}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	query.Set("limit", strconv.Itoa(limit))
	sortOrder := opts.SortOrder
	if sortOrder == "" {
		sortOrder = "asc"
	}
	query.Set("sortOrder", sortOrder)
	query.Set("activeOnly", strconv.FormatBool(!opts.IncludeInactive))
	query.Set("currentVersionOnly", strconv.FormatBool(!opts.IncludeAllVersions))
	if opts.LastEvaluatedKey != "" {
		query.Set("lastEvaluatedKey", opts.LastEvaluatedKey)
	}

	var ret ChatsPage
	if err := c.do(ctx, http.MethodGet, "/chat/conversation/"+conversationID, query, nil, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (c *Client) GetConversations(ctx context.Context, page int, limit int) (*ConversationsPage, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))

	var ret ConversationsPage
	if err := c.do(ctx, http.MethodGet, "/conversations", query, nil, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (c *Client) GetChat(ctx context.Context, chatID string) (*chat.TurnPayload, error) {
	var ret chat.TurnPayload
	if err := c.do(ctx, http.MethodGet, "/chat/"+chatID, nil, nil, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodDelete, "/conversations/"+conversationID, nil, nil, nil)
}

func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodDelete, "/chat/"+chatID, nil, nil, nil)
}

func (c *Client) DeleteVersion(ctx context.Context, chatID string, versionNumber int, versionType string) error {
	path := fmt.Sprintf("/chat/%s/versions/%d", chatID, versionNumber)
	body := map[string]string{"versionType": versionType}
	return c.do(ctx, http.MethodDelete, path, nil, body, nil)
}

func (c *Client) CompareVersions(ctx context.Context, chatID string, version1 int, version2 int, versionType string) (*VersionComparison, error) {
	query := url.Values{}
	query.Set("version1", strconv.Itoa(version1))
	query.Set("version2", strconv.Itoa(version2))
	if versionType != "" {
		query.Set("versionType", versionType)
	}

	var ret VersionComparison
	if err := c.do(ctx, http.MethodGet, "/chat/"+chatID+"/versions/compare", query, nil, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (c *Client) newRequest(ctx context.Context, method string, path string, query url.Values, body interface{}) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrapf(err, "could not encode request body for %s", path)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "could not build request for %s", path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do runs a JSON endpoint, unwraps the {success, data} envelope and decodes
// data into out.
func (c *Client) do(ctx context.Context, method string, path string, query url.Values, body interface{}, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Endpoint: path, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.errorFromResponse(path, resp)
	}

	if out == nil {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return errors.Wrapf(err, "could not decode response from %s", path)
	}
	if !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message, Endpoint: path}
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.Wrapf(err, "could not decode response data from %s", path)
	}
	return nil
}

// stream runs a streaming endpoint and hands back the open body once the
// status line is known good.
func (c *Client) stream(ctx context.Context, method string, path string, body interface{}) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, method, path, nil, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Endpoint: path, Err: err}
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Msg("stream opened")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := c.errorFromResponse(path, resp)
		_ = resp.Body.Close()
		return nil, err
	}

	return resp.Body, nil
}

func (c *Client) errorFromResponse(path string, resp *http.Response) error {
	var env envelope
	message := ""
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&env); err == nil {
		message = env.Message
	}
	return &APIError{StatusCode: resp.StatusCode, Message: message, Endpoint: path}
}
