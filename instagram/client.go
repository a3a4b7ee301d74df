// Package instagram talks to the Instagram Graph API media container flow:
// create containers for hosted videos, wait for server-side processing, then
// publish them to the account feed.
package instagram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/crateclip/config"
	"github.com/xeptore/crateclip/errutil"
	"github.com/xeptore/crateclip/httputil"
	"github.com/xeptore/crateclip/must"
)

const DefaultBaseURL = "https://graph.facebook.com/v20.0"

var (
	ErrTooManyRequests   = errors.New("too many requests")
	ErrProcessingTimeout = errors.New("container processing timed out")
)

// APIError is a structured Graph API error response.
type APIError struct {
	Status  int
	Code    int
	Subcode int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api error %d (code %d, subcode %d, type %q): %s", e.Status, e.Code, e.Subcode, e.Type, e.Message)
}

// IsAuthError reports whether the error indicates an invalid or expired token.
func (e *APIError) IsAuthError() bool {
	return e.Status == http.StatusUnauthorized || e.Code == 190
}

// ContainerError is a container that finished processing in a terminal
// failure state (ERROR or EXPIRED).
type ContainerError struct {
	ContainerID string
	StatusCode  string
}

func (e *ContainerError) Error() string {
	return fmt.Sprintf("container %s ended in status %s", e.ContainerID, e.StatusCode)
}

type Client struct {
	baseURL     string
	userID      string
	accessToken string
	cfg         config.Publish
	logger      zerolog.Logger
}

func NewClient(userID, accessToken string, cfg config.Publish, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:     DefaultBaseURL,
		userID:      userID,
		accessToken: accessToken,
		cfg:         cfg,
		logger:      logger,
	}
}

// NewClientWithBaseURL exists for tests pointing at a local server.
func NewClientWithBaseURL(baseURL, userID, accessToken string, cfg config.Publish, logger zerolog.Logger) *Client {
	c := NewClient(userID, accessToken, cfg, logger)
	c.baseURL = baseURL
	return c
}

// CreateReelContainer creates a single-video REELS container.
func (c *Client) CreateReelContainer(ctx context.Context, videoURL, caption string) (string, error) {
	params := url.Values{
		"media_type":    []string{"REELS"},
		"video_url":     []string{videoURL},
		"caption":       []string{caption},
		"share_to_feed": []string{"true"},
	}
	return c.createContainer(ctx, params)
}

// CreateCarouselChild creates a video container marked as a carousel item.
func (c *Client) CreateCarouselChild(ctx context.Context, videoURL string) (string, error) {
	params := url.Values{
		"media_type":       []string{"VIDEO"},
		"video_url":        []string{videoURL},
		"is_carousel_item": []string{"true"},
	}
	return c.createContainer(ctx, params)
}

// CreateCarouselParent creates the CAROUSEL container referencing finished
// children.
func (c *Client) CreateCarouselParent(ctx context.Context, childIDs []string, caption string) (string, error) {
	params := url.Values{
		"media_type": []string{"CAROUSEL"},
		"children":   []string{strings.Join(childIDs, ",")},
		"caption":    []string{caption},
	}
	return c.createContainer(ctx, params)
}

func (c *Client) createContainer(ctx context.Context, params url.Values) (string, error) {
	respBytes, err := c.post(ctx, fmt.Sprintf("/%s/media", c.userID), params, config.GraphCreateContainerTimeout)
	if nil != err {
		return "", err
	}

	id := gjson.GetBytes(respBytes, "id")
	if !id.Exists() || id.String() == "" {
		flawP := flaw.P{"response_body": string(respBytes)}
		return "", flaw.From(errors.New("container response has no id")).Append(flawP)
	}
	return id.String(), nil
}

// WaitFinished polls the container status until it reaches a terminal state
// or the configured timeout elapses.
func (c *Client) WaitFinished(ctx context.Context, containerID string) error {
	deadline := time.Now().Add(c.cfg.ContainerTimeout())
	ticker := time.NewTicker(c.cfg.PollInterval())
	defer ticker.Stop()

	for {
		statusCode, err := c.containerStatus(ctx, containerID)
		if nil != err {
			return err
		}
		c.logger.Debug().Str("container_id", containerID).Str("status_code", statusCode).Msg("Container status")

		switch statusCode {
		case "FINISHED", "PUBLISHED":
			return nil
		case "ERROR", "EXPIRED":
			return &ContainerError{ContainerID: containerID, StatusCode: statusCode}
		}

		if time.Now().After(deadline) {
			return ErrProcessingTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) containerStatus(ctx context.Context, containerID string) (string, error) {
	params := url.Values{"fields": []string{"status_code"}}
	respBytes, err := c.get(ctx, "/"+containerID, params, config.GraphContainerStatusTimeout)
	if nil != err {
		return "", err
	}
	return gjson.GetBytes(respBytes, "status_code").String(), nil
}

// Publish publishes a finished container and returns the created media id.
func (c *Client) Publish(ctx context.Context, containerID string) (string, error) {
	params := url.Values{"creation_id": []string{containerID}}
	respBytes, err := c.post(ctx, fmt.Sprintf("/%s/media_publish", c.userID), params, config.GraphPublishTimeout)
	if nil != err {
		return "", err
	}

	id := gjson.GetBytes(respBytes, "id")
	if !id.Exists() || id.String() == "" {
		flawP := flaw.P{"response_body": string(respBytes)}
		return "", flaw.From(errors.New("publish response has no media id")).Append(flawP)
	}
	return id.String(), nil
}

// Account is the linked Instagram business account of a Facebook page.
type Account struct {
	PageID   string
	PageName string
	IGUserID string
}

// Accounts lists the Facebook pages reachable with the access token and
// their linked Instagram business accounts, for resolving IG_USER_ID.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	params := url.Values{"fields": []string{"id,name,instagram_business_account"}}
	respBytes, err := c.get(ctx, "/me/accounts", params, config.GraphAccountLookupTimeout)
	if nil != err {
		return nil, err
	}

	var accounts []Account
	gjson.GetBytes(respBytes, "data").ForEach(func(_, page gjson.Result) bool {
		accounts = append(accounts, Account{
			PageID:   page.Get("id").String(),
			PageName: page.Get("name").String(),
			IGUserID: page.Get("instagram_business_account.id").String(),
		})
		return true
	})
	return accounts, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, timeout time.Duration) ([]byte, error) {
	params.Set("access_token", c.accessToken)
	return c.do(ctx, http.MethodGet, path+"?"+params.Encode(), nil, timeout)
}

func (c *Client) post(ctx context.Context, path string, params url.Values, timeout time.Duration) ([]byte, error) {
	params.Set("access_token", c.accessToken)
	return c.do(ctx, http.MethodPost, path, strings.NewReader(params.Encode()), timeout)
}

func (c *Client) do(ctx context.Context, method, pathAndQuery string, body *strings.Reader, timeout time.Duration) (respBytes []byte, err error) {
	reqURL := c.baseURL + pathAndQuery
	flawP := flaw.P{"method": method, "url": redactToken(reqURL)}

	var req *http.Request
	if nil == body {
		req, err = http.NewRequestWithContext(ctx, method, reqURL, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, reqURL, body)
	}
	if nil != err {
		if errutil.IsContext(ctx) {
			return nil, ctx.Err()
		}
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return nil, flaw.From(fmt.Errorf("failed to create request: %v", err)).Append(flawP)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	client := http.Client{Timeout: timeout} //nolint:exhaustruct
	resp, err := client.Do(req)
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, context.DeadlineExceeded
		default:
			flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
			return nil, flaw.From(fmt.Errorf("failed to send request: %v", err)).Append(flawP)
		}
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			flawP["err_debug_tree"] = errutil.Tree(closeErr).FlawP()
			closeErr = flaw.From(fmt.Errorf("failed to close response body: %v", closeErr)).Append(flawP)
			switch {
			case nil == err:
				err = closeErr
			case errutil.IsContext(ctx):
				err = flaw.From(errors.New("context was ended")).Join(closeErr)
			case errors.Is(err, context.DeadlineExceeded):
				err = flaw.From(errors.New("timeout has reached")).Join(closeErr)
			case errutil.IsFlaw(err):
				err = must.BeFlaw(err).Join(closeErr)
			default:
				err = errors.Join(err, closeErr)
			}
		}
	}()
	flawP["response"] = errutil.HTTPResponseFlawPayload(resp)

	respBytes, err = httputil.ReadOptionalResponseBody(ctx, resp)
	if nil != err {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, ErrTooManyRequests
		}
		if apiErr := decodeAPIError(resp.StatusCode, respBytes); nil != apiErr {
			return nil, apiErr
		}
		flawP["response_body"] = string(respBytes)
		return nil, flaw.From(fmt.Errorf("unexpected status code: %d", resp.StatusCode)).Append(flawP)
	}
	return respBytes, nil
}

func decodeAPIError(status int, b []byte) *APIError {
	errNode := gjson.GetBytes(b, "error")
	if !errNode.Exists() {
		return nil
	}
	return &APIError{
		Status:  status,
		Code:    int(errNode.Get("code").Int()),
		Subcode: int(errNode.Get("error_subcode").Int()),
		Type:    errNode.Get("type").String(),
		Message: errNode.Get("message").String(),
	}
}

func redactToken(rawURL string) string {
	u, err := url.Parse(rawURL)
	if nil != err {
		return rawURL
	}
	q := u.Query()
	if q.Has("access_token") {
		q.Set("access_token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
