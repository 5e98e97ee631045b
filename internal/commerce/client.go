// Package commerce is the authenticated facade over the commerce REST API.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/hashicorp/go-retryablehttp"
)

// Result is the uniform outcome of every commerce operation. Transport
// failures map to Success=false with StatusCode 500; HTTP errors preserve
// the upstream status.
type Result struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"statusCode,omitempty"`
	Message    string          `json:"message,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Auth selects exactly one commerce authentication scheme.
type Auth struct {
	// OAuth1 HMAC-SHA256 credentials.
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string

	// Bearer token plus IMS context headers.
	BearerToken string
	IMSOrgID    string
	IMSClientID string
}

func (a Auth) hasOAuth1() bool {
	return a.ConsumerKey != "" && a.ConsumerSecret != "" && a.AccessToken != "" && a.AccessTokenSecret != ""
}

func (a Auth) hasBearer() bool { return a.BearerToken != "" }

// Client calls the commerce REST API.
type Client struct {
	baseURL string
	http    *http.Client
	auth    Auth
	logger  *log.Logger
	debug   bool
}

// New builds a Client. Exactly one of OAuth1 and bearer auth must be
// configured.
func New(baseURL string, auth Auth, logger *log.Logger, debug bool) (*Client, error) {
	if auth.hasOAuth1() == auth.hasBearer() {
		return nil, errors.New("commerce: exactly one of oauth1 and bearer auth must be configured")
	}

	retry := retryablehttp.NewClient()
	retry.RetryMax = 3
	retry.RetryWaitMin = 500 * time.Millisecond
	retry.RetryWaitMax = 8 * time.Second
	retry.Logger = nil
	retry.CheckRetry = retryTransientOnly

	httpClient := retry.StandardClient()

	if auth.hasOAuth1() {
		cfg := oauth1.NewConfig(auth.ConsumerKey, auth.ConsumerSecret)
		cfg.Signer = &oauth1.HMAC256Signer{ConsumerSecret: auth.ConsumerSecret}
		token := oauth1.NewToken(auth.AccessToken, auth.AccessTokenSecret)
		// signing transport wraps the retrying client
		signCtx := context.WithValue(context.Background(), oauth1.HTTPClient, httpClient)
		httpClient = cfg.Client(signCtx, token)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		auth:    auth,
		logger:  logger,
		debug:   debug,
	}, nil
}

// retryTransientOnly retries network failures and 5xx; 4xx responses are
// final per the platform contract.
func retryTransientOnly(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp != nil && resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) Result {
	var body io.Reader
	var raw []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return Result{Success: false, StatusCode: 500, Message: fmt.Sprintf("encode request: %v", err)}
		}
		raw = encoded
		body = bytes.NewReader(encoded)
	}

	url := c.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return Result{Success: false, StatusCode: 500, Message: "Unexpected error"}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.auth.hasBearer() {
		req.Header.Set("Authorization", "Bearer "+c.auth.BearerToken)
		if c.auth.IMSOrgID != "" {
			req.Header.Set("x-gw-ims-org-id", c.auth.IMSOrgID)
		}
		if c.auth.IMSClientID != "" {
			req.Header.Set("x-api-key", c.auth.IMSClientID)
		}
	}

	if c.debug && c.logger != nil {
		c.logger.Printf("commerce: %s %s body=%s", method, url, string(raw))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if c.logger != nil {
			c.logger.Printf("commerce: %s %s failed: %v", method, url, err)
		}
		return Result{Success: false, StatusCode: 500, Message: "Unexpected error"}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Success: false, StatusCode: 500, Message: "Unexpected error"}
	}

	if c.debug && c.logger != nil {
		c.logger.Printf("commerce: %s %s -> %d body=%s", method, url, resp.StatusCode, string(respBody))
	}

	if resp.StatusCode >= 400 {
		return Result{
			Success:    false,
			StatusCode: resp.StatusCode,
			Message:    upstreamMessage(respBody),
			Body:       respBody,
		}
	}
	return Result{Success: true, StatusCode: resp.StatusCode, Body: respBody}
}

// upstreamMessage extracts the platform's error message field when present.
func upstreamMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		return envelope.Message
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "Unexpected error"
	}
	return msg
}
