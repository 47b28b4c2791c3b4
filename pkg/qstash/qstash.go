// Package qstash publishes messages through Upstash QStash, which delivers
// them to a destination URL with retries.
package qstash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxErrorBodyBytes = 4 * 1024

var ErrInvalidDestination = errors.New("qstash destination must be an absolute http(s) url")

type Config struct {
	URL     string        `split_words:"true" default:"https://qstash.upstash.io"`
	Token   string        `split_words:"true"`
	Retries int           `split_words:"true" default:"3"`
	Timeout time.Duration `split_words:"true" default:"10s"`
}

// Enabled reports whether a token is configured; publishing is skipped otherwise.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Token) != ""
}

type Client struct {
	baseURL    string
	token      string
	retries    int
	httpClient *http.Client
}

type APIError struct {
	StatusCode int
	Body       string
}

func (e APIError) Error() string {
	return fmt.Sprintf("qstash returned %d: %s", e.StatusCode, e.Body)
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("qstash token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(cfg.Token),
		retries: cfg.Retries,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	return client, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// PublishJSON encodes payload and publishes it to destination, returning the
// QStash message id.
func (c *Client) PublishJSON(ctx context.Context, destination string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode qstash payload: %w", err)
	}
	return c.Publish(ctx, destination, "application/json", body)
}

func (c *Client) Publish(ctx context.Context, destination, contentType string, body []byte) (string, error) {
	dest, err := url.Parse(strings.TrimSpace(destination))
	if err != nil || !dest.IsAbs() || (dest.Scheme != "http" && dest.Scheme != "https") {
		return "", ErrInvalidDestination
	}

	// QStash takes the destination verbatim in the path.
	endpoint := c.baseURL + "/v2/publish/" + dest.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build qstash request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.retries > 0 {
		req.Header.Set("Upstash-Retries", strconv.Itoa(c.retries))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request qstash: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var parsed struct {
		MessageID string `json:"messageId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode qstash response: %w", err)
	}
	return parsed.MessageID, nil
}
