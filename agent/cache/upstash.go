package cache

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
	"time"
)

const maxResponseSizeBytes = 2 << 20

// UpstashCache talks to Upstash Redis over its REST command endpoint.
type UpstashCache struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

var _ Cache = (*UpstashCache)(nil)

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

func NewUpstashCache(cfg UpstashConfig, httpClient *http.Client, opts ...Option) (*UpstashCache, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &UpstashCache{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
		keyPrefix:  o.keyPrefix,
		ttl:        o.ttl,
	}, nil
}

func (c *UpstashCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	fullKey, err := c.redisKey(key)
	if err != nil {
		return nil, false, err
	}

	resp, err := c.exec(ctx, []any{"GET", fullKey})
	if err != nil {
		return nil, false, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, false, nil
	}

	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return nil, false, fmt.Errorf("decode cached payload: %w", err)
	}
	return []byte(encoded), true, nil
}

func (c *UpstashCache) Set(ctx context.Context, key string, value []byte) error {
	fullKey, err := c.redisKey(key)
	if err != nil {
		return err
	}

	cmd := []any{"SET", fullKey, string(value)}
	if c.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(c.ttl))
	}

	_, err = c.exec(ctx, cmd)
	return err
}

func (c *UpstashCache) redisKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrInvalidKey
	}
	return c.keyPrefix + key, nil
}

func (c *UpstashCache) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}
