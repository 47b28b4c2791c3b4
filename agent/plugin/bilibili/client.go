package bilibili

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	maxErrorBodyBytes = 8 * 1024
	userAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

const (
	codeOK             = 0
	codeNotFound       = -404
	codeCommentsClosed = 12002
)

var (
	ErrVideoNotFound = errors.New("bilibili video not found")
	ErrRateLimited   = errors.New("bilibili rejected the request (412)")
)

type APIError struct {
	Code    int
	Message string
}

func (e APIError) Error() string {
	return fmt.Sprintf("bilibili api code=%d: %s", e.Code, e.Message)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type SearchHit struct {
	BVID        string
	Title       string
	Description string
	Author      string
	Plays       int64
}

type VideoInfo struct {
	AID         int64
	BVID        string
	Title       string
	Description string
	Owner       string
	Views       int64
	Likes       int64
	Tags        []string
}

type Comment struct {
	Author  string
	Message string
	Likes   int64
	Replies []Comment
}

// Client calls Bilibili's public web APIs.
type Client struct {
	baseURL    string
	cookie     string
	httpClient *http.Client
	retries    int
	retryDelay time.Duration
}

func NewClient(baseURL, cookie string, httpClient *http.Client, retries int, retryDelay time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if retries < 0 {
		retries = 0
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		cookie:     cookie,
		httpClient: httpClient,
		retries:    retries,
		retryDelay: retryDelay,
	}
}

func (c *Client) Search(ctx context.Context, keyword string, limit int) ([]SearchHit, error) {
	params := url.Values{}
	params.Set("search_type", "video")
	params.Set("keyword", keyword)
	params.Set("page", "1")

	var data struct {
		Result []struct {
			BVID        string `json:"bvid"`
			Title       string `json:"title"`
			Description string `json:"description"`
			Author      string `json:"author"`
			Play        int64  `json:"play"`
		} `json:"result"`
	}
	if err := c.getJSON(ctx, "/x/web-interface/search/type", params, &data); err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(data.Result))
	seen := make(map[string]struct{}, len(data.Result))
	for _, r := range data.Result {
		bvid := strings.TrimSpace(r.BVID)
		if bvid == "" {
			continue
		}
		if _, ok := seen[bvid]; ok {
			continue
		}
		seen[bvid] = struct{}{}
		hits = append(hits, SearchHit{
			BVID:        bvid,
			Title:       stripTags(r.Title),
			Description: strings.TrimSpace(r.Description),
			Author:      strings.TrimSpace(r.Author),
			Plays:       r.Play,
		})
		if limit > 0 && len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

func (c *Client) View(ctx context.Context, bvid string) (VideoInfo, error) {
	params := url.Values{}
	params.Set("bvid", bvid)

	var data struct {
		AID   int64  `json:"aid"`
		BVID  string `json:"bvid"`
		Title string `json:"title"`
		Desc  string `json:"desc"`
		Owner struct {
			Name string `json:"name"`
		} `json:"owner"`
		Stat struct {
			View int64 `json:"view"`
			Like int64 `json:"like"`
		} `json:"stat"`
	}
	if err := c.getJSON(ctx, "/x/web-interface/view", params, &data); err != nil {
		var apiErr APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeNotFound {
			return VideoInfo{}, fmt.Errorf("%w: %s", ErrVideoNotFound, bvid)
		}
		return VideoInfo{}, err
	}

	return VideoInfo{
		AID:         data.AID,
		BVID:        data.BVID,
		Title:       strings.TrimSpace(data.Title),
		Description: strings.TrimSpace(data.Desc),
		Owner:       strings.TrimSpace(data.Owner.Name),
		Views:       data.Stat.View,
		Likes:       data.Stat.Like,
	}, nil
}

func (c *Client) Tags(ctx context.Context, bvid string) ([]string, error) {
	params := url.Values{}
	params.Set("bvid", bvid)

	var data []struct {
		TagName string `json:"tag_name"`
	}
	if err := c.getJSON(ctx, "/x/tag/archive/tags", params, &data); err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(data))
	for _, t := range data {
		if name := strings.TrimSpace(t.TagName); name != "" {
			tags = append(tags, name)
		}
	}
	return tags, nil
}

type replyItem struct {
	Content struct {
		Message string `json:"message"`
	} `json:"content"`
	Member struct {
		Uname string `json:"uname"`
	} `json:"member"`
	Like    int64       `json:"like"`
	Replies []replyItem `json:"replies"`
}

// Comments returns one page of top-level comments sorted by likes, each with
// the inline reply preview. Closed comment sections yield no comments.
func (c *Client) Comments(ctx context.Context, aid int64, page, pageSize int) ([]Comment, error) {
	params := url.Values{}
	params.Set("type", "1")
	params.Set("oid", strconv.FormatInt(aid, 10))
	params.Set("pn", strconv.Itoa(page))
	params.Set("ps", strconv.Itoa(pageSize))
	params.Set("sort", "1")

	var data struct {
		Replies []replyItem `json:"replies"`
	}
	if err := c.getJSON(ctx, "/x/v2/reply", params, &data); err != nil {
		var apiErr APIError
		if errors.As(err, &apiErr) && (apiErr.Code == codeCommentsClosed || apiErr.Code == codeNotFound) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]Comment, 0, len(data.Replies))
	for _, r := range data.Replies {
		out = append(out, toComment(r))
	}
	return out, nil
}

func toComment(r replyItem) Comment {
	c := Comment{
		Author:  strings.TrimSpace(r.Member.Uname),
		Message: strings.TrimSpace(r.Content.Message),
		Likes:   r.Like,
	}
	for _, sub := range r.Replies {
		c.Replies = append(c.Replies, toComment(sub))
	}
	return c
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}

		env, err := c.do(ctx, endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		if env.Code != codeOK {
			apiErr := APIError{Code: env.Code, Message: env.Message}
			// -352/-412 are anti-crawler rejections that clear after a pause.
			if env.Code == -352 || env.Code == -412 {
				lastErr = apiErr
				continue
			}
			return apiErr
		}

		if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
			return nil
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode bilibili %s: %w", path, err)
		}
		return nil
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, endpoint string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build bilibili request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", "https://www.bilibili.com/")
	req.Header.Set("Origin", "https://www.bilibili.com")
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request bilibili: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPreconditionFailed {
		return nil, ErrRateLimited
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("bilibili http status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode bilibili envelope: %w", err)
	}
	return &env, nil
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

func stripTags(s string) string {
	return strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(s, "")))
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
