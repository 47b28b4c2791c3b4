package bilibili

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	logx "github.com/yixiaowang2001/game-sage-agent/pkg/logger"
)

const Name = "bilibili"

type Config struct {
	BaseURL         string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.bilibili.com"`
	CookieFile      string        `split_words:"true" default:"cookies/bilibili_cookies.json"`
	SearchResults   int           `split_words:"true" default:"3"`
	CommentPageSize int           `split_words:"true" default:"20"`
	MaxComments     int           `split_words:"true" default:"15"`
	MinCommentLen   int           `split_words:"true" default:"6"`
	Retries         int           `split_words:"true" default:"3"`
	RetryDelay      time.Duration `split_words:"true" default:"1s"`
	RequestTimeout  time.Duration `split_words:"true" default:"10s"`
	Timeout         time.Duration `split_words:"true" default:"40s"`
}

// Plugin searches Bilibili videos and turns each one into a passage made of
// its metadata and most-liked comments.
type Plugin struct {
	client *Client
	cfg    Config
	logger zerolog.Logger
}

var _ contractx.Plugin = (*Plugin)(nil)

func New(cfg Config) (*Plugin, error) {
	cookie, err := LoadCookieHeader(cfg.CookieFile)
	if err != nil {
		return nil, err
	}
	httpClient := newHTTPClient(cfg.RequestTimeout)
	return NewWithClient(NewClient(cfg.BaseURL, cookie, httpClient, cfg.Retries, cfg.RetryDelay), cfg), nil
}

func NewWithClient(client *Client, cfg Config) *Plugin {
	if cfg.SearchResults <= 0 {
		cfg.SearchResults = 3
	}
	if cfg.CommentPageSize <= 0 {
		cfg.CommentPageSize = 20
	}
	if cfg.MaxComments <= 0 {
		cfg.MaxComments = 15
	}
	logger := logx.Component("plugin.bilibili")
	if client.cookie == "" {
		logger.Debug().Msg("no bilibili cookies, using anonymous access")
	}
	return &Plugin{client: client, cfg: cfg, logger: logger}
}

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Retrieve(ctx context.Context, subQuery string) contractx.RetrievalResult {
	started := time.Now()
	result := contractx.RetrievalResult{Provider: Name, SubQuery: subQuery}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	hits, err := p.client.Search(ctx, subQuery, p.cfg.SearchResults)
	if err != nil {
		result.Status = contractx.StatusFailed
		result.Error = fmt.Sprintf("search: %v", err)
		result.Elapsed = time.Since(started)
		return result
	}
	if len(hits) == 0 {
		result.Status = contractx.StatusEmpty
		result.Elapsed = time.Since(started)
		return result
	}

	passages := make([]*contractx.Passage, len(hits))
	errs := make([]error, len(hits))
	workers := pool.New().WithMaxGoroutines(len(hits))
	for i, hit := range hits {
		i, hit := i, hit
		workers.Go(func() {
			passage, err := p.videoPassage(ctx, hit)
			if err != nil {
				errs[i] = err
				return
			}
			passages[i] = &passage
		})
	}
	workers.Wait()

	for i, passage := range passages {
		if passage != nil {
			result.Passages = append(result.Passages, *passage)
			continue
		}
		p.logger.Warn().Err(errs[i]).Str("bvid", hits[i].BVID).Msg("skip video")
	}

	result.Elapsed = time.Since(started)
	switch {
	case len(result.Passages) > 0:
		result.Status = contractx.StatusOK
		if ctx.Err() != nil {
			p.logger.Info().Int("videos", len(result.Passages)).Msg("bilibili timed out, returning partial results")
		}
	case ctx.Err() != nil:
		result.Status = contractx.StatusFailed
		result.Error = "timeout"
	default:
		result.Status = contractx.StatusFailed
		result.Error = "no video could be loaded"
		if err := errors.Join(errs...); err != nil {
			result.Error = err.Error()
		}
	}
	return result
}

func (p *Plugin) videoPassage(ctx context.Context, hit SearchHit) (contractx.Passage, error) {
	info, err := p.client.View(ctx, hit.BVID)
	if err != nil {
		return contractx.Passage{}, fmt.Errorf("view %s: %w", hit.BVID, err)
	}

	// Tags and comments are best effort: the video metadata alone is still useful.
	tags, err := p.client.Tags(ctx, hit.BVID)
	if err != nil {
		p.logger.Debug().Err(err).Str("bvid", hit.BVID).Msg("tags unavailable")
	}
	info.Tags = tags

	var comments []Comment
	if info.AID > 0 {
		comments, err = p.client.Comments(ctx, info.AID, 1, p.cfg.CommentPageSize)
		if err != nil {
			p.logger.Debug().Err(err).Str("bvid", hit.BVID).Msg("comments unavailable")
		}
	}

	title := info.Title
	if title == "" {
		title = hit.Title
	}
	return contractx.Passage{
		Ref:   info.BVID,
		Title: title,
		URL:   "https://www.bilibili.com/video/" + info.BVID,
		Text:  p.render(info, hit, comments),
	}, nil
}

func (p *Plugin) render(info VideoInfo, hit SearchHit, comments []Comment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", firstNonEmpty(info.Title, hit.Title))
	if owner := firstNonEmpty(info.Owner, hit.Author); owner != "" {
		fmt.Fprintf(&b, "Uploader: %s\n", owner)
	}
	if info.Views > 0 {
		fmt.Fprintf(&b, "Views: %d, Likes: %d\n", info.Views, info.Likes)
	}
	if desc := firstNonEmpty(info.Description, hit.Description); desc != "" && desc != "-" {
		fmt.Fprintf(&b, "Description: %s\n", desc)
	}
	if len(info.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(info.Tags, ", "))
	}

	kept := p.filterComments(comments)
	if len(kept) > 0 {
		b.WriteString("Comments:\n")
		for _, line := range kept {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return strings.TrimSpace(b.String())
}

// filterComments flattens comments and replies, dropping ones shorter than
// MinCommentLen runes, up to MaxComments lines.
func (p *Plugin) filterComments(comments []Comment) []string {
	out := make([]string, 0, p.cfg.MaxComments)
	for _, c := range comments {
		if len(out) >= p.cfg.MaxComments {
			break
		}
		if utf8.RuneCountInString(c.Message) < p.cfg.MinCommentLen {
			continue
		}
		out = append(out, fmt.Sprintf("[%d likes] %s", c.Likes, oneLine(c.Message)))
		for _, r := range c.Replies {
			if len(out) >= p.cfg.MaxComments {
				break
			}
			if utf8.RuneCountInString(r.Message) < p.cfg.MinCommentLen {
				continue
			}
			out = append(out, "  reply: "+oneLine(r.Message))
		}
	}
	return out
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
