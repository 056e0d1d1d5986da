package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pbaille/cvvault/internal/domain"
	"github.com/pbaille/cvvault/internal/fetcher"
	"github.com/pbaille/cvvault/internal/metrics"
	"golang.org/x/time/rate"
)

// Supported text-generation providers.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

type generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Settings selects and tunes the text-generation backend.
type Settings struct {
	Provider      string
	APIKey        string
	Model         string
	BaseURL       string
	RatePerMinute int
	FetchLinks    bool
	HTTPClient    *http.Client
}

// Client produces reflections for entries. It never fails: every problem
// resolves to a fixed fallback text.
type Client struct {
	gen     generator
	limiter *rate.Limiter
	links   *fetcher.Fetcher
	log     *slog.Logger
	metrics metrics.Recorder
}

// NewClient builds a Client. A missing API key is not an error; such a
// client answers every call with the no-credential fallback.
func NewClient(s Settings, log *slog.Logger, m metrics.Recorder) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	httpClient := s.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	c := &Client{log: log.With("component", "enrich"), metrics: m}

	apiKey := strings.TrimSpace(s.APIKey)
	switch s.Provider {
	case "", ProviderGemini:
		if apiKey != "" {
			c.gen = &gemini{
				apiKey:  apiKey,
				model:   orDefault(s.Model, defaultGeminiModel),
				baseURL: orDefault(s.BaseURL, geminiAPI),
				client:  httpClient,
			}
		}
	case ProviderAnthropic:
		if apiKey != "" {
			c.gen = &anthropic{
				apiKey:  apiKey,
				model:   orDefault(s.Model, defaultAnthropicModel),
				baseURL: orDefault(s.BaseURL, anthropicAPI),
				client:  httpClient,
			}
		}
	default:
		return nil, fmt.Errorf("unknown enrichment provider %q", s.Provider)
	}

	if s.RatePerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.RatePerMinute)), 1)
	}
	if s.FetchLinks {
		c.links = fetcher.New(httpClient, 0)
	}

	return c, nil
}

// Configured reports whether a credential is available.
func (c *Client) Configured() bool {
	return c.gen != nil
}

// Reflect returns generated text for a snapshot of entry, or a fallback.
func (c *Client) Reflect(ctx context.Context, entry domain.Entry) string {
	start := time.Now()
	text, outcome := c.reflect(ctx, entry)

	kind := ""
	if entry != nil {
		kind = string(entry.EntryKind())
	}
	c.metrics.RecordEnrichment(kind, string(outcome), time.Since(start))
	return text
}

func (c *Client) reflect(ctx context.Context, entry domain.Entry) (string, Outcome) {
	var (
		kind   domain.Kind
		prompt string
	)
	switch e := entry.(type) {
	case domain.Experience:
		kind = domain.KindExperience
		if c.gen != nil {
			prompt = experiencePrompt(e, c.linkExcerpt(ctx, e.Link))
		}
	case domain.Education:
		kind = domain.KindEducation
		prompt = educationPrompt(e)
	default:
		c.log.Warn("unsupported entry type", "type", fmt.Sprintf("%T", entry))
		return UnknownEntry, OutcomeFailed
	}

	log := c.log.With("kind", kind, "id", entry.EntryID())

	if c.gen == nil {
		log.Debug("no credential configured")
		return fallback(kind, OutcomeNoCredential), OutcomeNoCredential
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			log.Warn("rate limit wait aborted", "error", err)
			return fallback(kind, OutcomeFailed), OutcomeFailed
		}
	}

	text, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		log.Error("text generation failed", "error", err)
		return fallback(kind, OutcomeFailed), OutcomeFailed
	}

	text = strings.TrimSpace(text)
	if text == "" {
		log.Warn("text generation returned nothing")
		return fallback(kind, OutcomeEmpty), OutcomeEmpty
	}

	log.Info("reflection generated")
	return text, OutcomeGenerated
}

func (c *Client) linkExcerpt(ctx context.Context, link string) string {
	if c.links == nil || !fetcher.IsURL(link) {
		return ""
	}
	text, err := c.links.Excerpt(ctx, link)
	if err != nil {
		c.log.Debug("link fetch skipped", "link", link, "error", err)
		return ""
	}
	return text
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
