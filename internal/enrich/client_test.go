package enrich

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pbaille/cvvault/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var (
	sampleExperience = domain.Experience{
		ID: "exp-1", Title: "Research Project", Category: domain.CategoryMath,
		Date: "2024-01-01", Challenge: "X", Learning: "Y",
	}
	sampleEducation = domain.Education{
		ID: "edu-1", School: "Hill Academy", Qualification: "A-Levels", Subjects: "Maths, Physics",
	}
)

func newTestClient(t *testing.T, s Settings) *Client {
	t.Helper()
	c, err := NewClient(s, quiet, nil)
	require.NoError(t, err)
	return c
}

func TestReflect_NoCredential(t *testing.T) {
	c := newTestClient(t, Settings{})
	assert.False(t, c.Configured())

	assert.Equal(t, ExperienceNoCredential, c.Reflect(context.Background(), sampleExperience))
	assert.Equal(t, EducationNoCredential, c.Reflect(context.Background(), sampleEducation))
}

func TestReflect_UnknownProvider(t *testing.T) {
	_, err := NewClient(Settings{Provider: "openai", APIKey: "k"}, quiet, nil)
	assert.ErrorContains(t, err, "unknown enrichment provider")
}

func geminiServer(t *testing.T, status int, reply string, prompts *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if prompts != nil {
			*prompts = append(*prompts, req.Contents[0].Parts[0].Text)
		}

		w.WriteHeader(status)
		w.Write([]byte(reply))
	}))
}

func TestReflect_Gemini(t *testing.T) {
	var prompts []string
	srv := geminiServer(t, http.StatusOK,
		`{"candidates":[{"content":{"parts":[{"text":"  Tackling X taught "},{"text":"me Y.  "}]}}]}`, &prompts)
	defer srv.Close()

	c := newTestClient(t, Settings{APIKey: "secret", Model: "test-model", BaseURL: srv.URL})
	assert.True(t, c.Configured())

	got := c.Reflect(context.Background(), sampleExperience)
	assert.Equal(t, "Tackling X taught me Y.", got)

	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Title: Research Project")
	assert.Contains(t, prompts[0], "Challenge faced: X")
	assert.Contains(t, prompts[0], "Learning outcomes: Y")
}

func TestReflect_GeminiEducationPrompt(t *testing.T) {
	var prompts []string
	srv := geminiServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"Insight."}]}}]}`, &prompts)
	defer srv.Close()

	c := newTestClient(t, Settings{APIKey: "secret", Model: "test-model", BaseURL: srv.URL})
	assert.Equal(t, "Insight.", c.Reflect(context.Background(), sampleEducation))

	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Institution: Hill Academy")
	assert.Contains(t, prompts[0], "Qualification: A-Levels")
	assert.Contains(t, prompts[0], "Subjects: Maths, Physics")
}

func TestReflect_ServiceFailure(t *testing.T) {
	srv := geminiServer(t, http.StatusInternalServerError, `{"error":{"message":"boom"}}`, nil)
	defer srv.Close()

	c := newTestClient(t, Settings{APIKey: "secret", Model: "test-model", BaseURL: srv.URL})
	assert.Equal(t, ExperienceFailed, c.Reflect(context.Background(), sampleExperience))
	assert.Equal(t, EducationFailed, c.Reflect(context.Background(), sampleEducation))
}

func TestReflect_Unreachable(t *testing.T) {
	srv := geminiServer(t, http.StatusOK, `{}`, nil)
	url := srv.URL
	srv.Close()

	c := newTestClient(t, Settings{APIKey: "secret", Model: "test-model", BaseURL: url})
	assert.Equal(t, ExperienceFailed, c.Reflect(context.Background(), sampleExperience))
}

func TestReflect_EmptyResponse(t *testing.T) {
	srv := geminiServer(t, http.StatusOK, `{"candidates":[]}`, nil)
	defer srv.Close()

	c := newTestClient(t, Settings{APIKey: "secret", Model: "test-model", BaseURL: srv.URL})
	assert.Equal(t, ExperienceEmpty, c.Reflect(context.Background(), sampleExperience))
	assert.Equal(t, EducationEmpty, c.Reflect(context.Background(), sampleEducation))
}

func TestReflect_Anthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req apiRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, defaultAnthropicModel, req.Model)
		assert.Contains(t, req.Messages[0].Content, "Institution: Hill Academy")

		w.Write([]byte(`{"content":[{"type":"text","text":"A rigorous foundation."}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, Settings{Provider: ProviderAnthropic, APIKey: "secret", BaseURL: srv.URL})
	assert.Equal(t, "A rigorous foundation.", c.Reflect(context.Background(), sampleEducation))
}

func TestReflect_RateLimitWaitAborted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, Settings{APIKey: "secret", Model: "test-model", BaseURL: srv.URL, RatePerMinute: 1})
	assert.Equal(t, "ok", c.Reflect(context.Background(), sampleEducation))

	// The single token is spent; a cancelled context cannot wait a minute for the next
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, EducationFailed, c.Reflect(ctx, sampleEducation))
	assert.Equal(t, int32(1), calls.Load())
}

func TestReflect_LinkExcerpt(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>Primes in arithmetic progressions</p></body></html>`))
	}))
	defer page.Close()

	var prompts []string
	srv := geminiServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`, &prompts)
	defer srv.Close()

	c := newTestClient(t, Settings{APIKey: "secret", Model: "test-model", BaseURL: srv.URL, FetchLinks: true})

	e := sampleExperience
	e.Link = page.URL
	c.Reflect(context.Background(), e)

	e.Link = "not a url"
	c.Reflect(context.Background(), e)

	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[0], "Primes in arithmetic progressions")
	assert.False(t, strings.Contains(prompts[1], "Excerpt"))
}

func TestReflect_IgnoresPriorReflection(t *testing.T) {
	var prompts []string
	srv := geminiServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"new"}]}}]}`, &prompts)
	defer srv.Close()

	c := newTestClient(t, Settings{APIKey: "secret", Model: "test-model", BaseURL: srv.URL})
	e := sampleExperience
	e.Reflection = "OLD REFLECTION"
	assert.Equal(t, "new", c.Reflect(context.Background(), e))
	assert.NotContains(t, prompts[0], "OLD REFLECTION")
}

func TestReflect_UnsupportedEntry(t *testing.T) {
	c := newTestClient(t, Settings{})
	assert.Equal(t, UnknownEntry, c.Reflect(context.Background(), nil))
}
