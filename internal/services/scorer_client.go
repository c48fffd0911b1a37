package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/ratings"
	"github.com/yungbote/depositly-backend/internal/utils"
)

// CategoryScores is the scorer's reading of one review, each value in 0..5.
// A 0 means the category was not mentioned at all, not that it scored badly.
type CategoryScores struct {
	Quality     float64 `json:"quality"`
	Reliability float64 `json:"reliability"`
	Price       float64 `json:"price"`
	Overall     float64 `json:"overall"`
}

type ReviewDigest struct {
	Summary  string            `json:"summary"`
	Insights map[string]string `json:"insights"`
}

// ReviewScorer turns free-text review content into category scores and keeps
// a rolling per-business summary current.
type ReviewScorer interface {
	Score(ctx context.Context, content string) (*CategoryScores, error)
	Summarize(ctx context.Context, priorSummary string, priorCount int, newContent string) (*ReviewDigest, error)
}

type scorerClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
}

func NewScorerClient(log *logger.Logger) (ReviewScorer, error) {
	apiKey := utils.GetEnv("OPENAI_API_KEY", "", nil)
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	baseURL := utils.GetEnv("OPENAI_BASE_URL", "https://api.openai.com", log)
	model := utils.GetEnv("OPENAI_MODEL", "gpt-4o-mini", log)
	timeoutSec := utils.GetEnvAsInt("OPENAI_TIMEOUT_SECONDS", 60, log)
	maxRetries := utils.GetEnvAsInt("OPENAI_MAX_RETRIES", 3, log)

	return &scorerClient{
		log:        log.With("service", "ScorerClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: maxRetries,
	}, nil
}

const scoreSystemPrompt = `You rate marketplace reviews. Given review text, return JSON with keys
"quality", "reliability", "price" and "overall", each a number between 0 and 5.
Use 0 for any category the text does not mention; "overall" must always be set
when the text expresses any sentiment at all.`

const summarizeSystemPrompt = `You maintain a rolling summary of reviews for one business. Given the prior
summary, how many reviews it covers, and one new review, return JSON with a
"summary" string and an "insights" object mapping "quality", "reliability" and
"price" to one-sentence observations (omit categories with nothing to say).`

func (c *scorerClient) Score(ctx context.Context, content string) (*CategoryScores, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty review content")
	}
	var out CategoryScores
	if err := c.generateJSON(ctx, scoreSystemPrompt, content, &out); err != nil {
		return nil, err
	}
	out.Quality = ratings.Clamp(out.Quality, 0, 5)
	out.Reliability = ratings.Clamp(out.Reliability, 0, 5)
	out.Price = ratings.Clamp(out.Price, 0, 5)
	out.Overall = ratings.Clamp(out.Overall, 0, 5)
	return &out, nil
}

func (c *scorerClient) Summarize(ctx context.Context, priorSummary string, priorCount int, newContent string) (*ReviewDigest, error) {
	user := fmt.Sprintf("Prior summary (%d reviews):\n%s\n\nNew review:\n%s", priorCount, priorSummary, strings.TrimSpace(newContent))
	var out ReviewDigest
	if err := c.generateJSON(ctx, summarizeSystemPrompt, user, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Temperature float64 `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *scorerClient) generateJSON(ctx context.Context, system, user string, out any) error {
	req := chatRequest{Model: c.model}
	req.Messages = []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	req.ResponseFormat.Type = "json_object"

	var resp chatResponse
	if err := c.do(ctx, "POST", "/v1/chat/completions", req, &resp); err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("scorer returned no choices")
	}
	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("scorer returned invalid json: %w", err)
	}
	return nil
}

type scorerHTTPError struct {
	StatusCode int
	Body       string
}

func (e *scorerHTTPError) Error() string {
	return fmt.Sprintf("scorer http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var httpErr *scorerHTTPError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return false
}

func jitterSleep(base time.Duration) time.Duration {
	// +/- 20%
	if base <= 0 {
		return 0
	}
	delta := base.Seconds() * 0.2
	low := base.Seconds() - delta
	v := low + rand.Float64()*2*delta
	return time.Duration(v * float64(time.Second))
}

func (c *scorerClient) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &scorerHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *scorerClient) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("scorer decode error: %w", uErr)
			}
			return nil
		}

		if !isRetryableErr(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := backoff
		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		sleepFor = jitterSleep(sleepFor)

		c.log.Warn("Scorer request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}
