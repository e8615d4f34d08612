package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/maninfini/sitebot/internal/knowledge"
)

const learnTimeout = 5 * time.Second

// Learner receives extracted content batches.
type Learner interface {
	Learn(ctx context.Context, typ knowledge.ContentType, content any) error
}

// LearnerFunc adapts a function to Learner.
type LearnerFunc func(ctx context.Context, typ knowledge.ContentType, content any) error

func (f LearnerFunc) Learn(ctx context.Context, typ knowledge.ContentType, content any) error {
	return f(ctx, typ, content)
}

// ContentLearner is implemented by chat.Service.
type ContentLearner interface {
	Learn(typ knowledge.ContentType, content json.RawMessage) (knowledge.Stats, error)
}

// NewLocalLearner feeds batches straight into an in-process learner.
func NewLocalLearner(l ContentLearner) Learner {
	return LearnerFunc(func(ctx context.Context, typ knowledge.ContentType, content any) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := json.Marshal(content)
		if err != nil {
			return fmt.Errorf("marshaling %s batch: %w", typ, err)
		}
		_, err = l.Learn(typ, raw)
		return err
	})
}

// HTTPLearner posts batches to a running server's learn endpoint.
type HTTPLearner struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewHTTPLearner sends token as a bearer credential when it is non-empty.
func NewHTTPLearner(url, token string) *HTTPLearner {
	return &HTTPLearner{
		url:        url,
		token:      token,
		httpClient: &http.Client{Timeout: learnTimeout},
	}
}

type learnRequest struct {
	Content any                   `json:"content"`
	Type    knowledge.ContentType `json:"type"`
}

func (l *HTTPLearner) Learn(ctx context.Context, typ knowledge.ContentType, content any) error {
	body, err := json.Marshal(learnRequest{Content: content, Type: typ})
	if err != nil {
		return fmt.Errorf("marshaling %s batch: %w", typ, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if l.token != "" {
		req.Header.Set("Authorization", "Bearer "+l.token)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting %s batch: %w", typ, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("learn endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
