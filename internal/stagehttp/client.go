// Package stagehttp implements stage functions by posting each job to an
// external service that owns the stage's business logic.
package stagehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SirClappington/guildq/internal/domain"
	"github.com/SirClappington/guildq/internal/worker"
)

const maxResponseBytes = 1 << 20

type Client struct {
	http *http.Client
}

func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

// Func returns a stage function for name that POSTs the job as JSON to
// endpoint and decodes the response body as that stage's result.
func (c *Client) Func(name domain.QueueName, endpoint string) worker.StageFunc {
	return func(ctx context.Context, job domain.Job) (domain.Result, error) {
		body, err := json.Marshal(job)
		if err != nil {
			return nil, fmt.Errorf("encode %s job: %w", name, err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Flow-Id", string(job.Meta().FlowID))

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s stage: %w", name, err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("%s stage: read response: %w", name, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{Stage: name, Code: resp.StatusCode, Body: string(payload)}
		}
		return domain.DecodeResult(name, payload)
	}
}

// StatusError is a non-2xx answer from a stage service.
type StatusError struct {
	Stage domain.QueueName
	Code  int
	Body  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s stage: status %d: %s", e.Stage, e.Code, e.Body)
}
