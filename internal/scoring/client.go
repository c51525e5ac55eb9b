// Package scoring provides the HTTP client for the remote risk scoring
// service. All outbound calls are routed through a circuit breaker and a
// bounded retry loop: transport failures and 5xx responses are retried with
// exponential backoff, 4xx responses are permanent.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker/v2"

	"cardiometrix/internal/types"
)

// MaxBatchSize caps a single ScoreBatch call. Larger cohorts must be chunked
// by the caller.
const MaxBatchSize = 500

// errorScorerUnavailable is the terminal Error value recorded on a snapshot
// when the scorer could not produce a score.
const errorScorerUnavailable = "scorer_unavailable"

// modelVersionUnavailable marks snapshots that never reached the model.
const modelVersionUnavailable = "unavailable"

// RetryPolicy configures the retry behavior for scorer calls. Delay doubles
// each attempt starting from BaseDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy returns the production retry policy: three attempts with
// a 120ms base delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 120 * time.Millisecond}
}

// Config holds the settings for a scorer Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retry   RetryPolicy
}

// Client calls the remote scoring service. It is safe for concurrent use.
type Client struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	retry    RetryPolicy
	validate *validator.Validate
	sleepFn  func(time.Duration)
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithSleepFunc overrides the sleep function used between retries.
// This is intended for testing to avoid real delays.
func WithSleepFunc(fn func(time.Duration)) Option {
	return func(c *Client) {
		c.sleepFn = fn
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// NewClient creates a scorer Client from the given config.
func NewClient(cfg Config, opts ...Option) *Client {
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "risk-scorer",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	c := &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
		breaker:  cb,
		retry:    retry,
		validate: validator.New(),
		sleepFn:  time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// scoreResponse is the wire shape of a single score from the remote model.
// The validate tags are the trust boundary: a response that fails them is
// treated the same as a transport failure.
type scoreResponse struct {
	Risk         *float64       `json:"risk" validate:"required,gte=0,lte=1"`
	Band         types.RiskBand `json:"band" validate:"required,oneof=green amber red"`
	Drivers      []types.Driver `json:"drivers" validate:"dive"`
	ModelVersion string         `json:"model_version" validate:"required"`
	AsOfDate     string         `json:"as_of_date"`
}

// ScoreOne scores a single feature vector. It never returns an error: any
// failure (circuit open, retries exhausted, malformed response) degrades to
// an unknown-band result so a daily run records the outage instead of
// aborting the user.
func (c *Client) ScoreOne(ctx context.Context, fv types.FeatureVectorV1) types.RiskScoreResult {
	resp, err := c.post(ctx, "/score", fv)
	if err != nil {
		return unavailableResult(fv.AsOfDate)
	}
	result, err := c.toResult(resp, fv.AsOfDate)
	if err != nil {
		return unavailableResult(fv.AsOfDate)
	}
	return result
}

// ScoreBatch scores up to MaxBatchSize vectors in one call. Unlike ScoreOne
// it propagates failures, because a batch caller needs to distinguish "the
// scorer is down" from per-user degradation.
func (c *Client) ScoreBatch(ctx context.Context, fvs []types.FeatureVectorV1) ([]types.RiskScoreResult, error) {
	if len(fvs) == 0 {
		return nil, nil
	}
	if len(fvs) > MaxBatchSize {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationBatchSize,
			fmt.Sprintf("batch of %d exceeds the %d vector limit", len(fvs), MaxBatchSize),
			nil,
			map[string]any{"batch_size": len(fvs), "max": MaxBatchSize},
		)
	}

	body := struct {
		Items []types.FeatureVectorV1 `json:"items"`
	}{Items: fvs}

	resp, err := c.post(ctx, "/score/batch", body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Items []scoreResponse `json:"items"`
	}
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamScorerUnavailable,
			"scorer returned malformed batch response", err)
	}
	if len(parsed.Items) != len(fvs) {
		return nil, types.NewAppError(types.ErrCodeUpstreamScorerUnavailable,
			fmt.Sprintf("scorer returned %d results for %d vectors", len(parsed.Items), len(fvs)), nil)
	}

	out := make([]types.RiskScoreResult, len(parsed.Items))
	for i, sr := range parsed.Items {
		result, err := c.validateResult(sr, fvs[i].AsOfDate)
		if err != nil {
			return nil, err
		}
		out[i] = result
	}
	return out, nil
}

// post sends a JSON POST and returns the response body. It retries on
// transport errors and 5xx; 4xx is permanent and maps to a rejected-input
// error.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to encode scorer request", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			c.sleepFn(c.retry.BaseDelay << (attempt - 1))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+path, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
				"failed to build scorer request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if reqID := types.GetRequestID(ctx); reqID != "" {
			req.Header.Set("X-Request-ID", reqID)
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 {
				return r, fmt.Errorf("scorer returned %d", r.StatusCode)
			}
			return r, nil
		})

		if err != nil {
			lastErr = err
			if resp != nil {
				resp.Body.Close()
			}
			// An open breaker will not recover within this call's retry
			// budget, so stop immediately.
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				break
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode >= 400 {
			// 4xx means the scorer rejected the vector itself. Retrying the
			// same payload cannot succeed.
			return nil, types.NewAppErrorWithDetails(
				types.ErrCodeUpstreamScorerRejected,
				fmt.Sprintf("scorer rejected input with status %d", resp.StatusCode),
				nil,
				map[string]any{"status": resp.StatusCode, "body": string(data)},
			)
		}
		return data, nil
	}

	return nil, types.NewAppError(types.ErrCodeUpstreamScorerUnavailable,
		"scorer unavailable after retries", lastErr)
}

func (c *Client) toResult(body []byte, asOfDate string) (types.RiskScoreResult, error) {
	var sr scoreResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return types.RiskScoreResult{}, fmt.Errorf("malformed scorer response: %w", err)
	}
	return c.validateResult(sr, asOfDate)
}

// validateResult enforces the response schema and normalizes the result:
// drivers are truncated to the retention cap and the as-of date falls back to
// the request's when the scorer omits it.
func (c *Client) validateResult(sr scoreResponse, asOfDate string) (types.RiskScoreResult, error) {
	if err := c.validate.Struct(sr); err != nil {
		return types.RiskScoreResult{}, types.NewAppError(
			types.ErrCodeUpstreamScorerUnavailable,
			"scorer response failed schema validation", err)
	}

	drivers := sr.Drivers
	if len(drivers) > types.MaxDrivers {
		drivers = drivers[:types.MaxDrivers]
	}
	date := sr.AsOfDate
	if date == "" {
		date = asOfDate
	}

	return types.RiskScoreResult{
		Risk:         sr.Risk,
		Band:         sr.Band,
		Drivers:      drivers,
		ModelVersion: sr.ModelVersion,
		AsOfDate:     date,
	}, nil
}

// unavailableResult is the degraded outcome recorded when scoring failed.
func unavailableResult(asOfDate string) types.RiskScoreResult {
	return types.RiskScoreResult{
		Band:         types.BandUnknown,
		ModelVersion: modelVersionUnavailable,
		AsOfDate:     asOfDate,
		Error:        errorScorerUnavailable,
	}
}

// InsufficientDataResult is the outcome recorded when the coverage gate was
// not cleared and the scorer was never called.
func InsufficientDataResult(asOfDate string) types.RiskScoreResult {
	return types.RiskScoreResult{
		Band:         types.BandUnknown,
		ModelVersion: modelVersionUnavailable,
		AsOfDate:     asOfDate,
		Error:        "insufficient_data",
	}
}
