package journalsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

// ExternalJournal is the external system's contract: fetch returns
// (nil, nil) for an absent entity, push writes one entity's payload.
type ExternalJournal interface {
	Fetch(ctx context.Context, entityType, entityID string) (map[string]any, error)
	Push(ctx context.Context, entityType, entityID string, payload map[string]any) error
}

// HTTPJournal talks to an OJS-style REST API. All calls run through a
// circuit breaker so a flapping external system fails fast instead of
// tying up sync workers.
type HTTPJournal struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPJournal builds a client for the external journal API.
func NewHTTPJournal(baseURL, apiKey string) *HTTPJournal {
	return &HTTPJournal{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "external-journal",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Fetch loads one entity's payload; an absent entity is (nil, nil).
func (j *HTTPJournal) Fetch(ctx context.Context, entityType, entityID string) (map[string]any, error) {
	result, err := j.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.entityURL(entityType, entityID), nil)
		if err != nil {
			return nil, err
		}
		j.authorize(req)

		resp, err := j.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, nil
		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
		}

		var payload map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, err
		}
		return payload, nil
	})
	if err != nil {
		return nil, fmt.Errorf("journalsync: fetch %s/%s: %w", entityType, entityID, err)
	}
	if result == nil {
		return nil, nil
	}
	return result.(map[string]any), nil
}

// Push writes one entity's payload.
func (j *HTTPJournal) Push(ctx context.Context, entityType, entityID string, payload map[string]any) error {
	_, err := j.breaker.Execute(func() (any, error) {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, j.entityURL(entityType, entityID), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		j.authorize(req)

		resp, err := j.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("journalsync: push %s/%s: %w", entityType, entityID, err)
	}
	return nil
}

func (j *HTTPJournal) entityURL(entityType, entityID string) string {
	return fmt.Sprintf("%s/api/v1/%s/%s", j.baseURL, url.PathEscape(entityType), url.PathEscape(entityID))
}

func (j *HTTPJournal) authorize(req *http.Request) {
	if j.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+j.apiKey)
	}
}
