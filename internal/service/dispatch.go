package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"mediaforge/internal/utils"
)

const (
	dispatchAttempts  = 3
	dispatchBaseDelay = 2 * time.Second
	dispatchTimeout   = 30 * time.Second
)

// Dispatcher hands a generation id to the asynchronous processing endpoint.
type Dispatcher interface {
	Dispatch(generationID uint)
}

// HTTPDispatcher posts generation ids back to this server's internal
// processing endpoint, fire-and-forget. Delivery failures never fail the
// submitting request: after the retry budget is spent the generation stays in
// processing until the admin sweep recovers it.
type HTTPDispatcher struct {
	endpoint      string
	internalToken string
	httpClient    *http.Client
	baseDelay     time.Duration
}

func NewHTTPDispatcher(publicBaseURL, internalToken string) *HTTPDispatcher {
	base := strings.TrimRight(strings.TrimSpace(publicBaseURL), "/")
	return &HTTPDispatcher{
		endpoint:      base + "/api/internal/generations/process",
		internalToken: internalToken,
		httpClient:    &http.Client{Timeout: dispatchTimeout},
		baseDelay:     dispatchBaseDelay,
	}
}

// Dispatch returns immediately; delivery runs in a goroutine.
func (d *HTTPDispatcher) Dispatch(generationID uint) {
	go d.deliver(generationID)
}

func (d *HTTPDispatcher) deliver(generationID uint) {
	requestID := utils.NewRequestID()
	log := logrus.WithFields(logrus.Fields{
		"generation_id": generationID,
		"request_id":    requestID,
	})

	for attempt := 1; attempt <= dispatchAttempts; attempt++ {
		definitive, err := d.post(generationID, requestID)
		if err == nil {
			log.WithField("attempt", attempt).Info("dispatch_delivered")
			return
		}

		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err,
		}).Warn("dispatch_attempt_failed")

		if definitive {
			return
		}
		if attempt < dispatchAttempts {
			time.Sleep(time.Duration(attempt) * d.baseDelay)
		}
	}

	log.Error("dispatch_exhausted, generation left for recovery sweep")
}

// post performs one delivery attempt. The definitive flag reports whether
// retrying is pointless: the endpoint answered with a non-retryable status.
func (d *HTTPDispatcher) post(generationID uint, requestID string) (definitive bool, err error) {
	payload, err := json.Marshal(map[string]uint{"generation_id": generationID})
	if err != nil {
		return true, fmt.Errorf("marshal dispatch payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return true, fmt.Errorf("create dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Token", d.internalToken)
	req.Header.Set("X-Request-ID", requestID)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("dispatch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, nil
	}
	// 4xx answers are definitive: the endpoint saw the request and refused it.
	if resp.StatusCode < 500 {
		return true, fmt.Errorf("dispatch rejected: http %d", resp.StatusCode)
	}
	return false, fmt.Errorf("dispatch failed: http %d", resp.StatusCode)
}
