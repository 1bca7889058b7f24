package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	replicateAPIBaseURL = "https://api.replicate.com/v1"
)

// Replicate runs image models through the Replicate predictions API. The
// submit uses a sync-preferred request; if the prediction is still running
// when the preference window closes, the adapter polls until terminal.
type Replicate struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewReplicate builds an adapter for one Replicate model, e.g.
// "black-forest-labs/flux-1.1-pro".
func NewReplicate(apiKey, model string) *Replicate {
	return &Replicate{
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		baseURL:    replicateAPIBaseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (r *Replicate) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if r.apiKey == "" {
		return nil, errors.New("replicate api key is not configured")
	}

	input := r.buildInput(req)

	logrus.WithFields(logrus.Fields{
		"model":       r.model,
		"num_outputs": EffectiveOutputs(req),
	}).Info("replicate_generate_start")

	prediction, err := r.createPrediction(ctx, input)
	if err != nil {
		return nil, err
	}

	if !isReplicateTerminal(prediction.Status) {
		result, err := WaitForTask(ctx, r, prediction.ID, ReplicatePollConfig)
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	return prediction.toResponse()
}

// CheckStatus fetches a prediction by id and maps it to the uniform response.
func (r *Replicate) CheckStatus(ctx context.Context, id string) (*Response, error) {
	prediction, err := r.fetchPrediction(ctx, id)
	if err != nil {
		return nil, err
	}
	return prediction.toResponse()
}

// Poll implements TaskPoller for WaitForTask.
func (r *Replicate) Poll(ctx context.Context, taskID string) (*AsyncTask, error) {
	prediction, err := r.fetchPrediction(ctx, taskID)
	if err != nil {
		return nil, err
	}

	task := &AsyncTask{ID: prediction.ID, Status: MapTaskStatus(prediction.Status)}
	switch task.Status {
	case TaskStatusSucceeded:
		result, err := prediction.toResponse()
		if err != nil {
			task.Status = TaskStatusFailed
			task.Error = err
			return task, nil
		}
		task.Result = result
	case TaskStatusFailed:
		task.Error = fmt.Errorf("replicate prediction failed: %s", prediction.errorMessage())
	}
	return task, nil
}

func (r *Replicate) buildInput(req Request) map[string]any {
	input := map[string]any{
		"prompt":      strings.TrimSpace(req.Prompt),
		"num_outputs": EffectiveOutputs(req),
	}
	if req.AspectRatio != "" {
		input["aspect_ratio"] = req.AspectRatio
	}
	if req.Seed != nil {
		input["seed"] = *req.Seed
	}
	if len(req.ReferenceImages) > 0 {
		input["image_prompt"] = req.ReferenceImages[0]
	}
	for k, v := range req.Extra {
		input[k] = v
	}
	return input
}

func (r *Replicate) createPrediction(ctx context.Context, input map[string]any) (*replicatePrediction, error) {
	payload := map[string]any{"input": input}
	bs, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("replicate marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s/predictions", r.baseURL, r.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("replicate create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Prefer", "wait=60")

	return r.doPrediction(httpReq)
}

func (r *Replicate) fetchPrediction(ctx context.Context, id string) (*replicatePrediction, error) {
	url := fmt.Sprintf("%s/predictions/%s", r.baseURL, id)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("replicate create poll request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)

	return r.doPrediction(httpReq)
}

func (r *Replicate) doPrediction(httpReq *http.Request) (*replicatePrediction, error) {
	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("replicate request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("replicate read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("replicate http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var prediction replicatePrediction
	if err := json.Unmarshal(body, &prediction); err != nil {
		return nil, fmt.Errorf("replicate decode response: %w", err)
	}
	return &prediction, nil
}

func isReplicateTerminal(status string) bool {
	switch toLowerASCII(status) {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

type replicatePrediction struct {
	ID      string              `json:"id"`
	Status  string              `json:"status"`
	Output  replicateOutputList `json:"output"`
	Error   json.RawMessage     `json:"error"`
	Metrics struct {
		PredictTime *float64 `json:"predict_time"`
	} `json:"metrics"`
}

func (p *replicatePrediction) errorMessage() string {
	if len(p.Error) == 0 || string(p.Error) == "null" {
		return "unknown error"
	}
	var msg string
	if err := json.Unmarshal(p.Error, &msg); err == nil && msg != "" {
		return msg
	}
	return strings.TrimSpace(string(p.Error))
}

func (p *replicatePrediction) toResponse() (*Response, error) {
	switch MapTaskStatus(p.Status) {
	case TaskStatusSucceeded:
	case TaskStatusFailed, TaskStatusCancelled:
		return nil, fmt.Errorf("replicate prediction failed: %s", p.errorMessage())
	default:
		return &Response{ID: p.ID, Status: StatusProcessing}, nil
	}

	if len(p.Output) == 0 {
		return nil, errors.New("replicate prediction completed without output")
	}

	outputs := make([]Output, 0, len(p.Output))
	for _, url := range p.Output {
		if strings.TrimSpace(url) == "" {
			continue
		}
		outputs = append(outputs, Output{URL: url})
	}
	if len(outputs) == 0 {
		return nil, errors.New("replicate prediction completed without output")
	}

	return &Response{
		ID:      p.ID,
		Status:  StatusCompleted,
		Outputs: outputs,
		Metrics: Metrics{PredictTime: p.Metrics.PredictTime},
	}, nil
}

// replicateOutputList accepts both a bare string and a string array, which
// Replicate uses interchangeably depending on num_outputs.
type replicateOutputList []string

func (l *replicateOutputList) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		*l = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}
