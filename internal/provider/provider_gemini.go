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

const geminiAPIBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiVeo generates video through the Gemini API's Veo long-running
// operations: predictLongRunning to submit, then operation polling until the
// generated videos are available.
type GeminiVeo struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	poll       PollConfig
}

func NewGeminiVeo(apiKey, model string) *GeminiVeo {
	return &GeminiVeo{
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		baseURL:    geminiAPIBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		poll:       DefaultPollConfig,
	}
}

func (g *GeminiVeo) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if g.apiKey == "" {
		return nil, errors.New("gemini api key is not configured")
	}

	instance := map[string]any{"prompt": strings.TrimSpace(req.Prompt)}
	parameters := map[string]any{}
	if req.NegativePrompt != "" {
		parameters["negativePrompt"] = req.NegativePrompt
	}
	if req.AspectRatio != "" {
		parameters["aspectRatio"] = req.AspectRatio
	}
	if req.DurationSeconds > 0 {
		parameters["durationSeconds"] = req.DurationSeconds
	}
	for k, v := range req.Extra {
		parameters[k] = v
	}

	payload := map[string]any{"instances": []map[string]any{instance}}
	if len(parameters) > 0 {
		payload["parameters"] = parameters
	}

	logrus.WithFields(logrus.Fields{
		"model":        g.model,
		"aspect_ratio": req.AspectRatio,
	}).Info("gemini_veo_generate_start")

	bs, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gemini marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:predictLongRunning", g.baseURL, g.model)
	body, err := g.doJSON(ctx, http.MethodPost, url, bs)
	if err != nil {
		return nil, err
	}

	var submitted geminiOperation
	if err := json.Unmarshal(body, &submitted); err != nil {
		return nil, fmt.Errorf("gemini decode submission: %w", err)
	}
	if submitted.Name == "" {
		return nil, errors.New("gemini operation name missing")
	}

	return WaitForTask(ctx, g, submitted.Name, g.poll)
}

// Poll implements TaskPoller against the operations endpoint. The task id is
// the operation name returned at submission.
func (g *GeminiVeo) Poll(ctx context.Context, taskID string) (*AsyncTask, error) {
	url := fmt.Sprintf("%s/%s", g.baseURL, strings.TrimPrefix(taskID, "/"))
	body, err := g.doJSON(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var op geminiOperation
	if err := json.Unmarshal(body, &op); err != nil {
		return nil, fmt.Errorf("gemini decode operation: %w", err)
	}

	task := &AsyncTask{ID: op.Name}
	if !op.Done {
		task.Status = TaskStatusRunning
		return task, nil
	}

	if op.Error != nil {
		task.Status = TaskStatusFailed
		task.Error = fmt.Errorf("gemini operation error %d: %s", op.Error.Code, op.Error.Message)
		return task, nil
	}

	outputs := op.videoOutputs()
	if len(outputs) == 0 {
		task.Status = TaskStatusFailed
		task.Error = errors.New("gemini operation completed without videos")
		return task, nil
	}

	task.Status = TaskStatusSucceeded
	task.Result = &Response{ID: op.Name, Status: StatusCompleted, Outputs: outputs}
	return task, nil
}

func (g *GeminiVeo) doJSON(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("gemini create request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", g.apiKey)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gemini read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gemini http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

type geminiOperation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Error    *geminiStatus `json:"error"`
	Response struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

type geminiStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (op *geminiOperation) videoOutputs() []Output {
	samples := op.Response.GenerateVideoResponse.GeneratedSamples
	outputs := make([]Output, 0, len(samples))
	for _, sample := range samples {
		uri := strings.TrimSpace(sample.Video.URI)
		if uri == "" {
			continue
		}
		outputs = append(outputs, Output{URL: uri})
	}
	return outputs
}
