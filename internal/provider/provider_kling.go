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

const klingAPIBaseURL = "https://api.klingai.com/v1"

// Kling generates video through the Kling task API: a create call returns a
// task id which is polled until the videos are ready.
type Kling struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	poll       PollConfig
}

func NewKling(apiKey, model string) *Kling {
	return &Kling{
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		baseURL:    klingAPIBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		poll:       DefaultPollConfig,
	}
}

func (k *Kling) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if k.apiKey == "" {
		return nil, errors.New("kling api key is not configured")
	}

	payload := map[string]any{
		"model_name": k.model,
		"prompt":     strings.TrimSpace(req.Prompt),
	}
	endpoint := "/videos/text2video"
	if len(req.ReferenceImages) > 0 {
		endpoint = "/videos/image2video"
		payload["image"] = req.ReferenceImages[0]
		if req.EndFrame != "" {
			payload["image_tail"] = req.EndFrame
		}
	}
	if req.NegativePrompt != "" {
		payload["negative_prompt"] = req.NegativePrompt
	}
	if req.AspectRatio != "" {
		payload["aspect_ratio"] = req.AspectRatio
	}
	if req.DurationSeconds > 0 {
		payload["duration"] = fmt.Sprintf("%d", req.DurationSeconds)
	}
	for key, v := range req.Extra {
		payload[key] = v
	}

	logrus.WithFields(logrus.Fields{
		"model":    k.model,
		"endpoint": endpoint,
	}).Info("kling_generate_start")

	body, err := k.doJSON(ctx, http.MethodPost, k.baseURL+endpoint, payload)
	if err != nil {
		return nil, err
	}

	var created klingEnvelope
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("kling decode submission: %w", err)
	}
	if created.Code != 0 {
		return nil, fmt.Errorf("kling error %d: %s", created.Code, created.Message)
	}
	if created.Data.TaskID == "" {
		return nil, errors.New("kling task id missing")
	}

	return WaitForTask(ctx, k, created.Data.TaskID, k.poll)
}

// CheckStatus fetches a task by id and maps it to the uniform response.
func (k *Kling) CheckStatus(ctx context.Context, id string) (*Response, error) {
	task, err := k.Poll(ctx, id)
	if err != nil {
		return nil, err
	}
	switch task.Status {
	case TaskStatusSucceeded:
		return task.Result, nil
	case TaskStatusFailed, TaskStatusCancelled:
		msg := "task failed"
		if task.Error != nil {
			msg = task.Error.Error()
		}
		return &Response{ID: id, Status: StatusFailed, Error: msg}, nil
	default:
		return &Response{ID: id, Status: StatusProcessing}, nil
	}
}

// Poll implements TaskPoller against the task query endpoint.
func (k *Kling) Poll(ctx context.Context, taskID string) (*AsyncTask, error) {
	body, err := k.doJSON(ctx, http.MethodGet, k.baseURL+"/videos/text2video/"+taskID, nil)
	if err != nil {
		return nil, err
	}

	var envelope klingEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("kling decode task: %w", err)
	}
	if envelope.Code != 0 {
		return nil, fmt.Errorf("kling error %d: %s", envelope.Code, envelope.Message)
	}

	data := envelope.Data
	task := &AsyncTask{ID: data.TaskID, Status: MapTaskStatus(data.TaskStatus)}

	switch task.Status {
	case TaskStatusSucceeded:
		outputs := data.videoOutputs()
		if len(outputs) == 0 {
			task.Status = TaskStatusFailed
			task.Error = errors.New("kling task succeeded without videos")
			return task, nil
		}
		task.Result = &Response{ID: data.TaskID, Status: StatusCompleted, Outputs: outputs}
	case TaskStatusFailed:
		msg := strings.TrimSpace(data.TaskStatusMsg)
		if msg == "" {
			msg = "unknown error"
		}
		task.Error = fmt.Errorf("kling task failed: %s", msg)
	}
	return task, nil
}

func (k *Kling) doJSON(ctx context.Context, method, url string, payload map[string]any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		bs, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("kling marshal request: %w", err)
		}
		reader = bytes.NewReader(bs)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("kling create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+k.apiKey)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := k.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("kling request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kling read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("kling http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

type klingEnvelope struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Data    klingTaskData `json:"data"`
}

type klingTaskData struct {
	TaskID        string `json:"task_id"`
	TaskStatus    string `json:"task_status"`
	TaskStatusMsg string `json:"task_status_msg"`
	TaskResult    struct {
		Videos []struct {
			URL      string      `json:"url"`
			Duration json.Number `json:"duration"`
		} `json:"videos"`
	} `json:"task_result"`
}

func (d *klingTaskData) videoOutputs() []Output {
	videos := d.TaskResult.Videos
	outputs := make([]Output, 0, len(videos))
	for _, video := range videos {
		url := strings.TrimSpace(video.URL)
		if url == "" {
			continue
		}
		out := Output{URL: url}
		if seconds, err := video.Duration.Float64(); err == nil && seconds > 0 {
			out.Duration = &seconds
		}
		outputs = append(outputs, out)
	}
	return outputs
}
