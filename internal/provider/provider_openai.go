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

	"mediaforge/internal/utils"
)

const openaiAPIBaseURL = "https://api.openai.com/v1"

// OpenAIImages generates images through the synchronous
// /v1/images/generations endpoint.
type OpenAIImages struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewOpenAIImages(apiKey, model string) *OpenAIImages {
	return &OpenAIImages{
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		baseURL:    openaiAPIBaseURL,
		httpClient: &http.Client{Timeout: 180 * time.Second},
	}
}

func (o *OpenAIImages) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if o.apiKey == "" {
		return nil, errors.New("openai api key is not configured")
	}

	payload := map[string]any{
		"model":  o.model,
		"prompt": strings.TrimSpace(req.Prompt),
		"n":      EffectiveOutputs(req),
	}
	if size := openaiSizeForAspect(req.AspectRatio); size != "" {
		payload["size"] = size
	}
	for k, v := range req.Extra {
		payload[k] = v
	}

	logrus.WithFields(logrus.Fields{
		"model": o.model,
		"n":     EffectiveOutputs(req),
	}).Info("openai_images_generate_start")

	bs, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/images/generations", bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("openai create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("openai http %d: %s", resp.StatusCode, openaiErrorMessage(body))
	}

	var decoded openaiImagesResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("openai decode response: %w", err)
	}

	outputs := make([]Output, 0, len(decoded.Data))
	for _, item := range decoded.Data {
		switch {
		case strings.TrimSpace(item.URL) != "":
			outputs = append(outputs, Output{URL: item.URL})
		case strings.TrimSpace(item.B64JSON) != "":
			outputs = append(outputs, Output{URL: utils.EnsureDataURL(item.B64JSON)})
		}
	}
	if len(outputs) == 0 {
		return nil, errors.New("openai response did not include images")
	}

	return &Response{
		ID:      decoded.ID,
		Status:  StatusCompleted,
		Outputs: outputs,
		Metrics: Metrics{
			InputTokens:  decoded.Usage.InputTokens,
			OutputTokens: decoded.Usage.OutputTokens,
		},
	}, nil
}

// openaiSizeForAspect maps catalog aspect ratios to the sizes gpt-image-1
// accepts. Unknown ratios fall through to the API default.
func openaiSizeForAspect(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "1:1":
		return "1024x1024"
	case "3:2":
		return "1536x1024"
	case "2:3":
		return "1024x1536"
	}
	return ""
}

func openaiErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(body))
}

type openaiImagesResponse struct {
	ID   string `json:"id"`
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
