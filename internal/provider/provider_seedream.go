package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	volcModel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"
)

// Seedream generates images through the Volcengine Ark runtime streaming API.
// Docs: https://www.volcengine.com/docs/82379/1824121
type Seedream struct {
	apiKey string
	model  string
}

func NewSeedream(apiKey, model string) *Seedream {
	return &Seedream{apiKey: strings.TrimSpace(apiKey), model: model}
}

func (s *Seedream) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if s.apiKey == "" {
		return nil, errors.New("volcengine api key is not configured")
	}

	client := arkruntime.NewClientWithApiKey(s.apiKey)

	sequential := volcModel.SequentialImageGeneration("disabled")
	maxImages := EffectiveOutputs(req)
	if maxImages > 1 {
		sequential = volcModel.SequentialImageGeneration("auto")
	}

	generateReq := volcModel.GenerateImagesRequest{
		Model:                     s.model,
		Prompt:                    strings.TrimSpace(req.Prompt),
		Image:                     req.ReferenceImages,
		Size:                      volcengine.String(seedreamSizeForAspect(req.AspectRatio)),
		ResponseFormat:            volcengine.String(volcModel.GenerateImagesResponseFormatURL),
		Watermark:                 volcengine.Bool(false),
		SequentialImageGeneration: &sequential,
		SequentialImageGenerationOptions: &volcModel.SequentialImageGenerationOptions{
			MaxImages: &maxImages,
		},
	}

	logrus.WithFields(logrus.Fields{
		"model":      s.model,
		"max_images": maxImages,
	}).Info("seedream_generate_start")

	stream, err := client.GenerateImagesStreaming(ctx, generateReq)
	if err != nil {
		return nil, fmt.Errorf("seedream submit: %w", err)
	}
	defer stream.Close()

	var outputs []Output
	var lastErr string

	for {
		recv, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("seedream stream: %w", err)
		}

		switch recv.Type {
		case "image_generation.partial_failed":
			if recv.Error != nil {
				lastErr = recv.Error.Message
				logrus.WithFields(logrus.Fields{
					"code":    recv.Error.Code,
					"message": recv.Error.Message,
				}).Warn("seedream_partial_failed")
				if strings.EqualFold(recv.Error.Code, "InternalServiceError") {
					return nil, fmt.Errorf("seedream error: %s", recv.Error.Message)
				}
			}
		case "image_generation.partial_succeeded":
			if recv.Error == nil && recv.Url != nil && strings.TrimSpace(*recv.Url) != "" {
				outputs = append(outputs, Output{URL: *recv.Url})
			}
		}
	}

	if len(outputs) == 0 {
		if lastErr != "" {
			return nil, fmt.Errorf("seedream error: %s", lastErr)
		}
		return nil, errors.New("seedream response did not include images")
	}

	return &Response{Status: StatusCompleted, Outputs: outputs}, nil
}

// seedreamSizeForAspect maps catalog aspect ratios to Seedream's recommended
// pixel sizes.
func seedreamSizeForAspect(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "4:3":
		return "2304x1728"
	case "16:9":
		return "2560x1440"
	default:
		return "2048x2048"
	}
}
