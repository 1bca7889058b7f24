package provider

import (
	"context"
	"errors"
	"strings"
)

// Adapter result statuses, shared across all provider families.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Metadata keys set by delegating adapters so callers can tell adapter-level
// delegation apart from resolver-level routing.
const (
	MetaRoutedFrom = "routed_from"
	MetaRoutedTo   = "routed_to"
)

// Request is the uniform generation request handed to every adapter. The
// lifecycle controller merges the generation's parameter bag into it before
// the call; bag values win over prompt-level fields.
type Request struct {
	Prompt          string
	NegativePrompt  string
	AspectRatio     string
	NumOutputs      int
	Seed            *int64
	ReferenceImages []string
	BeginFrame      string
	EndFrame        string
	DurationSeconds int

	// Extra carries provider-specific knobs verbatim.
	Extra map[string]interface{}
}

// Output is one artifact reported by a provider.
type Output struct {
	URL      string
	Width    int
	Height   int
	Duration *float64
}

// Metrics carries optional provider-reported measurements.
type Metrics struct {
	PredictTime  *float64
	InputTokens  int
	OutputTokens int
}

// Response is the uniform generation result.
type Response struct {
	ID       string
	Status   string
	Outputs  []Output
	Error    string
	Metadata map[string]string
	Metrics  Metrics
}

// Adapter is the single-capability contract every provider family implements.
type Adapter interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// StatusChecker is implemented by adapters whose upstream supports polling a
// previously submitted generation. Adapters without it do not silently no-op;
// callers must check for the interface and report the capability gap.
type StatusChecker interface {
	CheckStatus(ctx context.Context, id string) (*Response, error)
}

// ErrEmptyPrompt is returned before any upstream call when the prompt is
// empty or whitespace-only.
var ErrEmptyPrompt = errors.New("prompt is required")

// ValidateRequest performs the shared pre-flight validation.
func ValidateRequest(req Request) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return ErrEmptyPrompt
	}
	return nil
}

// EffectiveOutputs floors the requested output count at one.
func EffectiveOutputs(req Request) int {
	if req.NumOutputs < 1 {
		return 1
	}
	return req.NumOutputs
}
