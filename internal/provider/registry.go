package provider

import (
	"strings"

	"mediaforge/internal/config"
)

// Model types.
const (
	ModelTypeImage = "image"
	ModelTypeVideo = "video"
)

// ModelConfig describes a catalog model: identity, capabilities, and pricing
// hints. Instances are immutable for the process lifetime.
type ModelConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Provider    string `json:"provider"`
	Description string `json:"description,omitempty"`

	SupportsNegativePrompt  bool     `json:"supports_negative_prompt"`
	SupportsReferenceImages bool     `json:"supports_reference_images"`
	AspectRatios            []string `json:"aspect_ratios,omitempty"`
	MaxOutputs              int      `json:"max_outputs,omitempty"`

	// Pricing hints consumed by the cost calculator. Zero means "no pricing
	// data"; the calculator then falls back to type-level defaults, and the
	// lifecycle controller records no cost when the whole config is missing.
	ImageRate       float64 `json:"image_rate,omitempty"`
	VideoSecondRate float64 `json:"video_second_rate,omitempty"`
}

type registryEntry struct {
	config ModelConfig
	ctor   func() Adapter
}

// Registry maps model ids to adapter constructors and static configuration.
// It is built once at startup and read-only afterwards.
type Registry struct {
	entries map[string]registryEntry
	order   []string
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// Register adds a model with its adapter constructor. Later registrations for
// the same id replace earlier ones.
func (r *Registry) Register(cfg ModelConfig, ctor func() Adapter) {
	if _, exists := r.entries[cfg.ID]; !exists {
		r.order = append(r.order, cfg.ID)
	}
	r.entries[cfg.ID] = registryEntry{config: cfg, ctor: ctor}
}

// GetModel returns a fresh adapter bound to the model's configuration, or nil
// for unknown ids. Unknown is not an error at this layer; callers decide.
func (r *Registry) GetModel(modelID string) Adapter {
	entry, ok := r.entries[strings.TrimSpace(modelID)]
	if !ok || entry.ctor == nil {
		return nil
	}
	return entry.ctor()
}

// GetModelConfig returns the static configuration for a model id, or nil.
func (r *Registry) GetModelConfig(modelID string) *ModelConfig {
	entry, ok := r.entries[strings.TrimSpace(modelID)]
	if !ok {
		return nil
	}
	cfg := entry.config
	return &cfg
}

// AllModels lists every registered model in registration order.
func (r *Registry) AllModels() []ModelConfig {
	out := make([]ModelConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].config)
	}
	return out
}

// ModelsByType lists registered models of the given type.
func (r *Registry) ModelsByType(modelType string) []ModelConfig {
	out := make([]ModelConfig, 0, len(r.order))
	for _, id := range r.order {
		if r.entries[id].config.Type == modelType {
			out = append(out, r.entries[id].config)
		}
	}
	return out
}

// NewDefaultRegistry builds the production catalog from configuration.
// Adapters are constructed lazily per lookup so each processing attempt gets
// a fresh instance.
func NewDefaultRegistry(cfg config.Config) *Registry {
	r := NewRegistry()

	r.Register(ModelConfig{
		ID:                     "veo-3.1",
		Name:                   "Veo 3.1",
		Type:                   ModelTypeVideo,
		Provider:               "gemini",
		Description:            "Google Veo text-to-video",
		SupportsNegativePrompt: true,
		AspectRatios:           []string{"16:9", "9:16"},
		MaxOutputs:             1,
		VideoSecondRate:        0.40,
	}, func() Adapter { return NewGeminiVeo(cfg.GeminiAPIKey, "veo-3.1-generate-preview") })

	klingCtor := func() Adapter { return NewKling(cfg.KlingAPIKey, "kling-v2-6") }
	r.Register(ModelConfig{
		ID:                      "kling-2.6",
		Name:                    "Kling 2.6",
		Type:                    ModelTypeVideo,
		Provider:                "kling",
		Description:             "Kling text/image-to-video",
		SupportsNegativePrompt:  true,
		SupportsReferenceImages: true,
		AspectRatios:            []string{"16:9", "9:16", "1:1"},
		MaxOutputs:              1,
		VideoSecondRate:         0.28,
	}, klingCtor)

	// Sora has no direct integration yet; its adapter delegates to Kling and
	// tags the response metadata so callers can tell.
	r.Register(ModelConfig{
		ID:                     "sora-2",
		Name:                   "Sora 2",
		Type:                   ModelTypeVideo,
		Provider:               "openai",
		Description:            "OpenAI Sora (served via Kling backend)",
		SupportsNegativePrompt: true,
		AspectRatios:           []string{"16:9", "9:16"},
		MaxOutputs:             1,
		VideoSecondRate:        0.32,
	}, func() Adapter { return NewSora("sora-2", "kling-2.6", klingCtor()) })

	r.Register(ModelConfig{
		ID:                      "flux-1.1-pro",
		Name:                    "FLUX 1.1 Pro",
		Type:                    ModelTypeImage,
		Provider:                "replicate",
		Description:             "Black Forest Labs FLUX 1.1 Pro via Replicate",
		SupportsReferenceImages: true,
		AspectRatios:            []string{"1:1", "16:9", "9:16", "4:3", "3:4"},
		MaxOutputs:              4,
		ImageRate:               0.04,
	}, func() Adapter {
		return NewReplicate(cfg.ReplicateAPIKey, "black-forest-labs/flux-1.1-pro")
	})

	r.Register(ModelConfig{
		ID:           "gpt-image-1",
		Name:         "GPT Image 1",
		Type:         ModelTypeImage,
		Provider:     "openai",
		Description:  "OpenAI image generation",
		AspectRatios: []string{"1:1", "3:2", "2:3"},
		MaxOutputs:   4,
		ImageRate:    0.06,
	}, func() Adapter { return NewOpenAIImages(cfg.OpenAIAPIKey, "gpt-image-1") })

	r.Register(ModelConfig{
		ID:                      "seedream-4.0",
		Name:                    "Doubao Seedream 4.0",
		Type:                    ModelTypeImage,
		Provider:                "volcengine",
		Description:             "Volcengine Doubao Seedream image generation",
		SupportsReferenceImages: true,
		AspectRatios:            []string{"1:1", "4:3", "16:9"},
		MaxOutputs:              1,
		ImageRate:               0.03,
	}, func() Adapter { return NewSeedream(cfg.VolcengineAPIKey, "doubao-seedream-4-0-250828") })

	return r
}
