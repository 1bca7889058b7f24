package provider

import (
	"context"
	"testing"

	"mediaforge/internal/config"
)

type stubAdapter struct {
	calls int
}

func (s *stubAdapter) Generate(ctx context.Context, req Request) (*Response, error) {
	s.calls++
	return &Response{Status: StatusCompleted, Outputs: []Output{{URL: "https://example.com/a.png"}}}, nil
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(ModelConfig{ID: "test-model", Type: ModelTypeImage}, func() Adapter { return &stubAdapter{} })

	if got := r.GetModel("unknown"); got != nil {
		t.Errorf("expected nil adapter for unknown model, got %T", got)
	}
	if cfg := r.GetModelConfig("unknown"); cfg != nil {
		t.Errorf("expected nil config for unknown model, got %+v", cfg)
	}

	first := r.GetModel("test-model")
	second := r.GetModel(" test-model ")
	if first == nil || second == nil {
		t.Fatal("expected adapters for registered model")
	}
	if first == second {
		t.Error("expected a fresh adapter instance per lookup")
	}
}

func TestRegistryConfigCopy(t *testing.T) {
	r := NewRegistry()
	r.Register(ModelConfig{ID: "m", Name: "Original"}, func() Adapter { return &stubAdapter{} })

	cfg := r.GetModelConfig("m")
	cfg.Name = "Mutated"

	if r.GetModelConfig("m").Name != "Original" {
		t.Error("expected registry config to be unaffected by caller mutation")
	}
}

func TestDefaultRegistryCatalog(t *testing.T) {
	r := NewDefaultRegistry(config.Config{})

	expected := map[string]string{
		"veo-3.1":      ModelTypeVideo,
		"kling-2.6":    ModelTypeVideo,
		"sora-2":       ModelTypeVideo,
		"flux-1.1-pro": ModelTypeImage,
		"gpt-image-1":  ModelTypeImage,
		"seedream-4.0": ModelTypeImage,
	}

	all := r.AllModels()
	if len(all) != len(expected) {
		t.Fatalf("expected %d models, got %d", len(expected), len(all))
	}
	for id, modelType := range expected {
		cfg := r.GetModelConfig(id)
		if cfg == nil {
			t.Errorf("model %q missing from catalog", id)
			continue
		}
		if cfg.Type != modelType {
			t.Errorf("model %q: expected type %q, got %q", id, modelType, cfg.Type)
		}
		if r.GetModel(id) == nil {
			t.Errorf("model %q: expected adapter constructor", id)
		}
	}

	images := r.ModelsByType(ModelTypeImage)
	if len(images) != 3 {
		t.Errorf("expected 3 image models, got %d", len(images))
	}
}
