package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mediaforge/internal/entity"
	"mediaforge/internal/model"
	"mediaforge/internal/model/sql"
	"mediaforge/internal/provider"
	"mediaforge/internal/routing"
)

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []uint
}

func (d *recordingDispatcher) Dispatch(generationID uint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, generationID)
}

func (d *recordingDispatcher) dispatched() []uint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint(nil), d.ids...)
}

type fakeAdapter struct {
	resp    *provider.Response
	err     error
	lastReq provider.Request
	called  int
}

func (a *fakeAdapter) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	a.called++
	a.lastReq = req
	if a.err != nil {
		return nil, a.err
	}
	return a.resp, nil
}

type serviceFixture struct {
	svc        *GenerationService
	repo       *sql.GormRepository
	dispatcher *recordingDispatcher
	adapters   map[string]*fakeAdapter
}

func newServiceFixture(t *testing.T, creds routing.Credentials) *serviceFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&entity.DbGeneration{}, &entity.DbOutput{})
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := sql.NewGormRepository(db)

	adapters := map[string]*fakeAdapter{
		"flux-1.1-pro": {resp: &provider.Response{
			Status:  provider.StatusCompleted,
			Outputs: []provider.Output{{URL: "https://cdn.example.com/a.png"}},
		}},
		"kling-2.6": {resp: &provider.Response{
			Status:  provider.StatusCompleted,
			Outputs: []provider.Output{{URL: "https://cdn.example.com/clip.mp4"}},
		}},
	}

	registry := provider.NewRegistry()
	registry.Register(provider.ModelConfig{
		ID: "flux-1.1-pro", Type: provider.ModelTypeImage, ImageRate: 0.04,
	}, func() provider.Adapter { return adapters["flux-1.1-pro"] })
	registry.Register(provider.ModelConfig{
		ID: "kling-2.6", Type: provider.ModelTypeVideo, VideoSecondRate: 0.28,
	}, func() provider.Adapter { return adapters["kling-2.6"] })
	registry.Register(provider.ModelConfig{
		ID: "veo-3.1", Type: provider.ModelTypeVideo, VideoSecondRate: 0.40,
	}, func() provider.Adapter { return adapters["kling-2.6"] })

	dispatcher := &recordingDispatcher{}
	svc := NewGenerationService(
		repo,
		registry,
		routing.NewResolver(creds),
		NewOutputPersister(nil, "/files"),
		dispatcher,
	)

	return &serviceFixture{svc: svc, repo: repo, dispatcher: dispatcher, adapters: adapters}
}

func (f *serviceFixture) create(t *testing.T, modelID string) *entity.DbGeneration {
	t.Helper()
	generation, err := f.svc.Create(context.Background(), 1, 2, entity.CreateGenerationRequest{
		ModelID: modelID,
		Prompt:  "a lighthouse at dawn",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return generation
}

func TestCreateDispatches(t *testing.T) {
	f := newServiceFixture(t, routing.Credentials{Replicate: true})

	generation := f.create(t, "flux-1.1-pro")
	if generation.Status != entity.GenerationStatusProcessing {
		t.Errorf("expected processing, got %q", generation.Status)
	}
	if ids := f.dispatcher.dispatched(); len(ids) != 1 || ids[0] != generation.ID {
		t.Errorf("expected dispatch of %d, got %v", generation.ID, ids)
	}
}

func TestCreateAcceptsUnknownModel(t *testing.T) {
	// Unknown models are not rejected at submission; the processing attempt
	// fails the generation with a recorded verdict instead.
	f := newServiceFixture(t, routing.Credentials{})
	generation, err := f.svc.Create(context.Background(), 1, 2, entity.CreateGenerationRequest{
		ModelID: "no-such-model",
		Prompt:  "p",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if generation.Status != entity.GenerationStatusProcessing {
		t.Fatalf("expected processing, got %q", generation.Status)
	}
	if ids := f.dispatcher.dispatched(); len(ids) != 1 || ids[0] != generation.ID {
		t.Fatalf("expected dispatch of %d, got %v", generation.ID, ids)
	}

	result, err := f.svc.Process(context.Background(), generation.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %q", result.Outcome)
	}

	loaded, _ := f.repo.GetGeneration(context.Background(), generation.ID)
	if loaded.Status != entity.GenerationStatusFailed {
		t.Errorf("expected failed status, got %q", loaded.Status)
	}
	if loaded.ErrorCategory != entity.ErrorCategoryValidation || loaded.ErrorRetryable {
		t.Errorf("expected non-retryable validation failure, got %q retryable=%v", loaded.ErrorCategory, loaded.ErrorRetryable)
	}
}

func TestCreateRejectsEmptyPrompt(t *testing.T) {
	f := newServiceFixture(t, routing.Credentials{})
	_, err := f.svc.Create(context.Background(), 1, 2, entity.CreateGenerationRequest{
		ModelID: "flux-1.1-pro",
		Prompt:  "   ",
	})
	if !errors.Is(err, provider.ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
}

func TestProcessCompletes(t *testing.T) {
	f := newServiceFixture(t, routing.Credentials{Replicate: true})
	generation := f.create(t, "flux-1.1-pro")

	result, err := f.svc.Process(context.Background(), generation.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Outcome != OutcomeProcessed {
		t.Fatalf("expected processed, got %q (%s)", result.Outcome, result.Error)
	}
	if result.OutputCount != 1 || result.ModelID != "flux-1.1-pro" || result.Routed {
		t.Errorf("unexpected result: %+v", result)
	}

	loaded, err := f.repo.GetGeneration(context.Background(), generation.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != entity.GenerationStatusCompleted {
		t.Errorf("expected completed, got %q", loaded.Status)
	}
	if loaded.Cost == nil || *loaded.Cost != 0.04 {
		t.Errorf("expected cost 0.04, got %v", loaded.Cost)
	}
	if len(loaded.Outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(loaded.Outputs))
	}
	// With no storage configured the provider URL doubles as the file URL.
	if loaded.Outputs[0].FileURL != "https://cdn.example.com/a.png" {
		t.Errorf("unexpected file url: %q", loaded.Outputs[0].FileURL)
	}
	if loaded.Outputs[0].FileType != entity.FileTypeImage {
		t.Errorf("expected image output, got %q", loaded.Outputs[0].FileType)
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	f := newServiceFixture(t, routing.Credentials{Replicate: true})
	generation := f.create(t, "flux-1.1-pro")

	first, err := f.svc.Process(context.Background(), generation.ID)
	if err != nil {
		t.Fatalf("first process: %v", err)
	}
	if first.Outcome != OutcomeProcessed {
		t.Fatalf("expected processed, got %q", first.Outcome)
	}

	second, err := f.svc.Process(context.Background(), generation.ID)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if second.Outcome != OutcomeAlreadyProcessed {
		t.Errorf("expected already_processed, got %q", second.Outcome)
	}
	if f.adapters["flux-1.1-pro"].called != 1 {
		t.Errorf("expected adapter called once, got %d", f.adapters["flux-1.1-pro"].called)
	}
}

// racingRepository simulates another worker winning the claim between the
// load and the conditional update.
type racingRepository struct {
	model.Repository
}

func (r *racingRepository) ClaimGeneration(ctx context.Context, id uint) (bool, error) {
	if _, err := r.Repository.ClaimGeneration(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func TestProcessReportsAlreadyClaimed(t *testing.T) {
	f := newServiceFixture(t, routing.Credentials{Replicate: true})
	generation := f.create(t, "flux-1.1-pro")

	f.svc.repo = &racingRepository{Repository: f.repo}

	result, err := f.svc.Process(context.Background(), generation.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Outcome != OutcomeAlreadyClaimed {
		t.Errorf("expected already_claimed, got %q", result.Outcome)
	}
	if f.adapters["flux-1.1-pro"].called != 0 {
		t.Errorf("expected no adapter calls, got %d", f.adapters["flux-1.1-pro"].called)
	}
}

func TestProcessResumesLockedGeneration(t *testing.T) {
	// A row that was already locked when loaded is resumed, not rejected:
	// only losing the claim race reports already_claimed.
	f := newServiceFixture(t, routing.Credentials{Replicate: true})
	generation := f.create(t, "flux-1.1-pro")

	claimed, err := f.repo.ClaimGeneration(context.Background(), generation.ID)
	if err != nil || !claimed {
		t.Fatalf("prepare claim: claimed=%v err=%v", claimed, err)
	}

	result, err := f.svc.Process(context.Background(), generation.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Outcome != OutcomeProcessed {
		t.Fatalf("expected processed, got %q (%s)", result.Outcome, result.Error)
	}

	loaded, _ := f.repo.GetGeneration(context.Background(), generation.ID)
	if loaded.Status != entity.GenerationStatusCompleted {
		t.Errorf("expected completed, got %q", loaded.Status)
	}
}

// cancellingAdapter cancels the processing context mid-generate, the way an
// expiring inbound request context would.
type cancellingAdapter struct {
	cancel context.CancelFunc
}

func (a *cancellingAdapter) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	a.cancel()
	return nil, ctx.Err()
}

func TestProcessRecordsFailureWhenContextCancelled(t *testing.T) {
	f := newServiceFixture(t, routing.Credentials{Replicate: true})
	generation := f.create(t, "flux-1.1-pro")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.registry.Register(provider.ModelConfig{
		ID: "flux-1.1-pro", Type: provider.ModelTypeImage, ImageRate: 0.04,
	}, func() provider.Adapter { return &cancellingAdapter{cancel: cancel} })

	result, err := f.svc.Process(ctx, generation.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %q", result.Outcome)
	}

	// The terminal state must be written even though the context that drove
	// processing is gone; otherwise the row stays locked until the sweep.
	loaded, err := f.repo.GetGeneration(context.Background(), generation.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != entity.GenerationStatusFailed {
		t.Errorf("expected failed status, got %q", loaded.Status)
	}
	if loaded.ErrorMessage == "" || loaded.ErrorCategory != entity.ErrorCategoryTimeout || !loaded.ErrorRetryable {
		t.Errorf("expected recorded retryable timeout, got %q %q retryable=%v",
			loaded.ErrorMessage, loaded.ErrorCategory, loaded.ErrorRetryable)
	}
}

func TestProcessNotFound(t *testing.T) {
	f := newServiceFixture(t, routing.Credentials{})
	if _, err := f.svc.Process(context.Background(), 9999); !errors.Is(err, ErrGenerationNotFound) {
		t.Fatalf("expected ErrGenerationNotFound, got %v", err)
	}
}

func TestProcessRoutesWhenCredentialAbsent(t *testing.T) {
	// No Gemini credential: veo-3.1 must be served by kling-2.6.
	f := newServiceFixture(t, routing.Credentials{Kling: true})
	generation := f.create(t, "veo-3.1")

	result, err := f.svc.Process(context.Background(), generation.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Outcome != OutcomeProcessed {
		t.Fatalf("expected processed, got %q (%s)", result.Outcome, result.Error)
	}
	if !result.Routed || result.ModelID != "kling-2.6" || result.RouteReason == "" {
		t.Errorf("expected routed result to kling-2.6, got %+v", result)
	}

	loaded, err := f.repo.GetGeneration(context.Background(), generation.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.ModelID != "kling-2.6" {
		t.Errorf("expected persisted model id rewrite, got %q", loaded.ModelID)
	}
	if loaded.Outputs[0].FileType != entity.FileTypeVideo {
		t.Errorf("expected video output, got %q", loaded.Outputs[0].FileType)
	}
}

func TestProcessUnknownModelFails(t *testing.T) {
	f := newServiceFixture(t, routing.Credentials{})
	generation := &entity.DbGeneration{
		UserID: 1, ModelID: "ghost-model", Prompt: "p",
		Status: entity.GenerationStatusProcessing,
	}
	if err := f.repo.CreateGeneration(context.Background(), generation); err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := f.svc.Process(context.Background(), generation.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %q", result.Outcome)
	}

	loaded, _ := f.repo.GetGeneration(context.Background(), generation.ID)
	if loaded.Status != entity.GenerationStatusFailed {
		t.Errorf("expected failed status, got %q", loaded.Status)
	}
	if loaded.ErrorCategory != entity.ErrorCategoryValidation || loaded.ErrorRetryable {
		t.Errorf("expected non-retryable validation failure, got %q retryable=%v", loaded.ErrorCategory, loaded.ErrorRetryable)
	}
}

func TestProcessAdapterFailure(t *testing.T) {
	f := newServiceFixture(t, routing.Credentials{Replicate: true})
	f.adapters["flux-1.1-pro"].err = errors.New("replicate http 429: rate limited")
	generation := f.create(t, "flux-1.1-pro")

	result, err := f.svc.Process(context.Background(), generation.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %q", result.Outcome)
	}

	loaded, _ := f.repo.GetGeneration(context.Background(), generation.ID)
	if loaded.ErrorCategory != entity.ErrorCategoryRateLimited || !loaded.ErrorRetryable {
		t.Errorf("expected retryable rate_limited, got %q retryable=%v", loaded.ErrorCategory, loaded.ErrorRetryable)
	}
}

func TestProcessZeroOutputsFails(t *testing.T) {
	f := newServiceFixture(t, routing.Credentials{Replicate: true})
	f.adapters["flux-1.1-pro"].resp = &provider.Response{Status: provider.StatusCompleted}
	generation := f.create(t, "flux-1.1-pro")

	result, err := f.svc.Process(context.Background(), generation.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %q", result.Outcome)
	}
	if result.Error != "no outputs produced" {
		t.Errorf("unexpected error message: %q", result.Error)
	}
}

func TestProcessMergesParameterBag(t *testing.T) {
	f := newServiceFixture(t, routing.Credentials{Replicate: true})
	generation, err := f.svc.Create(context.Background(), 1, 2, entity.CreateGenerationRequest{
		ModelID: "flux-1.1-pro",
		Prompt:  "original prompt",
		Parameters: entity.JSONMap{
			"prompt":       "bag prompt wins",
			"aspect_ratio": "16:9",
			"num_outputs":  float64(3),
			"seed":         float64(1234),
			"guidance":     7.5,
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.svc.Process(context.Background(), generation.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	req := f.adapters["flux-1.1-pro"].lastReq
	if req.Prompt != "bag prompt wins" {
		t.Errorf("expected bag prompt to win, got %q", req.Prompt)
	}
	if req.AspectRatio != "16:9" || req.NumOutputs != 3 {
		t.Errorf("unexpected merged request: %+v", req)
	}
	if req.Seed == nil || *req.Seed != 1234 {
		t.Errorf("expected seed 1234, got %v", req.Seed)
	}
	if req.Extra["guidance"] != 7.5 {
		t.Errorf("expected passthrough extra, got %v", req.Extra)
	}
}

func TestRetryResetsFailedGeneration(t *testing.T) {
	f := newServiceFixture(t, routing.Credentials{Replicate: true})
	f.adapters["flux-1.1-pro"].err = errors.New("http 503: unavailable")
	generation := f.create(t, "flux-1.1-pro")

	if _, err := f.svc.Process(context.Background(), generation.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	retried, err := f.svc.Retry(context.Background(), generation.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != entity.GenerationStatusProcessing {
		t.Errorf("expected processing, got %q", retried.Status)
	}
	if retried.ErrorMessage != "" || retried.ErrorCategory != "" {
		t.Errorf("expected error fields cleared, got %q/%q", retried.ErrorMessage, retried.ErrorCategory)
	}
	if retried.Cost != nil {
		t.Errorf("expected cost cleared, got %v", retried.Cost)
	}
	if len(retried.Outputs) != 0 {
		t.Errorf("expected outputs purged, got %d", len(retried.Outputs))
	}

	// Create dispatched once, retry dispatched again.
	if ids := f.dispatcher.dispatched(); len(ids) != 2 {
		t.Errorf("expected 2 dispatches, got %v", ids)
	}

	// Let the retried attempt succeed.
	f.adapters["flux-1.1-pro"].err = nil
	result, err := f.svc.Process(context.Background(), generation.ID)
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if result.Outcome != OutcomeProcessed {
		t.Errorf("expected processed after retry, got %q", result.Outcome)
	}
}

func TestSweepUsesDefaultThresholds(t *testing.T) {
	f := newServiceFixture(t, routing.Credentials{})

	stale := &entity.DbGeneration{
		UserID: 1, ModelID: "flux-1.1-pro", Prompt: "p",
		Status:    entity.GenerationStatusProcessing,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	if err := f.repo.CreateGeneration(context.Background(), stale); err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := f.svc.Sweep(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.Cleaned != 1 || len(result.IDs) != 1 || result.IDs[0] != stale.ID {
		t.Errorf("unexpected sweep result: %+v", result)
	}

	loaded, _ := f.repo.GetGeneration(context.Background(), stale.ID)
	if loaded.Status != entity.GenerationStatusFailed {
		t.Errorf("expected failed, got %q", loaded.Status)
	}
}

func TestRetryRejectsNonFailed(t *testing.T) {
	f := newServiceFixture(t, routing.Credentials{Replicate: true})
	generation := f.create(t, "flux-1.1-pro")

	if _, err := f.svc.Retry(context.Background(), generation.ID); !errors.Is(err, ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable, got %v", err)
	}
}
