package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mediaforge/internal/entity"
	"mediaforge/internal/model"
	"mediaforge/internal/pricing"
	"mediaforge/internal/provider"
	"mediaforge/internal/routing"
)

// Default recovery sweep thresholds.
const (
	DefaultSweepMinAge    = 10 * time.Minute
	DefaultSweepStaleness = 5 * time.Minute

	heartbeatInterval = 30 * time.Second
)

// Sentinel errors surfaced to the API layer.
var (
	ErrGenerationNotFound = errors.New("generation not found")
	ErrNotRetryable       = errors.New("generation is not in a retryable state")
)

// ProcessResult summarizes one processing attempt. Outcome is one of
// processed, failed, already_processed, already_claimed.
type ProcessResult struct {
	GenerationID uint   `json:"generation_id"`
	Outcome      string `json:"outcome"`
	Status       string `json:"status"`
	OutputCount  int    `json:"output_count,omitempty"`
	ModelID      string `json:"model_id,omitempty"`
	Routed       bool   `json:"routed,omitempty"`
	RouteReason  string `json:"route_reason,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Processing outcomes.
const (
	OutcomeProcessed        = "processed"
	OutcomeFailed           = "failed"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeAlreadyClaimed   = "already_claimed"
)

// SweepResult reports what the recovery sweep transitioned.
type SweepResult struct {
	Cleaned int    `json:"cleaned"`
	IDs     []uint `json:"ids"`
}

// GenerationService is the lifecycle controller: it owns every status
// transition a generation goes through.
type GenerationService struct {
	repo       model.Repository
	registry   *provider.Registry
	resolver   *routing.Resolver
	persister  *OutputPersister
	dispatcher Dispatcher
}

func NewGenerationService(repo model.Repository, registry *provider.Registry, resolver *routing.Resolver, persister *OutputPersister, dispatcher Dispatcher) *GenerationService {
	return &GenerationService{
		repo:       repo,
		registry:   registry,
		resolver:   resolver,
		persister:  persister,
		dispatcher: dispatcher,
	}
}

// Create persists a new generation in processing and hands it to the
// dispatcher. The caller gets the row back immediately; provider latency
// never blocks submission.
func (s *GenerationService) Create(ctx context.Context, userID, sessionID uint, req entity.CreateGenerationRequest) (*entity.DbGeneration, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, provider.ErrEmptyPrompt
	}
	// Unknown model ids are accepted here; the processing attempt resolves
	// them after routing and fails the generation with a recorded verdict.
	if s.registry.GetModelConfig(req.ModelID) == nil {
		logrus.WithField("model_id", req.ModelID).Warn("generation submitted for unknown model")
	}

	generation := &entity.DbGeneration{
		UserID:         userID,
		SessionID:      sessionID,
		ModelID:        strings.TrimSpace(req.ModelID),
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Parameters:     req.Parameters,
		Status:         entity.GenerationStatusProcessing,
	}
	if err := s.repo.CreateGeneration(ctx, generation); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"generation_id": generation.ID,
		"model_id":      generation.ModelID,
		"user_id":       userID,
	}).Info("generation_created")

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(generation.ID)
	}
	return generation, nil
}

// Process runs one processing attempt for a generation. It is idempotent:
// calling it again for a terminal generation reports already_processed, and
// the atomic claim guarantees at most one attempt is in flight.
func (s *GenerationService) Process(ctx context.Context, generationID uint) (*ProcessResult, error) {
	generation, err := s.repo.GetGeneration(ctx, generationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGenerationNotFound
		}
		return nil, err
	}

	if generation.IsTerminal() {
		return &ProcessResult{
			GenerationID: generationID,
			Outcome:      OutcomeAlreadyProcessed,
			Status:       generation.Status,
			ModelID:      generation.ModelID,
		}, nil
	}

	claimed, err := s.repo.ClaimGeneration(ctx, generationID)
	if err != nil {
		return nil, err
	}
	if !claimed && generation.Status != entity.GenerationStatusLocked {
		// Another worker won the claim between our load and the update. A row
		// that was already locked when loaded is resumed instead.
		return &ProcessResult{
			GenerationID: generationID,
			Outcome:      OutcomeAlreadyClaimed,
			Status:       entity.GenerationStatusLocked,
			ModelID:      generation.ModelID,
		}, nil
	}

	stopHeartbeat := s.startHeartbeat(generationID)
	defer stopHeartbeat()

	route := s.resolver.Resolve(generation.ModelID)
	if route.Routed {
		modelID := route.ModelID
		if err := s.repo.UpdateGeneration(ctx, generationID, entity.GenerationUpdates{ModelID: &modelID}); err != nil {
			logrus.WithError(err).WithField("generation_id", generationID).Warn("failed to record routed model id")
		}
	}

	modelConfig := s.registry.GetModelConfig(route.ModelID)
	adapter := s.registry.GetModel(route.ModelID)
	if adapter == nil {
		result := s.fail(ctx, generationID, fmt.Errorf("unknown model %q", route.ModelID), classification{
			Category:  entity.ErrorCategoryValidation,
			Retryable: false,
		})
		result.ModelID = route.ModelID
		result.Routed = route.Routed
		result.RouteReason = route.Reason
		return result, nil
	}

	request := buildProviderRequest(generation)

	logrus.WithFields(logrus.Fields{
		"generation_id": generationID,
		"model_id":      route.ModelID,
		"routed":        route.Routed,
	}).Info("generation_processing")

	resp, err := adapter.Generate(ctx, request)
	if err != nil {
		result := s.fail(ctx, generationID, err, classifyError(err))
		result.ModelID = route.ModelID
		result.Routed = route.Routed
		result.RouteReason = route.Reason
		return result, nil
	}

	if resp.Status != provider.StatusCompleted || len(resp.Outputs) == 0 {
		message := strings.TrimSpace(resp.Error)
		if message == "" {
			message = "no outputs produced"
		}
		result := s.fail(ctx, generationID, errors.New(message), classifyMessage(message))
		result.ModelID = route.ModelID
		result.Routed = route.Routed
		result.RouteReason = route.Reason
		return result, nil
	}

	fileType := outputFileType(modelConfig)
	outputs := s.persister.PersistOutputs(ctx, generation.UserID, generationID, fileType, resp.Outputs)

	cost := pricing.CalculateGenerationCost(modelConfig, len(outputs), resp.Metrics.PredictTime)

	if err := s.repo.CompleteGeneration(ctx, generationID, cost, outputs); err != nil {
		result := s.fail(ctx, generationID, fmt.Errorf("record completion: %w", err), classification{
			Category:  entity.ErrorCategoryInternal,
			Retryable: true,
		})
		result.ModelID = route.ModelID
		return result, nil
	}

	logrus.WithFields(logrus.Fields{
		"generation_id": generationID,
		"model_id":      route.ModelID,
		"outputs":       len(outputs),
	}).Info("generation_completed")

	return &ProcessResult{
		GenerationID: generationID,
		Outcome:      OutcomeProcessed,
		Status:       entity.GenerationStatusCompleted,
		OutputCount:  len(outputs),
		ModelID:      route.ModelID,
		Routed:       route.Routed,
		RouteReason:  route.Reason,
	}, nil
}

// Retry purges a failed generation's outputs, resets it to processing, and
// re-dispatches it. The claim in the subsequent processing attempt still
// protects against double-processing.
func (s *GenerationService) Retry(ctx context.Context, generationID uint) (*entity.DbGeneration, error) {
	generation, err := s.repo.GetGeneration(ctx, generationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGenerationNotFound
		}
		return nil, err
	}
	if generation.Status != entity.GenerationStatusFailed {
		return nil, ErrNotRetryable
	}

	if err := s.repo.DeleteGenerationOutputs(ctx, generationID); err != nil {
		return nil, err
	}

	status := entity.GenerationStatusProcessing
	empty := ""
	retryable := false
	updates := entity.GenerationUpdates{
		Status:         &status,
		ErrorMessage:   &empty,
		ErrorCategory:  &empty,
		ErrorRetryable: &retryable,
		ClearCost:      true,
	}
	if err := s.repo.UpdateGeneration(ctx, generationID, updates); err != nil {
		return nil, err
	}

	logrus.WithField("generation_id", generationID).Info("generation_retry")

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(generationID)
	}
	return s.repo.GetGeneration(ctx, generationID)
}

// Sweep fails generations stuck in a non-terminal status. Zero thresholds
// fall back to the defaults.
func (s *GenerationService) Sweep(ctx context.Context, minAge, staleness time.Duration) (*SweepResult, error) {
	if minAge <= 0 {
		minAge = DefaultSweepMinAge
	}
	if staleness <= 0 {
		staleness = DefaultSweepStaleness
	}

	ids, err := s.repo.SweepStaleGenerations(ctx, minAge, staleness)
	if err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		logrus.WithFields(logrus.Fields{
			"cleaned": len(ids),
			"ids":     ids,
		}).Info("generation_sweep")
	}
	if ids == nil {
		ids = []uint{}
	}
	return &SweepResult{Cleaned: len(ids), IDs: ids}, nil
}

// fail records a terminal failure. Failure is an expected business outcome,
// so it is captured into data and returned, never propagated as an error.
func (s *GenerationService) fail(ctx context.Context, generationID uint, cause error, verdict classification) *ProcessResult {
	message := cause.Error()
	status := entity.GenerationStatusFailed
	updates := entity.GenerationUpdates{
		Status:         &status,
		ErrorMessage:   &message,
		ErrorCategory:  &verdict.Category,
		ErrorRetryable: &verdict.Retryable,
	}
	// The failure record must land even when the triggering context is
	// already cancelled, or the row stays locked until the sweep.
	recordCtx := context.WithoutCancel(ctx)
	if err := s.repo.UpdateGeneration(recordCtx, generationID, updates); err != nil {
		logrus.WithError(err).WithField("generation_id", generationID).Error("failed to record generation failure")
	}

	logrus.WithFields(logrus.Fields{
		"generation_id": generationID,
		"category":      verdict.Category,
		"retryable":     verdict.Retryable,
		"error":         message,
	}).Warn("generation_failed")

	return &ProcessResult{
		GenerationID: generationID,
		Outcome:      OutcomeFailed,
		Status:       entity.GenerationStatusFailed,
		Error:        message,
	}
}

// startHeartbeat refreshes the liveness timestamp while processing runs so
// the recovery sweep leaves the generation alone. The returned stop function
// must be called exactly once.
func (s *GenerationService) startHeartbeat(generationID uint) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := s.repo.TouchGenerationHeartbeat(context.Background(), generationID); err != nil {
					logrus.WithError(err).WithField("generation_id", generationID).Warn("heartbeat update failed")
				}
			}
		}
	}()
	return func() { close(done) }
}

// buildProviderRequest merges the generation's parameter bag into the
// uniform request. Bag values win over prompt-level fields so callers get
// raw passthrough for provider-specific knobs.
func buildProviderRequest(generation *entity.DbGeneration) provider.Request {
	req := provider.Request{
		Prompt:         generation.Prompt,
		NegativePrompt: generation.NegativePrompt,
	}

	extra := make(map[string]interface{})
	for key, value := range generation.Parameters {
		switch key {
		case "prompt":
			if v, ok := value.(string); ok && v != "" {
				req.Prompt = v
			}
		case "negative_prompt":
			if v, ok := value.(string); ok {
				req.NegativePrompt = v
			}
		case "aspect_ratio":
			if v, ok := value.(string); ok {
				req.AspectRatio = v
			}
		case "num_outputs":
			if v, ok := asInt(value); ok {
				req.NumOutputs = v
			}
		case "seed":
			if v, ok := asInt(value); ok {
				seed := int64(v)
				req.Seed = &seed
			}
		case "reference_images":
			req.ReferenceImages = asStringSlice(value)
		case "begin_frame":
			if v, ok := value.(string); ok {
				req.BeginFrame = v
			}
		case "end_frame":
			if v, ok := value.(string); ok {
				req.EndFrame = v
			}
		case "duration_seconds":
			if v, ok := asInt(value); ok {
				req.DurationSeconds = v
			}
		default:
			extra[key] = value
		}
	}
	if len(extra) > 0 {
		req.Extra = extra
	}
	return req
}

// asInt accepts the numeric shapes JSON decoding produces.
func asInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func asStringSlice(value interface{}) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// outputFileType derives the artifact type from the model's catalog type.
func outputFileType(modelConfig *provider.ModelConfig) string {
	if modelConfig != nil && modelConfig.Type == provider.ModelTypeVideo {
		return entity.FileTypeVideo
	}
	return entity.FileTypeImage
}
