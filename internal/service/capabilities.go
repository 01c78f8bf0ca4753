package service

import (
	"context"
	"strings"
	"sync"

	"github.com/liliang-cn/ragproxy/internal/domain"
	"go.uber.org/zap"
)

// defaultVisionModels seeds the capability store on first start. Name
// fragments double as a detection fallback when the backend gives no signal.
var defaultVisionModels = []string{
	"llava", "llama-vision", "bakllava", "moondream", "cogvlm",
	"llava-llama", "llava-13b", "llava-v1.5", "llava-v1.6",
}

var visionKeywords = []string{"vision", "visual", "multimodal", "image"}

// CapabilityStore persists model capability rows across restarts.
type CapabilityStore interface {
	Get(model string) (*domain.ModelCapabilities, error)
	Upsert(model string, caps domain.ModelCapabilities) error
	List() (map[string]domain.ModelCapabilities, error)
}

// ModelProber inspects the inference backend's model inventory.
type ModelProber interface {
	ListModels(ctx context.Context) ([]string, error)
	ShowModel(ctx context.Context, name string) (details string, template string, err error)
}

// CapabilityService is the injectable model-capability cache. It is
// constructed explicitly, warmed with Load, and consulted with Lookup; there
// is no ambient global state.
type CapabilityService struct {
	mu     sync.RWMutex
	cache  map[string]domain.ModelCapabilities
	store  CapabilityStore
	prober ModelProber
	logger *zap.Logger
}

// NewCapabilityService creates an empty capability cache. Store and prober
// may be nil; lookups then fall back to name heuristics only.
func NewCapabilityService(store CapabilityStore, prober ModelProber, logger *zap.Logger) *CapabilityService {
	return &CapabilityService{
		cache:  make(map[string]domain.ModelCapabilities),
		store:  store,
		prober: prober,
		logger: logger,
	}
}

// Load warms the cache: persisted rows first, seeded defaults when the store
// is empty, then a probe of the backend's model inventory for models not yet
// known. Callers treat a Load failure as degraded, not fatal.
func (s *CapabilityService) Load(ctx context.Context) error {
	if s.store != nil {
		rows, err := s.store.List()
		if err != nil {
			return err
		}
		s.mu.Lock()
		for model, caps := range rows {
			s.cache[model] = caps
		}
		seeded := len(s.cache) == 0
		if seeded {
			for _, name := range defaultVisionModels {
				s.cache[name] = domain.ModelCapabilities{Vision: true}
			}
		}
		s.mu.Unlock()
		if seeded {
			for _, name := range defaultVisionModels {
				if err := s.store.Upsert(name, domain.ModelCapabilities{Vision: true}); err != nil {
					s.logger.Warn("failed to seed capability row", zap.String("model", name), zap.Error(err))
				}
			}
		}
	}

	if s.prober == nil {
		return nil
	}
	models, err := s.prober.ListModels(ctx)
	if err != nil {
		return err
	}
	for _, name := range models {
		s.mu.RLock()
		_, known := s.cache[name]
		s.mu.RUnlock()
		if known {
			continue
		}
		caps := s.detect(ctx, name)
		s.put(name, caps)
		s.logger.Info("detected model capabilities",
			zap.String("model", name), zap.Bool("vision", caps.Vision))
	}
	return nil
}

// Lookup resolves a model's capabilities: exact cache hit, base-name hit
// (version tag stripped), substring hit in either direction, then live
// detection which is cached for the next caller.
func (s *CapabilityService) Lookup(ctx context.Context, model string) domain.ModelCapabilities {
	baseName := strings.ToLower(strings.SplitN(model, ":", 2)[0])

	s.mu.RLock()
	if caps, ok := s.cache[model]; ok {
		s.mu.RUnlock()
		return caps
	}
	if caps, ok := s.cache[baseName]; ok {
		s.mu.RUnlock()
		return caps
	}
	for cached, caps := range s.cache {
		if strings.Contains(model, cached) || strings.Contains(cached, model) {
			s.mu.RUnlock()
			return caps
		}
	}
	s.mu.RUnlock()

	caps := s.detect(ctx, model)
	s.put(model, caps)
	return caps
}

func (s *CapabilityService) put(model string, caps domain.ModelCapabilities) {
	s.mu.Lock()
	s.cache[model] = caps
	s.mu.Unlock()
	if s.store != nil {
		if err := s.store.Upsert(model, caps); err != nil {
			s.logger.Warn("failed to persist capability row", zap.String("model", model), zap.Error(err))
		}
	}
}

// detect probes the backend for one model. Without a usable probe result the
// decision falls back to known vision-model name fragments.
func (s *CapabilityService) detect(ctx context.Context, model string) domain.ModelCapabilities {
	if s.prober != nil {
		details, template, err := s.prober.ShowModel(ctx, model)
		if err == nil {
			blob := strings.ToLower(details + " " + template)
			for _, kw := range visionKeywords {
				if strings.Contains(blob, kw) {
					return domain.ModelCapabilities{Vision: true}
				}
			}
		} else {
			s.logger.Warn("model probe failed", zap.String("model", model), zap.Error(err))
		}
	}
	return domain.ModelCapabilities{Vision: nameSuggestsVision(model)}
}

func nameSuggestsVision(model string) bool {
	lower := strings.ToLower(model)
	for _, fragment := range defaultVisionModels {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
