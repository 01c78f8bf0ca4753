package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/liliang-cn/ragproxy/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memCapabilityStore struct {
	mu   sync.Mutex
	rows map[string]domain.ModelCapabilities
}

func newMemCapabilityStore() *memCapabilityStore {
	return &memCapabilityStore{rows: make(map[string]domain.ModelCapabilities)}
}

func (s *memCapabilityStore) Get(model string) (*domain.ModelCapabilities, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if caps, ok := s.rows[model]; ok {
		return &caps, nil
	}
	return nil, nil
}

func (s *memCapabilityStore) Upsert(model string, caps domain.ModelCapabilities) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[model] = caps
	return nil
}

func (s *memCapabilityStore) List() (map[string]domain.ModelCapabilities, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.ModelCapabilities, len(s.rows))
	for k, v := range s.rows {
		out[k] = v
	}
	return out, nil
}

type fakeProber struct {
	models   []string
	details  map[string]string
	template map[string]string
	showErr  error
}

func (p *fakeProber) ListModels(ctx context.Context) ([]string, error) {
	return p.models, nil
}

func (p *fakeProber) ShowModel(ctx context.Context, name string) (string, string, error) {
	if p.showErr != nil {
		return "", "", p.showErr
	}
	return p.details[name], p.template[name], nil
}

func TestCapabilityLoadSeedsDefaults(t *testing.T) {
	store := newMemCapabilityStore()
	svc := NewCapabilityService(store, nil, zap.NewNop())

	require.NoError(t, svc.Load(context.Background()))

	caps := svc.Lookup(context.Background(), "llava")
	assert.True(t, caps.Vision)

	rows, err := store.List()
	require.NoError(t, err)
	assert.True(t, rows["moondream"].Vision)
}

func TestCapabilityLoadProbesUnknownModels(t *testing.T) {
	store := newMemCapabilityStore()
	require.NoError(t, store.Upsert("known", domain.ModelCapabilities{Vision: true}))

	prober := &fakeProber{
		models:  []string{"known", "qwen2.5:7b", "pixel-model"},
		details: map[string]string{"pixel-model": `{"family":"multimodal clip"}`},
	}
	svc := NewCapabilityService(store, prober, zap.NewNop())
	require.NoError(t, svc.Load(context.Background()))

	assert.True(t, svc.Lookup(context.Background(), "pixel-model").Vision)
	assert.False(t, svc.Lookup(context.Background(), "qwen2.5:7b").Vision)
}

func TestCapabilityLookupBaseName(t *testing.T) {
	store := newMemCapabilityStore()
	require.NoError(t, store.Upsert("llava", domain.ModelCapabilities{Vision: true}))

	svc := NewCapabilityService(store, &fakeProber{showErr: errors.New("down")}, zap.NewNop())
	require.NoError(t, svc.Load(context.Background()))

	// version tag stripped before matching
	assert.True(t, svc.Lookup(context.Background(), "llava:13b").Vision)
}

func TestCapabilityLookupNameHeuristicFallback(t *testing.T) {
	svc := NewCapabilityService(nil, nil, zap.NewNop())

	assert.True(t, svc.Lookup(context.Background(), "my-custom-llava-build").Vision)
	assert.False(t, svc.Lookup(context.Background(), "qwen2.5").Vision)
}

func TestCapabilityLookupCachesDetection(t *testing.T) {
	store := newMemCapabilityStore()
	svc := NewCapabilityService(store, nil, zap.NewNop())

	svc.Lookup(context.Background(), "bakllava:latest")

	rows, err := store.List()
	require.NoError(t, err)
	caps, ok := rows["bakllava:latest"]
	require.True(t, ok)
	assert.True(t, caps.Vision)
}
