package service

import (
	"testing"

	"github.com/liliang-cn/ragproxy/internal/domain"
	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }

func TestMergeOptionsPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		explicit domain.Options
		detected map[string]bool
		want     EffectiveOptions
	}{
		{
			name:     "defaults off",
			explicit: domain.Options{},
			detected: map[string]bool{},
			want:     EffectiveOptions{},
		},
		{
			name:     "detected fills unset flags",
			explicit: domain.Options{},
			detected: map[string]bool{FeatureRetrieval: true, FeatureWebSearch: true},
			want:     EffectiveOptions{Retrieval: true, Web: true},
		},
		{
			name:     "explicit true wins over detected false",
			explicit: domain.Options{WebSearchEnabled: boolPtr(true)},
			detected: map[string]bool{FeatureWebSearch: false},
			want:     EffectiveOptions{Web: true},
		},
		{
			name:     "explicit false never overwritten by detection",
			explicit: domain.Options{RetrievalEnabled: boolPtr(false)},
			detected: map[string]bool{FeatureRetrieval: true},
			want:     EffectiveOptions{},
		},
		{
			name:     "mixed",
			explicit: domain.Options{RetrievalEnabled: boolPtr(true)},
			detected: map[string]bool{FeatureWebSearch: true},
			want:     EffectiveOptions{Retrieval: true, Web: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeOptions(tt.explicit, tt.detected))
		})
	}
}
