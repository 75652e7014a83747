package cpuspec

import (
	"slices"
	"testing"

	"github.com/klauspost/cpuid/v2"
	"github.com/stretchr/testify/assert"
)

func supports(available ...cpuid.FeatureID) func(ids ...cpuid.FeatureID) bool {
	return func(ids ...cpuid.FeatureID) bool {
		for _, id := range ids {
			if !slices.Contains(available, id) {
				return false
			}
		}
		return true
	}
}

func TestVectorExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		available []cpuid.FeatureID
		want      string
	}{
		{"avx512 server", []cpuid.FeatureID{cpuid.AVX512F, cpuid.AVX512DQ, cpuid.AVX2, cpuid.FMA3, cpuid.SSE4}, VectorAVX512},
		{"avx512 without dq", []cpuid.FeatureID{cpuid.AVX512F, cpuid.AVX2, cpuid.FMA3}, VectorAVX2},
		{"desktop", []cpuid.FeatureID{cpuid.AVX2, cpuid.FMA3, cpuid.SSE4}, VectorAVX2},
		{"avx2 without fma", []cpuid.FeatureID{cpuid.AVX2, cpuid.SSE4}, VectorSSE},
		{"raspberry pi", []cpuid.FeatureID{cpuid.ASIMD}, VectorNEON},
		{"none", nil, VectorScalar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, vectorExtension(supports(tt.available...)))
		})
	}
}

func TestGetCPUSpec(t *testing.T) {
	t.Parallel()

	spec := GetCPUSpec()
	assert.Positive(t, spec.LogicalCores)
	assert.NotEmpty(t, spec.Arch)
	assert.NotEmpty(t, spec.Vector)
}
