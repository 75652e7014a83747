// Package cpuspec reports the host CPU and the vector extensions available
// to the autocorrelation kernels.
package cpuspec

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec contains information about CPU specifications
type CPUSpec struct {
	BrandName     string
	Vendor        string
	PhysicalCores int
	LogicalCores  int
	Arch          string
	Vector        string
	Features      []string
}

// Vector extension names, widest first.
const (
	VectorAVX512 = "avx512"
	VectorAVX2   = "avx2"
	VectorSSE    = "sse4"
	VectorNEON   = "neon"
	VectorScalar = "scalar"
)

// GetCPUSpec returns the specification of the host CPU.
func GetCPUSpec() CPUSpec {
	return CPUSpec{
		BrandName:     cpuid.CPU.BrandName,
		Vendor:        cpuid.CPU.VendorString,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  max(cpuid.CPU.LogicalCores, runtime.NumCPU()),
		Arch:          runtime.GOARCH,
		Vector:        vectorExtension(cpuid.CPU.Supports),
		Features:      cpuid.CPU.FeatureSet(),
	}
}

// vectorExtension picks the widest float64 vector unit reported by has.
func vectorExtension(has func(ids ...cpuid.FeatureID) bool) string {
	switch {
	case has(cpuid.AVX512F, cpuid.AVX512DQ):
		return VectorAVX512
	case has(cpuid.AVX2, cpuid.FMA3):
		return VectorAVX2
	case has(cpuid.SSE4):
		return VectorSSE
	case has(cpuid.ASIMD):
		return VectorNEON
	default:
		return VectorScalar
	}
}
