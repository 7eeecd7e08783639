package oci

import (
	"math"
	"strings"
)

// Flex shape resource constraints.
const (
	ShapeX86 = "VM.Standard.E5.Flex"
	ShapeARM = "VM.Standard.A1.Flex"

	MinOCPUs         = 1
	DefaultOCPUs     = 1
	DefaultMemoryGB  = 12
	MinMemoryPerOCPU = 1
	MaxMemoryPerOCPU = 64
)

// FlexShape picks the Flex shape for a CPU architecture.
func FlexShape(architecture string) string {
	switch strings.ToLower(architecture) {
	case "arm64", "aarch64", "arm":
		return ShapeARM
	}
	return ShapeX86
}

// IsFlexShape reports whether shape takes an explicit OCPU and memory config.
func IsFlexShape(shape string) bool {
	return strings.HasSuffix(shape, ".Flex")
}

// FlexConfig maps a source vCPU count and memory size onto Flex OCPUs and
// memory. Two vCPUs make one OCPU; memory is clamped to 1-64 GB per OCPU.
// Missing source sizing falls back to 1 OCPU and 12 GB.
func FlexConfig(vcpus int, memoryGB float64) (ocpus int, memGB int) {
	if vcpus <= 0 || memoryGB <= 0 {
		return DefaultOCPUs, DefaultMemoryGB
	}
	ocpus = (vcpus + 1) / 2
	if ocpus < MinOCPUs {
		ocpus = MinOCPUs
	}
	memGB = int(math.Ceil(memoryGB))
	if lo := ocpus * MinMemoryPerOCPU; memGB < lo {
		memGB = lo
	} else if hi := ocpus * MaxMemoryPerOCPU; memGB > hi {
		memGB = hi
	}
	return ocpus, memGB
}

// vcpusPerOCPU is 2 on x86 shapes and 1 on Ampere shapes.
func vcpusPerOCPU(shape string) int {
	if strings.Contains(shape, ".A1.") || strings.Contains(shape, ".A2.") {
		return 1
	}
	return 2
}
