package oci

import "testing"

func TestFlexConfig(t *testing.T) {
	tests := []struct {
		name       string
		vcpus      int
		memoryGB   float64
		wantOCPUs  int
		wantMemory int
	}{
		{"2 vCPUs and 8GB", 2, 8, 1, 8},
		{"3 vCPUs rounds up", 3, 8, 2, 8},
		{"4 vCPUs and 16GB", 4, 16, 2, 16},
		{"defaults without source sizing", 0, 0, DefaultOCPUs, DefaultMemoryGB},
		{"8 vCPUs and 64GB", 8, 64, 4, 64},
		{"1 vCPU minimum", 1, 4, 1, 4},
		{"memory below ratio", 8, 2, 4, 4},
		{"memory above ratio", 2, 100, 1, 64},
		{"fractional memory rounds up", 2, 7.5, 1, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ocpus, mem := FlexConfig(tt.vcpus, tt.memoryGB)
			if ocpus != tt.wantOCPUs || mem != tt.wantMemory {
				t.Errorf("FlexConfig(%d, %v) = %d, %d; want %d, %d", tt.vcpus, tt.memoryGB, ocpus, mem, tt.wantOCPUs, tt.wantMemory)
			}
		})
	}
}

func TestFlexShape(t *testing.T) {
	if got := FlexShape("ARM64"); got != ShapeARM {
		t.Errorf("Expected %s, got %s", ShapeARM, got)
	}
	if got := FlexShape("x86_64"); got != ShapeX86 {
		t.Errorf("Expected %s, got %s", ShapeX86, got)
	}
	if !IsFlexShape(ShapeX86) || IsFlexShape("VM.Standard2.1") {
		t.Error("IsFlexShape misclassified a shape")
	}
	if vcpusPerOCPU(ShapeARM) != 1 || vcpusPerOCPU(ShapeX86) != 2 {
		t.Error("Unexpected vCPU per OCPU ratio")
	}
}
