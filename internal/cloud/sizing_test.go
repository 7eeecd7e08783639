package cloud

import "testing"

func TestLookupSize(t *testing.T) {
	tests := []struct {
		provider     string
		instanceType string
		wantCores    int
		wantMemory   float64
		wantKnown    bool
	}{
		{"aws", "t2.micro", 1, 1, true},
		{"aws", "m5.2xlarge", 8, 32, true},
		{"AWS", "t3.medium", 2, 4, true},
		{"aws", "x9.mystery", 2, 4, false},
		{"azure", "Standard_D4s_v3", 4, 16, true},
		{"azure", "Standard_F4s_v2", 4, 8, true},
		{"azure", "Standard_Unknown", 2, 4, false},
		{"gcp", "f1-micro", 1, 0.6, true},
		{"gcp", "n2-standard-4", 4, 16, true},
		{"gcp", "n1-standard-16", 16, 60, true},
		{"gcp", "n1-standard-abc", 2, 4, false},
		{"gcp", "e2-medium", 2, 4, false},
		{"oci", "VM.Standard2.2", 4, 30, true},
		{"oci", "VM.Standard.E5.Flex", 2, 4, false},
		{"vsphere", "anything", 2, 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.instanceType, func(t *testing.T) {
			size, known := LookupSize(tt.provider, tt.instanceType)
			if size.CPUCores != tt.wantCores {
				t.Errorf("Expected %d cores, got %d", tt.wantCores, size.CPUCores)
			}
			if size.MemoryGB != tt.wantMemory {
				t.Errorf("Expected %.2f GB, got %.2f", tt.wantMemory, size.MemoryGB)
			}
			if known != tt.wantKnown {
				t.Errorf("Expected known=%v, got %v", tt.wantKnown, known)
			}
		})
	}
}
