package strategy

import (
	"fmt"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
)

// TierSize is the rehost sizing bucket.
type TierSize string

// Tier sizes.
const (
	TierSmall  TierSize = "small"
	TierMedium TierSize = "medium"
	TierLarge  TierSize = "large"
)

// Tier is the target shape chosen for a size bucket. Options are passed to
// the target adapter verbatim (OCI Flex OCPUs and memory).
type Tier struct {
	InstanceType string
	Options      map[string]string
}

var tiers = map[string]map[TierSize]Tier{
	cloud.ProviderAWS: {
		TierSmall:  {InstanceType: "t3.medium"},
		TierMedium: {InstanceType: "t3.xlarge"},
		TierLarge:  {InstanceType: "m5.2xlarge"},
	},
	cloud.ProviderAzure: {
		TierSmall:  {InstanceType: "Standard_B2s"},
		TierMedium: {InstanceType: "Standard_D4s_v3"},
		TierLarge:  {InstanceType: "Standard_D8s_v3"},
	},
	cloud.ProviderGCP: {
		TierSmall:  {InstanceType: "n1-standard-2"},
		TierMedium: {InstanceType: "n1-standard-4"},
		TierLarge:  {InstanceType: "n1-standard-8"},
	},
	cloud.ProviderOCI: {
		TierSmall:  {InstanceType: "VM.Standard.E5.Flex", Options: map[string]string{"ocpus": "1", "memory_gb": "8"}},
		TierMedium: {InstanceType: "VM.Standard.E5.Flex", Options: map[string]string{"ocpus": "2", "memory_gb": "16"}},
		TierLarge:  {InstanceType: "VM.Standard.E5.Flex", Options: map[string]string{"ocpus": "4", "memory_gb": "32"}},
	},
}

// SizeFor buckets a machine by vCPUs and memory.
func SizeFor(cpuCores int, memoryGB float64) TierSize {
	switch {
	case cpuCores <= 2 && memoryGB <= 8:
		return TierSmall
	case cpuCores <= 4 && memoryGB <= 16:
		return TierMedium
	default:
		return TierLarge
	}
}

// TierFor picks the rehost target shape on provider for the given machine.
func TierFor(provider string, cpuCores int, memoryGB float64) (TierSize, Tier, error) {
	table, ok := tiers[cloud.NormalizeProvider(provider)]
	if !ok {
		return "", Tier{}, &cloud.UnsupportedProviderError{Provider: provider}
	}
	size := SizeFor(cpuCores, memoryGB)
	t := table[size]
	return size, Tier{InstanceType: t.InstanceType, Options: cloud.CloneTags(t.Options)}, nil
}

// TargetSpecs is the planning view of a tier, stored on assets and estimates.
func TargetSpecs(provider string, cpuCores int, memoryGB float64, diskGB int) (map[string]any, error) {
	size, t, err := TierFor(provider, cpuCores, memoryGB)
	if err != nil {
		return nil, fmt.Errorf("failed to size target: %w", err)
	}
	specs := map[string]any{
		"provider":      cloud.NormalizeProvider(provider),
		"tier":          string(size),
		"instance_type": t.InstanceType,
		"cpu_cores":     cpuCores,
		"memory_gb":     memoryGB,
		"disk_gb":       diskGB,
	}
	for k, v := range t.Options {
		specs[k] = v
	}
	return specs, nil
}
