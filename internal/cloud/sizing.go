package cloud

import (
	"strconv"
	"strings"
)

// Fallback sizing for instance types that are not in a provider table.
const (
	DefaultCPUCores = 2
	DefaultMemoryGB = 4.0
)

// Size is the vCPU and memory shape of an instance type.
type Size struct {
	CPUCores int
	MemoryGB float64
}

var sizeTables = map[string]map[string]Size{
	ProviderAWS: {
		"t2.micro":   {1, 1},
		"t2.small":   {1, 2},
		"t2.medium":  {2, 4},
		"t3.micro":   {2, 1},
		"t3.small":   {2, 2},
		"t3.medium":  {2, 4},
		"t3.large":   {2, 8},
		"t3.xlarge":  {4, 16},
		"m5.large":   {2, 8},
		"m5.xlarge":  {4, 16},
		"m5.2xlarge": {8, 32},
	},
	ProviderAzure: {
		"Standard_B1s":    {1, 1},
		"Standard_B2s":    {2, 4},
		"Standard_D2s_v3": {2, 8},
		"Standard_D4s_v3": {4, 16},
		"Standard_D8s_v3": {8, 32},
		"Standard_F2s_v2": {2, 4},
		"Standard_F4s_v2": {4, 8},
	},
	ProviderGCP: {
		"f1-micro":      {1, 0.6},
		"g1-small":      {1, 1.7},
		"n1-standard-1": {1, 3.75},
		"n1-standard-2": {2, 7.5},
		"n1-standard-4": {4, 15},
		"n1-standard-8": {8, 30},
		"n2-standard-2": {2, 8},
		"n2-standard-4": {4, 16},
	},
	ProviderOCI: {
		"VM.Standard2.1": {2, 15},
		"VM.Standard2.2": {4, 30},
		"VM.Standard2.4": {8, 60},
	},
}

// LookupSize resolves the shape of an instance type. Unknown types resolve to
// DefaultCPUCores and DefaultMemoryGB with known=false; lookups never fail.
func LookupSize(provider, instanceType string) (size Size, known bool) {
	provider = NormalizeProvider(provider)
	if s, ok := sizeTables[provider][instanceType]; ok {
		return s, true
	}
	if provider == ProviderGCP {
		if n, ok := strings.CutPrefix(instanceType, "n1-standard-"); ok {
			if cores, err := strconv.Atoi(n); err == nil && cores > 0 {
				return Size{CPUCores: cores, MemoryGB: 3.75 * float64(cores)}, true
			}
		}
	}
	return Size{CPUCores: DefaultCPUCores, MemoryGB: DefaultMemoryGB}, false
}
