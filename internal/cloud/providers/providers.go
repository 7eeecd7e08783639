// Package providers wires every built-in cloud adapter into a registry.
package providers

import (
	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/cloud/aws"
	"github.com/codebypatrickleung/cloudhop/internal/cloud/azure"
	"github.com/codebypatrickleung/cloudhop/internal/cloud/gcp"
	"github.com/codebypatrickleung/cloudhop/internal/cloud/oci"
)

var builtins = map[string]cloud.Constructor{
	cloud.ProviderAWS:   aws.New,
	cloud.ProviderAzure: azure.New,
	cloud.ProviderGCP:   gcp.New,
	cloud.ProviderOCI:   oci.New,
}

// Register adds the built-in adapters to r.
func Register(r *cloud.Registry) error {
	for _, id := range []string{cloud.ProviderAWS, cloud.ProviderAzure, cloud.ProviderGCP, cloud.ProviderOCI} {
		if err := r.Register(id, builtins[id]); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding every built-in adapter.
func NewRegistry() *cloud.Registry {
	r := cloud.NewRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}
