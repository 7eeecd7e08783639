// Package azure implements the cloud adapter for Microsoft Azure.
package azure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/logger"
)

const defaultRegion = "eastus"

// Adapter implements cloud.Adapter on Azure Resource Manager.
type Adapter struct {
	subscriptionID string
	resourceGroup  string
	region         string
	creds          cloud.Credentials
	credential     azcore.TokenCredential
	compute        *armcompute.ClientFactory
	interfaces     *armnetwork.InterfacesClient
	publicIPs      *armnetwork.PublicIPAddressesClient
	vnets          *armnetwork.VirtualNetworksClient
	nsgs           *armnetwork.SecurityGroupsClient
	routeTables    *armnetwork.RouteTablesClient
	caller         *cloud.Caller
	logger         *logger.Logger

	sizeMu    sync.Mutex
	sizeCache map[string]map[string]cloud.Size
}

var _ cloud.Adapter = (*Adapter)(nil)

// New builds an Adapter. subscription_id is required. A service principal is
// used when tenant_id, client_id and client_secret are all present, otherwise
// DefaultAzureCredential.
func New(ctx context.Context, creds cloud.Credentials, opts cloud.Options) (cloud.Adapter, error) {
	subscriptionID, err := creds.Require("subscription_id")
	if err != nil {
		return nil, err
	}
	var cred azcore.TokenCredential
	tenant, client, secret := creds.Get("tenant_id"), creds.Get("client_id"), creds.Get("client_secret")
	if tenant != "" && client != "" && secret != "" {
		cred, err = azidentity.NewClientSecretCredential(tenant, client, secret, nil)
	} else {
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	return NewWithCredential(subscriptionID, creds, cred, opts)
}

// NewWithCredential builds an Adapter around an existing token credential.
func NewWithCredential(subscriptionID string, creds cloud.Credentials, cred azcore.TokenCredential, opts cloud.Options) (*Adapter, error) {
	opts = opts.WithDefaults()
	compute, err := armcompute.NewClientFactory(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute client factory: %w", err)
	}
	a := &Adapter{
		subscriptionID: subscriptionID,
		resourceGroup:  creds.Get("resource_group"),
		region:         creds.Region,
		creds:          creds,
		credential:     cred,
		compute:        compute,
		caller:         opts.Caller,
		logger:         opts.Logger.Named("azure"),
		sizeCache:      map[string]map[string]cloud.Size{},
	}
	if a.region == "" {
		a.region = defaultRegion
	}
	if a.interfaces, err = armnetwork.NewInterfacesClient(subscriptionID, cred, nil); err != nil {
		return nil, fmt.Errorf("failed to create network interfaces client: %w", err)
	}
	if a.publicIPs, err = armnetwork.NewPublicIPAddressesClient(subscriptionID, cred, nil); err != nil {
		return nil, fmt.Errorf("failed to create public IP client: %w", err)
	}
	if a.vnets, err = armnetwork.NewVirtualNetworksClient(subscriptionID, cred, nil); err != nil {
		return nil, fmt.Errorf("failed to create virtual networks client: %w", err)
	}
	if a.nsgs, err = armnetwork.NewSecurityGroupsClient(subscriptionID, cred, nil); err != nil {
		return nil, fmt.Errorf("failed to create security groups client: %w", err)
	}
	if a.routeTables, err = armnetwork.NewRouteTablesClient(subscriptionID, cred, nil); err != nil {
		return nil, fmt.Errorf("failed to create route tables client: %w", err)
	}
	return a, nil
}

// Provider returns "azure".
func (a *Adapter) Provider() string { return cloud.ProviderAzure }

// Region returns the location new resources are created in.
func (a *Adapter) Region() string { return a.region }

// Capabilities lists the operations this adapter implements.
func (a *Adapter) Capabilities() cloud.CapabilitySet {
	return cloud.NewCapabilitySet(
		cloud.CapDiscoverCompute, cloud.CapDiscoverDatabase, cloud.CapDiscoverStorage, cloud.CapDiscoverNetwork,
		cloud.CapCreate, cloud.CapSnapshot, cloud.CapRestore, cloud.CapDelete, cloud.CapTag,
		cloud.CapStartReplication, cloud.CapPollReplication, cloud.CapCutover,
		cloud.CapRunValidation,
	)
}

func (a *Adapter) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return a.caller.Call(ctx, op, func(ctx context.Context) error {
		return classify(op, fn(ctx))
	})
}

// await starts a long-running ARM operation under the retry policy and
// waits for it to finish.
func await[T any](ctx context.Context, a *Adapter, op string, begin func(context.Context) (*runtime.Poller[T], error)) (T, error) {
	var zero T
	var poller *runtime.Poller[T]
	err := a.call(ctx, op, func(ctx context.Context) error {
		var err error
		poller, err = begin(ctx)
		return err
	})
	if err != nil {
		return zero, err
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return zero, classify(op, err)
	}
	return resp, nil
}

// requireResourceGroup returns the resource group new resources go into.
func (a *Adapter) requireResourceGroup() (string, error) {
	if a.resourceGroup == "" {
		return "", &cloud.MissingCredentialError{Provider: cloud.ProviderAzure, Key: "resource_group"}
	}
	return a.resourceGroup, nil
}

// classify marks throttling and server-side ARM failures as transient.
func classify(op string, err error) error {
	if err == nil || cloud.IsTransient(err) {
		return err
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		if respErr.StatusCode == http.StatusTooManyRequests || respErr.StatusCode >= http.StatusInternalServerError {
			return &cloud.TransientError{Provider: cloud.ProviderAzure, Op: op, Err: err}
		}
	}
	return err
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

// parseID splits an ARM resource id into resource group and name.
func parseID(id string) (group, name string, err error) {
	rid, err := arm.ParseResourceID(id)
	if err != nil {
		return "", "", fmt.Errorf("invalid Azure resource id %q: %w", id, err)
	}
	return rid.ResourceGroupName, rid.Name, nil
}

func (a *Adapter) resourceID(kind, group, name string) string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Compute/%s/%s", a.subscriptionID, group, kind, name)
}

func portalURL(id string) string {
	return "https://portal.azure.com/#@/resource" + id
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func tagsFrom(tags map[string]*string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = str(v)
	}
	return out
}

func tagsTo(tags map[string]string) map[string]*string {
	out := make(map[string]*string, len(tags))
	for k, v := range tags {
		out[k] = &v
	}
	return out
}

// powerState extracts the PowerState/<state> code from instance view statuses.
func powerState(statuses []*armcompute.InstanceViewStatus) string {
	for _, s := range statuses {
		if s == nil || s.Code == nil {
			continue
		}
		if state, ok := strings.CutPrefix(*s.Code, "PowerState/"); ok {
			return state
		}
	}
	return ""
}
