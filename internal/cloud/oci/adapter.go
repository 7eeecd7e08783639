// Package oci implements the cloud adapter for Oracle Cloud Infrastructure.
package oci

import (
	"context"
	"fmt"
	"net/http"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/core"
	"github.com/oracle/oci-go-sdk/v65/database"
	"github.com/oracle/oci-go-sdk/v65/identity"
	"github.com/oracle/oci-go-sdk/v65/objectstorage"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/logger"
)

// ComputeAPI is the subset of core.ComputeClient the adapter uses.
type ComputeAPI interface {
	ListInstances(ctx context.Context, request core.ListInstancesRequest) (core.ListInstancesResponse, error)
	GetInstance(ctx context.Context, request core.GetInstanceRequest) (core.GetInstanceResponse, error)
	LaunchInstance(ctx context.Context, request core.LaunchInstanceRequest) (core.LaunchInstanceResponse, error)
	UpdateInstance(ctx context.Context, request core.UpdateInstanceRequest) (core.UpdateInstanceResponse, error)
	TerminateInstance(ctx context.Context, request core.TerminateInstanceRequest) (core.TerminateInstanceResponse, error)
	ListBootVolumeAttachments(ctx context.Context, request core.ListBootVolumeAttachmentsRequest) (core.ListBootVolumeAttachmentsResponse, error)
	ListVnicAttachments(ctx context.Context, request core.ListVnicAttachmentsRequest) (core.ListVnicAttachmentsResponse, error)
	CreateImage(ctx context.Context, request core.CreateImageRequest) (core.CreateImageResponse, error)
	GetImage(ctx context.Context, request core.GetImageRequest) (core.GetImageResponse, error)
	UpdateImage(ctx context.Context, request core.UpdateImageRequest) (core.UpdateImageResponse, error)
	DeleteImage(ctx context.Context, request core.DeleteImageRequest) (core.DeleteImageResponse, error)
}

// BlockstorageAPI is the subset of core.BlockstorageClient the adapter uses.
type BlockstorageAPI interface {
	GetBootVolume(ctx context.Context, request core.GetBootVolumeRequest) (core.GetBootVolumeResponse, error)
	CreateBootVolume(ctx context.Context, request core.CreateBootVolumeRequest) (core.CreateBootVolumeResponse, error)
	CreateBootVolumeBackup(ctx context.Context, request core.CreateBootVolumeBackupRequest) (core.CreateBootVolumeBackupResponse, error)
	DeleteBootVolumeBackup(ctx context.Context, request core.DeleteBootVolumeBackupRequest) (core.DeleteBootVolumeBackupResponse, error)
}

// NetworkAPI is the subset of core.VirtualNetworkClient the adapter uses.
type NetworkAPI interface {
	ListVcns(ctx context.Context, request core.ListVcnsRequest) (core.ListVcnsResponse, error)
	ListSubnets(ctx context.Context, request core.ListSubnetsRequest) (core.ListSubnetsResponse, error)
	ListSecurityLists(ctx context.Context, request core.ListSecurityListsRequest) (core.ListSecurityListsResponse, error)
	ListRouteTables(ctx context.Context, request core.ListRouteTablesRequest) (core.ListRouteTablesResponse, error)
	GetVnic(ctx context.Context, request core.GetVnicRequest) (core.GetVnicResponse, error)
}

// ObjectStorageAPI is the subset of objectstorage.ObjectStorageClient the adapter uses.
type ObjectStorageAPI interface {
	GetNamespace(ctx context.Context, request objectstorage.GetNamespaceRequest) (objectstorage.GetNamespaceResponse, error)
	ListBuckets(ctx context.Context, request objectstorage.ListBucketsRequest) (objectstorage.ListBucketsResponse, error)
	GetBucket(ctx context.Context, request objectstorage.GetBucketRequest) (objectstorage.GetBucketResponse, error)
}

// DatabaseAPI is the subset of database.DatabaseClient the adapter uses.
type DatabaseAPI interface {
	ListAutonomousDatabases(ctx context.Context, request database.ListAutonomousDatabasesRequest) (database.ListAutonomousDatabasesResponse, error)
}

// IdentityAPI is the subset of identity.IdentityClient the adapter uses.
type IdentityAPI interface {
	ListAvailabilityDomains(ctx context.Context, request identity.ListAvailabilityDomainsRequest) (identity.ListAvailabilityDomainsResponse, error)
}

// Clients bundles the service clients an Adapter talks to.
type Clients struct {
	Compute       ComputeAPI
	Blockstorage  BlockstorageAPI
	Network       NetworkAPI
	ObjectStorage ObjectStorageAPI
	Database      DatabaseAPI
	Identity      IdentityAPI
}

// Adapter implements cloud.Adapter on OCI.
type Adapter struct {
	region        string
	compartmentID string
	clients       Clients
	caller        *cloud.Caller
	logger        *logger.Logger
}

var _ cloud.Adapter = (*Adapter)(nil)

// New builds an Adapter. compartment_id is required. API key fields
// (tenancy_ocid, user_ocid, fingerprint, private_key) select a raw
// configuration provider, otherwise the default ~/.oci/config chain is used.
func New(ctx context.Context, creds cloud.Credentials, opts cloud.Options) (cloud.Adapter, error) {
	compartmentID, err := creds.Require("compartment_id")
	if err != nil {
		return nil, err
	}
	provider := common.DefaultConfigProvider()
	if creds.Get("private_key") != "" {
		for _, key := range []string{"tenancy_ocid", "user_ocid", "fingerprint"} {
			if _, err := creds.Require(key); err != nil {
				return nil, err
			}
		}
		var passphrase *string
		if p := creds.Get("private_key_passphrase"); p != "" {
			passphrase = common.String(p)
		}
		provider = common.NewRawConfigurationProvider(
			creds.Get("tenancy_ocid"), creds.Get("user_ocid"), creds.Region,
			creds.Get("fingerprint"), creds.Get("private_key"), passphrase,
		)
	}

	computeClient, err := core.NewComputeClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute client: %w", err)
	}
	blockClient, err := core.NewBlockstorageClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create block storage client: %w", err)
	}
	networkClient, err := core.NewVirtualNetworkClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create virtual network client: %w", err)
	}
	objectClient, err := objectstorage.NewObjectStorageClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	dbClient, err := database.NewDatabaseClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create database client: %w", err)
	}
	identityClient, err := identity.NewIdentityClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity client: %w", err)
	}
	region := creds.Region
	if region != "" {
		computeClient.SetRegion(region)
		blockClient.SetRegion(region)
		networkClient.SetRegion(region)
		objectClient.SetRegion(region)
		dbClient.SetRegion(region)
		identityClient.SetRegion(region)
	} else if r, err := provider.Region(); err == nil {
		region = r
	}
	return NewWithClients(region, compartmentID, Clients{
		Compute:       computeClient,
		Blockstorage:  blockClient,
		Network:       networkClient,
		ObjectStorage: objectClient,
		Database:      dbClient,
		Identity:      identityClient,
	}, opts), nil
}

// NewWithClients builds an Adapter around pre-built service clients.
func NewWithClients(region, compartmentID string, clients Clients, opts cloud.Options) *Adapter {
	opts = opts.WithDefaults()
	return &Adapter{
		region:        region,
		compartmentID: compartmentID,
		clients:       clients,
		caller:        opts.Caller,
		logger:        opts.Logger.Named("oci"),
	}
}

// Provider returns "oci".
func (a *Adapter) Provider() string { return cloud.ProviderOCI }

// Region returns the region the adapter is bound to.
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

// classify marks throttling and server-side service errors as transient.
func classify(op string, err error) error {
	if err == nil || cloud.IsTransient(err) {
		return err
	}
	if serviceErr, ok := common.IsServiceError(err); ok {
		code := serviceErr.GetHTTPStatusCode()
		if code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
			return &cloud.TransientError{Provider: cloud.ProviderOCI, Op: op, Err: err}
		}
	}
	return err
}

func isNotFound(err error) bool {
	serviceErr, ok := common.IsServiceError(err)
	return ok && serviceErr.GetHTTPStatusCode() == http.StatusNotFound
}

func consoleURL(region, path string) string {
	return fmt.Sprintf("https://cloud.oracle.com/%s?region=%s", path, region)
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func mergeTags(current, extra map[string]string) map[string]string {
	merged := cloud.CloneTags(current)
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
