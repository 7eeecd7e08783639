package azure

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/common"
)

// StartReplication registers a generalized managed image from a VHD already
// uploaded to blob storage. The returned id is the image resource id; the
// create operation keeps running server side.
func (a *Adapter) StartReplication(ctx context.Context, req cloud.ReplicationRequest) (string, error) {
	group, err := a.requireResourceGroup()
	if err != nil {
		return "", err
	}
	if err := validateBlobURI(req.SourceImageURI); err != nil {
		return "", err
	}
	name := req.Name
	if name == "" {
		name = req.SourceID
	}
	imageName := common.ResourceName("img", lastSegment(name), maxNameLength, time.Now())

	osType := armcompute.OperatingSystemTypesLinux
	if common.IsWindowsOS(req.Options["os_type"]) {
		osType = armcompute.OperatingSystemTypesWindows
	}
	generation := armcompute.HyperVGenerationTypesV1
	if strings.EqualFold(req.Options["hyperv_generation"], "V2") {
		generation = armcompute.HyperVGenerationTypesV2
	}
	image := armcompute.Image{
		Location: to.Ptr(a.region),
		Tags: tagsTo(map[string]string{
			"SourceAsset":    req.SourceID,
			"SourceProvider": req.SourceProvider,
		}),
		Properties: &armcompute.ImageProperties{
			HyperVGeneration: to.Ptr(generation),
			StorageProfile: &armcompute.ImageStorageProfile{
				OSDisk: &armcompute.ImageOSDisk{
					OSType:             to.Ptr(osType),
					OSState:            to.Ptr(armcompute.OperatingSystemStateTypesGeneralized),
					BlobURI:            to.Ptr(req.SourceImageURI),
					StorageAccountType: to.Ptr(armcompute.StorageAccountTypesStandardLRS),
				},
			},
		},
	}
	images := a.compute.NewImagesClient()
	err = a.call(ctx, "CreateImage", func(ctx context.Context) error {
		_, err := images.BeginCreateOrUpdate(ctx, group, imageName, image, nil)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to start image creation: %w", err)
	}
	id := a.resourceID("images", group, imageName)
	a.logger.Infof("Started image creation %s from %s", imageName, req.SourceImageURI)
	return id, nil
}

// ReplicationStatus maps the image provisioning state. An image not yet
// visible is reported as pending.
func (a *Adapter) ReplicationStatus(ctx context.Context, replicationID string) (*cloud.ReplicationStatus, error) {
	group, name, err := parseID(replicationID)
	if err != nil {
		return nil, err
	}
	var resp armcompute.ImagesClientGetResponse
	err = a.call(ctx, "GetImage", func(ctx context.Context) error {
		var err error
		resp, err = a.compute.NewImagesClient().Get(ctx, group, name, nil)
		return err
	})
	if isNotFound(err) {
		return &cloud.ReplicationStatus{ID: replicationID, State: cloud.ReplicationPending}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image %s: %w", name, err)
	}
	state := ""
	if resp.Properties != nil {
		state = str(resp.Properties.ProvisioningState)
	}
	return imageStatus(replicationID, state), nil
}

func imageStatus(id, provisioningState string) *cloud.ReplicationStatus {
	st := &cloud.ReplicationStatus{ID: id, Message: provisioningState}
	switch strings.ToLower(provisioningState) {
	case "succeeded":
		st.State = cloud.ReplicationCompleted
		st.Progress = 100
		st.ImageID = id
	case "failed", "canceled":
		st.State = cloud.ReplicationFailed
	case "":
		st.State = cloud.ReplicationPending
	default:
		st.State = cloud.ReplicationInProgress
		st.Progress = 50
	}
	return st
}

// Cutover creates the target VM from the completed image.
func (a *Adapter) Cutover(ctx context.Context, replicationID string, spec cloud.InstanceSpec) (*cloud.CutoverResult, error) {
	st, err := a.ReplicationStatus(ctx, replicationID)
	if err != nil {
		return nil, err
	}
	if st.State != cloud.ReplicationCompleted {
		return nil, fmt.Errorf("image %s is %s, not completed", replicationID, st.State)
	}
	spec.ImageID = st.ImageID
	return a.CreateInstance(ctx, spec)
}

func validateBlobURI(uri string) error {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "https" || !strings.Contains(u.Host, ".blob.") {
		return fmt.Errorf("source image uri %q must be an https blob URL: %w", uri, cloud.ErrConfiguration)
	}
	if !strings.HasSuffix(strings.ToLower(u.Path), ".vhd") {
		return fmt.Errorf("source image uri %q must point at a .vhd blob: %w", uri, cloud.ErrConfiguration)
	}
	return nil
}

func lastSegment(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}
