package oci

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/core"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	commonutil "github.com/codebypatrickleung/cloudhop/internal/common"
)

// StartReplication imports a custom image from an Object Storage URL. The
// image id doubles as the replication id.
func (a *Adapter) StartReplication(ctx context.Context, req cloud.ReplicationRequest) (string, error) {
	if err := validateObjectURI(req.SourceImageURI); err != nil {
		return "", err
	}
	name := req.Name
	if name == "" {
		name = req.SourceID
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	imageName := commonutil.ResourceName("img", name, maxNameLength, time.Now())

	operatingSystem := "Generic Linux"
	if commonutil.IsWindowsOS(req.Options["os_type"]) {
		operatingSystem = "Windows"
	}
	launchMode := core.CreateImageDetailsLaunchModeParavirtualized
	if strings.EqualFold(req.Options["launch_mode"], "emulated") {
		launchMode = core.CreateImageDetailsLaunchModeEmulated
	}
	token := cloud.IdempotencyToken(req.Options, "CreateImage")
	var resp core.CreateImageResponse
	err := a.call(ctx, "CreateImage", func(ctx context.Context) error {
		var err error
		resp, err = a.clients.Compute.CreateImage(ctx, core.CreateImageRequest{
			OpcRetryToken:      common.String(token),
			CreateImageDetails: core.CreateImageDetails{
				CompartmentId: common.String(a.compartmentID),
				DisplayName:   common.String(imageName),
				LaunchMode:    launchMode,
				ImageSourceDetails: core.ImageSourceViaObjectStorageUriDetails{
					SourceUri:       common.String(req.SourceImageURI),
					OperatingSystem: common.String(operatingSystem),
				},
				FreeformTags: map[string]string{
					"SourceAsset":    req.SourceID,
					"SourceProvider": req.SourceProvider,
				},
			},
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to start image import: %w", err)
	}
	id := str(resp.Image.Id)
	a.logger.Infof("Started image import %s (%s) from %s", imageName, id, req.SourceImageURI)
	return id, nil
}

// ReplicationStatus maps the image lifecycle state.
func (a *Adapter) ReplicationStatus(ctx context.Context, replicationID string) (*cloud.ReplicationStatus, error) {
	var resp core.GetImageResponse
	err := a.call(ctx, "GetImage", func(ctx context.Context) error {
		var err error
		resp, err = a.clients.Compute.GetImage(ctx, core.GetImageRequest{ImageId: common.String(replicationID)})
		return err
	})
	if isNotFound(err) {
		return &cloud.ReplicationStatus{ID: replicationID, State: cloud.ReplicationPending}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image %s: %w", replicationID, err)
	}
	return imageStatus(replicationID, resp.Image.LifecycleState), nil
}

func imageStatus(id string, state core.ImageLifecycleStateEnum) *cloud.ReplicationStatus {
	st := &cloud.ReplicationStatus{ID: id, Message: string(state)}
	switch state {
	case core.ImageLifecycleStateAvailable:
		st.State = cloud.ReplicationCompleted
		st.Progress = 100
		st.ImageID = id
	case core.ImageLifecycleStateDeleted, core.ImageLifecycleStateDisabled:
		st.State = cloud.ReplicationFailed
	case "":
		st.State = cloud.ReplicationPending
	default:
		st.State = cloud.ReplicationInProgress
		st.Progress = 50
	}
	return st
}

// Cutover launches the target instance from the imported image.
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

// validateObjectURI accepts Object Storage https URLs, including
// pre-authenticated request URLs.
func validateObjectURI(uri string) error {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "https" || !strings.Contains(u.Host, "objectstorage.") {
		return fmt.Errorf("source image uri %q must be an https Object Storage URL: %w", uri, cloud.ErrConfiguration)
	}
	if !strings.Contains(u.Path, "/o/") {
		return fmt.Errorf("source image uri %q does not name an object: %w", uri, cloud.ErrConfiguration)
	}
	return nil
}
