package gcp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"google.golang.org/api/compute/v1"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/common"
)

// StartReplication creates an image from a raw disk archive in Cloud
// Storage. The insert is not awaited; the image path is the replication id.
func (a *Adapter) StartReplication(ctx context.Context, req cloud.ReplicationRequest) (string, error) {
	source, err := rawDiskURL(req.SourceImageURI)
	if err != nil {
		return "", err
	}
	name := req.Name
	if name == "" {
		name = req.SourceID
	}
	imageName := resourceName("img", lastSegment(name))
	image := &compute.Image{
		Name:    imageName,
		RawDisk: &compute.ImageRawDisk{Source: source},
		Labels: labelsFrom(map[string]string{
			"source-provider": req.SourceProvider,
			"source-asset":    lastSegment(req.SourceID),
		}),
	}
	if common.IsWindowsOS(req.Options["os_type"]) {
		image.GuestOsFeatures = []*compute.GuestOsFeature{{Type: "WINDOWS"}}
	}
	requestID := cloud.IdempotencyToken(req.Options, "InsertImage")
	err = a.call(ctx, "InsertImage", func(ctx context.Context) error {
		_, err := a.services.Compute.Images.Insert(a.project, image).RequestId(requestID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to start image creation: %w", err)
	}
	a.logger.Infof("Started image creation %s from %s", imageName, source)
	return a.globalID("images", imageName), nil
}

// ReplicationStatus maps the image status. An image not yet visible is
// reported as pending.
func (a *Adapter) ReplicationStatus(ctx context.Context, replicationID string) (*cloud.ReplicationStatus, error) {
	name := lastSegment(replicationID)
	var img *compute.Image
	err := a.call(ctx, "GetImage", func(ctx context.Context) error {
		var err error
		img, err = a.services.Compute.Images.Get(a.project, name).Context(ctx).Do()
		return err
	})
	if isNotFound(err) {
		return &cloud.ReplicationStatus{ID: replicationID, State: cloud.ReplicationPending}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image %s: %w", name, err)
	}
	return imageStatus(replicationID, img.Status), nil
}

func imageStatus(id, status string) *cloud.ReplicationStatus {
	st := &cloud.ReplicationStatus{ID: id, Message: status}
	switch status {
	case "READY":
		st.State = cloud.ReplicationCompleted
		st.Progress = 100
		st.ImageID = id
	case "FAILED", "DELETING":
		st.State = cloud.ReplicationFailed
	case "":
		st.State = cloud.ReplicationPending
	default:
		st.State = cloud.ReplicationInProgress
		st.Progress = 50
	}
	return st
}

// Cutover creates the target instance from the completed image.
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

// rawDiskURL accepts gs:// or storage.googleapis.com URLs of a .tar.gz raw
// disk archive and returns the https form the images API expects.
func rawDiskURL(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid source image uri %q: %w", uri, cloud.ErrConfiguration)
	}
	var bucket, object string
	switch {
	case u.Scheme == "gs":
		bucket, object = u.Host, strings.TrimPrefix(u.Path, "/")
	case u.Scheme == "https" && u.Host == "storage.googleapis.com":
		bucket, object, _ = strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	default:
		return "", fmt.Errorf("source image uri %q must be a gs:// or storage.googleapis.com URL: %w", uri, cloud.ErrConfiguration)
	}
	if bucket == "" || !strings.HasSuffix(object, ".tar.gz") {
		return "", fmt.Errorf("source image uri %q must name a .tar.gz raw disk archive: %w", uri, cloud.ErrConfiguration)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, object), nil
}
