// Package gcp implements the cloud adapter for Google Cloud.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/compute/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sqladmin/v1"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/common"
	"github.com/codebypatrickleung/cloudhop/internal/logger"
	"github.com/codebypatrickleung/cloudhop/internal/poll"
)

const (
	defaultZone   = "us-central1-a"
	maxNameLength = 63
)

// Services bundles the API clients an Adapter talks to. Storage may be nil,
// in which case storage discovery is reported as a configuration error.
type Services struct {
	Compute *compute.Service
	SQL     *sqladmin.Service
	Storage *storage.Client
}

// Adapter implements cloud.Adapter on Google Cloud.
type Adapter struct {
	project  string
	zone     string
	region   string
	services Services
	caller   *cloud.Caller
	logger   *logger.Logger
	ops      poll.Config
}

var _ cloud.Adapter = (*Adapter)(nil)

// New builds an Adapter. project_id is required; credentials_file selects a
// service account key, otherwise application default credentials are used.
func New(ctx context.Context, creds cloud.Credentials, opts cloud.Options) (cloud.Adapter, error) {
	project, err := creds.Require("project_id")
	if err != nil {
		return nil, err
	}
	var clientOpts []option.ClientOption
	if path := creds.Get("credentials_file"); path != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(path))
	}
	computeSvc, err := compute.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute client: %w", err)
	}
	sqlSvc, err := sqladmin.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sql admin client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return NewWithServices(project, creds.Get("zone"), creds.Region, Services{
		Compute: computeSvc,
		SQL:     sqlSvc,
		Storage: storageClient,
	}, opts), nil
}

// NewWithServices builds an Adapter around pre-built API clients. An empty
// zone defaults to us-central1-a and an empty region is derived from the zone.
func NewWithServices(project, zone, region string, services Services, opts cloud.Options) *Adapter {
	opts = opts.WithDefaults()
	if zone == "" {
		zone = defaultZone
	}
	if region == "" {
		region = regionOf(zone)
	}
	return &Adapter{
		project:  project,
		zone:     zone,
		region:   region,
		services: services,
		caller:   opts.Caller,
		logger:   opts.Logger.Named("gcp"),
		ops:      poll.Config{Interval: 2 * time.Second, Timeout: 15 * time.Minute},
	}
}

// Provider returns "gcp".
func (a *Adapter) Provider() string { return cloud.ProviderGCP }

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

// classify marks rate limiting and server errors as transient.
func classify(op string, err error) error {
	if err == nil || cloud.IsTransient(err) {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError) {
		return &cloud.TransientError{Provider: cloud.ProviderGCP, Op: op, Err: err}
	}
	return err
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

// wait polls a zonal or global operation until it is DONE and surfaces the
// first operation error.
func (a *Adapter) wait(ctx context.Context, op *compute.Operation) error {
	if op == nil {
		return nil
	}
	zone := lastSegment(op.Zone)
	return poll.Until(ctx, a.ops, func(ctx context.Context) (bool, error) {
		if op.Status == "DONE" {
			return true, operationError(op)
		}
		var current *compute.Operation
		err := a.call(ctx, "GetOperation", func(ctx context.Context) error {
			var err error
			if zone != "" {
				current, err = a.services.Compute.ZoneOperations.Get(a.project, zone, op.Name).Context(ctx).Do()
			} else {
				current, err = a.services.Compute.GlobalOperations.Get(a.project, op.Name).Context(ctx).Do()
			}
			return err
		})
		if err != nil {
			return false, fmt.Errorf("failed to get operation %s: %w", op.Name, err)
		}
		op = current
		if op.Status == "DONE" {
			return true, operationError(op)
		}
		return false, nil
	})
}

func operationError(op *compute.Operation) error {
	if op.Error == nil || len(op.Error.Errors) == 0 {
		return nil
	}
	e := op.Error.Errors[0]
	return fmt.Errorf("operation %s failed: %s: %s", op.Name, e.Code, e.Message)
}

// zonalID builds the partial resource path used as the identifier of zonal
// resources.
func (a *Adapter) zonalID(zone, collection, name string) string {
	return fmt.Sprintf("projects/%s/zones/%s/%s/%s", a.project, zone, collection, name)
}

func (a *Adapter) globalID(collection, name string) string {
	return fmt.Sprintf("projects/%s/global/%s/%s", a.project, collection, name)
}

// parseZonal splits a zonal resource path or URL into zone and name. A bare
// name resolves to the adapter zone.
func (a *Adapter) parseZonal(id string) (zone, name string) {
	parts := strings.Split(strings.Trim(id, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "zones" && i+3 < len(parts) {
			return parts[i+1], parts[len(parts)-1]
		}
	}
	return a.zone, parts[len(parts)-1]
}

func lastSegment(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}

// regionOf drops the zone suffix, so "europe-west1-b" becomes "europe-west1".
func regionOf(zone string) string {
	if i := strings.LastIndex(zone, "-"); i > 0 {
		return zone[:i]
	}
	return zone
}

// resourceName builds a compliant name: lowercase letters, digits and
// hyphens, starting with a letter.
func resourceName(prefix, name string) string {
	return strings.ReplaceAll(common.ResourceName(prefix, name, maxNameLength, time.Now()), "_", "-")
}

// labelsFrom converts tags to label form. Keys and values are lowercased and
// characters outside [a-z0-9_-] are dropped; keys that end up empty are skipped.
func labelsFrom(tags map[string]string) map[string]string {
	labels := make(map[string]string, len(tags))
	for k, v := range tags {
		key := common.SanitizeName(k)
		if key == "" {
			continue
		}
		labels[key] = common.SanitizeName(v)
	}
	return labels
}

func mergeLabels(current, tags map[string]string) map[string]string {
	merged := cloud.CloneTags(current)
	for k, v := range labelsFrom(tags) {
		merged[k] = v
	}
	return merged
}
