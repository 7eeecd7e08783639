package azure

import (
	"context"
	"errors"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
)

type staticCredential struct{}

func (staticCredential) GetToken(context.Context, policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: "test"}, nil
}

func newTestAdapter(t *testing.T, values map[string]string) *Adapter {
	t.Helper()
	creds := cloud.Credentials{Provider: cloud.ProviderAzure, Region: "westeurope", Values: values}
	a, err := NewWithCredential("00000000-0000-0000-0000-000000000000", creds, staticCredential{}, cloud.Options{})
	if err != nil {
		t.Fatalf("NewWithCredential failed: %v", err)
	}
	return a
}

const vmID = "/subscriptions/00000000-0000-0000-0000-000000000000/resourceGroups/rg-app/providers/Microsoft.Compute/virtualMachines/web-1"

func TestNewRequiresSubscription(t *testing.T) {
	_, err := New(context.Background(), cloud.Credentials{Provider: cloud.ProviderAzure}, cloud.Options{})
	var missing *cloud.MissingCredentialError
	if !errors.As(err, &missing) || missing.Key != "subscription_id" {
		t.Errorf("Expected missing subscription_id, got %v", err)
	}
}

func TestParseID(t *testing.T) {
	group, name, err := parseID(vmID)
	if err != nil {
		t.Fatalf("parseID failed: %v", err)
	}
	if group != "rg-app" || name != "web-1" {
		t.Errorf("Expected rg-app/web-1, got %s/%s", group, name)
	}
	if _, _, err := parseID("not-an-id"); err == nil {
		t.Error("Expected error for malformed id")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"throttled", &azcore.ResponseError{StatusCode: 429}, true},
		{"server error", &azcore.ResponseError{StatusCode: 503}, true},
		{"forbidden", &azcore.ResponseError{StatusCode: 403}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cloud.IsTransient(classify("Op", tt.err)); got != tt.transient {
				t.Errorf("Expected transient=%v, got %v", tt.transient, got)
			}
		})
	}
	if !isNotFound(&azcore.ResponseError{StatusCode: 404}) {
		t.Error("Expected 404 to be not found")
	}
}

func TestMapVM(t *testing.T) {
	vm := &armcompute.VirtualMachine{
		ID:       to.Ptr(vmID),
		Name:     to.Ptr("web-1"),
		Location: to.Ptr("westeurope"),
		Tags:     map[string]*string{"env": to.Ptr("prod")},
		Properties: &armcompute.VirtualMachineProperties{
			HardwareProfile: &armcompute.HardwareProfile{VMSize: to.Ptr(armcompute.VirtualMachineSizeTypesStandardD4SV3)},
			StorageProfile: &armcompute.StorageProfile{
				OSDisk: &armcompute.OSDisk{
					Name:       to.Ptr("web-1-os"),
					DiskSizeGB: to.Ptr[int32](30),
					OSType:     to.Ptr(armcompute.OperatingSystemTypesLinux),
				},
				DataDisks: []*armcompute.DataDisk{{DiskSizeGB: to.Ptr[int32](100)}},
			},
			InstanceView: &armcompute.VirtualMachineInstanceView{
				Statuses: []*armcompute.InstanceViewStatus{
					{Code: to.Ptr("ProvisioningState/succeeded")},
					{Code: to.Ptr("PowerState/running")},
				},
			},
		},
	}
	inst := mapVM(vm)
	if inst.CPUCores != 4 || inst.MemoryGB != 16 {
		t.Errorf("Expected 4 cores / 16 GB, got %d / %v", inst.CPUCores, inst.MemoryGB)
	}
	if inst.DiskGB != 130 || inst.State != "running" {
		t.Errorf("Expected 130 GB running, got %d %q", inst.DiskGB, inst.State)
	}
	if inst.Tags["env"] != "prod" || inst.Metadata["resource_group"] != "rg-app" || inst.Metadata["os_type"] != "Linux" {
		t.Errorf("Unexpected tags or metadata: %v %v", inst.Tags, inst.Metadata)
	}
}

func TestImageStatus(t *testing.T) {
	tests := []struct {
		state string
		want  cloud.ReplicationState
	}{
		{"Succeeded", cloud.ReplicationCompleted},
		{"Creating", cloud.ReplicationInProgress},
		{"Failed", cloud.ReplicationFailed},
		{"", cloud.ReplicationPending},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			st := imageStatus("img-1", tt.state)
			if st.State != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, st.State)
			}
			if tt.want == cloud.ReplicationCompleted && st.ImageID != "img-1" {
				t.Errorf("Expected completed image id, got %q", st.ImageID)
			}
		})
	}
}

func TestValidateBlobURI(t *testing.T) {
	tests := []struct {
		uri string
		ok  bool
	}{
		{"https://acct.blob.core.windows.net/vhds/web.vhd", true},
		{"http://acct.blob.core.windows.net/vhds/web.vhd", false},
		{"https://acct.blob.core.windows.net/vhds/web.qcow2", false},
		{"s3://bucket/web.vhd", false},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			err := validateBlobURI(tt.uri)
			if (err == nil) != tt.ok {
				t.Errorf("validateBlobURI(%q) = %v, want ok=%v", tt.uri, err, tt.ok)
			}
			if err != nil && !cloud.IsConfiguration(err) {
				t.Errorf("Expected configuration error, got %v", err)
			}
		})
	}
}

func TestCreateInstanceRequiresResourceGroup(t *testing.T) {
	a := newTestAdapter(t, nil)
	_, err := a.CreateInstance(context.Background(), cloud.InstanceSpec{Name: "web", ImageID: "img"})
	var missing *cloud.MissingCredentialError
	if !errors.As(err, &missing) || missing.Key != "resource_group" {
		t.Errorf("Expected missing resource_group, got %v", err)
	}
}

func TestOSProfile(t *testing.T) {
	a := newTestAdapter(t, map[string]string{"resource_group": "rg"})
	if _, err := a.osProfile("web"); !cloud.IsConfiguration(err) {
		t.Errorf("Expected missing admin_password to be a configuration error, got %v", err)
	}
	a = newTestAdapter(t, map[string]string{"ssh_public_key": "ssh-rsa AAAA"})
	p, err := a.osProfile("Web 1")
	if err != nil {
		t.Fatalf("osProfile failed: %v", err)
	}
	if p.LinuxConfiguration == nil || *p.ComputerName != "web-1" || *p.AdminUsername != "cloudhop" {
		t.Errorf("Unexpected profile: %+v", p)
	}
}

func TestMergeTags(t *testing.T) {
	merged := mergeTags(map[string]*string{"env": to.Ptr("prod")}, map[string]string{"MigrationID": "m-1"})
	if len(merged) != 2 || *merged["env"] != "prod" || *merged["MigrationID"] != "m-1" {
		t.Errorf("Unexpected merge: %v", merged)
	}
}

func TestUnsupportedOperations(t *testing.T) {
	a := newTestAdapter(t, nil)
	ctx := context.Background()
	if _, err := a.MigrateDatabase(ctx, cloud.DatabaseMigrationRequest{}); !cloud.IsNotSupported(err) {
		t.Errorf("Expected MigrateDatabase unsupported, got %v", err)
	}
	if _, err := a.DeployContainer(ctx, cloud.ContainerSpec{}); !cloud.IsNotSupported(err) {
		t.Errorf("Expected DeployContainer unsupported, got %v", err)
	}
	if _, err := a.Metrics(ctx, vmID, nil, 0); !cloud.IsNotSupported(err) {
		t.Errorf("Expected Metrics unsupported, got %v", err)
	}
	dbs, err := a.DiscoverDatabases(ctx)
	if err != nil || len(dbs) != 0 {
		t.Errorf("Expected empty database discovery, got %v, %v", dbs, err)
	}
	if _, err := a.CreateSnapshot(ctx, vmID, cloud.KindBucket); !cloud.IsNotSupported(err) {
		t.Errorf("Expected bucket snapshot unsupported, got %v", err)
	}
}
