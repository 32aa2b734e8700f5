package aws

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/smithy-go"

	"github.com/imamik/vpcmesh/internal/config"
)

// fakeEC2 overrides the calls a test needs; any other call panics on the
// nil embedded interface.
type fakeEC2 struct {
	EC2API

	mu    sync.Mutex
	calls []string

	createVpc        func(*ec2.CreateVpcInput) (*ec2.CreateVpcOutput, error)
	modifyVpc        func(*ec2.ModifyVpcAttributeInput) (*ec2.ModifyVpcAttributeOutput, error)
	createSubnet     func(*ec2.CreateSubnetInput) (*ec2.CreateSubnetOutput, error)
	modifySubnet     func(*ec2.ModifySubnetAttributeInput) (*ec2.ModifySubnetAttributeOutput, error)
	describeVpcs     func(*ec2.DescribeVpcsInput) (*ec2.DescribeVpcsOutput, error)
	createRoute      func(*ec2.CreateRouteInput) (*ec2.CreateRouteOutput, error)
	describeTables   func(*ec2.DescribeRouteTablesInput) (*ec2.DescribeRouteTablesOutput, error)
	createPeering    func(*ec2.CreateVpcPeeringConnectionInput) (*ec2.CreateVpcPeeringConnectionOutput, error)
	acceptPeering    func(*ec2.AcceptVpcPeeringConnectionInput) (*ec2.AcceptVpcPeeringConnectionOutput, error)
	describePeering  func(*ec2.DescribeVpcPeeringConnectionsInput) (*ec2.DescribeVpcPeeringConnectionsOutput, error)
	createGroup      func(*ec2.CreateSecurityGroupInput) (*ec2.CreateSecurityGroupOutput, error)
	authorizeIngress func(*ec2.AuthorizeSecurityGroupIngressInput) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
	deleteGeneric    func(operation string) error
}

func (f *fakeEC2) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

func (f *fakeEC2) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeEC2) CreateVpc(_ context.Context, in *ec2.CreateVpcInput, _ ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error) {
	f.record("CreateVpc")
	return f.createVpc(in)
}

func (f *fakeEC2) ModifyVpcAttribute(_ context.Context, in *ec2.ModifyVpcAttributeInput, _ ...func(*ec2.Options)) (*ec2.ModifyVpcAttributeOutput, error) {
	f.record("ModifyVpcAttribute")
	if f.modifyVpc == nil {
		return &ec2.ModifyVpcAttributeOutput{}, nil
	}
	return f.modifyVpc(in)
}

func (f *fakeEC2) CreateSubnet(_ context.Context, in *ec2.CreateSubnetInput, _ ...func(*ec2.Options)) (*ec2.CreateSubnetOutput, error) {
	f.record("CreateSubnet")
	return f.createSubnet(in)
}

func (f *fakeEC2) ModifySubnetAttribute(_ context.Context, in *ec2.ModifySubnetAttributeInput, _ ...func(*ec2.Options)) (*ec2.ModifySubnetAttributeOutput, error) {
	f.record("ModifySubnetAttribute")
	if f.modifySubnet == nil {
		return &ec2.ModifySubnetAttributeOutput{}, nil
	}
	return f.modifySubnet(in)
}

func (f *fakeEC2) DescribeVpcs(_ context.Context, in *ec2.DescribeVpcsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	f.record("DescribeVpcs")
	return f.describeVpcs(in)
}

func (f *fakeEC2) CreateRoute(_ context.Context, in *ec2.CreateRouteInput, _ ...func(*ec2.Options)) (*ec2.CreateRouteOutput, error) {
	f.record("CreateRoute")
	return f.createRoute(in)
}

func (f *fakeEC2) DescribeRouteTables(_ context.Context, in *ec2.DescribeRouteTablesInput, _ ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error) {
	f.record("DescribeRouteTables")
	return f.describeTables(in)
}

func (f *fakeEC2) CreateVpcPeeringConnection(_ context.Context, in *ec2.CreateVpcPeeringConnectionInput, _ ...func(*ec2.Options)) (*ec2.CreateVpcPeeringConnectionOutput, error) {
	f.record("CreateVpcPeeringConnection")
	return f.createPeering(in)
}

func (f *fakeEC2) AcceptVpcPeeringConnection(_ context.Context, in *ec2.AcceptVpcPeeringConnectionInput, _ ...func(*ec2.Options)) (*ec2.AcceptVpcPeeringConnectionOutput, error) {
	f.record("AcceptVpcPeeringConnection")
	return f.acceptPeering(in)
}

func (f *fakeEC2) DescribeVpcPeeringConnections(_ context.Context, in *ec2.DescribeVpcPeeringConnectionsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcPeeringConnectionsOutput, error) {
	f.record("DescribeVpcPeeringConnections")
	return f.describePeering(in)
}

func (f *fakeEC2) CreateSecurityGroup(_ context.Context, in *ec2.CreateSecurityGroupInput, _ ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error) {
	f.record("CreateSecurityGroup")
	return f.createGroup(in)
}

func (f *fakeEC2) AuthorizeSecurityGroupIngress(_ context.Context, in *ec2.AuthorizeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	f.record("AuthorizeSecurityGroupIngress")
	return f.authorizeIngress(in)
}

func (f *fakeEC2) generic(op string) error {
	f.record(op)
	if f.deleteGeneric == nil {
		return nil
	}
	return f.deleteGeneric(op)
}

func (f *fakeEC2) DetachInternetGateway(_ context.Context, _ *ec2.DetachInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.DetachInternetGatewayOutput, error) {
	return &ec2.DetachInternetGatewayOutput{}, f.generic("DetachInternetGateway")
}

func (f *fakeEC2) DeleteInternetGateway(_ context.Context, _ *ec2.DeleteInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.DeleteInternetGatewayOutput, error) {
	return &ec2.DeleteInternetGatewayOutput{}, f.generic("DeleteInternetGateway")
}

func (f *fakeEC2) DeleteSubnet(_ context.Context, _ *ec2.DeleteSubnetInput, _ ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error) {
	return &ec2.DeleteSubnetOutput{}, f.generic("DeleteSubnet")
}

func (f *fakeEC2) DeleteRouteTable(_ context.Context, _ *ec2.DeleteRouteTableInput, _ ...func(*ec2.Options)) (*ec2.DeleteRouteTableOutput, error) {
	return &ec2.DeleteRouteTableOutput{}, f.generic("DeleteRouteTable")
}

func (f *fakeEC2) DeleteSecurityGroup(_ context.Context, _ *ec2.DeleteSecurityGroupInput, _ ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error) {
	return &ec2.DeleteSecurityGroupOutput{}, f.generic("DeleteSecurityGroup")
}

func (f *fakeEC2) DeleteVpc(_ context.Context, _ *ec2.DeleteVpcInput, _ ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error) {
	return &ec2.DeleteVpcOutput{}, f.generic("DeleteVpc")
}

func (f *fakeEC2) DeleteVpcPeeringConnection(_ context.Context, _ *ec2.DeleteVpcPeeringConnectionInput, _ ...func(*ec2.Options)) (*ec2.DeleteVpcPeeringConnectionOutput, error) {
	return &ec2.DeleteVpcPeeringConnectionOutput{}, f.generic("DeleteVpcPeeringConnection")
}

func (f *fakeEC2) DeleteRoute(_ context.Context, _ *ec2.DeleteRouteInput, _ ...func(*ec2.Options)) (*ec2.DeleteRouteOutput, error) {
	return &ec2.DeleteRouteOutput{}, f.generic("DeleteRoute")
}

func apiErr(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

type recordingMetrics struct {
	mu        sync.Mutex
	calls     map[string]int
	rateLimit int
}

func (m *recordingMetrics) ObserveAPICall(call, _ string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[call]++
}

func (m *recordingMetrics) ObserveRateLimit(string, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimit++
}

func testClient(api EC2API) (*Client, *recordingMetrics) {
	m := &recordingMetrics{}
	return newClient(api, "us-east-1", Options{
		RateLimit: 1000,
		Burst:     1000,
		Metrics:   m,
		Timeouts:  config.TestTimeouts(),
	}), m
}
