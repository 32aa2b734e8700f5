// Package aws implements the cloud provider interfaces on Amazon EC2: VPCs,
// subnets, route tables, internet gateways, security groups and VPC peering
// connections.
//
// Every API call passes a client-side rate limiter, is retried on throttling
// and eventual-consistency errors, and is reported to the metrics API.
package aws
