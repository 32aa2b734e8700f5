// Package topology holds the shared data model of a network topology: address
// blocks, provisioned networks and their subnets, route tables, peering links,
// deployment-unit specifications and their published outputs.
//
// It also defines the error kinds every other package reports through, so a
// caller can classify a failure with [KindOf] regardless of which layer
// raised it.
package topology
