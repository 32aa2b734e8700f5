// Package network provisions one network with its subnets, route tables,
// internet egress and security policy.
//
// All address allocation and input validation happens before the first
// provider call, so a bad subnet offset never leaves half a network behind.
package network
