// Package async runs named tasks concurrently with a bound on parallelism.
//
// It is used by the network provisioner to create subnets side by side and
// by the composer to apply independent deployment units of one dependency
// level at the same time.
package async
