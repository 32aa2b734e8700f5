// Package provisioning provides the shared plumbing of the provisioning
// components.
//
// The domain is organized into focused subpackages:
//   - network/: networks, subnets, route tables, gateways, security policy
//   - peering/: peering links between two networks
//   - routes/: peering routes on either side of a link
//
// This root package contains the per-run [Context], the [Observer] used for
// structured events, and the Prometheus [Metrics] every subpackage records to.
package provisioning
