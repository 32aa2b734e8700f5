// Package hcloud implements cloud.Provider on the Hetzner Cloud API.
//
// Regions are network zones (eu-central, us-east, ...) and availability
// zones are the locations inside one. A network has exactly one route
// table whose id is the network id, and firewalls serve as security
// policies. Internet gateways and peering are not offered by Hetzner and
// return cloud.ErrUnsupported.
//
// Resources are created through EnsureOperation (get by name, validate,
// create) and removed through DeleteOperation (idempotent, retries locked
// resources), so provisioning a network twice adopts the first one.
package hcloud
