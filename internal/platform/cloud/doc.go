// Package cloud defines the provider-neutral interfaces through which the
// provisioning layer talks to a cloud.
//
// A [Provider] hands out region-scoped [Client] values. Every client method
// is one provider call; retries, rate limiting and timeouts live in the
// provider implementations, and domain failures are reported with the error
// kinds from package topology.
package cloud
