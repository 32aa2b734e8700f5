// Package memory implements the cloud interfaces in process.
//
// All region clients of one [Provider] share a [World], so a peering link
// created from one region is visible to the accepter region's client just as
// it is on a real cloud. The world supports fault injection and inspection
// for tests, and backs the "memory" provider type for dry sandboxes.
package memory
