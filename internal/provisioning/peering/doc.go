// Package peering creates, accepts and removes peering links between two
// networks, possibly in different regions.
package peering
