// Package routes installs, verifies and removes the routes that make a
// peering link usable from each side's route table.
package routes
