// Package allocator derives address blocks for networks and subnets.
//
// Allocation is a pure function of its inputs: a region selector maps to a
// pre-registered network block, and a subnet offset maps to a /24 inside its
// parent. No live state is consulted, so units applied independently can
// never race each other for address space.
package allocator
