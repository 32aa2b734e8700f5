// Package naming derives resource names from topology and unit names.
//
// Names are deterministic so that a re-applied unit produces the same names
// and an operator can map a cloud resource back to its unit at a glance.
package naming
