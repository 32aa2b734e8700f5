// Package labels builds the tags every managed cloud resource carries.
//
// Tags identify the topology and deployment unit a resource belongs to so
// that resources can be found again for drift detection and teardown.
package labels
