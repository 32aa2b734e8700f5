// Package orchestration composes deployment units into a topology.
//
// Units reference each other's published outputs: a peering unit needs the
// network of its peer, and a routes unit needs the link of a peering unit
// and the route table of a network in its own region. These references are
// typed edges of a Graph, which is sorted into levels with Kahn's
// algorithm.
//
// The Composer then applies level after level, running the units of one
// level concurrently, and keeps one state record per unit:
//
//	planned -> applying -> applied -> drifted | destroyed
//	                    -> failed
//
// # Usage
//
//	composer := orchestration.NewComposer(registry, store)
//	report, err := composer.Apply(pctx, specs, orchestration.ApplyOptions{})
//
// Re-applying is safe: recorded networks and links are reused and routes
// that are still live are not installed again.
package orchestration
