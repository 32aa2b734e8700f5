// Package config loads and validates the topology file (vpcmesh.yaml).
//
// The file declares the provider, the state backend, optional region
// registry overrides and the deployment units. [Load] parses and validates
// it; [Config.UnitSpecs] converts the declaration into the model the
// orchestrator works on. Timeouts and retry knobs come from the environment
// (see [LoadTimeouts]), and [RunWizard] builds a starter file interactively.
package config
