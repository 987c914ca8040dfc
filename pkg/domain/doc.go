// Package domain holds the core data model of the execution core: the
// immutable ScenarioState snapshot and every record type that hangs off it.
//
// ScenarioState is never mutated in place. Each With* transform returns a new
// top-level instance; substructures that did not change are shared by
// reference between the old and the new instance. Callers must treat every
// reachable substructure as read-only.
package domain
