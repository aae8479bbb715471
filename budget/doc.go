// Package budget describes the spend figures the council reads before
// dispatching work.
//
// The council is budget-aware but not budget-authoritative: a Source
// supplies a Snapshot once per decision and nothing in this module mutates
// it. Snapshots may be stale.
package budget
