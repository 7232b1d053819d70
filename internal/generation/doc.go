// Package generation runs comment generation jobs.
//
// An Orchestrator submits every main unit of the current view as a single
// batch and then observes the post list on a fixed interval until each target
// carries a generated comment or the round budget is exhausted. Only one job
// is active at a time; a file lock extends that guarantee across processes.
//
// Job lifecycle:
//
//	idle -> submitted -> polling -> done | partial | stopped
//
// Completion detection sits behind the Observer interface so a push-based
// source can replace polling without touching the state machine.
package generation
