// Package pipeline schedules one correction job per scene index, captures
// per-job failures and summarizes the run.
//
// A run moves through four phases:
//
//	Initializing  read the split file, create the output root
//	Dispatching   skip completed indices, submit the rest in order
//	Draining      wait for in-flight jobs
//	Done          return the RunResult
//
// Only configuration problems abort a run. Every other problem becomes a
// Failure outcome for the index it belongs to, and the rest of the batch
// carries on.
package pipeline
