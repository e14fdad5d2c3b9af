// Package plan defines the versioned plan data model shared by the planning
// engine, the plan store, and the delegation layer.
//
// A Plan is a phased breakdown of a project goal. Each Phase holds an ordered
// list of Tasks; each Task names the files it will touch and the steps that
// verify it. Plans also carry the Decisions made while designing them, with
// rationale and the alternatives that were rejected, so later tasks can be
// briefed on why the plan looks the way it does.
//
// Plans are immutable snapshots: any change produces a new version through
// the store subpackage, and the version counter never goes backwards or
// repeats. Task status moves strictly forward (pending, in_progress,
// completed); reverting a task requires appending a new plan version that
// states the regression explicitly.
package plan
