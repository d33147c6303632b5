// Package engine provides the asynchronous job execution engine.
// It queues jobs on a fixed-size worker pool, drives each job's lifecycle in
// the job store, publishes status and progress events to subscribers, and
// expires finished jobs on a schedule.
package engine
