// Package waiting provides the condition-waiting primitives used to sequence
// multi-step, multi-node administrative operations: polling a single condition
// with timeout and retry, polling a fixed group of members with per-member
// failure isolation, running independent waits concurrently, and activating
// members of a dependency graph in topological order.
//
// Concrete conditions (SSH reachability, boot-session status, storage health,
// pod state) live outside this package and plug in through the Condition and
// GroupCondition interfaces.
package waiting
