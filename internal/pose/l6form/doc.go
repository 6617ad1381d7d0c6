// Package l6form owns Layer 6 (Form) of the pose data model.
//
// Responsibilities: the bounded rolling history of form scores, the current
// and average score, and the throttled feedback policy that turns the
// average into an advisory message for the host.
// Key types: Aggregator, FeedbackPolicy, Feedback, Severity.
//
// Dependency rule: L6 may depend on L1-L5.
package l6form
