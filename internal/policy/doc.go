// Package policy implements the contextual bandit that picks which outreach
// action to send to a lead.
//
// The catalog of arms is fixed and seeded at startup; only the per-arm
// impression/reward counters learn. Selection is upper-confidence-bound with
// a forced-exploration constant for untried arms and a multiplicative boost
// for arms biased toward the lead's segment. Given the same state, Decide is
// fully deterministic (ties resolve to catalog order), which keeps every sent
// message auditable.
package policy
