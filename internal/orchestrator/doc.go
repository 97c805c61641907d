// Package orchestrator composes the scoring engine, the bot policy and the
// priority queue into a single lead-processing pipeline. It keeps only a
// bounded event log and counters of its own; every authoritative piece of
// state lives in the composed components, so a restart loses nothing.
package orchestrator
