// Package performance exposes the global arm-performance signal.
//
// The messaging bot (outside this core) runs its own bandit catalog over
// every conversation knob and publishes per-arm conversion stats to Redis.
// This core only reads that signal, as a small optional boost to lead scores
// and queue priorities. The signal is strictly advisory: when Redis is
// unreachable or the key is empty, consumers proceed without the boost.
package performance
