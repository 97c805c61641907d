// Package leadstore defines the lead lookup capability consumed by the
// scoring engine.
//
// The authoritative lead records live in an external relational store; this
// package only defines the read interface plus a synthesizing wrapper used in
// dev/test modes where that store may be absent or incomplete.
//
// The Postgres implementation lives in repository/postgres/.
package leadstore
