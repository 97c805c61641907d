// Package queue routes scored leads to human agents. Leads are held in a
// priority-ordered work list: base priority comes from the lead's segment,
// with small performance-driven boosts and a jitter that breaks ties inside
// a tier without ever reordering tiers. Agents carry a capacity and an
// optional segment focus; assignment picks the least-loaded eligible agent.
package queue
