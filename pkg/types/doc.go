// Package types defines the entities shared by every package in the action
// execution engine: profiles, clusters, nodes, policies and their bindings,
// actions and their dependency edges, the two lock kinds, and the engine
// liveness/registry records. Nothing here talks to storage or Raft; it is
// the vocabulary the rest of the module is written in.
package types
