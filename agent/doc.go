// Package agent contains the core processing loop shared by the Melon
// front ends: it sends conversation state to the model, dispatches the
// tool calls the model requests, feeds the results back, and repeats until
// the model answers in plain text or the iteration bound is hit.
//
// # Architecture
//
//   - Core agent (this package): the Agent type, the bounded model/tool
//     loop, and the structured-history fallback for providers that reject
//     tool-shaped messages.
//   - Terminal subpackage (agent/terminal): the interactive CLI.
//
// # Callbacks
//
// ProcessCallbacks lets the front end render loop events (assistant text,
// tool calls, tool results, warnings) without the core knowing anything
// about terminals. The same loop could back other transports by supplying
// different callbacks.
//
// # Failure semantics
//
// A failure inside a single tool dispatch becomes that call's tool result;
// it never aborts the turn. Provider errors end the turn with the history
// appended so far intact, and hitting the iteration bound returns
// ErrIterationLimit, which front ends report as a soft limit.
package agent
