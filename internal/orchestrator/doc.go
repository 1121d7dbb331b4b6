// Package orchestrator plans conversational turns.
//
// # Overview
//
// An Orchestrator owns one turn end to end:
//
//	extract → (detector bank ∥ memory compositor) → arbitrate → loop → tone → commit
//
// Signal extraction runs first because every detector depends on it. The
// detector bank and the memory compositor then run concurrently; neither
// depends on the other. The arbitration engine reduces the bank's claims
// to one directive, which drives the looping state machine, crisis
// routing and the tone modulation handed to the responder.
//
// # Session state
//
// Turns on one session are serialized through a conversation.Manager
// lease. Session state is committed only after the whole plan is built,
// so a cancelled turn leaves the session untouched. A turn that hits an
// internal fault still answers with a degraded pass-through plan; the
// loop and trust level are left as they were.
//
// # Safety
//
// A P0 or ambiguous-safety directive freezes an active loop. Bypass
// directives always carry at least one crisis resource, falling back to a
// configured resource when the router cannot answer, and every bypass is
// reported as an event.
package orchestrator
