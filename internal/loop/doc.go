// Package loop implements the clarification loop: a bounded, convergence
// tracked cycle of reflecting the user's meaning back and checking it.
//
// States:
//
//	Idle → Listening → Paraphrasing → AwaitingCheck → (Correcting → Paraphrasing) | Converged → Idle
//
// Machine.Advance is a pure function from (State, Input) to (State, Outcome).
// The caller commits the returned State only once the turn is known to
// complete, so an abandoned turn never changes loop state.
//
// The loop ends on explicit confirmation, on a convergence score at or above
// the threshold, on the hard cycle cap, after one unanswered re-prompt, or on
// an explicit user exit. Safety turns freeze the state untouched so the loop
// resumes where it was.
package loop
