// Package detector implements the signal detector bank.
//
// Each detector inspects one utterance (as a signal.Extraction) together with
// a read-only snapshot of session state and proposes at most one Claim. A
// Claim carries a priority Tier (P0 highest), a confidence and a typed Hint
// describing what the detector wants the turn to do.
//
// The Bank runs all detectors concurrently under a single shared budget
// (100ms by default). Detectors that fail, panic or miss the budget count as
// "no claim", with one exception: when the CatastrophicGuard does not report
// cleanly, the bank synthesizes a P1 ambiguous-safety claim so that a broken
// safety check elevates caution instead of silently passing.
//
// # Detectors
//
//   - CatastrophicGuard (P0): crisis phrase catalogue with context-window negation
//   - Boundary (P1): requests to stop, slow down, or change subject
//   - Urgency (P1): time pressure, "I need an answer now"
//   - LoopingTrigger (P2): intensity, ambiguity, self-correction, depth requests
//   - ElementalResonance (P3): dominant tone element
//   - ContemplativeSpace (P3): cues that silence or pacing is wanted
package detector
