// Package responder turns a TurnPlan into the user-facing reply.
//
// The turn pipeline never writes prose itself. A Responder receives the
// plan and the user's words and is free to phrase the answer, but the plan
// constrains it: bypass plans must surface the crisis resources, reflect
// plans must paraphrase rather than advise, and the tone fields set pace.
//
// OpenAI adapts any chat-completions endpoint. Prompt renders the plan as
// a system instruction so other adapters can share it.
package responder
