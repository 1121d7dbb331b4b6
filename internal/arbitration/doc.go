// Package arbitration resolves the claims produced for a turn into exactly
// one Directive.
//
// The winning claim comes from the highest-priority non-empty tier, with ties
// broken by confidence and then by fixed detector precedence. Claims from
// lower-priority tiers ride along as secondary modulations but never change
// the winner's kind or tier. A P0 claim always bypasses to crisis resources
// and carries no modulations.
package arbitration
