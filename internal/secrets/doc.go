// Package secrets redacts credentials from user text before it leaves the
// process, using the gitleaks rule set.
//
// Redaction markers keep the rule id ("[REDACTED:slack-bot-token]") so a
// downstream model still sees that something was typed there.
package secrets
