// Package memory assembles the bounded memory context handed to the
// responder each turn.
//
// The Compositor queries up to five tiers concurrently (session, profile,
// episodic, symbolic, external-document), each under its own timeout, and
// enforces one overall timeout slightly above the largest tier timeout.
// Stragglers are abandoned. A tier that fails or times out contributes an
// empty list, so Compose never returns an error.
//
// Results are merged in tier priority order and truncated to a byte budget
// measured as the JSON encoding of the kept entries. Compose performs reads
// only; writes to long-term memory belong to other processes.
//
// Backends live in sub-packages: sqlitestore (modernc.org/sqlite) and
// chromemstore (chromem-go). MapStore is an in-memory backend.
package memory
