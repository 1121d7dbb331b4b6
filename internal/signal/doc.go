// Package signal turns raw utterance text (plus optional audio features) into
// the structured feature bundle consumed by the detector bank.
//
// The Extractor contract is deliberately narrow so that a model-backed
// implementation can replace the lexical one. Callers should go through Safe,
// which converts every extractor failure into a zero-confidence extraction
// that still carries the normalized text, so pattern detectors keep working
// when a classifier is down.
package signal
