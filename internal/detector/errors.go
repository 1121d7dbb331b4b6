package detector

import "errors"

var (
	// ErrDetectorFailure wraps any error, panic or malformed claim from a detector.
	ErrDetectorFailure = errors.New("detector failure")

	// ErrBankTimeout marks detectors that had not reported when the bank budget expired.
	ErrBankTimeout = errors.New("detector bank budget exceeded")

	// ErrGuardMissing is recorded when no CatastrophicGuard is registered with the bank.
	ErrGuardMissing = errors.New("catastrophic guard not registered")
)
