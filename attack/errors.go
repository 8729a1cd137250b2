package attack

import (
	"errors"
	"fmt"
)

var (
	// ErrRecoveryExhausted means every guess for some byte was rejected.
	// The block cannot be recovered and nothing is guessed in its place.
	ErrRecoveryExhausted = errors.New("padding oracle attack exhausted all guesses")

	// ErrInvalidCiphertext is returned when the IV or ciphertext cannot be
	// split into whole blocks.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")

	// ErrBlockSize is returned for block sizes the attack cannot work with.
	ErrBlockSize = errors.New("invalid block size")
)

// ExhaustedError reports the byte index at which recovery gave up.
// It matches ErrRecoveryExhausted with errors.Is.
type ExhaustedError struct {
	Index   int
	Guesses int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: byte %d rejected all %d guesses", ErrRecoveryExhausted, e.Index, e.Guesses)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrRecoveryExhausted
}
