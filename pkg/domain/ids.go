package domain

import (
	"github.com/google/uuid"

	dErrors "fieldbook/pkg/domain-errors"
)

// Typed identifiers for the core aggregates. Using distinct types prevents an
// account id from ever being passed where an observation id is expected; the
// compiler enforces what code review would otherwise have to catch.
//
// Usage: construct via the ParseX functions at trust boundaries (handlers,
// feed adapters); direct casting bypasses validation.

// AccountID identifies a user account. Stable and immutable for the lifetime
// of the account.
type AccountID uuid.UUID

// ObservationID identifies a single capture attempt.
type ObservationID uuid.UUID

// SpeciesID is the opaque catalog identifier supplied by the recognition
// mediator. It is not a UUID; the catalog owns its format.
type SpeciesID string

// maxSpeciesIDLen bounds mediator-supplied ids so they stay index-friendly.
const maxSpeciesIDLen = 128

// NewObservationID generates a fresh observation identifier.
func NewObservationID() ObservationID {
	return ObservationID(uuid.New())
}

// ParseAccountID constructs an AccountID from external input.
//
// Errors: CodeInvalidInput when the value is empty, malformed, or the nil UUID.
func ParseAccountID(s string) (AccountID, error) {
	u, err := parseUUID(s, "account id")
	if err != nil {
		return AccountID{}, err
	}
	return AccountID(u), nil
}

// ParseObservationID constructs an ObservationID from external input.
func ParseObservationID(s string) (ObservationID, error) {
	u, err := parseUUID(s, "observation id")
	if err != nil {
		return ObservationID{}, err
	}
	return ObservationID(u), nil
}

// ParseSpeciesID validates a mediator-supplied species id. The format is
// opaque, so validation is limited to non-emptiness, a length cap, and
// printable ASCII (catalog ids are ASCII slugs).
func ParseSpeciesID(s string) (SpeciesID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "species id cannot be empty")
	}
	if len(s) > maxSpeciesIDLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "species id too long")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return "", dErrors.New(dErrors.CodeInvalidInput, "species id contains invalid characters")
		}
	}
	return SpeciesID(s), nil
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be the nil uuid")
	}
	return u, nil
}

func (id AccountID) String() string     { return uuid.UUID(id).String() }
func (id ObservationID) String() string { return uuid.UUID(id).String() }
func (id SpeciesID) String() string     { return string(id) }

// IsZero reports whether the id is unset.
func (id AccountID) IsZero() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ObservationID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
