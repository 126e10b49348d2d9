package domain

import dErrors "fieldbook/pkg/domain-errors"

// Category classifies what kind of organism a suggestion or species belongs to.
// Invariant: the value must be one of the supported categories.
//
// Usage: construct via ParseCategory at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type Category string

// Supported categories. These align with the groups the recognition mediator
// can distinguish.
const (
	CategoryPlant  Category = "plant"
	CategoryInsect Category = "insect"
	CategoryAnimal Category = "animal"
)

// validCategories is the single source of truth for valid categories.
var validCategories = map[Category]bool{
	CategoryPlant:  true,
	CategoryInsect: true,
	CategoryAnimal: true,
}

// ParseCategory constructs a Category from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported; no
// other errors are expected.
func ParseCategory(s string) (Category, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "category cannot be empty")
	}
	c := Category(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid category")
	}
	return c, nil
}

// IsValid checks if the category is one of the supported enum values.
func (c Category) IsValid() bool {
	return validCategories[c]
}

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}
