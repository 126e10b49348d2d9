package domain

import dErrors "fieldbook/pkg/domain-errors"

// LanguageCode selects the localization for catalog names and descriptions.
type LanguageCode string

// Supported interface languages. The catalog carries localized content for
// exactly this set.
const (
	LanguageEnglish LanguageCode = "en"
	LanguageGerman  LanguageCode = "de"
	LanguageFrench  LanguageCode = "fr"
	LanguageSpanish LanguageCode = "es"
)

var validLanguages = map[LanguageCode]bool{
	LanguageEnglish: true,
	LanguageGerman:  true,
	LanguageFrench:  true,
	LanguageSpanish: true,
}

// ParseLanguageCode constructs a LanguageCode from external input.
//
// Errors: CodeInvalidInput when the value is empty or unsupported.
func ParseLanguageCode(s string) (LanguageCode, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "language code cannot be empty")
	}
	l := LanguageCode(s)
	if !validLanguages[l] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported language code")
	}
	return l, nil
}

// IsValid checks if the language code is supported.
func (l LanguageCode) IsValid() bool {
	return validLanguages[l]
}

func (l LanguageCode) String() string {
	return string(l)
}
