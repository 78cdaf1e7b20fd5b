package password

import "fmt"

// Patterns used by the accounts service for its built-in rules.
const (
	LowerCase        = "(?=.*[a-z])"
	UpperCase        = "(?=.*[A-Z])"
	Number           = "(?=.*[0-9])"
	SpecialCharacter = "(?=.*[@$!%*?&])"
)

// MinLength returns a pattern requiring at least n characters.
func MinLength(n int) string {
	return fmt.Sprintf(".{%d,}", n)
}

// DefaultRules returns the rules shown on the sign-in and sign-up pages when
// neither the accounts service nor the configuration provides any.
func DefaultRules() []Rule {
	return []Rule{
		{Label: "Lower case letters (a-Z)", Pattern: LowerCase},
		{Label: "Upper case letters (A-Z)", Pattern: UpperCase},
		{Label: "Number (i.e. 0-9)", Pattern: Number},
		{Label: "At least 8 character", Pattern: MinLength(8)},
		{Label: "Special character (@$!%*?&)", Pattern: SpecialCharacter},
	}
}
