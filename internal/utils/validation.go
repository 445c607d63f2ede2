package utils

import (
	"fmt"
	"slices"
	"strings"
)

// Difficulties lists the accepted recipe difficulty values
var Difficulties = []string{"easy", "medium", "hard"}

// ValidateDifficulty accepts an empty value or one of Difficulties, case-insensitively
func ValidateDifficulty(difficulty string) error {
	d := strings.ToLower(strings.TrimSpace(difficulty))
	if d == "" || slices.Contains(Difficulties, d) {
		return nil
	}
	return ErrInvalidFieldValue("difficulty", difficulty, Difficulties)
}

// ValidateNonNegative rejects negative counts such as servings or minutes
func ValidateNonNegative(field string, value int) error {
	if value < 0 {
		return fmt.Errorf("%s must be zero or positive, got %d", field, value)
	}
	return nil
}

// SplitList parses a comma separated flag value, dropping blanks.
// Returns an empty (non-nil) slice for empty input.
func SplitList(value string) []string {
	items := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
