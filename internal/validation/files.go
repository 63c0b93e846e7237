package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var fileIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateFileID checks that a client-supplied file id is a single, safe object-key segment.
func ValidateFileID(fileID string) error {
	if !fileIDRegex.MatchString(fileID) || strings.Contains(fileID, "..") {
		return fmt.Errorf("invalid file id %q", fileID)
	}
	return nil
}

// ValidateBio reports whether bio fits in max characters.
func ValidateBio(bio string, max int) error {
	if utf8.RuneCountInString(bio) > max {
		return fmt.Errorf("bio must not exceed %d characters", max)
	}
	return nil
}
