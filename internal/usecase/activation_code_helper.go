package usecase

import (
	"crypto/rand"
	"io"
	"regexp"
	"strings"
)

// activationCodePattern is the shape owners type into their group.
var activationCodePattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// generateActivationCode creates a random, human-readable code.
// Format: XXXX-XXXX
func generateActivationCode() (string, error) {
	// A character set that avoids ambiguous characters like O/0, I/1, l.
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	const codeLength = 8

	buffer := make([]byte, codeLength)
	if _, err := io.ReadFull(rand.Reader, buffer); err != nil {
		return "", err
	}

	// 256 is a multiple of 32, so the modulo keeps the distribution uniform.
	for i := 0; i < codeLength; i++ {
		buffer[i] = chars[int(buffer[i])%len(chars)]
	}
	return string(buffer[0:4]) + "-" + string(buffer[4:8]), nil
}

// NormalizeActivationCode upper-cases and trims user input. ok is false when
// the text cannot be an activation code.
func NormalizeActivationCode(s string) (code string, ok bool) {
	code = strings.ToUpper(strings.TrimSpace(s))
	return code, activationCodePattern.MatchString(code)
}
