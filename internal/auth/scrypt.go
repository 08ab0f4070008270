// Package auth verifies user passwords against stored SCrypt hashes (spec
// §4.7 C12). It does not issue session keys; internal/session does.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// Tunables matching the original $s1$ format (spec's Supplemented
// features: SCrypt hash format $s1$NNrrpp$salt$hash).
const (
	scryptLog2N = 14
	scryptR     = 8
	scryptP     = 1
	saltLen     = 16
	hashLen     = 64
)

// ErrInvalidHashFormat is returned when a stored hash does not parse as
// the $s1$ format.
var ErrInvalidHashFormat = errors.New("auth: hash format is not valid")

// HashPassword derives a new $s1$ hash for password with a fresh random salt.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}

	n := uint64(1) << scryptLog2N
	derived, err := scrypt.Key([]byte(password), salt, int(n), scryptR, scryptP, hashLen)
	if err != nil {
		return "", fmt.Errorf("auth: derive key: %w", err)
	}

	param := uint32(scryptLog2N)<<16 | uint32(scryptR)<<8 | uint32(scryptP)
	return fmt.Sprintf("$s1$%06x$%s$%s",
		param,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(derived),
	), nil
}

// CheckPassword verifies password against a stored $s1$NNrrpp$salt$hash
// hash using a constant-time comparison.
func CheckPassword(password, hash string) (bool, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 5 || parts[1] != "s1" {
		return false, ErrInvalidHashFormat
	}

	param, err := strconv.ParseUint(parts[2], 16, 32)
	if err != nil {
		return false, ErrInvalidHashFormat
	}
	salt, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return false, ErrInvalidHashFormat
	}
	want, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrInvalidHashFormat
	}
	if len(want) > hashLen {
		return false, ErrInvalidHashFormat
	}

	n := uint64(1) << ((param >> 16) & 0xFF)
	r := int((param >> 8) & 0xFF)
	p := int(param & 0xFF)

	got, err := scrypt.Key([]byte(password), salt, int(n), r, p, len(want))
	if err != nil {
		return false, fmt.Errorf("auth: derive key: %w", err)
	}

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
