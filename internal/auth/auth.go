package auth

import "context"

// PasswordLookup fetches the stored SCrypt hash for a user id (backed by
// internal/userdb in production).
type PasswordLookup interface {
	PasswordHash(ctx context.Context, userID string) (hash string, ok bool, err error)
}

// Checker verifies login attempts against a PasswordLookup (spec §4.7
// "check(userId, password) fetches the stored SCrypt hash... from the user DB").
type Checker struct {
	lookup PasswordLookup
}

// NewChecker constructs a Checker backed by lookup.
func NewChecker(lookup PasswordLookup) *Checker {
	return &Checker{lookup: lookup}
}

// Check reports whether password matches the stored hash for userID. A
// missing user or malformed hash is treated as a failed check, not an
// error, per spec §7 ("Authentication errors: returned as success: false").
func (c *Checker) Check(ctx context.Context, userID, password string) bool {
	hash, ok, err := c.lookup.PasswordHash(ctx, userID)
	if err != nil || !ok {
		return false
	}
	match, err := CheckPassword(password, hash)
	if err != nil {
		return false
	}
	return match
}
