// Package crypto provides the gateway's primitive cryptographic
// operations: constant-time comparison, hashing, random identifier
// generation, PKCE S256 derivation and bcrypt password verification.
// Nothing here is domain-specific; pkg/authserver and pkg/identity build
// on top of it.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// ConstantTimeEqual reports whether a and b are equal, in time
// independent of their contents (but not their length).
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SHA256Hex returns the lowercase hex-encoded SHA-256 digest of s. Used to
// derive the hash under which client secrets and bearer tokens are stored,
// per spec §3: "Secret, if present, is stored as SHA-256 hex digest."
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// RandomHex returns a cryptographically random token of n random bytes,
// hex-encoded (so the returned string is 2*n characters long). Used for
// authorization codes and access/refresh tokens (spec §4.4: "a new 32-byte
// random value encoded in hex").
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// PKCEChallengeS256 computes BASE64URL(SHA256(verifier)) without padding,
// the S256 PKCE code challenge method (RFC 7636 §4.2).
func PKCEChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPKCE reports whether verifier, transformed by the S256 method,
// matches the stored challenge byte-for-byte.
func VerifyPKCE(verifier, challenge string) bool {
	return ConstantTimeEqual(PKCEChallengeS256(verifier), challenge)
}

var bcryptPrefix = regexp.MustCompile(`^\$2[aby]\$\d{2}\$`)

// IsBcryptHash reports whether s looks like a bcrypt digest, per spec §4.3:
// "detected by the prefix $2a$|$2b$|$2y$ followed by two cost digits and $".
func IsBcryptHash(s string) bool {
	return bcryptPrefix.MatchString(s)
}

// HashPassword bcrypt-hashes a plaintext password for storage.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks a candidate password against a stored credential,
// which may be a bcrypt digest or a plaintext password compared in constant
// time, per spec §4.3.
func VerifyPassword(stored, candidate string) bool {
	if IsBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil
	}
	return ConstantTimeEqual(stored, candidate)
}
