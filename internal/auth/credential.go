package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// CredentialFormat tags the stored hash scheme.
type CredentialFormat int

const (
	// FormatLegacy wraps an opaque bcrypt digest carried over from the old
	// account import. Verifying one successfully signals the login flow to
	// re-hash with PBKDF2.
	FormatLegacy CredentialFormat = iota

	// FormatPBKDF2 is the current scheme: PBKDF2-HMAC-SHA256 with the
	// subject key as salt.
	FormatPBKDF2
)

const (
	pbkdf2Prefix     = "pbkdf2:sha256:"
	pbkdf2Iterations = 120000
	pbkdf2KeyLength  = 32

	minPBKDF2Iterations = 100000
)

// Credential is a tagged variant over the two stored hash formats.
type Credential struct {
	Format CredentialFormat

	// Legacy bcrypt digest; only set for FormatLegacy.
	Legacy string

	// PBKDF2 parameters; only set for FormatPBKDF2.
	Iterations int
	Salt       string
	Digest     string

	malformed bool
}

// HashCredential derives a credential for the password in the requested
// format. For PBKDF2 the subject key is used as the salt, so the encoding
// is self-describing and re-derivable at verification time.
func HashCredential(password, subjectKey string, format CredentialFormat) (Credential, error) {
	if password == "" {
		return Credential{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	switch format {
	case FormatLegacy:
		digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return Credential{}, err
		}
		return Credential{Format: FormatLegacy, Legacy: string(digest)}, nil
	case FormatPBKDF2:
		if subjectKey == "" {
			return Credential{}, fmt.Errorf("%w: subject key is required", ErrInvalidInput)
		}
		digest := pbkdf2.Key([]byte(password), []byte(subjectKey), pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
		return Credential{
			Format:     FormatPBKDF2,
			Iterations: pbkdf2Iterations,
			Salt:       subjectKey,
			Digest:     hex.EncodeToString(digest),
		}, nil
	default:
		return Credential{}, fmt.Errorf("%w: unknown credential format", ErrInvalidInput)
	}
}

// VerifyCredential checks the password against the stored credential using
// the stored format. Malformed credentials verify false, never panic or
// error past this boundary.
func VerifyCredential(password string, cred Credential) bool {
	if password == "" || cred.malformed {
		return false
	}
	switch cred.Format {
	case FormatLegacy:
		if cred.Legacy == "" {
			return false
		}
		return bcrypt.CompareHashAndPassword([]byte(cred.Legacy), []byte(password)) == nil
	case FormatPBKDF2:
		if cred.Iterations < minPBKDF2Iterations || cred.Salt == "" || cred.Digest == "" {
			return false
		}
		derived := pbkdf2.Key([]byte(password), []byte(cred.Salt), cred.Iterations, pbkdf2KeyLength, sha256.New)
		stored, err := hex.DecodeString(cred.Digest)
		if err != nil {
			return false
		}
		return subtle.ConstantTimeCompare(derived, stored) == 1
	default:
		return false
	}
}

// IsLegacy reports whether the credential still uses the legacy format and
// should be upgraded after a successful verification.
func (c Credential) IsLegacy() bool {
	return c.Format == FormatLegacy
}

// Encode serializes the credential for storage. PBKDF2 credentials carry
// their format tag, iteration count, salt and digest; legacy digests are
// stored as-is.
func (c Credential) Encode() string {
	if c.Format == FormatPBKDF2 {
		return fmt.Sprintf("%s%d$%s$%s", pbkdf2Prefix, c.Iterations, c.Salt, c.Digest)
	}
	return c.Legacy
}

// HashBytes returns the stored digest bytes, used as the HMAC key in the
// challenge-response handshake.
func (c Credential) HashBytes() []byte {
	return []byte(c.Encode())
}

// DecodeCredential parses a stored credential string. Anything without the
// PBKDF2 prefix is treated as an opaque legacy digest. A malformed PBKDF2
// encoding yields a credential that fails every verification.
func DecodeCredential(stored string) Credential {
	if !strings.HasPrefix(stored, pbkdf2Prefix) {
		return Credential{Format: FormatLegacy, Legacy: stored, malformed: stored == ""}
	}
	rest := strings.TrimPrefix(stored, pbkdf2Prefix)
	parts := strings.SplitN(rest, "$", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return Credential{Format: FormatPBKDF2, malformed: true}
	}
	iterations, err := strconv.Atoi(parts[0])
	if err != nil || iterations <= 0 {
		return Credential{Format: FormatPBKDF2, malformed: true}
	}
	return Credential{
		Format:     FormatPBKDF2,
		Iterations: iterations,
		Salt:       parts[1],
		Digest:     parts[2],
	}
}
