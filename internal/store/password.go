// Where: cli/internal/store/password.go
// What: Argon2id password hashing for local account emulation.
// Why: Local backends keep credentials at rest the way a real auth service would.
package store

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const passwordMethod = "argon2id"

// PasswordHash is a salted Argon2id digest with the parameters used to derive it.
type PasswordHash struct {
	Hash    []byte `json:"hash"`
	Salt    []byte `json:"salt"`
	Method  string `json:"method"`
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory"` // KiB
	Threads uint8  `json:"threads"`
}

// MinPasswordLength is the shortest password accepted for new accounts.
const MinPasswordLength = 8

// HashPassword derives a fresh salted hash for password.
func HashPassword(password string) (PasswordHash, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return PasswordHash{}, fmt.Errorf("generate salt: %w", err)
	}
	h := PasswordHash{
		Salt:    salt,
		Method:  passwordMethod,
		Time:    2,
		Memory:  19 * 1024,
		Threads: 1,
	}
	h.Hash = argon2.IDKey([]byte(password), h.Salt, h.Time, h.Memory, h.Threads, 32)
	return h, nil
}

// Verify reports whether password matches the hash.
func (h PasswordHash) Verify(password string) bool {
	if h.Method != passwordMethod || len(h.Hash) == 0 {
		return false
	}
	got := argon2.IDKey([]byte(password), h.Salt, h.Time, h.Memory, h.Threads, uint32(len(h.Hash)))
	return subtle.ConstantTimeCompare(got, h.Hash) == 1
}

// String encodes the hash in the PHC form
// $argon2id$v=19$m=19456,t=2,p=1$<salt>$<hash>.
func (h PasswordHash) String() string {
	enc := base64.RawStdEncoding
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		h.Method, argon2.Version, h.Memory, h.Time, h.Threads,
		enc.EncodeToString(h.Salt), enc.EncodeToString(h.Hash))
}

// ParsePasswordHash decodes the PHC form produced by String.
func ParsePasswordHash(encoded string) (PasswordHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != passwordMethod {
		return PasswordHash{}, fmt.Errorf("unsupported password hash format")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return PasswordHash{}, fmt.Errorf("unsupported argon2 version %q", parts[2])
	}
	h := PasswordHash{Method: passwordMethod}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.Memory, &h.Time, &h.Threads); err != nil {
		return PasswordHash{}, fmt.Errorf("invalid argon2 parameters: %w", err)
	}
	enc := base64.RawStdEncoding
	var err error
	if h.Salt, err = enc.DecodeString(parts[4]); err != nil {
		return PasswordHash{}, fmt.Errorf("invalid salt: %w", err)
	}
	if h.Hash, err = enc.DecodeString(parts[5]); err != nil {
		return PasswordHash{}, fmt.Errorf("invalid hash: %w", err)
	}
	return h, nil
}
