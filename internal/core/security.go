// AngelaMos | 2026
// security.go

package core

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLength   = 16

	argonPrefix     = "$argon2id$"
	legacyDigestLen = sha256.Size * 2
)

func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		argonTime,
		argonMemory,
		argonThreads,
		argonKeyLen,
	)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory,
		argonTime,
		argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func VerifyPassword(password, encodedHash string) (bool, error) {
	params, salt, hash, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	otherHash := argon2.IDKey(
		[]byte(password),
		salt,
		params.time,
		params.memory,
		params.threads,
		params.keyLen,
	)

	return subtle.ConstantTimeCompare(hash, otherHash) == 1, nil
}

// IsArgonHash reports whether stored is an encoded argon2id hash.
func IsArgonHash(stored string) bool {
	return strings.HasPrefix(stored, argonPrefix)
}

// IsLegacyDigest reports whether stored looks like an unsalted sha256 hex
// digest written by earlier versions of the credential file.
func IsLegacyDigest(stored string) bool {
	if len(stored) != legacyDigestLen {
		return false
	}
	_, err := hex.DecodeString(stored)
	return err == nil
}

func LegacyDigest(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// VerifyStoredPassword checks password against any supported stored form.
// newHash is non-empty when the stored value should be replaced.
func VerifyStoredPassword(password, stored string) (bool, string, error) {
	switch {
	case IsArgonHash(stored):
		valid, err := VerifyPassword(password, stored)
		if err != nil || !valid {
			return false, "", err
		}
		if !needsRehash(stored) {
			return true, "", nil
		}
	case IsLegacyDigest(stored):
		candidate := LegacyDigest(password)
		if subtle.ConstantTimeCompare(
			[]byte(candidate),
			[]byte(strings.ToLower(stored)),
		) != 1 {
			return false, "", nil
		}
	default:
		return false, "", fmt.Errorf("unrecognised password format")
	}

	newHash, err := HashPassword(password)
	if err != nil {
		//nolint:nilerr // password verified successfully; rehash failure is non-critical
		return true, "", nil
	}
	return true, newHash, nil
}

var dummyHash string

func init() {
	hash, err := HashPassword("dummy_password_for_timing_attack_prevention")
	if err != nil {
		panic(fmt.Sprintf("security: failed to generate dummy hash: %v", err))
	}
	dummyHash = hash
}

// VerifyPasswordTimingSafe spends the same argon2 work whether or not an
// account exists, so unknown usernames are not distinguishable by latency.
func VerifyPasswordTimingSafe(
	password string,
	stored *string,
) (bool, string, error) {
	if stored == nil || *stored == "" {
		_, _ = VerifyPassword(password, dummyHash) //nolint:errcheck // timing only
		return false, "", nil
	}

	if IsLegacyDigest(*stored) {
		_, _ = VerifyPassword(password, dummyHash) //nolint:errcheck // timing only
	}

	return VerifyStoredPassword(password, *stored)
}

type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
	keyLen  uint32
}

func decodeHash(encodedHash string) (*argonParams, []byte, []byte, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return nil, nil, nil, fmt.Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return nil, nil, nil, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid version: %w", err)
	}

	if version != argon2.Version {
		return nil, nil, nil, fmt.Errorf("incompatible version: %d", version)
	}

	params := &argonParams{}
	_, err := fmt.Sscanf(
		parts[3],
		"m=%d,t=%d,p=%d",
		&params.memory,
		&params.time,
		&params.threads,
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid params: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode salt: %w", err)
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode hash: %w", err)
	}

	//nolint:gosec // G115: hash length is always small (32 bytes for Argon2id)
	params.keyLen = uint32(len(hash))

	return params, salt, hash, nil
}

func needsRehash(encodedHash string) bool {
	params, _, _, err := decodeHash(encodedHash)
	if err != nil {
		return true
	}

	return params.memory != argonMemory ||
		params.time != argonTime ||
		params.threads != argonThreads ||
		params.keyLen != argonKeyLen
}

func GenerateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
