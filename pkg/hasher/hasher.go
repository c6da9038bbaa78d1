package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// HashAlgorithms is a list of supported hashing algorithms.
var HashAlgorithms = []string{"md5", "sha1", "sha256", "sha512"}

// IsValidHashAlgo checks if the provided algorithm string is supported.
func IsValidHashAlgo(algo string) bool {
	for _, validAlgo := range HashAlgorithms {
		if strings.ToLower(algo) == validAlgo {
			return true
		}
	}
	return false
}

// New returns a fresh hash.Hash for algo.
func New(algo string) (hash.Hash, error) {
	switch strings.ToLower(algo) {
	case "md5":
		return md5.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algo)
	}
}

// Sum returns the hex digest accumulated in h.
func Sum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// HashReader consumes r and returns its hex digest.
func HashReader(r io.Reader, algo string) (string, error) {
	h, err := New(algo)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return Sum(h), nil
}

// GenerateHash calculates the hash of a file using the specified algorithm.
func GenerateHash(filePath, algo string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	return HashReader(file, algo)
}
