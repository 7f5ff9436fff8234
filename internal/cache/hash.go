package cache

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// HashBytes returns the hex BLAKE3 digest of data, the digest used for cache IDs and file hashes.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile returns the hex BLAKE3 digest and the size of a file.
func HashFile(path string) (hash string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("could not open file: %w", err)
	}
	defer f.Close()

	return HashReader(f)
}

// HashReader returns the hex BLAKE3 digest and the number of bytes read from r.
func HashReader(r io.Reader) (hash string, size int64, err error) {
	h := blake3.New()
	size, err = io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("could not hash data: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}
