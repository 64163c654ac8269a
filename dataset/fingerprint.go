package dataset

import (
	"fmt"
	"os"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Fingerprint returns a CIDv1 string using the "raw" multicodec and a
// sha2-256 multihash of data. Equal content yields equal fingerprints.
func Fingerprint(data []byte) (string, error) {
	c, err := FingerprintCID(data)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// FingerprintCID returns the CIDv1 (raw + sha2-256) of data.
func FingerprintCID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("hash content: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// FingerprintFile reads path and fingerprints its content.
func FingerprintFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read dataset: %w", err)
	}
	return Fingerprint(data)
}
