package dag

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Digest returns the hex blake3-256 of the graph's canonical JSON encoding.
// Equal graphs always produce equal digests; map keys are sorted by the encoder.
func Digest(g Graph) (string, error) {
	b, err := Marshal(g)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
