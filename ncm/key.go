package ncm

import "fmt"

const (
	keyMask = 0x64
	// keyPrefixSize is the length of the fixed "neteasecloudmusic" prefix
	// in front of the RC4 key.
	keyPrefixSize = 17
)

// Permutation is an RC4 S-box.
type Permutation [RC4SBoxSize]byte

func unwrapKey(blob []byte) ([]byte, error) {
	data := make([]byte, len(blob))
	for i, b := range blob {
		data[i] = b ^ keyMask
	}

	data, err := aesDecryptECB(CoreKey, data)
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	if len(data) <= keyPrefixSize {
		return nil, fmt.Errorf("%w: key too short (%d bytes)", ErrCrypto, len(data))
	}
	return data[keyPrefixSize:], nil
}

// Schedule runs the RC4 key scheduling algorithm over key.
func Schedule(key []byte) (Permutation, error) {
	var sBox Permutation
	if len(key) == 0 {
		return sBox, fmt.Errorf("%w: empty key", ErrCrypto)
	}

	for i := range sBox {
		sBox[i] = byte(i)
	}
	keySize := len(key)
	for i, j := 0, 0; i < RC4SBoxSize; i++ {
		j = (j + int(sBox[i]) + int(key[i%keySize])) & 0xFF
		sBox[i], sBox[j] = sBox[j], sBox[i]
	}
	return sBox, nil
}
