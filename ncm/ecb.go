package ncm

import (
	"crypto/aes"
	"fmt"
)

// aesDecryptECB decrypts ciphertext block by block and strips PKCS#7
// padding.
func aesDecryptECB(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCrypto, err)
	}
	blockSize := block.BlockSize()

	dataSize := len(ciphertext)
	if dataSize == 0 || dataSize%blockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext size %d is not a multiple of %d", ErrCrypto, dataSize, blockSize)
	}
	plaintext := make([]byte, dataSize)

	for start := 0; start < dataSize; start += blockSize {
		end := start + blockSize
		block.Decrypt(plaintext[start:end], ciphertext[start:end])
	}

	return pkcs7Unpad(plaintext, blockSize)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	size := len(data)
	pad := int(data[size-1])
	if pad == 0 || pad > blockSize || pad > size {
		return nil, fmt.Errorf("%w: invalid padding", ErrCrypto)
	}
	for _, b := range data[size-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("%w: invalid padding", ErrCrypto)
		}
	}
	return data[:size-pad], nil
}
