// Package ncm decrypts NetEase Cloud Music containers (.ncm).
//
// A container carries an AES wrapped RC4 key, AES wrapped JSON metadata,
// an optional cover picture and the RC4 encrypted audio. Everything works
// on in-memory buffers; nothing here touches the file system.
package ncm

import (
	"errors"
	"fmt"
)

const (
	leadingSize = 4
	RC4SBoxSize = 256

	// FlacThreshold is the payload size above which a container without
	// metadata is assumed to hold flac.
	FlacThreshold = 16 << 20
)

var (
	MagicHeader     = []byte{0x43, 0x54, 0x45, 0x4e, 0x46, 0x44, 0x41, 0x4d}
	MagicHeaderSize = len(MagicHeader)

	CoreKey = []byte{0x68, 0x7A, 0x48, 0x52, 0x41, 0x6D, 0x73, 0x6F, 0x35, 0x6B, 0x49, 0x6E, 0x62, 0x61, 0x78, 0x57}
	MetaKey = []byte{0x23, 0x31, 0x34, 0x6C, 0x6A, 0x6B, 0x5F, 0x21, 0x5C, 0x5D, 0x26, 0x30, 0x55, 0x3C, 0x27, 0x28}
)

var (
	// ErrFormat reports input that is not a well formed container.
	ErrFormat = errors.New("ncm: invalid format")
	// ErrCrypto reports a key or metadata blob that does not decrypt.
	ErrCrypto = errors.New("ncm: decryption failed")
)

// Result is the outcome of a successful Decrypt.
type Result struct {
	Audio  []byte
	Format string
	Meta   Metadata
	// Cover is nil when the container has no picture.
	Cover []byte
}

// Decrypt recovers the audio, metadata and cover from an NCM container.
// data is not modified.
func Decrypt(data []byte) (*Result, error) {
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}

	key, err := unwrapKey(c.KeyBlob)
	if err != nil {
		return nil, err
	}
	sBox, err := Schedule(key)
	if err != nil {
		return nil, err
	}

	meta, err := c.metadata()
	if err != nil {
		return nil, err
	}

	return &Result{
		Audio:  sBox.Decrypt(c.Audio),
		Format: meta.Format,
		Meta:   *meta,
		Cover:  c.Cover,
	}, nil
}

// Probe reports the audio format of a container without decrypting the
// audio.
func Probe(data []byte) (string, error) {
	c, err := Parse(data)
	if err != nil {
		return "", err
	}
	meta, err := c.metadata()
	if err != nil {
		return "", err
	}
	return meta.Format, nil
}

func (c *Container) metadata() (*Metadata, error) {
	if c.MetaBlob == nil {
		return guessMetadata(len(c.Audio)), nil
	}
	meta, err := unwrapMeta(c.MetaBlob)
	if err != nil {
		return nil, err
	}
	if meta.Format == "" {
		return nil, fmt.Errorf("%w: metadata without format", ErrFormat)
	}
	return meta, nil
}

func guessMetadata(payloadSize int) *Metadata {
	format := "mp3"
	if payloadSize > FlacThreshold {
		format = "flac"
	}
	return &Metadata{Format: format}
}
