package ncm

import (
	"bytes"
	"crypto/aes"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testKeyPrefix  = "neteasecloudmusic"
	testMetaPrefix = "163 key(Don't modify):"
)

func aesEncryptECB(t *testing.T, key, plaintext []byte) []byte {
	t.Helper()

	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	data := append(append([]byte(nil), plaintext...), bytes.Repeat([]byte{byte(pad)}, pad)...)
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], data[i:i+aes.BlockSize])
	}
	return out
}

func xorAll(data []byte, mask byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ mask
	}
	return out
}

func buildKeyBlob(t *testing.T, key []byte) []byte {
	return xorAll(aesEncryptECB(t, CoreKey, append([]byte(testKeyPrefix), key...)), keyMask)
}

func buildMetaBlob(t *testing.T, json string) []byte {
	enc := aesEncryptECB(t, MetaKey, []byte("music:"+json))
	text := testMetaPrefix + base64.StdEncoding.EncodeToString(enc)
	return xorAll([]byte(text), metaMask)
}

type testContainer struct {
	keyBlob    []byte
	metaBlob   []byte
	image      []byte
	imageSpace uint32
	audio      []byte
}

func (c testContainer) bytes() []byte {
	var buf bytes.Buffer
	le := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}

	buf.Write(MagicHeader)
	buf.Write([]byte{0x01, 0x70})
	le(uint32(len(c.keyBlob)))
	buf.Write(c.keyBlob)
	le(uint32(len(c.metaBlob)))
	buf.Write(c.metaBlob)
	buf.Write([]byte{0xde, 0xad, 0xbe, 0xef, 0x02})
	space := c.imageSpace
	if space < uint32(len(c.image)) {
		space = uint32(len(c.image))
	}
	le(space)
	le(uint32(len(c.image)))
	buf.Write(c.image)
	buf.Write(make([]byte, space-uint32(len(c.image))))
	buf.Write(c.audio)
	return buf.Bytes()
}

// referenceDecrypt repeats the keystream and slices it from offset 1,
// the way the format was first reversed.
func referenceDecrypt(key, payload []byte) []byte {
	s := make([]byte, 256)
	for i := range s {
		s[i] = byte(i)
	}
	for i, j := 0, 0; i < 256; i++ {
		j = (j + int(s[i]) + int(key[i%len(key)])) & 0xff
		s[i], s[j] = s[j], s[i]
	}
	block := make([]byte, 256)
	for i := range block {
		block[i] = s[(int(s[i])+int(s[(i+int(s[i]))&0xff]))&0xff]
	}
	stream := bytes.Repeat(block, len(payload)/256+1)[1 : 1+len(payload)]

	out := make([]byte, len(payload))
	for i := range payload {
		out[i] = payload[i] ^ stream[i]
	}
	return out
}
