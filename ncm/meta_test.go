package ncm

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrapMeta(t *testing.T) {
	blob := buildMetaBlob(t, `{"format":"mp3","musicName":"Song","album":"Album","artist":[["A",1],["B",2],["C",3]]}`)

	meta, err := unwrapMeta(blob)
	require.NoError(t, err)
	assert.Equal(t, "mp3", meta.Format)
	assert.Equal(t, "Song", meta.Title)
	assert.Equal(t, "Album", meta.Album)
	assert.Equal(t, []string{"A", "B", "C"}, meta.Artists)
	assert.Equal(t, "A/B/C", meta.Artist())
	assert.Empty(t, meta.AlbumPic)
	assert.Equal(t, testMetaPrefix, meta.Identifier[:len(testMetaPrefix)])
}

func TestUnwrapMetaStringIDs(t *testing.T) {
	blob := buildMetaBlob(t, `{"format":"flac","musicId":"123","albumId":"9","musicName":"x","album":"y","artist":[["z","1"]]}`)

	meta, err := unwrapMeta(blob)
	require.NoError(t, err)
	assert.Equal(t, "flac", meta.Format)
	assert.Equal(t, "z", meta.Artist())
}

func TestUnwrapMetaFloatNumbers(t *testing.T) {
	blob := buildMetaBlob(t, `{"format":"mp3","musicName":"x","bitrate":320000.0,"duration":1.5e5,"artist":[["a",1]]}`)

	meta, err := unwrapMeta(blob)
	require.NoError(t, err)
	assert.Equal(t, "mp3", meta.Format)
	assert.Equal(t, "a", meta.Artist())
}

func TestUnwrapMetaSkipsNonStringArtists(t *testing.T) {
	blob := buildMetaBlob(t, `{"format":"mp3","artist":[[null,1],[],[42,2],["A",3]]}`)

	meta, err := unwrapMeta(blob)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, meta.Artists)
	assert.Equal(t, "A", meta.Artist())
}

func TestUnwrapMetaErrors(t *testing.T) {
	encrypt := func(plain string) []byte {
		enc := aesEncryptECB(t, MetaKey, []byte(plain))
		return xorAll([]byte(testMetaPrefix+base64.StdEncoding.EncodeToString(enc)), metaMask)
	}

	tests := []struct {
		name string
		blob []byte
		err  error
	}{
		{"short", xorAll([]byte("163 key"), metaMask), ErrFormat},
		{"not base64", xorAll([]byte(testMetaPrefix+"!!!!"), metaMask), ErrCrypto},
		{"not aligned", xorAll([]byte(testMetaPrefix+base64.StdEncoding.EncodeToString([]byte("abc"))), metaMask), ErrCrypto},
		{"not json", encrypt("music:hello"), ErrFormat},
		{"no prefix room", encrypt("mus"), ErrFormat},
		{"binary", encrypt("music:\xff\xfe"), ErrCrypto},
		{"not text", append(xorAll([]byte(testMetaPrefix), metaMask), 0x63^0xff), ErrCrypto},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := unwrapMeta(tt.blob)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDecryptMetadataWithoutFormat(t *testing.T) {
	data := testContainer{
		keyBlob:  buildKeyBlob(t, testKey),
		metaBlob: buildMetaBlob(t, `{"musicName":"x"}`),
	}.bytes()

	_, err := Decrypt(data)
	assert.ErrorIs(t, err, ErrFormat)
}
