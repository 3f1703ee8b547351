package ncm

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	metaMask = 0x63
	// metaPrefixSize covers `163 key(Don't modify):`.
	metaPrefixSize = 22
	// musicPrefixLen covers `music:`, counted in characters.
	musicPrefixLen = 6
)

// Metadata describes the track inside a container.
type Metadata struct {
	Format  string
	Title   string
	Album   string
	Artists []string
	// AlbumPic is the cover URL, if the metadata names one.
	AlbumPic string
	// Identifier is the unmasked metadata text, kept verbatim for tagging.
	Identifier string
}

// Artist joins all artist names with "/".
func (m *Metadata) Artist() string {
	return strings.Join(m.Artists, "/")
}

// rawMeta is the JSON document inside the metadata blob. Ids are numbers
// in some files and strings in others, so they are left undecoded. The
// same goes for numbers written as floats.
type rawMeta struct {
	Format        string          `json:"format"`
	MusicID       json.RawMessage `json:"musicId"`
	MusicName     string          `json:"musicName"`
	Artist        [][]interface{} `json:"artist"`
	Album         string          `json:"album"`
	AlbumID       json.RawMessage `json:"albumId"`
	AlbumPicDocID json.RawMessage `json:"albumPicDocId"`
	AlbumPic      string          `json:"albumPic"`
	Bitrate       json.RawMessage `json:"bitrate"`
	Duration      json.RawMessage `json:"duration"`
	Alias         json.RawMessage `json:"alias"`
	TransNames    json.RawMessage `json:"transNames"`
}

func (r *rawMeta) artists() []string {
	names := make([]string, 0, len(r.Artist))
	for _, v := range r.Artist {
		if len(v) == 0 {
			continue
		}
		if name, ok := v[0].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}

func unwrapMeta(blob []byte) (*Metadata, error) {
	if len(blob) < metaPrefixSize {
		return nil, fmt.Errorf("%w: metadata blob too short (%d bytes)", ErrFormat, len(blob))
	}

	data := make([]byte, len(blob))
	for i, b := range blob {
		data[i] = b ^ metaMask
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: metadata identifier is not text", ErrCrypto)
	}
	identifier := string(data)

	data, err := base64.StdEncoding.DecodeString(string(data[metaPrefixSize:]))
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %s", ErrCrypto, err)
	}
	data, err = aesDecryptECB(MetaKey, data)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: metadata is not utf-8", ErrCrypto)
	}

	text := string(data)
	for i := 0; i < musicPrefixLen; i++ {
		if text == "" {
			return nil, fmt.Errorf("%w: metadata too short", ErrFormat)
		}
		_, size := utf8.DecodeRuneInString(text)
		text = text[size:]
	}

	var raw rawMeta
	if err = json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: metadata: %s", ErrFormat, err)
	}

	return &Metadata{
		Format:     raw.Format,
		Title:      raw.MusicName,
		Album:      raw.Album,
		Artists:    raw.artists(),
		AlbumPic:   raw.AlbumPic,
		Identifier: identifier,
	}, nil
}
