// Package tag writes track metadata and cover art into decrypted audio.
package tag

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/bogem/id3v2"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47}

const coverDescription = "Front cover"

// Fields are the values written into the audio. Empty values are skipped.
type Fields struct {
	Title   string
	Album   string
	Artist  string
	Comment string
	Cover   []byte
}

func (f *Fields) empty() bool {
	return f.Title == "" && f.Album == "" && f.Artist == "" && f.Comment == "" && len(f.Cover) == 0
}

// Embedder embeds Fields into audio of the given format ("mp3", "flac")
// and returns the tagged audio.
type Embedder interface {
	Embed(audio []byte, format string, f Fields) ([]byte, error)
}

// Tagger is the Embedder backed by id3v2 and go-flac.
type Tagger struct {
	// TempDir holds the scratch file id3v2 needs; empty means os.TempDir.
	TempDir string
}

func (t *Tagger) Embed(audio []byte, format string, f Fields) ([]byte, error) {
	if f.empty() {
		return audio, nil
	}

	switch format {
	case "mp3":
		return t.embedMp3(audio, &f)
	case "flac":
		return embedFlac(audio, &f)
	default:
		return audio, nil
	}
}

// CoverMIME sniffs the picture type; covers are png or jpeg.
func CoverMIME(image []byte) string {
	if bytes.HasPrefix(image, pngHeader) {
		return "image/png"
	}
	return "image/jpeg"
}

// embedMp3 goes through a scratch file, id3v2 only edits files in place.
func (t *Tagger) embedMp3(audio []byte, f *Fields) ([]byte, error) {
	tmp, err := os.CreateTemp(t.TempDir, "fdecrypt-*.mp3")
	if err != nil {
		return nil, err
	}
	name := tmp.Name()
	defer func() {
		_ = os.Remove(name)
	}()

	_, err = tmp.Write(audio)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	mp3File, err := id3v2.Open(name, id3v2.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("open id3 tag: %w", err)
	}
	defer func() {
		_ = mp3File.Close()
	}()

	mp3File.SetDefaultEncoding(id3v2.EncodingUTF8)
	if f.Title != "" {
		mp3File.SetTitle(f.Title)
	}
	if f.Album != "" {
		mp3File.SetAlbum(f.Album)
	}
	if f.Artist != "" {
		mp3File.SetArtist(f.Artist)
	}
	if f.Comment != "" {
		mp3File.AddCommentFrame(id3v2.CommentFrame{
			Encoding: id3v2.EncodingUTF8,
			Language: "eng",
			Text:     f.Comment,
		})
	}
	if len(f.Cover) > 0 {
		mp3File.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingISO,
			MimeType:    CoverMIME(f.Cover),
			PictureType: id3v2.PTFrontCover,
			Description: coverDescription,
			Picture:     f.Cover,
		})
	}
	if err = mp3File.Save(); err != nil {
		return nil, fmt.Errorf("save id3 tag: %w", err)
	}

	return os.ReadFile(name)
}

func embedFlac(audio []byte, f *Fields) ([]byte, error) {
	flacFile, err := flac.ParseBytes(bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("parse flac: %w", err)
	}

	var (
		vcIndex = -1
		vc      *flacvorbis.MetaDataBlockVorbisComment
		meta    = make([]*flac.MetaDataBlock, 0, len(flacFile.Meta)+2)
	)
	for _, block := range flacFile.Meta {
		switch block.Type {
		case flac.VorbisComment:
			vc, err = flacvorbis.ParseFromMetaDataBlock(*block)
			if err != nil {
				return nil, fmt.Errorf("parse vorbis comment: %w", err)
			}
			vcIndex = len(meta)
		case flac.Picture:
			// replaced below
			if len(f.Cover) > 0 {
				continue
			}
		}
		meta = append(meta, block)
	}

	if f.Title != "" || f.Album != "" || f.Artist != "" || f.Comment != "" {
		if vc == nil {
			vc = flacvorbis.New()
		}
		addComment(vc, flacvorbis.FIELD_TITLE, f.Title)
		addComment(vc, flacvorbis.FIELD_ALBUM, f.Album)
		addComment(vc, flacvorbis.FIELD_ARTIST, f.Artist)
		addComment(vc, flacvorbis.FIELD_DESCRIPTION, f.Comment)

		mdb := vc.Marshal()
		if vcIndex >= 0 {
			meta[vcIndex] = &mdb
		} else {
			meta = append(meta, &mdb)
		}
	}

	if len(f.Cover) > 0 {
		mdb := coverPicture(f.Cover).Marshal()
		meta = append(meta, &mdb)
	}

	flacFile.Meta = meta
	return flacFile.Marshal(), nil
}

// coverPicture builds the PICTURE block. Dimensions are left zero when
// the image can't be decoded; the bytes are stored as they are.
func coverPicture(cover []byte) *flacpicture.MetadataBlockPicture {
	mime := CoverMIME(cover)
	pic, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, coverDescription, cover, mime)
	if err == nil {
		return pic
	}
	return &flacpicture.MetadataBlockPicture{
		PictureType: flacpicture.PictureTypeFrontCover,
		MIME:        mime,
		Description: coverDescription,
		ImageData:   cover,
	}
}

// addComment replaces every existing value of field.
func addComment(vc *flacvorbis.MetaDataBlockVorbisComment, field, value string) {
	if value == "" {
		return
	}

	prefix := field + "="
	kept := vc.Comments[:0]
	for _, c := range vc.Comments {
		if len(c) >= len(prefix) && strings.EqualFold(c[:len(prefix)], prefix) {
			continue
		}
		kept = append(kept, c)
	}
	vc.Comments = kept
	_ = vc.Add(field, value)
}
