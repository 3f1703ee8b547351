package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/jdxj/fdecrypt/ncm"
	"github.com/jdxj/fdecrypt/qmc"
	"github.com/jdxj/fdecrypt/tag"
)

var (
	ErrNotSupported = errors.New("unsupported file type")
	ErrOutputExists = errors.New("output file already exists")
)

const typeNCM = "ncm"

// inputType resolves the encryption scheme of path: forced wins, then the
// file extension. The result is "ncm" or one of the qmc extensions without
// the dot.
func inputType(path, forced string) (string, error) {
	t := strings.ToLower(strings.TrimPrefix(forced, "."))
	if t == "" {
		t = strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	}
	if t == typeNCM {
		return t, nil
	}
	if _, ok := qmc.FormatOf("." + t); ok {
		return t, nil
	}
	if forced != "" {
		return "", fmt.Errorf("%w: type %q", ErrNotSupported, forced)
	}
	return "", fmt.Errorf("%w: %s", ErrNotSupported, path)
}

type job struct {
	path string
	typ  string
	log  *logrus.Entry
	// tagger is nil when tagging is disabled
	tagger tag.Embedder
}

// decrypt reads and decrypts the input file, returning the audio and its
// format.
func (j *job) decrypt() ([]byte, string, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		return nil, "", err
	}

	if j.typ != typeNCM {
		format, _ := qmc.FormatOf("." + j.typ)
		return qmc.Decrypt(data), format, nil
	}

	res, err := ncm.Decrypt(data)
	if err != nil {
		return nil, "", err
	}
	return j.embed(res), res.Format, nil
}

// embed falls back to the untagged audio when tagging fails.
func (j *job) embed(res *ncm.Result) []byte {
	if j.tagger == nil {
		return res.Audio
	}
	if res.Cover == nil && res.Meta.AlbumPic != "" {
		j.log.Debugf("no embedded cover, album picture at %s", res.Meta.AlbumPic)
	}

	audio, err := j.tagger.Embed(res.Audio, res.Format, tag.Fields{
		Title:   res.Meta.Title,
		Album:   res.Meta.Album,
		Artist:  res.Meta.Artist(),
		Comment: res.Meta.Identifier,
		Cover:   res.Cover,
	})
	if err != nil {
		j.log.WithError(err).Warn("failed embedding metadata, writing untagged audio")
		return res.Audio
	}
	return audio
}

// outputPath names the output after the input, with the extension
// replaced by format.
func outputPath(input, dir, format string) string {
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, norm.NFC.String(base)+"."+format)
}

// run decrypts the job into dir and returns the written path.
func (j *job) run(dir string, force bool) (string, error) {
	audio, format, err := j.decrypt()
	if err != nil {
		return "", err
	}

	out := outputPath(j.path, dir, format)
	if err = writeOutput(out, audio, force); err != nil {
		return "", err
	}
	return out, nil
}

// writeOutput creates out exclusively unless force is set, so two jobs
// racing for the same name can't overwrite each other.
func writeOutput(out string, audio []byte, force bool) error {
	if force {
		return os.WriteFile(out, audio, 0o644)
	}

	f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: %s", ErrOutputExists, out)
	}
	if err != nil {
		return err
	}
	_, err = f.Write(audio)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
