// Package qmc decrypts files protected with the QMC positional mask
// (.qmc0, .qmc3, .qmcflac).
package qmc

import "strings"

const (
	// segmentSize is the distance between skipped mask positions.
	segmentSize = 0x8000

	maskLowSentinel  = 0xc3
	maskHighSentinel = 0xd8
)

var seedMap = [8][7]byte{
	{0x4a, 0xd6, 0xca, 0x90, 0x67, 0xf7, 0x52},
	{0x5e, 0x95, 0x23, 0x9f, 0x13, 0x11, 0x7e},
	{0x47, 0x74, 0x3d, 0x90, 0xaa, 0x3f, 0x51},
	{0xc6, 0x09, 0xd5, 0x9f, 0xfa, 0x66, 0xf9},
	{0xf3, 0xd6, 0xa1, 0x90, 0xa0, 0xf7, 0xf0},
	{0x1d, 0x95, 0xde, 0x9f, 0x84, 0x11, 0xf4},
	{0x0e, 0x74, 0xbb, 0x90, 0xbc, 0x3f, 0x92},
	{0x00, 0x09, 0x5b, 0x9f, 0x62, 0x66, 0xa1},
}

var formats = map[string]string{
	".qmc0":    "mp3",
	".qmc3":    "mp3",
	".qmcflac": "flac",
}

// FormatOf returns the audio format hidden behind a QMC file extension.
func FormatOf(ext string) (string, bool) {
	format, ok := formats[strings.ToLower(ext)]
	return format, ok
}

// maskState walks the seed map in a zig-zag. x stays within [-1, 7].
type maskState struct {
	x, y, dx int
	index    int
}

func newMaskState() maskState {
	return maskState{x: -1, y: 8, dx: 1, index: -1}
}

// step produces the raw mask for the next index, including positions
// that next drops.
func (s *maskState) step() byte {
	s.index++

	var ret byte
	switch {
	case s.x < 0:
		s.dx = 1
		s.y = (8 - s.y) % 8
		ret = maskLowSentinel
	case s.x > 6:
		s.dx = -1
		s.y = 7 - s.y
		ret = maskHighSentinel
	default:
		ret = seedMap[s.y][s.x]
	}
	s.x += s.dx
	return ret
}

func skipped(index int) bool {
	return index == segmentSize || (index > segmentSize && (index+1)%segmentSize == 0)
}

func (s *maskState) next() byte {
	for {
		m := s.step()
		if !skipped(s.index) {
			return m
		}
	}
}

// Decrypt XORs src with the QMC mask. The mask depends on the position
// only, so Decrypt also encrypts. src is left untouched.
func Decrypt(src []byte) []byte {
	dst := make([]byte, len(src))
	s := newMaskState()
	for i, b := range src {
		dst[i] = b ^ s.next()
	}
	return dst
}
