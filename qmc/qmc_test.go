package qmc

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDecryptFirstMasks(t *testing.T) {
	want := []byte{
		0xc3,
		0x4a, 0xd6, 0xca, 0x90, 0x67, 0xf7, 0x52,
		0xd8,
		0xa1, 0x66, 0x62, 0x9f, 0x5b, 0x09, 0x00,
		0xc3,
		0x5e, 0x95, 0x23,
	}

	// decrypting zeroes exposes the mask itself
	got := Decrypt(make([]byte, len(want)))
	assert.Equal(t, want, got)
}

func TestDecryptSelfInverse(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, size := range []int{0, 1, 7, 255, segmentSize - 1, segmentSize, segmentSize + 2, 3*segmentSize + 17} {
		src := make([]byte, size)
		rnd.Read(src)

		enc := Decrypt(src)
		require.Len(t, enc, size)
		assert.Equal(t, src, Decrypt(enc), "size %d", size)
	}
}

func TestDecryptDeterministic(t *testing.T) {
	src := bytes.Repeat([]byte("fLaC"), 20000)
	orig := append([]byte(nil), src...)

	a := Decrypt(src)
	b := Decrypt(src)
	assert.Equal(t, a, b)
	assert.Equal(t, orig, src, "input must not be modified")
}

func TestDecryptEmpty(t *testing.T) {
	assert.Empty(t, Decrypt(nil))
	assert.Empty(t, Decrypt([]byte{}))
}

func TestMaskSkipsSegmentBoundaries(t *testing.T) {
	const total = 3*segmentSize + 10

	raw := newMaskState()
	var (
		rawMasks     []byte
		skippedIndex []int
	)
	for raw.index < total {
		m := raw.step()
		if skipped(raw.index) {
			skippedIndex = append(skippedIndex, raw.index)
			continue
		}
		rawMasks = append(rawMasks, m)

		require.GreaterOrEqual(t, raw.x, -1)
		require.LessOrEqual(t, raw.x, 7)
	}
	assert.Equal(t, []int{segmentSize, 2*segmentSize - 1, 3*segmentSize - 1}, skippedIndex)

	s := newMaskState()
	for i, want := range rawMasks {
		if got := s.next(); got != want {
			t.Fatalf("mask %d = %#x, wanted %#x", i, got, want)
		}
	}
}

func TestSkipped(t *testing.T) {
	assert.False(t, skipped(0))
	assert.False(t, skipped(segmentSize-1))
	assert.True(t, skipped(segmentSize))
	assert.False(t, skipped(segmentSize+1))
	assert.True(t, skipped(2*segmentSize-1))
	assert.False(t, skipped(2*segmentSize))
	assert.True(t, skipped(5*segmentSize-1))
}

func TestDecryptConcurrent(t *testing.T) {
	src := make([]byte, 2*segmentSize+5)
	rand.New(rand.NewSource(7)).Read(src)
	want := Decrypt(src)

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = Decrypt(src)
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		assert.Equal(t, want, got, "goroutine %d", i)
	}
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		ext    string
		format string
		ok     bool
	}{
		{".qmc0", "mp3", true},
		{".qmc3", "mp3", true},
		{".qmcflac", "flac", true},
		{".QMCFLAC", "flac", true},
		{".ncm", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		format, ok := FormatOf(tt.ext)
		assert.Equal(t, tt.ok, ok, tt.ext)
		assert.Equal(t, tt.format, format, tt.ext)
	}
}
