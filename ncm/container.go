package ncm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Container is a parsed view over an NCM file. Audio aliases the parsed
// buffer.
type Container struct {
	KeyBlob  []byte
	MetaBlob []byte
	Cover    []byte
	Audio    []byte
}

// Parse walks the container layout:
//
//	magic(8) reserved(2) keyLen(4) key metaLen(4) meta reserved(5)
//	imageSpace(4) imageSize(4) image padding(imageSpace-imageSize) audio
//
// All lengths are little endian.
func Parse(data []byte) (*Container, error) {
	p := &parser{reader: bytes.NewReader(data)}
	c := &Container{}

	p.verifyMagicHeader()
	p.skipUnknownBytes(2)
	c.KeyBlob = p.readBytesByLeading()
	c.MetaBlob = p.readBytesByLeading()
	p.skipUnknownBytes(5)
	c.Cover = p.readImage()
	if p.err != nil {
		return nil, p.err
	}

	c.Audio = data[len(data)-p.reader.Len():]
	return c, nil
}

// parser records the first failure; every later step is a no-op.
type parser struct {
	reader *bytes.Reader
	err    error
}

func (p *parser) fail(format string, args ...interface{}) {
	p.err = fmt.Errorf("%w: %s", ErrFormat, fmt.Sprintf(format, args...))
}

func (p *parser) verifyMagicHeader() {
	buf := p.readBytes(uint32(MagicHeaderSize))
	if p.err != nil {
		p.err = fmt.Errorf("%w: missing magic header", ErrFormat)
		return
	}
	if !bytes.Equal(MagicHeader, buf) {
		p.fail("bad magic header %x", buf)
	}
}

func (p *parser) skipUnknownBytes(size uint32) {
	if p.err != nil {
		return
	}

	if int64(size) > int64(p.reader.Len()) {
		p.fail("cannot skip %d bytes at offset %d: %s", size, p.offset(), io.ErrUnexpectedEOF)
		return
	}
	_, _ = p.reader.Seek(int64(size), io.SeekCurrent)
}

func (p *parser) readUint32() uint32 {
	buf := p.readBytes(leadingSize)
	if p.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(buf)
}

func (p *parser) readBytes(size uint32) []byte {
	if p.err != nil {
		return nil
	}

	// check before allocating, size comes straight from the input
	if int64(size) > int64(p.reader.Len()) {
		p.fail("need %d bytes at offset %d, have %d", size, p.offset(), p.reader.Len())
		return nil
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(p.reader, buf); err != nil {
		p.fail("read %d bytes: %s", size, err)
		return nil
	}
	return buf
}

// readBytesByLeading reads a length prefixed field. A zero length gives
// nil.
func (p *parser) readBytesByLeading() []byte {
	size := p.readUint32()
	if p.err != nil || size == 0 {
		return nil
	}
	return p.readBytes(size)
}

func (p *parser) readImage() []byte {
	spaceSize := p.readUint32()
	imageSize := p.readUint32()
	if p.err != nil {
		return nil
	}
	if imageSize > spaceSize {
		p.fail("image size %d exceeds reserved space %d", imageSize, spaceSize)
		return nil
	}

	var image []byte
	if imageSize > 0 {
		image = p.readBytes(imageSize)
	}
	p.skipUnknownBytes(spaceSize - imageSize)
	return image
}

func (p *parser) offset() int64 {
	return p.reader.Size() - int64(p.reader.Len())
}
