// Package luafile reads the fixed header of a compiled Havok/Lua chunk.
//
// Only the header is decoded here. The header selects the dialect that the
// control flow analysis applies to return instructions.
package luafile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Magic is the signature at the start of every compiled chunk.
const Magic = "\x1bLua"

// Known version bytes.
const (
	VersionLua50 = 0x50
	VersionLua51 = 0x51
)

// HeaderSize is the encoded size of a Header in bytes.
const HeaderSize = len(Magic) + 9 + 4

// ErrBadMagic is returned when the input does not start with Magic.
var ErrBadMagic = errors.New("luafile: bad magic")

// Header is the chunk header.
type Header struct {
	Magic             string
	LuaVersion        byte
	CompilerVersion   byte
	Endianness        byte // 1 = little endian
	SizeOfInt         byte
	SizeOfSizeT       byte
	SizeOfInstruction byte
	SizeOfLuaNumber   byte
	IntegralFlag      byte
	GameByte          byte
	ConstantTypeCount int32
}

// ByteOrder returns the byte order announced by the header.
func (h *Header) ByteOrder() binary.ByteOrder {
	if h.Endianness == 0 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Dialect returns the return-handling dialect for the header's version.
func (h *Header) Dialect() Dialect {
	return DialectForVersion(h.LuaVersion)
}

// ReadHeader decodes a Header from r.
func ReadHeader(r io.Reader) (*Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("luafile: read header: %w", err)
	}
	if string(buf[:len(Magic)]) != Magic {
		return nil, fmt.Errorf("%w: % x", ErrBadMagic, buf[:len(Magic)])
	}

	p := buf[len(Magic):]
	h := &Header{
		Magic:             Magic,
		LuaVersion:        p[0],
		CompilerVersion:   p[1],
		Endianness:        p[2],
		SizeOfInt:         p[3],
		SizeOfSizeT:       p[4],
		SizeOfInstruction: p[5],
		SizeOfLuaNumber:   p[6],
		IntegralFlag:      p[7],
		GameByte:          p[8],
	}
	h.ConstantTypeCount = int32(h.ByteOrder().Uint32(p[9:13]))
	if h.ConstantTypeCount < 0 {
		return nil, fmt.Errorf("luafile: negative constant type count %d", h.ConstantTypeCount)
	}
	return h, nil
}

// ReadHeaderFile decodes the header of the chunk at path.
func ReadHeaderFile(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadHeader(f)
}

// Encode returns the binary form of h.
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, Magic)
	p := buf[len(Magic):]
	p[0] = h.LuaVersion
	p[1] = h.CompilerVersion
	p[2] = h.Endianness
	p[3] = h.SizeOfInt
	p[4] = h.SizeOfSizeT
	p[5] = h.SizeOfInstruction
	p[6] = h.SizeOfLuaNumber
	p[7] = h.IntegralFlag
	p[8] = h.GameByte
	h.ByteOrder().PutUint32(p[9:13], uint32(h.ConstantTypeCount))
	return buf
}
