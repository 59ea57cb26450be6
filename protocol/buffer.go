package protocol

import (
	"encoding/binary"
	"fmt"
)

// Buffer is an append/consume byte sequence with independent write and read
// cursors. Writes always append; reads advance the read cursor.
type Buffer struct {
	data []byte
	off  int
}

// NewBuffer returns a Buffer with room for n bytes.
func NewBuffer(n int) *Buffer {
	return &Buffer{data: make([]byte, 0, n)}
}

// WrapBuffer returns a Buffer reading from data. The slice is not copied.
func WrapBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

func (b *Buffer) Bytes() []byte  { return b.data }
func (b *Buffer) Len() int       { return len(b.data) }
func (b *Buffer) Remaining() int { return len(b.data) - b.off }

// Rest returns the unread bytes without consuming them.
func (b *Buffer) Rest() []byte { return b.data[b.off:] }

// Skip advances the read cursor by n bytes.
func (b *Buffer) Skip(n int) error {
	if b.Remaining() < n {
		return ErrShortBuffer
	}
	b.off += n
	return nil
}

func (b *Buffer) WriteByte(c byte) error {
	b.data = append(b.data, c)
	return nil
}

func (b *Buffer) ReadByte() (byte, error) {
	if b.Remaining() < 1 {
		return 0, ErrShortBuffer
	}
	c := b.data[b.off]
	b.off++
	return c, nil
}

func (b *Buffer) WriteUint32(v uint32) {
	b.data = binary.BigEndian.AppendUint32(b.data, v)
}

func (b *Buffer) ReadUint32() (uint32, error) {
	if b.Remaining() < 4 {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint32(b.data[b.off:])
	b.off += 4
	return v, nil
}

// WriteBytes appends p behind a 4-byte length prefix.
func (b *Buffer) WriteBytes(p []byte) {
	b.WriteUint32(uint32(len(p)))
	b.data = append(b.data, p...)
}

// ReadBytes consumes one length-prefixed segment. The result aliases the buffer.
func (b *Buffer) ReadBytes() ([]byte, error) {
	n, err := b.ReadUint32()
	if err != nil {
		return nil, err
	}
	if uint32(b.Remaining()) < n {
		return nil, fmt.Errorf("segment of %d bytes, %d left: %w", n, b.Remaining(), ErrShortBuffer)
	}
	p := b.data[b.off : b.off+int(n)]
	b.off += int(n)
	return p, nil
}

func (b *Buffer) WriteString(s string) {
	b.WriteUint32(uint32(len(s)))
	b.data = append(b.data, s...)
}

func (b *Buffer) ReadString() (string, error) {
	p, err := b.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// Slot is a typed cursor to a header reserved inside a Buffer.
// Patching through a Slot rewrites bytes in place and never changes the
// buffer length.
type Slot struct {
	buf *Buffer
	at  int
}

// Reserve appends a placeholder header for callID and returns its slot.
// Size and Counter stay zero until Patch.
func (b *Buffer) Reserve(callID uint32, isReply bool) Slot {
	at := len(b.data)
	var hdr [HeaderSize]byte
	putHeader(hdr[:], Header{CallID: callID, IsReply: isReply})
	b.data = append(b.data, hdr[:]...)
	return Slot{buf: b, at: at}
}

// HeaderSlot returns the slot of a header previously reserved at offset 0,
// used when a frame was handed around as a plain Buffer.
func (b *Buffer) HeaderSlot() Slot {
	return Slot{buf: b, at: 0}
}

// Header decodes the header currently stored in the slot.
func (s Slot) Header() Header {
	raw := s.buf.data[s.at : s.at+HeaderSize]
	return Header{
		IsReply: raw[3]&flagReply != 0,
		CallID:  binary.BigEndian.Uint32(raw[4:8]),
		Size:    binary.BigEndian.Uint32(raw[8:12]),
		Counter: binary.BigEndian.Uint32(raw[12:16]),
	}
}

// Patch overwrites size and counter, leaving callID and the reply flag untouched.
func (s Slot) Patch(size, counter uint32) {
	raw := s.buf.data[s.at : s.at+HeaderSize]
	binary.BigEndian.PutUint32(raw[8:12], size)
	binary.BigEndian.PutUint32(raw[12:16], counter)
}
