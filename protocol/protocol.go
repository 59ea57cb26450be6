// Package protocol implements the binary frame layout shared by both peers.
//
// Every frame is a fixed-size 16-byte header followed by a variable-length
// body. The header is reserved before the body is serialized and patched in
// place once the final size and correlation counter are known, so the body
// never moves.
//
// Frame format:
//
//	0    2  3  4        8        12       16
//	┌────┬──┬──┬────────┬────────┬────────┬────────────────┐
//	│mag │v │fl│ callID │  size  │counter │    body ...    │
//	│ pr │01│  │ uint32 │ uint32 │ uint32 │                │
//	└────┴──┴──┴────────┴────────┴────────┴────────────────┘
//
// size covers the whole frame, header included. Bit 0 of fl marks a reply.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	MagicByte1 byte = 0x70 // 'p'
	MagicByte2 byte = 0x72 // 'r'
	Version    byte = 0x01
	HeaderSize int  = 16 // 2 (magic) + 1 (version) + 1 (flags) + 4 (callID) + 4 (size) + 4 (counter)

	// MaxFrameSize bounds a single frame read from a stream.
	MaxFrameSize = 16 << 20
)

// GenericCallID is the reserved call id for calls dispatched by method name.
// Typed method ids start at 1.
const GenericCallID uint32 = 0

const flagReply byte = 1 << 0

var (
	ErrShortBuffer   = errors.New("protocol: short buffer")
	ErrFrameTooLarge = errors.New("protocol: frame too large")
)

// Header is the decoded form of the fixed frame header.
type Header struct {
	CallID  uint32 // Target method id, or GenericCallID
	IsReply bool   // Reply frames echo CallID and Counter of the call they answer
	Size    uint32 // Whole frame length, authoritative only after Patch
	Counter uint32 // Connection-scoped correlation counter, assigned at send time
}

// Key derives the correlation key matching a reply to its call.
func (h Header) Key() uint64 {
	return Key(h.CallID, h.Counter)
}

// Key combines a call id and counter into one correlator key.
func Key(callID, counter uint32) uint64 {
	return uint64(callID)<<32 | uint64(counter)
}

func putHeader(dst []byte, h Header) {
	dst[0] = MagicByte1
	dst[1] = MagicByte2
	dst[2] = Version
	var flags byte
	if h.IsReply {
		flags |= flagReply
	}
	dst[3] = flags
	binary.BigEndian.PutUint32(dst[4:8], h.CallID)
	binary.BigEndian.PutUint32(dst[8:12], h.Size)
	binary.BigEndian.PutUint32(dst[12:16], h.Counter)
}

// ParseHeader decodes and validates the header at the start of frame.
func ParseHeader(frame []byte) (Header, error) {
	if len(frame) < HeaderSize {
		return Header{}, fmt.Errorf("frame of %d bytes: %w", len(frame), ErrShortBuffer)
	}
	if frame[0] != MagicByte1 || frame[1] != MagicByte2 {
		return Header{}, fmt.Errorf("invalid magic number: %x", frame[0:2])
	}
	if frame[2] != Version {
		return Header{}, fmt.Errorf("unsupported version: %d", frame[2])
	}
	h := Header{
		IsReply: frame[3]&flagReply != 0,
		CallID:  binary.BigEndian.Uint32(frame[4:8]),
		Size:    binary.BigEndian.Uint32(frame[8:12]),
		Counter: binary.BigEndian.Uint32(frame[12:16]),
	}
	if int(h.Size) != len(frame) {
		return Header{}, fmt.Errorf("header size %d does not match frame length %d", h.Size, len(frame))
	}
	return h, nil
}

// ReadFrame reads exactly one frame from a byte stream.
// The returned slice holds header and body, ready for ParseHeader.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	if hdr[0] != MagicByte1 || hdr[1] != MagicByte2 {
		return nil, fmt.Errorf("invalid magic number: %x", hdr[0:2])
	}
	size := binary.BigEndian.Uint32(hdr[8:12])
	if size < uint32(HeaderSize) {
		return nil, fmt.Errorf("frame size %d below header size: %w", size, ErrShortBuffer)
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("frame size %d: %w", size, ErrFrameTooLarge)
	}

	frame := make([]byte, size)
	copy(frame, hdr[:])
	if _, err := io.ReadFull(r, frame[HeaderSize:]); err != nil {
		return nil, err
	}
	return frame, nil
}

// WriteFrame writes a complete frame to w.
// Callers sharing one writer must serialize calls, otherwise frames interleave.
func WriteFrame(w io.Writer, frame []byte) error {
	_, err := w.Write(frame)
	return err
}
