// Package codec implements the CrossSock wire framing: a fixed header,
// an opaque payload, and an optional footer carrying a checksum and a
// sender id. All multi-byte header fields are little-endian on the wire.
package codec

import (
	"encoding/binary"
	"errors"
)

// Flag bits within the header's single flags byte.
const (
	FlagChecksum uint8 = 1 << 0
	FlagSenderID uint8 = 1 << 1
)

const (
	headerSize       = 5 // dataID(2) + payloadSize(2) + flags(1)
	maxFooterSize    = 8 // checksum(4) + senderID(4)
	maxFrameSize     = 1500
	MaxPayloadBytes  = maxFrameSize - headerSize - maxFooterSize
	MaxDataNameBytes = 1024
)

var (
	ErrShortHeader      = errors.New("codec: short header")
	ErrShortFooter      = errors.New("codec: short footer")
	ErrPayloadTooLarge  = errors.New("codec: payload exceeds MTU budget")
	ErrPayloadOverflow  = errors.New("codec: payload write would overflow capacity")
	ErrPayloadUnderflow = errors.New("codec: payload read beyond written bytes")
)

// Header is the fixed 5-byte frame header.
type Header struct {
	DataID      uint16
	PayloadSize uint16
	Flags       uint8
}

// Footer carries the optional checksum and sender id, present per Header.Flags.
type Footer struct {
	Checksum int32
	SenderID uint32
}

// Packet is a single framed message: header, payload (stack discipline),
// and an optional footer. A Packet is owned exclusively by whichever
// session object created or received it.
type Packet struct {
	header Header
	footer Footer

	payload  []byte // bytes written so far, tail-append
	readPos  int     // cursor for Remove*; advances forward
	wire     []byte // cached serialized image; nil when stale
}

// NewPacket constructs an empty outbound packet for the given dataID.
func NewPacket(dataID uint16) *Packet {
	return &Packet{header: Header{DataID: dataID}}
}

// DataID returns the packet's message kind.
func (p *Packet) DataID() uint16 { return p.header.DataID }

// Flags returns the packet's current flag byte.
func (p *Packet) Flags() uint8 { return p.header.Flags }

// SenderID returns the footer's sender id, valid only once finalized with FlagSenderID set.
func (p *Packet) SenderID() uint32 { return p.footer.SenderID }

// Reset rewinds the read cursor to the start of the payload without discarding it.
func (p *Packet) Reset() { p.readPos = 0 }

// Clear truncates the payload to empty and rewinds the read cursor.
func (p *Packet) Clear() {
	p.payload = p.payload[:0]
	p.readPos = 0
	p.wire = nil
}

// remaining bytes of payload capacity.
func (p *Packet) remaining() int { return MaxPayloadBytes - len(p.payload) }

func (p *Packet) invalidate() { p.wire = nil }

// AddUint8 appends a single byte to the payload.
func (p *Packet) AddUint8(v uint8) error {
	if p.remaining() < 1 {
		return ErrPayloadOverflow
	}
	p.payload = append(p.payload, v)
	p.invalidate()
	return nil
}

// AddUint16 appends a little-endian uint16 to the payload.
func (p *Packet) AddUint16(v uint16) error {
	if p.remaining() < 2 {
		return ErrPayloadOverflow
	}
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	p.payload = append(p.payload, buf...)
	p.invalidate()
	return nil
}

// AddUint32 appends a little-endian uint32 to the payload.
func (p *Packet) AddUint32(v uint32) error {
	if p.remaining() < 4 {
		return ErrPayloadOverflow
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	p.payload = append(p.payload, buf...)
	p.invalidate()
	return nil
}

// AddInt32 appends a little-endian int32 to the payload.
func (p *Packet) AddInt32(v int32) error {
	return p.AddUint32(uint32(v))
}

// AddBytesRaw appends already network-ordered bytes without any byte-swap.
func (p *Packet) AddBytesRaw(b []byte) error {
	if p.remaining() < len(b) {
		return ErrPayloadOverflow
	}
	p.payload = append(p.payload, b...)
	p.invalidate()
	return nil
}

// AddString appends a 16-bit length prefix followed by the string's bytes.
func (p *Packet) AddString(s string) error {
	if p.remaining() < 2+len(s) {
		return ErrPayloadOverflow
	}
	if err := p.AddUint16(uint16(len(s))); err != nil {
		return err
	}
	p.payload = append(p.payload, s...)
	p.invalidate()
	return nil
}

// RemoveUint8 pops a single byte from the read cursor.
func (p *Packet) RemoveUint8() uint8 {
	if p.readPos+1 > len(p.payload) {
		return 0
	}
	v := p.payload[p.readPos]
	p.readPos++
	return v
}

// RemoveUint16 pops a little-endian uint16 from the read cursor.
func (p *Packet) RemoveUint16() uint16 {
	if p.readPos+2 > len(p.payload) {
		p.readPos = len(p.payload)
		return 0
	}
	v := binary.LittleEndian.Uint16(p.payload[p.readPos : p.readPos+2])
	p.readPos += 2
	return v
}

// RemoveUint32 pops a little-endian uint32 from the read cursor.
func (p *Packet) RemoveUint32() uint32 {
	if p.readPos+4 > len(p.payload) {
		p.readPos = len(p.payload)
		return 0
	}
	v := binary.LittleEndian.Uint32(p.payload[p.readPos : p.readPos+4])
	p.readPos += 4
	return v
}

// RemoveInt32 pops a little-endian int32 from the read cursor.
func (p *Packet) RemoveInt32() int32 {
	return int32(p.RemoveUint32())
}

// RemoveString reads a 16-bit length prefix then that many bytes. A
// malformed or truncated length yields an empty string rather than a fault.
func (p *Packet) RemoveString() string {
	if p.readPos+2 > len(p.payload) {
		p.readPos = len(p.payload)
		return ""
	}
	n := int(binary.LittleEndian.Uint16(p.payload[p.readPos : p.readPos+2]))
	start := p.readPos + 2
	if start+n > len(p.payload) {
		p.readPos = len(p.payload)
		return ""
	}
	s := string(p.payload[start : start+n])
	p.readPos = start + n
	return s
}

// Len returns the number of payload bytes written so far.
func (p *Packet) Len() int { return len(p.payload) }

// Finalize freezes the footer fields and locks the checksum/sender-id flags.
// withChecksum and withSenderID select which footer fields are present;
// senderID is the value stored when withSenderID is true.
func (p *Packet) Finalize(withChecksum, withSenderID bool, senderID uint32) {
	p.header.Flags &^= FlagChecksum | FlagSenderID
	if withChecksum {
		p.header.Flags |= FlagChecksum
	}
	if withSenderID {
		p.header.Flags |= FlagSenderID
		p.footer.SenderID = senderID
	}
	p.header.PayloadSize = uint16(len(p.payload))
	if withChecksum {
		p.footer.Checksum = computeChecksum(p.header, p.payload, p.footer.SenderID)
	}
	p.invalidate()
}

// IsValid reports whether the checksum flag is clear, or else whether the
// stored checksum matches the one recomputed from the current payload.
func (p *Packet) IsValid() bool {
	if p.header.Flags&FlagChecksum == 0 {
		return true
	}
	return p.footer.Checksum == computeChecksum(p.header, p.payload, p.footer.SenderID)
}

// Serialize lays out header, payload, and footer into a contiguous buffer.
// The result is cached and stable until the next payload mutation.
func (p *Packet) Serialize() []byte {
	if p.wire != nil {
		return p.wire
	}
	p.header.PayloadSize = uint16(len(p.payload))
	footerLen := 0
	if p.header.Flags&FlagChecksum != 0 {
		footerLen += 4
	}
	if p.header.Flags&FlagSenderID != 0 {
		footerLen += 4
	}
	buf := make([]byte, headerSize+len(p.payload)+footerLen)
	binary.LittleEndian.PutUint16(buf[0:2], p.header.DataID)
	binary.LittleEndian.PutUint16(buf[2:4], p.header.PayloadSize)
	buf[4] = p.header.Flags
	copy(buf[headerSize:], p.payload)
	off := headerSize + len(p.payload)
	if p.header.Flags&FlagChecksum != 0 {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(p.footer.Checksum))
		off += 4
	}
	if p.header.Flags&FlagSenderID != 0 {
		binary.LittleEndian.PutUint32(buf[off:off+4], p.footer.SenderID)
	}
	p.wire = buf
	return buf
}

// computeChecksum sums payload bytes (as signed 8-bit), dataID, payloadSize,
// flags, and senderID under wrapping 32-bit two's-complement addition. The
// checksum field itself is never included.
func computeChecksum(h Header, payload []byte, senderID uint32) int32 {
	var sum int32
	for _, b := range payload {
		sum += int32(int8(b))
	}
	sum += int32(h.DataID)
	sum += int32(h.PayloadSize)
	sum += int32(h.Flags)
	sum += int32(senderID)
	return sum
}

// PeekHeader decodes the fixed header from the front of buf. buf must
// contain at least the header size.
func PeekHeader(buf []byte) (Header, error) {
	if len(buf) < headerSize {
		return Header{}, ErrShortHeader
	}
	return Header{
		DataID:      binary.LittleEndian.Uint16(buf[0:2]),
		PayloadSize: binary.LittleEndian.Uint16(buf[2:4]),
		Flags:       buf[4],
	}, nil
}

// FooterSize returns the number of footer bytes implied by h.Flags.
func FooterSize(h Header) int {
	n := 0
	if h.Flags&FlagChecksum != 0 {
		n += 4
	}
	if h.Flags&FlagSenderID != 0 {
		n += 4
	}
	return n
}

// FrameSize returns the total on-wire size (header + payload + footer) for h.
func FrameSize(h Header) int {
	return headerSize + int(h.PayloadSize) + FooterSize(h)
}

// HeaderSize is the fixed size of the frame header, in bytes.
func HeaderSize() int { return headerSize }

// PeekFooter decodes the footer fields indicated by h.Flags from buf,
// where buf begins at the footer's first byte.
func PeekFooter(buf []byte, h Header) (Footer, error) {
	var f Footer
	need := FooterSize(h)
	if len(buf) < need {
		return Footer{}, ErrShortFooter
	}
	off := 0
	if h.Flags&FlagChecksum != 0 {
		f.Checksum = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	if h.Flags&FlagSenderID != 0 {
		f.SenderID = binary.LittleEndian.Uint32(buf[off : off+4])
	}
	return f, nil
}

// Decode parses a single complete frame from buf, which must hold exactly
// one frame's worth of bytes (header + payload + footer). It validates the
// declared payload size against the MTU budget before reading further.
func Decode(buf []byte) (*Packet, error) {
	h, err := PeekHeader(buf)
	if err != nil {
		return nil, err
	}
	if int(h.PayloadSize) > MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}
	if len(buf) < FrameSize(h) {
		return nil, ErrShortHeader
	}
	payload := make([]byte, h.PayloadSize)
	copy(payload, buf[headerSize:headerSize+int(h.PayloadSize)])
	footer, err := PeekFooter(buf[headerSize+int(h.PayloadSize):], h)
	if err != nil {
		return nil, err
	}
	p := &Packet{header: h, footer: footer, payload: payload}
	return p, nil
}
