package codec

import "testing"

func TestRoundTripNoFooter(t *testing.T) {
	p := NewPacket(7)
	if err := p.AddString("hi"); err != nil {
		t.Fatalf("AddString: %v", err)
	}
	wire := p.Serialize()

	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.DataID() != 7 {
		t.Fatalf("DataID: got %d want 7", got.DataID())
	}
	if s := got.RemoveString(); s != "hi" {
		t.Fatalf("RemoveString: got %q want %q", s, "hi")
	}
}

func TestRoundTripWithChecksumAndSenderID(t *testing.T) {
	p := NewPacket(7)
	if err := p.AddString("hi"); err != nil {
		t.Fatalf("AddString: %v", err)
	}
	if err := p.AddUint32(1); err != nil {
		t.Fatalf("AddUint32: %v", err)
	}
	p.Finalize(true, true, 42)

	wire := p.Serialize()
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.IsValid() {
		t.Fatalf("IsValid: got false want true")
	}
	if got.SenderID() != 42 {
		t.Fatalf("SenderID: got %d want 42", got.SenderID())
	}
	if s := got.RemoveString(); s != "hi" {
		t.Fatalf("RemoveString: got %q want %q", s, "hi")
	}
	if v := got.RemoveUint32(); v != 1 {
		t.Fatalf("RemoveUint32: got %d want 1", v)
	}
}

func TestChecksumSensitivity(t *testing.T) {
	p := NewPacket(7)
	_ = p.AddString("hi")
	p.Finalize(true, false, 0)
	wire := p.Serialize()

	corrupted := make([]byte, len(wire))
	copy(corrupted, wire)
	corrupted[HeaderSize()] ^= 0xFF

	got, err := Decode(corrupted)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.IsValid() {
		t.Fatalf("IsValid: got true want false after payload corruption")
	}
}

func TestEndianInvarianceOfWireImage(t *testing.T) {
	p1 := NewPacket(9)
	_ = p1.AddUint32(0x01020304)
	p1.Finalize(false, false, 0)

	p2 := NewPacket(9)
	_ = p2.AddUint32(0x01020304)
	p2.Finalize(false, false, 0)

	w1 := p1.Serialize()
	w2 := p2.Serialize()
	if len(w1) != len(w2) {
		t.Fatalf("wire length mismatch: %d vs %d", len(w1), len(w2))
	}
	for i := range w1 {
		if w1[i] != w2[i] {
			t.Fatalf("wire byte %d differs: %x vs %x", i, w1[i], w2[i])
		}
	}
	// little-endian: low byte first
	if w1[HeaderSize()] != 0x04 {
		t.Fatalf("expected little-endian low byte first, got %x", w1[HeaderSize()])
	}
}

func TestIdempotentSerialize(t *testing.T) {
	p := NewPacket(7)
	_ = p.AddString("hi")
	p.Finalize(true, false, 0)

	a := p.Serialize()
	b := p.Serialize()
	if len(a) != len(b) {
		t.Fatalf("length differs across calls")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("byte %d differs across calls", i)
		}
	}
}

func TestRejectOversizedPayload(t *testing.T) {
	p := NewPacket(7)
	big := make([]byte, MaxPayloadBytes)
	if err := p.AddBytesRaw(big); err != nil {
		t.Fatalf("AddBytesRaw at capacity: %v", err)
	}
	if err := p.AddUint8(1); err == nil {
		t.Fatalf("AddUint8 beyond capacity: want error, got nil")
	}
}

func TestDecodeRejectsOversizedHeaderPayload(t *testing.T) {
	buf := make([]byte, HeaderSize())
	buf[2] = 0xFF
	buf[3] = 0xFF // payloadSize = 65535, far past MaxPayloadBytes
	if _, err := Decode(buf); err != ErrPayloadTooLarge {
		t.Fatalf("Decode: got %v want ErrPayloadTooLarge", err)
	}
}

func TestRemoveBeyondAvailableReturnsZeroValue(t *testing.T) {
	p := NewPacket(7)
	if v := p.RemoveUint32(); v != 0 {
		t.Fatalf("RemoveUint32 on empty payload: got %d want 0", v)
	}
	if s := p.RemoveString(); s != "" {
		t.Fatalf("RemoveString on empty payload: got %q want empty", s)
	}
}

func TestResetRewindsCursor(t *testing.T) {
	p := NewPacket(7)
	_ = p.AddString("a")
	_ = p.AddString("b")
	if s := p.RemoveString(); s != "a" {
		t.Fatalf("first RemoveString: got %q want %q", s, "a")
	}
	p.Reset()
	if s := p.RemoveString(); s != "a" {
		t.Fatalf("RemoveString after Reset: got %q want %q", s, "a")
	}
}
