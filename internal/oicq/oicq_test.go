package oicq

import (
	"bytes"
	"testing"

	"github.com/nanoim/botcore/internal/binary"
	"github.com/nanoim/botcore/internal/crypto"
)

func TestMarshal_FrameShape(t *testing.T) {
	c, err := NewCodec()
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	body := []byte("wtlogin request body")
	frame, err := c.Marshal(&Message{
		Uin:     123456,
		Command: 0x0810,
		Method:  EmEcdh,
		Body:    body,
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if frame[0] != 0x02 || frame[len(frame)-1] != 0x03 {
		t.Fatal("frame marks missing")
	}

	r := binary.NewReader(frame)
	r.ReadU8()
	if total := int(r.ReadU16()); total != len(frame) {
		t.Errorf("declared length %d, frame is %d", total, len(frame))
	}
	if ver := r.ReadU16(); ver != 8001 {
		t.Errorf("version = %d", ver)
	}
	if cmd := r.ReadU16(); cmd != 0x0810 {
		t.Errorf("command = %#x", cmd)
	}
	r.ReadU16()
	if uin := r.ReadU32(); uin != 123456 {
		t.Errorf("uin = %d", uin)
	}
}

func TestMarshal_EcdhSealRecoverable(t *testing.T) {
	c, err := NewCodec()
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	body := []byte("sealed payload")
	frame, err := c.Marshal(&Message{Uin: 1, Command: 0x0812, Method: EmEcdhSt, Body: body})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// Walk to the encrypt head: mark(1) + len(2) + head(19).
	r := binary.NewReader(frame)
	r.SkipBytes(1 + 2 + 2 + 2 + 2 + 4 + 1 + 1 + 1 + 4 + 4 + 4)
	if flag := r.ReadU8(); flag != 0x02 {
		t.Fatalf("encrypt head flag = %#x", flag)
	}
	r.ReadU8()
	r.SkipBytes(16) // random key
	r.ReadU16()
	r.ReadU16()
	pub := r.ReadTlv()
	if len(pub) == 0 || pub[0] != 0x04 {
		t.Fatalf("packed public key = %x", pub)
	}
	if _, err := crypto.Secp192K1.UnpackPoint(pub); err != nil {
		t.Fatalf("public key not on curve: %v", err)
	}

	cipher := r.ReadBytes(r.Len() - 1)
	if err := r.Err(); err != nil {
		t.Fatalf("walk: %v", err)
	}
	plain, err := crypto.TEADecrypt(c.ShareKey(), cipher)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(plain, body) {
		t.Errorf("plain = %q", plain)
	}
}

func TestMarshal_SessionTicketSeal(t *testing.T) {
	c, err := NewCodec()
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	key := bytes.Repeat([]byte{0x11}, 16)
	frame, err := c.Marshal(&Message{Uin: 2, Command: 0x0810, Method: EmSt, Key: key, Body: []byte("st body")})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	r := binary.NewReader(frame)
	r.SkipBytes(1 + 2 + 2 + 2 + 2 + 4 + 1 + 1 + 1 + 4 + 4 + 4)
	if flag := r.ReadU8(); flag != 0x01 {
		t.Fatalf("encrypt head flag = %#x", flag)
	}
	r.ReadU8()
	r.SkipBytes(16)
	r.ReadU16()
	r.ReadU16()
	cipher := r.ReadBytes(r.Len() - 1)
	plain, err := crypto.TEADecrypt(key, cipher)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(plain, []byte("st body")) {
		t.Errorf("plain = %q", plain)
	}

	if _, err := c.Marshal(&Message{Method: EmSt, Key: key[:8]}); err == nil {
		t.Error("short session key should be rejected")
	}
}

// serverFrame builds a response the way login servers frame them: encrypt
// type in the head, naked TEA body, no encrypt head.
func serverFrame(t *testing.T, cmd uint16, uin uint32, encryptType uint8, key, body []byte) []byte {
	t.Helper()
	sealed, err := crypto.TEAEncrypt(key, body)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	w := binary.NewWriter()
	w.WriteU8(0x02)
	w.WithLengthPrefix(2, true, 2, func(w *binary.Writer) {
		w.WriteU16(8001)
		w.WriteU16(cmd)
		w.WriteU16(1)
		w.WriteU32(uin)
		w.WriteU8(0)
		w.WriteU8(encryptType)
		w.WriteU8(0)
		w.WriteBytes(sealed)
	})
	w.WriteU8(0x03)
	return w.Bytes()
}

func TestUnmarshal_ShareKeyResponse(t *testing.T) {
	c, err := NewCodec()
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	frame := serverFrame(t, 0x0810, 99, 0, c.ShareKey(), []byte("response body"))
	m, err := c.Unmarshal(frame, nil)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m.Command != 0x0810 || m.Uin != 99 {
		t.Errorf("head = %+v", m)
	}
	if !bytes.Equal(m.Body, []byte("response body")) {
		t.Errorf("body = %q", m.Body)
	}
}

func TestUnmarshal_SessionKeyResponse(t *testing.T) {
	c, err := NewCodec()
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	key := bytes.Repeat([]byte{0x22}, 16)
	frame := serverFrame(t, 0x0810, 7, 3, key, []byte("session body"))

	if _, err := c.Unmarshal(frame, nil); err == nil {
		t.Error("session-sealed response without key should fail")
	}
	m, err := c.Unmarshal(frame, key)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !bytes.Equal(m.Body, []byte("session body")) {
		t.Errorf("body = %q", m.Body)
	}
}

func TestUnmarshal_Malformed(t *testing.T) {
	c, err := NewCodec()
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	good := serverFrame(t, 0x0810, 1, 0, c.ShareKey(), []byte("x"))

	bad := append([]byte(nil), good...)
	bad[0] = 0x05
	if _, err := c.Unmarshal(bad, nil); err == nil {
		t.Error("wrong leading mark should fail")
	}

	bad = append([]byte(nil), good...)
	bad[len(bad)-1] = 0x00
	if _, err := c.Unmarshal(bad, nil); err == nil {
		t.Error("wrong trailing mark should fail")
	}

	if _, err := c.Unmarshal(good[:len(good)-4], nil); err == nil {
		t.Error("truncated frame should fail")
	}

	frame := serverFrame(t, 0x0810, 1, 9, c.ShareKey(), []byte("x"))
	if _, err := c.Unmarshal(frame, nil); err == nil {
		t.Error("unknown encrypt type should fail")
	}
}

func TestUnmarshal_HeadOnlyFrame(t *testing.T) {
	c, err := NewCodec()
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	// A frame whose declared length matches but whose head consumes every
	// byte: no sealed body, no trailing mark.
	w := binary.NewWriter()
	w.WriteU8(0x02)
	w.WriteU16(16)
	w.WriteU16(8001)
	w.WriteU16(0x0810)
	w.WriteU16(1)
	w.WriteU32(1)
	w.WriteU8(0)
	w.WriteU8(0)
	w.WriteU8(0)
	frame := w.Bytes()

	if _, err := c.Unmarshal(frame, nil); err == nil {
		t.Error("head-only frame should fail to parse")
	}
}
