// Package packet implements the two nested wire envelopes: the inner SSO
// frame carrying a command and payload, and the outer service frame that
// selects the session encryption. It also owns the sequence-correlated
// request/response layer.
package packet

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/nanoim/botcore/internal/auth"
	"github.com/nanoim/botcore/internal/binary"
	"github.com/nanoim/botcore/internal/errs"
	"github.com/nanoim/botcore/internal/keystore"
	"github.com/nanoim/botcore/internal/proto"
	"github.com/nanoim/botcore/internal/sign"
)

// SsoPacket is the inner envelope. The sequence rides the wire as i32; the
// bit cast to and from u32 is lossless for every value.
type SsoPacket struct {
	Seq     uint32
	Command string
	Data    []byte

	RetCode int32
	Extra   string
}

// Err returns the ProtocolError carried by a failed packet, nil on success.
func (p *SsoPacket) Err() error {
	if p.RetCode == 0 {
		return nil
	}
	return errs.Protocol(p.RetCode, p.Extra)
}

// secInfo is the sign block inside the reserved fields.
type secInfo struct {
	Sig         []byte `proto:"1"`
	DeviceToken []byte `proto:"2"`
	Extra       []byte `proto:"3"`
}

// reserveFields is the protobuf block in the SSO head.
type reserveFields struct {
	proto.UnknownFields
	TraceParent   string   `proto:"15"`
	Uid           string   `proto:"16"`
	MessageType   *uint32  `proto:"21"`
	SecInfo       *secInfo `proto:"24"`
	NtCoreVersion string   `proto:"26"`
}

// newTraceParent renders a W3C-style trace parent with random trace and
// span ids.
func newTraceParent() string {
	var buf [24]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("01-%x-%x-01", buf[:16], buf[16:24])
}

// ssoLocale is the locale id every deployed client reports.
const ssoLocale = 2052

var ssoFixedBytes = []byte{
	0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// Codec builds and parses SSO frames for one account. The keystore supplies
// the A2 ticket, uid and GUID at build time.
type Codec struct {
	App   *auth.AppInfo
	Store *keystore.Store
}

func (c *Codec) reserved(signResult *sign.Result) ([]byte, error) {
	fields := &reserveFields{
		TraceParent: newTraceParent(),
		Uid:         c.Store.Uid(),
	}
	if c.App.Protocol.IsAndroid() {
		msgType := uint32(32)
		fields.MessageType = &msgType
		fields.NtCoreVersion = "100"
	}
	if signResult != nil {
		fields.SecInfo = &secInfo{
			Sig:         signResult.Sign,
			DeviceToken: signResult.Token,
			Extra:       signResult.Extra,
		}
	}
	return proto.Marshal(fields)
}

// BuildSso encodes one outbound SSO frame. Protocol 12 carries the A2
// ticket and the full head; protocol 13 carries only the command.
func (c *Codec) BuildSso(p *SsoPacket, protocol int32, signResult *sign.Result) ([]byte, error) {
	const lp = binary.PrefixU32 | binary.PrefixLength

	switch protocol {
	case ProtocolLogin:
		reserved, err := c.reserved(signResult)
		if err != nil {
			return nil, errs.Build("sso reserved fields: %v", err)
		}
		head := binary.NewWriterF(func(w *binary.Writer) {
			w.WriteU32(p.Seq)
			w.WriteU32(c.App.SubAppID)
			w.WriteU32(ssoLocale)
			w.WriteBytes(ssoFixedBytes)
			w.WriteLenBytes(lp, c.Store.A2())
			w.WriteLenString(lp, p.Command)
			w.WriteLenBytes(lp, nil) // message cookies
			w.WriteLenString(lp, c.Store.Device().GUIDHex())
			w.WriteLenBytes(lp, nil)
			w.WriteLenString(binary.PrefixU16|binary.PrefixLength, c.App.CurrentVersion)
			w.WriteLenBytes(lp, reserved)
		})
		return binary.NewWriterF(func(w *binary.Writer) {
			w.WriteLenBytes(lp, head)
			w.WriteLenBytes(lp, p.Data)
		}), nil

	case ProtocolService:
		head := binary.NewWriterF(func(w *binary.Writer) {
			w.WriteLenString(lp, p.Command)
			w.WriteLenBytes(lp, nil) // message cookies
			w.WriteLenBytes(lp, nil)
		})
		return binary.NewWriterF(func(w *binary.Writer) {
			w.WriteLenBytes(lp, head)
			w.WriteLenBytes(lp, p.Data)
		}), nil

	default:
		return nil, errs.Build("sso: unknown protocol %d", protocol)
	}
}

// ParseSso decodes one inbound SSO frame.
func (c *Codec) ParseSso(data []byte) (*SsoPacket, error) {
	const lp = binary.PrefixU32 | binary.PrefixLength

	r := binary.NewReader(data)
	head := binary.NewReader(r.ReadLenBytes(lp))
	payload := r.ReadLenBytes(lp)
	if err := r.Err(); err != nil {
		return nil, errs.Parse("sso frame: %v", err)
	}

	p := &SsoPacket{}
	p.Seq = uint32(head.ReadI32())
	p.RetCode = head.ReadI32()
	p.Extra = head.ReadLenString(lp)
	p.Command = head.ReadLenString(lp)
	head.ReadLenBytes(lp) // message cookie
	dataFlag := head.ReadU32()
	head.ReadLenBytes(lp) // reserved fields
	if err := head.Err(); err != nil {
		return nil, errs.Parse("sso head: %v", err)
	}

	switch dataFlag {
	case 0, 4:
		p.Data = payload
	case 1:
		plain, err := inflate(payload)
		if err != nil {
			return nil, errs.Parse("sso payload inflate: %v", err)
		}
		p.Data = plain
	default:
		return nil, errs.Parse("sso: unknown data flag %d", dataFlag)
	}
	return p, nil
}

// BuildSsoResponse encodes a frame in the inbound layout. Production code
// only parses this shape; in-process fakes build it to stand in for a
// server.
func (c *Codec) BuildSsoResponse(p *SsoPacket, dataFlag uint32) ([]byte, error) {
	const lp = binary.PrefixU32 | binary.PrefixLength

	payload := p.Data
	if dataFlag == 1 {
		payload = deflate(p.Data)
	}
	head := binary.NewWriterF(func(w *binary.Writer) {
		w.WriteI32(int32(p.Seq))
		w.WriteI32(p.RetCode)
		w.WriteLenString(lp, p.Extra)
		w.WriteLenString(lp, p.Command)
		w.WriteLenBytes(lp, nil) // message cookie
		w.WriteU32(dataFlag)
		w.WriteLenBytes(lp, nil) // reserved fields
	})
	return binary.NewWriterF(func(w *binary.Writer) {
		w.WriteLenBytes(lp, head)
		w.WriteLenBytes(lp, payload)
	}), nil
}

func deflate(data []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, _ = zw.Write(data)
	_ = zw.Close()
	return buf.Bytes()
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
