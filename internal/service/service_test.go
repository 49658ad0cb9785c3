package service

import (
	"context"
	"testing"

	"github.com/nanoim/botcore/internal/auth"
	"github.com/nanoim/botcore/internal/keystore"
	"github.com/nanoim/botcore/internal/packet"
	"github.com/nanoim/botcore/internal/proto"
)

type echoRequest struct{ Body []byte }
type echoResponse struct{ Body []byte }

func init() {
	Register("Echo.Test",
		packet.ProtocolService, packet.EncryptD2Key, auth.ProtocolAllDesktop, false,
		func(req echoRequest, _ Context) ([]byte, error) {
			return req.Body, nil
		},
		func(data []byte, _ Context) (echoResponse, error) {
			return echoResponse{Body: data}, nil
		},
	)
}

type fakeDispatcher struct {
	app   *auth.AppInfo
	store *keystore.Store

	sentCommand string
	sentBody    []byte
	sentProto   int32
	sentEncrypt packet.EncryptType

	reply *packet.SsoPacket
	err   error
}

func (d *fakeDispatcher) App() *auth.AppInfo     { return d.app }
func (d *fakeDispatcher) Store() *keystore.Store { return d.store }

func (d *fakeDispatcher) SendPacket(_ context.Context, command string, body []byte, protocol int32, encrypt packet.EncryptType) (*packet.SsoPacket, error) {
	d.sentCommand = command
	d.sentBody = body
	d.sentProto = protocol
	d.sentEncrypt = encrypt
	return d.reply, d.err
}

func newFakeDispatcher(p auth.Protocol) *fakeDispatcher {
	return &fakeDispatcher{app: auth.AppInfoFor(p), store: keystore.New()}
}

func TestSend_Typed(t *testing.T) {
	d := newFakeDispatcher(auth.ProtocolLinux)
	d.reply = &packet.SsoPacket{Seq: 1, Command: "Echo.Test", Data: []byte("pong")}

	resp, err := Send[echoRequest, echoResponse](context.Background(), d, echoRequest{Body: []byte("ping")})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(resp.Body) != "pong" {
		t.Errorf("resp = %q", resp.Body)
	}
	if d.sentCommand != "Echo.Test" || string(d.sentBody) != "ping" {
		t.Errorf("sent (%q, %q)", d.sentCommand, d.sentBody)
	}
	if d.sentProto != packet.ProtocolService || d.sentEncrypt != packet.EncryptD2Key {
		t.Errorf("sent metadata (%d, %d)", d.sentProto, d.sentEncrypt)
	}
}

func TestSend_ProtocolMask(t *testing.T) {
	d := newFakeDispatcher(auth.ProtocolAndroidPhone)
	// Echo.Test is registered for desktop flavors only.
	if _, err := Send[echoRequest, echoResponse](context.Background(), d, echoRequest{}); err == nil {
		t.Error("android flavor should not resolve a desktop-only entry")
	}
}

func TestSend_MismatchedResponseType(t *testing.T) {
	d := newFakeDispatcher(auth.ProtocolLinux)
	d.reply = &packet.SsoPacket{}
	if _, err := Send[echoRequest, AliveResponse](context.Background(), d, echoRequest{}); err == nil {
		t.Error("wrong response type parameter should fail before sending")
	}
}

func TestLookupCommand(t *testing.T) {
	e := LookupCommand("Heartbeat.Alive", auth.ProtocolLinux)
	if e == nil {
		t.Fatal("alive entry missing")
	}
	if !e.SuppressLog {
		t.Error("alive should suppress logs")
	}
	if e.EncryptType != packet.EncryptD2Key {
		t.Errorf("encrypt = %d", e.EncryptType)
	}
	if LookupCommand("No.Such.Command", auth.ProtocolLinux) != nil {
		t.Error("unknown command should return nil")
	}
}

func TestAliveService_Body(t *testing.T) {
	d := newFakeDispatcher(auth.ProtocolLinux)
	d.reply = &packet.SsoPacket{Command: "Heartbeat.Alive"}

	if _, err := Send[AliveRequest, AliveResponse](context.Background(), d, AliveRequest{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(d.sentBody) != 4 {
		t.Errorf("alive body = %x", d.sentBody)
	}
	if d.sentCommand != "Heartbeat.Alive" {
		t.Errorf("command = %q", d.sentCommand)
	}
}

func TestKickService_Parse(t *testing.T) {
	body, err := proto.Marshal(&kickPush{
		Uin:     123,
		Title:   "Offline notice",
		Message: "Signed in elsewhere.",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	e := LookupCommand("trpc.qq_new_tech.status_svc.StatusService.KickNT", auth.ProtocolLinux)
	if e == nil {
		t.Fatal("kick entry missing")
	}
	v, err := e.Parse(body, newFakeDispatcher(auth.ProtocolLinux))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	kick, ok := v.(KickEvent)
	if !ok {
		t.Fatalf("parsed %T", v)
	}
	if kick.Uin != 123 || kick.Title != "Offline notice" {
		t.Errorf("kick = %+v", kick)
	}
}
