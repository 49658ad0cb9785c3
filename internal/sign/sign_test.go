package sign

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNeedsSign(t *testing.T) {
	if !NeedsSign("wtlogin.login") {
		t.Error("wtlogin.login should be whitelisted")
	}
	if !NeedsSign("MessageSvc.PbSendMsg") {
		t.Error("MessageSvc.PbSendMsg should be whitelisted")
	}
	if NeedsSign("Heartbeat.Alive") {
		t.Error("Heartbeat.Alive should not be whitelisted")
	}
}

func TestNoopProvider(t *testing.T) {
	r, err := NoopProvider{}.Sign(context.Background(), "wtlogin.login", 1, []byte("x"))
	if err != nil || r != nil {
		t.Errorf("noop = (%v, %v)", r, err)
	}
}

func TestHTTPProvider_SkipsUnlistedCommands(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unlisted command should not hit the server")
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r, err := p.Sign(context.Background(), "Heartbeat.Alive", 1, nil)
	if err != nil || r != nil {
		t.Errorf("Sign = (%v, %v)", r, err)
	}
}

func TestHTTPProvider_Sign(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var req signRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			t.Errorf("request body: %v", err)
		}
		if req.Cmd != "wtlogin.login" || req.Seq != 7 {
			t.Errorf("request = %+v", req)
		}
		if req.Src != hex.EncodeToString([]byte("payload")) {
			t.Errorf("src = %q", req.Src)
		}
		io.WriteString(w, `{"value":{"sign":"aabb","token":"cc","extra":""}}`)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r, err := p.Sign(context.Background(), "wtlogin.login", 7, []byte("payload"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !bytes.Equal(r.Sign, []byte{0xaa, 0xbb}) {
		t.Errorf("sign = %x", r.Sign)
	}
	if !bytes.Equal(r.Token, []byte{0xcc}) {
		t.Errorf("token = %x", r.Token)
	}
	if r.Extra != nil {
		t.Errorf("extra = %x", r.Extra)
	}
}

func TestHTTPProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := p.Sign(context.Background(), "wtlogin.login", 1, nil); err == nil {
		t.Error("5xx should surface an error")
	}
}
