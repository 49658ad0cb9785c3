// Package sign abstracts the external packet-signing service some server
// commands require. The default provider forwards whitelisted commands to an
// HTTP endpoint; desktop flavors that do not need signing use the no-op
// provider.
package sign

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nanoim/botcore/internal/errs"
)

// Result is one signature triple. A nil *Result means the command does not
// need signing.
type Result struct {
	Sign  []byte
	Token []byte
	Extra []byte
}

// Provider produces signatures for outbound packets.
type Provider interface {
	Sign(ctx context.Context, command string, seq uint32, body []byte) (*Result, error)
}

// NoopProvider never signs anything.
type NoopProvider struct{}

func (NoopProvider) Sign(context.Context, string, uint32, []byte) (*Result, error) {
	return nil, nil
}

// AndroidProvider is the placeholder for Android flavors, whose signing
// runs in-process elsewhere. It reports every command as unsigned.
type AndroidProvider struct{}

func (AndroidProvider) Sign(context.Context, string, uint32, []byte) (*Result, error) {
	return nil, nil
}

// signedCommands is the closed set of commands the sign server covers.
// Anything else goes out unsigned.
var signedCommands = map[string]struct{}{
	"trpc.o3.ecdh_access.EcdhAccess.SsoEstablishShareKey":              {},
	"trpc.o3.ecdh_access.EcdhAccess.SsoSecureAccess":                   {},
	"trpc.o3.report.Report.SsoReport":                                  {},
	"MessageSvc.PbSendMsg":                                             {},
	"wtlogin.trans_emp":                                                {},
	"wtlogin.login":                                                    {},
	"trpc.login.ecdh.EcdhService.SsoKeyExchangeLogin":                  {},
	"trpc.login.ecdh.EcdhService.SsoNTLoginPasswordLogin":              {},
	"trpc.login.ecdh.EcdhService.SsoNTLoginEasyLogin":                  {},
	"trpc.login.ecdh.EcdhService.SsoNTLoginUnusualDeviceLogin":         {},
	"trpc.login.ecdh.EcdhService.SsoNTLoginPasswordLoginNewDevice":     {},
	"trpc.login.ecdh.EcdhService.SsoNTLoginPasswordLoginUnusualDevice": {},
	"OidbSvcTrpcTcp.0x11ec_1":                                          {},
	"OidbSvcTrpcTcp.0x758_1":                                           {},
	"OidbSvcTrpcTcp.0x7c2_5":                                           {},
	"OidbSvcTrpcTcp.0x10db_1":                                          {},
	"OidbSvcTrpcTcp.0x8a1_7":                                           {},
	"OidbSvcTrpcTcp.0x89a_0":                                           {},
	"OidbSvcTrpcTcp.0x89a_15":                                          {},
	"OidbSvcTrpcTcp.0x88d_0":                                           {},
	"OidbSvcTrpcTcp.0x88d_14":                                          {},
	"OidbSvcTrpcTcp.0x112a_1":                                          {},
	"OidbSvcTrpcTcp.0x587_74":                                          {},
	"OidbSvcTrpcTcp.0x1b14_1":                                          {},
	"OidbSvcTrpcTcp.0x1b14_2":                                          {},
	"OidbSvcTrpcTcp.0x1b14_3":                                          {},
	"OidbSvcTrpcTcp.0x1b14_4":                                          {},
	"OidbSvcTrpcTcp.0x1e5_1":                                           {},
	"OidbSvcTrpcTcp.0x1e5_2":                                           {},
	"OidbSvcTrpcTcp.0x6d9_4":                                           {},
	"OidbSvcTrpcTcp.0x9389_1":                                          {},
	"ProfileService.getGroupInfoReq":                                   {},
	"ProfileService.GroupMngReq":                                       {},
	"FriendList.addFriend":                                             {},
	"FriendList.AddFriendReq":                                          {},
	"QQConnectLogin.pre_auth_pc":                                       {},
	"QQConnectLogin.auth_pc":                                           {},
}

// NeedsSign reports whether command is in the sign-server whitelist.
func NeedsSign(command string) bool {
	_, ok := signedCommands[command]
	return ok
}

// HTTPProvider asks an external sign server over HTTP. It is the default
// for desktop flavors.
type HTTPProvider struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

// NewHTTPProvider builds a provider against the given sign-server URL.
func NewHTTPProvider(url string, log *slog.Logger) *HTTPProvider {
	return &HTTPProvider{
		url:    url,
		client: &http.Client{Timeout: 20 * time.Second},
		log:    log.With(slog.String("component", "sign")),
	}
}

type signRequest struct {
	Cmd string `json:"cmd"`
	Seq uint32 `json:"seq"`
	Src string `json:"src"`
}

// Sign posts the command to the sign server when whitelisted. Unsigned
// commands return (nil, nil) without a network round trip.
func (p *HTTPProvider) Sign(ctx context.Context, command string, seq uint32, body []byte) (*Result, error) {
	if !NeedsSign(command) {
		return nil, nil
	}

	payload, err := json.Marshal(signRequest{
		Cmd: command,
		Seq: seq,
		Src: hex.EncodeToString(body),
	})
	if err != nil {
		return nil, errs.Build("sign request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, errs.Build("sign request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errs.NetworkWrap(err, "sign server")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errs.Network("sign server returned %s", resp.Status)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.NetworkWrap(err, "sign server body")
	}

	value := gjson.ParseBytes(raw).Get("value")
	if !value.Exists() {
		return nil, errs.Parse("sign server response has no value block")
	}
	result := &Result{
		Sign:  decodeHexField(value.Get("sign")),
		Token: decodeHexField(value.Get("token")),
		Extra: decodeHexField(value.Get("extra")),
	}
	p.log.Debug("signed packet",
		slog.String("command", command),
		slog.Uint64("seq", uint64(seq)),
		slog.Int("sign_len", len(result.Sign)))
	return result, nil
}

func decodeHexField(v gjson.Result) []byte {
	if !v.Exists() || v.String() == "" {
		return nil
	}
	b, err := hex.DecodeString(v.String())
	if err != nil {
		return nil
	}
	return b
}

// String describes the provider for startup logs.
func (p *HTTPProvider) String() string { return fmt.Sprintf("http sign provider (%s)", p.url) }
