package login

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"log/slog"

	"github.com/nanoim/botcore/internal/binary"
	"github.com/nanoim/botcore/internal/errs"
	"github.com/nanoim/botcore/internal/event"
	"github.com/nanoim/botcore/internal/keystore"
	"github.com/nanoim/botcore/internal/oicq"
	"github.com/nanoim/botcore/internal/packet"
	"github.com/nanoim/botcore/internal/service"
	"github.com/nanoim/botcore/internal/tlv"
)

// wt-login sub-commands.
const (
	cmdPasswordLogin = 0x09
	cmdSubmitCaptcha = 0x02
	cmdSubmitSms     = 0x07
	cmdFetchSms      = 0x08
	cmdExchangeEmp   = 0x0f
	cmdDeviceLock    = 0x14
)

// oicq outer commands.
const (
	oicqCmdLogin    = 0x0810
	oicqCmdTransEmp = 0x0812
)

// SuccessEvent is published when a login materialises a full ticket set.
type SuccessEvent struct {
	Uin  uint64
	Uid  string
	Nick string
}

// CaptchaRequiredEvent asks the operator for a slider-captcha ticket.
type CaptchaRequiredEvent struct {
	VerifyURL string
}

// SmsRequiredEvent asks the operator for an SMS code.
type SmsRequiredEvent struct {
	Phone string
}

// FailureEvent reports a terminal login failure.
type FailureEvent struct {
	State   State
	Title   string
	Message string
}

// Machine runs wt-login exchanges over an established socket. One machine
// serves one bot.
type Machine struct {
	disp  service.Dispatcher
	codec *oicq.Codec
	bus   *event.Bus
	log   *slog.Logger
}

// NewMachine wires a login machine to the bot's dispatcher, wt-login codec
// and event bus.
func NewMachine(disp service.Dispatcher, codec *oicq.Codec, bus *event.Bus, log *slog.Logger) *Machine {
	return &Machine{
		disp:  disp,
		codec: codec,
		bus:   bus,
		log:   log.With(slog.String("component", "login")),
	}
}

func (m *Machine) source() *tlv.Source {
	store := m.disp.Store()
	return &tlv.Source{
		App:      m.disp.App(),
		Device:   store.Device(),
		Uin:      store.Uin(),
		Uid:      store.Uid(),
		TgtgtKey: store.Sigs().TgtgtKey,
	}
}

// response is one parsed wt-login reply.
type response struct {
	SubCommand uint16
	State      State
	Values     tlv.Values
}

// sendWtLogin seals body into the oicq envelope, rides it over the given
// service command and parses the reply into (sub-command, state, TLVs).
func (m *Machine) sendWtLogin(ctx context.Context, command string, oicqCmd uint16, method oicq.EncryptionMethod, body []byte) (*response, error) {
	store := m.disp.Store()
	frame, err := m.codec.Marshal(&oicq.Message{
		Uin:     uint32(store.Uin()),
		Command: oicqCmd,
		Method:  method,
		Body:    body,
	})
	if err != nil {
		return nil, err
	}

	p, err := m.disp.SendPacket(ctx, command, frame, packet.ProtocolLogin, packet.EncryptEmptyKey)
	if err != nil {
		return nil, err
	}

	var sessionKey []byte
	if ticket := store.Sigs().WtSessionTicketKey; len(ticket) >= 16 {
		sessionKey = ticket
	}
	msg, err := m.codec.Unmarshal(p.Data, sessionKey)
	if err != nil {
		return nil, err
	}

	r := binary.NewReader(msg.Body)
	resp := &response{
		SubCommand: r.ReadU16(),
		State:      State(r.ReadU8()),
	}
	values, err := tlv.Parse(r)
	if err != nil {
		return nil, err
	}
	resp.Values = values
	return resp, nil
}

// PasswordLogin runs the single-round password flow. Follow-up states
// (CAPTCHA, SMS, device lock) surface as events plus a LoginError carrying
// the state; the caller resumes with SubmitCaptcha / SubmitSms.
func (m *Machine) PasswordLogin(ctx context.Context, passwordMD5 [16]byte) error {
	store := m.disp.Store()
	store.UpdateSigs(func(w *keystore.WLoginSigs) {
		_, _ = rand.Read(w.TgtgtKey[:])
	})

	src := m.source()
	b := tlv.NewCommandBuilder(cmdPasswordLogin)
	src.T018(b)
	src.T106(b, passwordMD5)
	src.T116(b)
	src.T100(b)
	src.T107(b)
	src.T142(b)
	src.T144(b)
	src.T145(b)
	src.T147(b)
	src.T154(b, 0)
	src.T141(b)
	src.T177(b)
	src.T191(b, 0)
	src.T511(b, webDomains)
	src.T516(b)
	src.T521(b, 0x13, "basicim")
	src.T525(b)
	src.T318(b)

	resp, err := m.sendWtLogin(ctx, "wtlogin.login", oicqCmdLogin, oicq.EmEcdh, b.Bytes())
	if err != nil {
		return err
	}
	return m.advance(ctx, resp)
}

// webDomains are the sites per-domain tickets are requested for.
var webDomains = []string{
	"office.qq.com",
	"qun.qq.com",
	"gamecenter.qq.com",
	"docs.qq.com",
	"mail.qq.com",
	"tim.qq.com",
	"ti.qq.com",
	"vip.qq.com",
	"tenpay.com",
	"qqweb.qq.com",
	"qzone.qq.com",
	"mma.qq.com",
	"game.qq.com",
	"openmobile.qq.com",
	"connect.qq.com",
}

// advance inspects one login response and either finishes, records the
// follow-up material, or fails.
func (m *Machine) advance(ctx context.Context, resp *response) error {
	store := m.disp.Store()

	// The session-continuation TLV rides every follow-up request.
	if v, ok := resp.Values.Get(0x104); ok {
		store.UpdateSession(func(s *keystore.SessionState) {
			s.TlvCache[0x104] = v
		})
	}

	switch resp.State {
	case StateSuccess:
		return m.finish(resp)

	case StateCaptcha:
		verifyURL := string(resp.Values[0x192])
		m.bus.Publish(CaptchaRequiredEvent{VerifyURL: verifyURL})
		m.log.Info("captcha required", slog.String("url", verifyURL))
		return errs.Login(uint8(resp.State), "captcha required", verifyURL)

	case StateSmsRequired, StateDeviceLockSms:
		if v, ok := resp.Values.Get(0x174); ok {
			store.UpdateSession(func(s *keystore.SessionState) {
				s.TlvCache[0x174] = v
			})
		}
		phone := string(resp.Values[0x178])
		m.bus.Publish(SmsRequiredEvent{Phone: phone})
		m.log.Info("sms verification required", slog.String("phone", phone))
		return errs.Login(uint8(resp.State), "sms required", phone)

	case StateDeviceLock:
		m.log.Info("device lock, running unlock round-trip")
		return m.deviceLock(ctx)
	}

	info := tlv.ErrorInfo{Title: resp.State.String()}
	if v, ok := resp.Values.Get(0x146); ok {
		if parsed, err := tlv.ParseT146(v); err == nil {
			info = parsed
		}
	}
	m.bus.Publish(FailureEvent{State: resp.State, Title: info.Title, Message: info.Message})
	m.log.Error("login failed",
		slog.String("state", resp.State.String()),
		slog.String("title", info.Title),
		slog.String("message", info.Message))
	return errs.Login(uint8(resp.State), info.Title, info.Message)
}

// finish opens TLV 0x119, persists the tickets and publishes the success
// event. Both sub-commands the machine issues (password login and the 0x0f
// exchange) seal 0x119 with the tgtgt key.
func (m *Machine) finish(resp *response) error {
	store := m.disp.Store()

	sealed, ok := resp.Values.Get(0x119)
	if !ok {
		return errs.Parse("login: success response without tlv 0x119")
	}
	values, err := tlv.DecryptT119(sealed, store.Sigs().TgtgtKey)
	if err != nil {
		return err
	}
	info, err := applyTickets(store, values)
	if err != nil {
		return err
	}
	store.UpdateSession(func(s *keystore.SessionState) {
		s.TlvCache = make(map[uint16][]byte)
	})

	m.log.Info("login succeeded",
		slog.Uint64("uin", store.Uin()),
		slog.String("nick", info.Nick))
	m.bus.Publish(SuccessEvent{Uin: store.Uin(), Uid: store.Uid(), Nick: info.Nick})
	return nil
}

// cachedT104 returns the session-continuation TLV follow-ups must echo.
func (m *Machine) cachedT104() ([]byte, error) {
	sess := m.disp.Store().Session()
	v, ok := sess.TlvCache[0x104]
	if !ok {
		return nil, errs.Build("login: no pending follow-up session")
	}
	return v, nil
}

// SubmitCaptcha resumes a state-2 login with the slider ticket.
func (m *Machine) SubmitCaptcha(ctx context.Context, ticket string) error {
	t104, err := m.cachedT104()
	if err != nil {
		return err
	}

	src := m.source()
	b := tlv.NewCommandBuilder(cmdSubmitCaptcha)
	b.TlvBytes(0x193, []byte(ticket))
	b.TlvBytes(0x104, t104)
	src.T116(b)

	resp, err := m.sendWtLogin(ctx, "wtlogin.login", oicqCmdLogin, oicq.EmEcdh, b.Bytes())
	if err != nil {
		return err
	}
	return m.advance(ctx, resp)
}

// RequestSmsCode asks the server to text the verification code.
func (m *Machine) RequestSmsCode(ctx context.Context) error {
	t104, err := m.cachedT104()
	if err != nil {
		return err
	}
	sess := m.disp.Store().Session()

	src := m.source()
	b := tlv.NewCommandBuilder(cmdFetchSms)
	b.TlvBytes(0x104, t104)
	b.TlvBytes(0x174, sess.TlvCache[0x174])
	src.T116(b)

	resp, err := m.sendWtLogin(ctx, "wtlogin.login", oicqCmdLogin, oicq.EmEcdh, b.Bytes())
	if err != nil {
		return err
	}
	if resp.State != StateSmsRequired && resp.State != StateSuccess {
		return m.advance(ctx, resp)
	}
	return nil
}

// SubmitSms resumes a state-160 login with the received code.
func (m *Machine) SubmitSms(ctx context.Context, code string) error {
	t104, err := m.cachedT104()
	if err != nil {
		return err
	}
	sess := m.disp.Store().Session()

	src := m.source()
	b := tlv.NewCommandBuilder(cmdSubmitSms)
	b.TlvBytes(0x104, t104)
	b.TlvBytes(0x174, sess.TlvCache[0x174])
	b.TlvBytes(0x17c, []byte(code))
	src.T116(b)

	resp, err := m.sendWtLogin(ctx, "wtlogin.login", oicqCmdLogin, oicq.EmEcdh, b.Bytes())
	if err != nil {
		return err
	}
	return m.advance(ctx, resp)
}

// deviceLock answers a state-204 response with the device-binding proof.
func (m *Machine) deviceLock(ctx context.Context) error {
	t104, err := m.cachedT104()
	if err != nil {
		return err
	}
	store := m.disp.Store()
	device := store.Device()
	random := store.Sigs().RandomKey

	proof := md5.Sum(append(device.GUID[:], random[:]...))

	src := m.source()
	b := tlv.NewCommandBuilder(cmdDeviceLock)
	b.TlvBytes(0x104, t104)
	b.TlvBytes(0x401, proof[:])
	src.T116(b)

	resp, err := m.sendWtLogin(ctx, "wtlogin.login", oicqCmdLogin, oicq.EmEcdh, b.Bytes())
	if err != nil {
		return err
	}
	if resp.State == StateDeviceLock {
		// A second 204 means the proof was rejected; stop rather than loop.
		return errs.Login(uint8(resp.State), "device lock", "unlock rejected")
	}
	return m.advance(ctx, resp)
}
