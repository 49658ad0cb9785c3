package login

import (
	"context"
	"log/slog"

	"github.com/nanoim/botcore/internal/binary"
	"github.com/nanoim/botcore/internal/errs"
	"github.com/nanoim/botcore/internal/keystore"
	"github.com/nanoim/botcore/internal/oicq"
	"github.com/nanoim/botcore/internal/packet"
	"github.com/nanoim/botcore/internal/tlv"
)

// trans_emp sub-commands.
const (
	transEmpFetch = 0x31
	transEmpQuery = 0x12
)

// QRStatus is the poll outcome byte of trans_emp 0x12.
type QRStatus uint8

const (
	QRConfirmed      QRStatus = 0
	QRExpired        QRStatus = 17
	QRWaitingScan    QRStatus = 48
	QRWaitingConfirm QRStatus = 53
	QRCanceled       QRStatus = 54
)

// String names the status for logs.
func (s QRStatus) String() string {
	switch s {
	case QRConfirmed:
		return "confirmed"
	case QRExpired:
		return "expired"
	case QRWaitingScan:
		return "awaiting scan"
	case QRWaitingConfirm:
		return "scanned, awaiting confirm"
	case QRCanceled:
		return "canceled"
	}
	return "unknown"
}

// QRCode is the fetched code: the URL shown to the operator and the
// rendered PNG when the server sent one.
type QRCode struct {
	URL string
	PNG []byte
}

// QRCodeFetchedEvent announces a fresh QR code awaiting scan.
type QRCodeFetchedEvent struct {
	URL string
}

// FetchQRCode starts the QR flow: it requests a code, stores the QR
// signature and the replacement tgtgt key, and leaves the machine awaiting
// the scan.
func (m *Machine) FetchQRCode(ctx context.Context) (*QRCode, error) {
	src := m.source()

	tlvs := tlv.NewBuilder()
	src.T016(tlvs)
	src.T01B(tlvs)
	src.T01D(tlvs)
	src.T033(tlvs)
	src.T035(tlvs)
	src.T066(tlvs)
	src.TD1(tlvs)

	body := binary.NewWriterF(func(w *binary.Writer) {
		w.WriteU16(transEmpFetch)
		w.WriteU32(src.App.AppIDQrcode)
		w.WriteU64(0)
		w.WriteU8(8)
		w.WriteLenBytes(binary.PrefixU16, nil)
		w.WriteBytes(tlvs.Bytes())
	})

	msg, err := m.sendTransEmp(ctx, body)
	if err != nil {
		return nil, err
	}

	r := binary.NewReader(msg)
	if sub := r.ReadU16(); r.Err() == nil && sub != transEmpFetch {
		return nil, errs.Parse("trans_emp: sub-command %#x, want 0x31", sub)
	}
	if ret := r.ReadU8(); r.Err() == nil && ret != 0 {
		return nil, errs.Login(ret, "qr fetch rejected", "")
	}
	qrSig := r.ReadLenBytes(binary.PrefixU16)
	url := r.ReadLenString(binary.PrefixU16)
	values, err := tlv.Parse(r)
	if err != nil {
		return nil, err
	}

	store := m.disp.Store()
	store.UpdateSession(func(s *keystore.SessionState) {
		s.QrSig = qrSig
	})
	if v, ok := values.Get(0x01e); ok {
		key, err := tlv.ParseT01E(v)
		if err != nil {
			return nil, err
		}
		store.UpdateSigs(func(w *keystore.WLoginSigs) {
			w.TgtgtKey = key
		})
	}

	code := &QRCode{URL: url}
	if v, ok := values.Get(0x017); ok {
		code.PNG = v
	}
	m.log.Info("qr code fetched", slog.String("url", url))
	m.bus.Publish(QRCodeFetchedEvent{URL: url})
	return code, nil
}

// QueryQRCodeStatus polls trans_emp 0x12. On confirmation it records the
// uin and the temporary tickets needed for the exchange step.
func (m *Machine) QueryQRCodeStatus(ctx context.Context) (QRStatus, error) {
	store := m.disp.Store()
	sess := store.Session()
	if len(sess.QrSig) == 0 {
		return 0, errs.Build("login: no qr signature; fetch a code first")
	}

	body := binary.NewWriterF(func(w *binary.Writer) {
		w.WriteU16(transEmpQuery)
		w.WriteLenBytes(binary.PrefixU16, sess.QrSig)
	})

	msg, err := m.sendTransEmp(ctx, body)
	if err != nil {
		return 0, err
	}

	r := binary.NewReader(msg)
	if sub := r.ReadU16(); r.Err() == nil && sub != transEmpQuery {
		return 0, errs.Parse("trans_emp: sub-command %#x, want 0x12", sub)
	}
	status := QRStatus(r.ReadU8())
	if err := r.Err(); err != nil {
		return 0, errs.Parse("trans_emp poll: %v", err)
	}
	if status != QRConfirmed {
		m.log.Debug("qr poll", slog.String("status", status.String()))
		return status, nil
	}

	uin := r.ReadU64()
	values, err := tlv.Parse(r)
	if err != nil {
		return 0, err
	}
	store.SetUin(uin)
	store.UpdateSigs(func(w *keystore.WLoginSigs) {
		if v, ok := values.Get(0x018); ok {
			w.A1 = v
		}
		if v, ok := values.Get(0x01e); ok && len(v) == 16 {
			copy(w.TgtgtKey[:], v)
		}
	})
	m.log.Info("qr code confirmed", slog.Uint64("uin", uin))
	return QRConfirmed, nil
}

// QRCodeLogin runs the exchange_emp 0x0f round trip after a confirmed
// scan, materialising the full ticket set.
func (m *Machine) QRCodeLogin(ctx context.Context) error {
	if len(m.disp.Store().Sigs().A1) == 0 {
		return errs.Build("login: no temporary ticket; poll until confirmed first")
	}
	return m.exchangeTickets(ctx)
}

// ResumeSession refreshes the ticket set from the stored A1 after a
// reconnect. The reconnect monitor drives it when auto re-login is on.
func (m *Machine) ResumeSession(ctx context.Context) error {
	if len(m.disp.Store().Sigs().A1) == 0 {
		return errs.Build("login: no stored session to resume")
	}
	return m.exchangeTickets(ctx)
}

// exchangeTickets is the exchange_emp round trip shared by the QR flow and
// session resumption; both trade the A1 ticket for a full set.
func (m *Machine) exchangeTickets(ctx context.Context) error {
	store := m.disp.Store()

	src := m.source()
	b := tlv.NewCommandBuilder(cmdExchangeEmp)
	src.T018(b)
	src.T100(b)
	b.TlvBytes(0x10a, store.Sigs().A1)
	src.T116(b)
	src.T107(b)
	src.T142(b)
	src.T144(b)
	src.T145(b)
	src.T147(b)
	src.T016(b)
	src.T177(b)
	src.T511(b, webDomains)
	src.T52D(b)

	resp, err := m.sendWtLogin(ctx, "wtlogin.exchange_emp", oicqCmdLogin, oicq.EmEcdh, b.Bytes())
	if err != nil {
		return err
	}
	return m.advance(ctx, resp)
}

// sendTransEmp seals a trans_emp body and returns the opened reply body.
func (m *Machine) sendTransEmp(ctx context.Context, body []byte) ([]byte, error) {
	store := m.disp.Store()
	frame, err := m.codec.Marshal(&oicq.Message{
		Uin:     uint32(store.Uin()),
		Command: oicqCmdTransEmp,
		Method:  oicq.EmEcdh,
		Body:    body,
	})
	if err != nil {
		return nil, err
	}
	p, err := m.disp.SendPacket(ctx, "wtlogin.trans_emp", frame, packet.ProtocolLogin, packet.EncryptEmptyKey)
	if err != nil {
		return nil, err
	}
	msg, err := m.codec.Unmarshal(p.Data, nil)
	if err != nil {
		return nil, err
	}
	return msg.Body, nil
}
