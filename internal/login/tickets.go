package login

import (
	"github.com/nanoim/botcore/internal/keystore"
	"github.com/nanoim/botcore/internal/tlv"
)

// applyTickets copies the ticket TLVs of a decrypted 0x119 collection into
// the keystore. Missing tags leave the existing slots untouched; servers
// send partial collections on ticket refresh.
func applyTickets(store *keystore.Store, values tlv.Values) (tlv.UserInfo, error) {
	var info tlv.UserInfo

	store.UpdateSigs(func(w *keystore.WLoginSigs) {
		if v, ok := values.Get(0x106); ok {
			w.A1 = v
		}
		if v, ok := values.Get(0x10a); ok {
			w.A2 = v
		}
		if v, ok := values.Get(0x10d); ok && len(v) == 16 {
			copy(w.A2Key[:], v)
		}
		if v, ok := values.Get(0x143); ok {
			w.D2 = v
		}
		if v, ok := values.Get(0x305); ok && len(v) == 16 {
			copy(w.D2Key[:], v)
		}
		if v, ok := values.Get(0x10e); ok {
			w.StKey = v
		}
		if v, ok := values.Get(0x114); ok {
			w.St = v
		}
		if v, ok := values.Get(0x103); ok {
			w.StWeb = v
		}
		if v, ok := values.Get(0x120); ok {
			w.SKey = v
		}
		if v, ok := values.Get(0x16a); ok {
			w.NoPicSig = v
		}
		if v, ok := values.Get(0x16d); ok {
			w.SuperKey = v
		}
		if v, ok := values.Get(0x108); ok {
			w.Ksid = v
		}
		if v, ok := values.Get(0x133); ok {
			w.WtSessionTicket = v
		}
		if v, ok := values.Get(0x134); ok {
			w.WtSessionTicketKey = v
		}
	})

	if v, ok := values.Get(0x512); ok {
		psKeys, err := tlv.ParseT512(v)
		if err != nil {
			return info, err
		}
		store.UpdateSigs(func(w *keystore.WLoginSigs) {
			if w.PsKeys == nil {
				w.PsKeys = make(map[string][]byte, len(psKeys))
			}
			for domain, key := range psKeys {
				w.PsKeys[domain] = key.PsKey
			}
		})
	}

	if v, ok := values.Get(0x543); ok {
		uid, err := tlv.ParseT543(v)
		if err != nil {
			return info, err
		}
		store.SetUid(uid)
	}

	if v, ok := values.Get(0x11a); ok {
		parsed, err := tlv.ParseT11A(v)
		if err != nil {
			return info, err
		}
		info = parsed
	}
	return info, nil
}
