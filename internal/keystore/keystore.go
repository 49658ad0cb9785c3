// Package keystore holds the long-term and session-scoped secret material
// for one account. The store is guarded by a reader-writer lock; callers
// copy key material out and release the lock before doing anything that can
// block, since replies may themselves need the keystore.
package keystore

import (
	"crypto/rand"
	"encoding/json"
	"os"
	"sync"

	"github.com/nanoim/botcore/internal/auth"
)

// WLoginSigs is the bag of tickets and keys issued during wt-login. The
// fixed-size slots are exactly 16 bytes; tickets (A1, A2, D2, ...) are
// server-sized.
type WLoginSigs struct {
	A1 []byte `json:"a1,omitempty"`
	A2 []byte `json:"a2,omitempty"`
	D2 []byte `json:"d2,omitempty"`

	A2Key     [16]byte `json:"a2_key"`
	D2Key     [16]byte `json:"d2_key"`
	TgtgtKey  [16]byte `json:"tgtgt_key"`
	RandomKey [16]byte `json:"random_key"`

	St                 []byte `json:"st,omitempty"`
	StKey              []byte `json:"st_key,omitempty"`
	StWeb              []byte `json:"st_web,omitempty"`
	WtSessionTicket    []byte `json:"wt_session_ticket,omitempty"`
	WtSessionTicketKey []byte `json:"wt_session_ticket_key,omitempty"`
	SuperKey           []byte `json:"super_key,omitempty"`
	SKey               []byte `json:"s_key,omitempty"`
	NoPicSig           []byte `json:"no_pic_sig,omitempty"`
	Ksid               []byte `json:"ksid,omitempty"`

	PsKeys map[string][]byte `json:"ps_keys,omitempty"`
}

// SessionState is ephemeral per-login state. None of it survives a Clear
// and none of it is serialized except the QR signature, which a restarted
// process may still poll on.
type SessionState struct {
	// ExchangeKey is the ECDH-derived secret of the current key exchange.
	ExchangeKey []byte `json:"-"`
	KeySig      []byte `json:"-"`

	QrSig []byte `json:"qr_sig,omitempty"`

	// UnusualSig carries the ticket for the unusual-device follow-up.
	UnusualSig []byte `json:"-"`

	TlvCache map[uint16][]byte `json:"-"`
	Cookies  map[string]string `json:"-"`
}

// Store is the mutable keystore shared across the bot. All access goes
// through the methods; the lock is internal.
type Store struct {
	mu sync.RWMutex

	uin uint64
	uid string

	device *auth.Device
	sigs   WLoginSigs
	sess   SessionState
}

// serialized mirrors Store for JSON persistence. ExchangeKey and the other
// session-only fields stay out by construction.
type serialized struct {
	Uin    uint64       `json:"uin,omitempty"`
	Uid    string       `json:"uid,omitempty"`
	Device *auth.Device `json:"device"`
	Sigs   WLoginSigs   `json:"sigs"`
	QrSig  []byte       `json:"qr_sig,omitempty"`
}

// New returns a Store with a fresh device identity and random key.
func New() *Store {
	s := &Store{device: auth.NewDevice()}
	s.resetSessionLocked()
	_, _ = rand.Read(s.sigs.RandomKey[:])
	return s
}

func (s *Store) resetSessionLocked() {
	s.sess = SessionState{
		TlvCache: make(map[uint16][]byte),
		Cookies:  make(map[string]string),
	}
}

// Uin returns the numeric account id, 0 when unknown.
func (s *Store) Uin() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uin
}

// SetUin records the numeric account id.
func (s *Store) SetUin(uin uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uin = uin
}

// Uid returns the opaque string id, empty when unknown.
func (s *Store) Uid() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uid
}

// SetUid records the opaque string id.
func (s *Store) SetUid(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uid = uid
}

// Device returns the device identity. The record is never mutated after
// construction, so sharing the pointer is safe.
func (s *Store) Device() *auth.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.device
}

// Sigs returns a copy of the current ticket bag.
func (s *Store) Sigs() WLoginSigs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sigs
}

// UpdateSigs applies fn to the ticket bag under the write lock.
func (s *Store) UpdateSigs(fn func(*WLoginSigs)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.sigs)
}

// Session returns a shallow copy of the session state.
func (s *Store) Session() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess
}

// UpdateSession applies fn to the session state under the write lock.
func (s *Store) UpdateSession(fn func(*SessionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.sess)
}

// D2Key copies out the 16-byte D2 key.
func (s *Store) D2Key() [16]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sigs.D2Key
}

// D2 copies out the D2 ticket.
func (s *Store) D2() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.sigs.D2...)
}

// A2 copies out the A2 ticket.
func (s *Store) A2() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.sigs.A2...)
}

// HasSession reports whether the store holds a usable D2 session.
func (s *Store) HasSession() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sigs.D2) > 0
}

// Clear wipes every session-scoped slot, zeroes the ticket bag and
// regenerates the random key. The device identity and account ids survive.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sigs = WLoginSigs{}
	_, _ = rand.Read(s.sigs.RandomKey[:])
	s.resetSessionLocked()
}

// MarshalJSON serializes the persistent subset of the store.
func (s *Store) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(serialized{
		Uin:    s.uin,
		Uid:    s.uid,
		Device: s.device,
		Sigs:   s.sigs,
		QrSig:  s.sess.QrSig,
	})
}

// UnmarshalJSON restores a store persisted by MarshalJSON.
func (s *Store) UnmarshalJSON(data []byte) error {
	var in serialized
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.uin = in.Uin
	s.uid = in.Uid
	s.device = in.Device
	if s.device == nil {
		s.device = auth.NewDevice()
	}
	s.sigs = in.Sigs
	s.resetSessionLocked()
	s.sess.QrSig = in.QrSig
	return nil
}

// Load reads a store from a JSON file.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := New()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes the store to a JSON file with owner-only permissions.
func (s *Store) Save(path string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
