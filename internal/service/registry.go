// Package service is the registry of typed request/response services and
// the dispatch glue that turns a typed request into wire bytes and a
// correlated reply back into a typed response.
//
// Entries are registered from init functions through a latched table; both
// lookup tables are immutable once the first lookup runs.
package service

import (
	"context"
	"reflect"
	"sync"

	"github.com/nanoim/botcore/internal/auth"
	"github.com/nanoim/botcore/internal/errs"
	"github.com/nanoim/botcore/internal/keystore"
	"github.com/nanoim/botcore/internal/packet"
)

// Context is the slice of the bot the build and parse closures may touch.
// The bot root implements it.
type Context interface {
	App() *auth.AppInfo
	Store() *keystore.Store
}

// Dispatcher extends Context with the ability to send a packet and await
// its reply.
type Dispatcher interface {
	Context
	SendPacket(ctx context.Context, command string, body []byte, protocol int32, encrypt packet.EncryptType) (*packet.SsoPacket, error)
}

// Entry describes one registered service.
type Entry struct {
	Command     string
	RequestType int32
	EncryptType packet.EncryptType
	// SuppressLog marks chatty services (heartbeats) whose traffic should
	// stay out of debug logs.
	SuppressLog bool

	Protocols auth.Protocol

	requestID  reflect.Type
	responseID reflect.Type

	build func(req any, c Context) ([]byte, error)
	parse func(data []byte, c Context) (any, error)
}

// The maps are initialized in the declaration, not an init function, so
// they exist before Register runs from other files' init functions.
var registry = struct {
	mu        sync.Mutex
	sealed    bool
	byCommand map[string][]*Entry
	byRequest map[reflect.Type][]*Entry
}{
	byCommand: make(map[string][]*Entry),
	byRequest: make(map[reflect.Type][]*Entry),
}

// Register adds one service to the tables. It is called from init
// functions; registering after the first lookup panics.
func Register[Req any, Resp any](
	command string,
	requestType int32,
	encrypt packet.EncryptType,
	protocols auth.Protocol,
	suppressLog bool,
	build func(req Req, c Context) ([]byte, error),
	parse func(data []byte, c Context) (Resp, error),
) {
	e := &Entry{
		Command:     command,
		RequestType: requestType,
		EncryptType: encrypt,
		SuppressLog: suppressLog,
		Protocols:   protocols,
		requestID:   reflect.TypeOf((*Req)(nil)).Elem(),
		responseID:  reflect.TypeOf((*Resp)(nil)).Elem(),
		build: func(req any, c Context) ([]byte, error) {
			return build(req.(Req), c)
		},
		parse: func(data []byte, c Context) (any, error) {
			return parse(data, c)
		},
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()
	if registry.sealed {
		panic("service: Register called after first lookup")
	}
	registry.byCommand[e.Command] = append(registry.byCommand[e.Command], e)
	registry.byRequest[e.requestID] = append(registry.byRequest[e.requestID], e)
}

func seal() {
	registry.mu.Lock()
	registry.sealed = true
	registry.mu.Unlock()
}

var sealOnce sync.Once

// LookupCommand finds the first entry for command serving flavor p. Inbound
// push routing uses it.
func LookupCommand(command string, p auth.Protocol) *Entry {
	sealOnce.Do(seal)
	for _, e := range registry.byCommand[command] {
		if e.Protocols&p != 0 {
			return e
		}
	}
	return nil
}

func lookupRequest(id reflect.Type, p auth.Protocol) *Entry {
	sealOnce.Do(seal)
	for _, e := range registry.byRequest[id] {
		if e.Protocols&p != 0 {
			return e
		}
	}
	return nil
}

// Build runs the entry's build closure.
func (e *Entry) Build(req any, c Context) ([]byte, error) { return e.build(req, c) }

// Parse runs the entry's parse closure.
func (e *Entry) Parse(data []byte, c Context) (any, error) { return e.parse(data, c) }

// Send dispatches a typed request and returns the typed response. The
// response type is fixed at registration, so the assertion cannot fail for
// a correctly registered pair.
func Send[Req any, Resp any](ctx context.Context, d Dispatcher, req Req) (Resp, error) {
	var zero Resp

	entry := lookupRequest(reflect.TypeOf((*Req)(nil)).Elem(), d.App().Protocol)
	if entry == nil {
		return zero, errs.Build("service: no entry for %T under %s", req, d.App().Protocol)
	}
	if want := reflect.TypeOf((*Resp)(nil)).Elem(); entry.responseID != want {
		return zero, errs.Build("service: %s responds with %s, not %s", entry.Command, entry.responseID, want)
	}

	body, err := entry.Build(req, d)
	if err != nil {
		return zero, err
	}
	p, err := d.SendPacket(ctx, entry.Command, body, entry.RequestType, entry.EncryptType)
	if err != nil {
		return zero, err
	}
	v, err := entry.Parse(p.Data, d)
	if err != nil {
		return zero, err
	}
	return v.(Resp), nil
}
