// Package errs defines the closed error taxonomy used by the bot core.
//
// Parse and build errors surface to the caller of a typed dispatch and do
// not touch the connection. Network errors mark the socket disconnected and
// fail every pending request. Protocol and login errors are terminal for the
// operation that produced them; the session itself stays up.
package errs

import "fmt"

// NetworkError covers socket-level failures, dial failures and closed
// reply channels.
type NetworkError struct {
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("network: %s: %v", e.Message, e.Err)
	}
	return "network: " + e.Message
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Network builds a NetworkError with a formatted message.
func Network(format string, args ...any) error {
	return &NetworkError{Message: fmt.Sprintf(format, args...)}
}

// NetworkWrap builds a NetworkError wrapping an underlying error.
func NetworkWrap(err error, message string) error {
	return &NetworkError{Message: message, Err: err}
}

// ParseError covers any malformed field encountered while decoding.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string { return "parse: " + e.Message }

// Parse builds a ParseError with a formatted message.
func Parse(format string, args ...any) error {
	return &ParseError{Message: fmt.Sprintf(format, args...)}
}

// BuildError covers precondition violations while encoding, such as a
// missing session key.
type BuildError struct {
	Message string
}

func (e *BuildError) Error() string { return "build: " + e.Message }

// Build builds a BuildError with a formatted message.
func Build(format string, args ...any) error {
	return &BuildError{Message: fmt.Sprintf(format, args...)}
}

// ProtocolError carries a non-zero server ret-code from an SSO packet.
type ProtocolError struct {
	Code  int32
	Extra string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: ret=%d extra=%q", e.Code, e.Extra)
}

// Protocol builds a ProtocolError.
func Protocol(code int32, extra string) error {
	return &ProtocolError{Code: code, Extra: extra}
}

// CryptoError covers TEA, AES and ECDH failures.
type CryptoError struct {
	Kind string
}

func (e *CryptoError) Error() string { return "crypto: " + e.Kind }

// Crypto builds a CryptoError.
func Crypto(format string, args ...any) error {
	return &CryptoError{Kind: fmt.Sprintf(format, args...)}
}

// LoginError is a terminal wt-login failure identified by its state byte,
// usually accompanied by the title and message from TLV 0x146.
type LoginError struct {
	State   uint8
	Title   string
	Message string
}

func (e *LoginError) Error() string {
	if e.Title == "" && e.Message == "" {
		return fmt.Sprintf("login: state %d", e.State)
	}
	return fmt.Sprintf("login: state %d: %s: %s", e.State, e.Title, e.Message)
}

// Login builds a LoginError.
func Login(state uint8, title, message string) error {
	return &LoginError{State: state, Title: title, Message: message}
}
