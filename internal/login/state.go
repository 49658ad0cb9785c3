// Package login drives the wt-login state machine: the password flow, the
// QR flow and their CAPTCHA / SMS / device-lock follow-ups. Transport
// failures are left to the connection monitor; this package only decides
// the next protocol step.
package login

// State is the server-chosen outcome byte of a wt-login round trip.
type State uint8

const (
	StateSuccess       State = 0
	StateCaptcha       State = 2
	StateSmsRequired   State = 160
	StateDeviceLock    State = 204
	StateDeviceLockSms State = 239
)

// terminalStates maps the closed set of unrecoverable outcomes to their
// operator-facing descriptions. Anything not listed here and not a
// follow-up state is treated as an unknown terminal failure.
var terminalStates = map[State]string{
	1:   "wrong password",
	3:   "account banned",
	15:  "session expired",
	40:  "account frozen",
	155: "device not trusted",
	162: "too many sms requests",
	163: "sms code rejected",
	167: "rejected by risk control",
	235: "client version rejected",
	237: "login environment abnormal",
}

// String names the state for logs.
func (s State) String() string {
	switch s {
	case StateSuccess:
		return "success"
	case StateCaptcha:
		return "captcha required"
	case StateSmsRequired:
		return "sms required"
	case StateDeviceLock:
		return "device lock"
	case StateDeviceLockSms:
		return "device lock (sms)"
	}
	if desc, ok := terminalStates[s]; ok {
		return desc
	}
	return "unknown failure"
}

// Terminal reports whether the state ends the login without a follow-up.
func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateCaptcha, StateSmsRequired, StateDeviceLock, StateDeviceLockSms:
		return false
	}
	return true
}
