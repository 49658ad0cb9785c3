// Package auth describes the client flavor the bot impersonates: the
// protocol selector, the per-flavor AppInfo record and the device identity
// material that feeds the wt-login TLVs.
package auth

// Protocol selects which client flavor to impersonate. Values are single
// bits so service registry entries can mask over several flavors at once.
type Protocol uint8

const (
	ProtocolNone         Protocol = 0
	ProtocolWindows      Protocol = 1 << 0
	ProtocolMacOS        Protocol = 1 << 1
	ProtocolLinux        Protocol = 1 << 2
	ProtocolAndroidPhone Protocol = 1 << 3
	ProtocolAndroidPad   Protocol = 1 << 4
	ProtocolAndroidWatch Protocol = 1 << 5

	// ProtocolAllDesktop and ProtocolAllAndroid are the usual registry masks.
	ProtocolAllDesktop = ProtocolWindows | ProtocolMacOS | ProtocolLinux
	ProtocolAllAndroid = ProtocolAndroidPhone | ProtocolAndroidPad | ProtocolAndroidWatch
	ProtocolAll        = ProtocolAllDesktop | ProtocolAllAndroid
)

// String returns the config-surface name of the protocol.
func (p Protocol) String() string {
	switch p {
	case ProtocolWindows:
		return "Windows"
	case ProtocolMacOS:
		return "MacOs"
	case ProtocolLinux:
		return "Linux"
	case ProtocolAndroidPhone:
		return "AndroidPhone"
	case ProtocolAndroidPad:
		return "AndroidPad"
	case ProtocolAndroidWatch:
		return "AndroidWatch"
	case ProtocolNone:
		return "None"
	default:
		return "Unknown"
	}
}

// ParseProtocol maps a config string to a Protocol, defaulting to Linux.
func ParseProtocol(s string) Protocol {
	switch s {
	case "Windows":
		return ProtocolWindows
	case "MacOs", "MacOS":
		return ProtocolMacOS
	case "Linux", "":
		return ProtocolLinux
	case "AndroidPhone":
		return ProtocolAndroidPhone
	case "AndroidPad":
		return ProtocolAndroidPad
	case "AndroidWatch":
		return ProtocolAndroidWatch
	case "None":
		return ProtocolNone
	default:
		return ProtocolLinux
	}
}

// IsDesktop reports whether the flavor is an NT desktop client.
func (p Protocol) IsDesktop() bool { return p&ProtocolAllDesktop != 0 }

// IsAndroid reports whether the flavor is an Android client.
func (p Protocol) IsAndroid() bool { return p&ProtocolAllAndroid != 0 }
