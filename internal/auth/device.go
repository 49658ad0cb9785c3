package auth

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Device holds the identity strings a client presents during login. All of
// it is synthesized once and kept stable for the lifetime of the account;
// servers correlate tickets with the GUID.
type Device struct {
	GUID          [16]byte `json:"guid"`
	AndroidID     string   `json:"android_id"`
	Qimei         string   `json:"qimei"`
	DeviceName    string   `json:"device_name"`
	SystemKernel  string   `json:"system_kernel"`
	KernelVersion string   `json:"kernel_version"`
}

// NewDevice synthesizes a random but plausible device identity.
func NewDevice() *Device {
	var seed [8]byte
	_, _ = rand.Read(seed[:])
	hexSeed := hex.EncodeToString(seed[:])

	d := &Device{
		AndroidID:     fmt.Sprintf("BOT.%s", hexSeed[:10]),
		DeviceName:    fmt.Sprintf("bot-%s", hexSeed[:6]),
		SystemKernel:  "Windows 10.0.19042",
		KernelVersion: "10.0.19042.0",
	}
	d.GUID = md5.Sum([]byte(d.AndroidID + d.DeviceName))
	return d
}

// GUIDHex returns the GUID as lowercase hex, the form carried in the SSO
// head.
func (d *Device) GUIDHex() string {
	return hex.EncodeToString(d.GUID[:])
}
