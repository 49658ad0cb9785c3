package auth

import "testing"

func TestProtocol_DesktopXorAndroid(t *testing.T) {
	all := []Protocol{
		ProtocolWindows, ProtocolMacOS, ProtocolLinux,
		ProtocolAndroidPhone, ProtocolAndroidPad, ProtocolAndroidWatch,
	}
	for _, p := range all {
		if p.IsDesktop() == p.IsAndroid() {
			t.Errorf("%s: IsDesktop() == IsAndroid() == %v", p, p.IsDesktop())
		}
	}
	if ProtocolNone.IsDesktop() || ProtocolNone.IsAndroid() {
		t.Error("None should be neither desktop nor android")
	}
}

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		in   string
		want Protocol
	}{
		{"Windows", ProtocolWindows},
		{"MacOs", ProtocolMacOS},
		{"Linux", ProtocolLinux},
		{"AndroidPhone", ProtocolAndroidPhone},
		{"AndroidPad", ProtocolAndroidPad},
		{"AndroidWatch", ProtocolAndroidWatch},
		{"None", ProtocolNone},
		{"", ProtocolLinux},
		{"bogus", ProtocolLinux},
	}
	for _, tt := range tests {
		if got := ParseProtocol(tt.in); got != tt.want {
			t.Errorf("ParseProtocol(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestAppInfoFor_ConsistentFlavors(t *testing.T) {
	for _, p := range []Protocol{
		ProtocolWindows, ProtocolMacOS, ProtocolLinux,
		ProtocolAndroidPhone, ProtocolAndroidPad, ProtocolAndroidWatch,
	} {
		info := AppInfoFor(p)
		if info == nil {
			t.Fatalf("AppInfoFor(%s) = nil", p)
		}
		if info.Protocol != p {
			t.Errorf("%s: record tagged %s", p, info.Protocol)
		}
		if info.AppID == 0 || info.SubAppID == 0 {
			t.Errorf("%s: missing app ids", p)
		}
	}
	if AppInfoFor(ProtocolNone) != nil {
		t.Error("AppInfoFor(None) should be nil")
	}
}

func TestNewDevice(t *testing.T) {
	d := NewDevice()
	if d.AndroidID == "" || d.DeviceName == "" {
		t.Error("device identity strings missing")
	}
	if len(d.GUIDHex()) != 32 {
		t.Errorf("GUIDHex length = %d, want 32", len(d.GUIDHex()))
	}

	// Two devices should not collide.
	if NewDevice().GUID == d.GUID {
		t.Error("two generated devices share a GUID")
	}
}
