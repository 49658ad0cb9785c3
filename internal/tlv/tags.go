package tlv

import (
	"crypto/md5"
	"math/rand"
	"strconv"
	"time"

	"github.com/nanoim/botcore/internal/auth"
	"github.com/nanoim/botcore/internal/binary"
	"github.com/nanoim/botcore/internal/crypto"
	"github.com/nanoim/botcore/internal/proto"
)

// Source bundles the account and device material the tag builders draw on.
// Builders read from it only; nothing is written back.
type Source struct {
	App    *auth.AppInfo
	Device *auth.Device

	Uin uint64
	Uid string

	TgtgtKey [16]byte
}

func (s *Source) uinString() string {
	return strconv.FormatUint(s.Uin, 10)
}

// lv writes b behind a u16 prefix, truncated to max bytes when max > 0.
func lv(w *binary.Writer, b []byte, max int) {
	if max > 0 && len(b) > max {
		b = b[:max]
	}
	w.WriteLenBytes(binary.PrefixU16, b)
}

func lvs(w *binary.Writer, s string, max int) { lv(w, []byte(s), max) }

// T018 carries the ping head: sso version, app id and the uin echoed back.
func (s *Source) T018(b *Builder) *Builder {
	return b.Tlv(0x018, func(w *binary.Writer) {
		w.WriteU16(0) // ping version
		w.WriteU32(5) // sso version
		w.WriteU32(uint32(s.App.AppID))
		w.WriteU32(uint32(s.App.AppClientVersion))
		w.WriteU32(uint32(s.Uin))
		w.WriteU16(0)
		w.WriteU16(0)
	})
}

// T100 declares the app identity and the signature map being requested.
func (s *Source) T100(b *Builder) *Builder {
	return b.Tlv(0x100, func(w *binary.Writer) {
		w.WriteU16(0) // db buf version
		w.WriteU32(5) // sso version
		w.WriteU32(uint32(s.App.AppID))
		w.WriteU32(uint32(s.App.SubAppID))
		w.WriteU32(uint32(s.App.AppClientVersion))
		w.WriteU32(uint32(s.App.MainSigMap))
	})
}

// t106Key derives the seal key for the password block:
// md5(md5(password) || 0x00000000 || uin-be32).
func t106Key(passwordMD5 [16]byte, uin uint32) [16]byte {
	seed := binary.NewWriterF(func(w *binary.Writer) {
		w.WriteBytes(passwordMD5[:])
		w.WriteU32(0)
		w.WriteU32(uin)
	})
	return md5.Sum(seed)
}

// T106 is the encrypted password block, sealed with the key from t106Key.
func (s *Source) T106(b *Builder, passwordMD5 [16]byte) *Builder {
	body := binary.NewWriterF(func(w *binary.Writer) {
		w.WriteU16(4) // tgtgt version
		w.WriteU32(rand.Uint32())
		w.WriteU32(uint32(s.App.SsoVersion))
		w.WriteU32(uint32(s.App.AppID))
		w.WriteU32(0) // app client version
		w.WriteU64(s.Uin)
		w.WriteU32(uint32(time.Now().Unix()))
		w.WriteU32(0) // fake ip
		w.WriteU8(1)  // save password
		w.WriteBytes(passwordMD5[:])
		w.WriteBytes(s.TgtgtKey[:])
		w.WriteU32(0)
		w.WriteBool(true) // guid available
		w.WriteBytes(s.Device.GUID[:])
		w.WriteU32(uint32(s.App.SubAppID))
		w.WriteU32(1) // login type: password
		lvs(w, s.uinString(), 0)
		w.WriteU16(0)
	})

	key := t106Key(passwordMD5, uint32(s.Uin))

	sealed, err := crypto.TEAEncrypt(key[:], body)
	if err != nil {
		// Key is always 16 bytes here; Encrypt cannot fail.
		panic(err)
	}
	return b.TlvBytes(0x106, sealed)
}

// T107 selects the picture-verification capability.
func (s *Source) T107(b *Builder) *Builder {
	return b.Tlv(0x107, func(w *binary.Writer) {
		w.WriteU16(1) // pic type
		w.WriteU8(0x0d)
		w.WriteU16(0)
		w.WriteU8(1)
	})
}

// T116 advertises the misc bitmap and sub-signature map.
func (s *Source) T116(b *Builder) *Builder {
	return b.Tlv(0x116, func(w *binary.Writer) {
		w.WriteU8(0)
		w.WriteU32(uint32(s.App.MiscBitmap))
		w.WriteU32(uint32(s.App.SubSigMap))
		w.WriteU8(0) // appid list count
	})
}

// T124 reports the operating system.
func (s *Source) T124(b *Builder) *Builder {
	return b.Tlv(0x124, func(w *binary.Writer) {
		lvs(w, s.Device.SystemKernel, 16)
		w.WriteU16(2)
		lvs(w, s.Device.KernelVersion, 16)
		w.WriteU16(0)
		lvs(w, "wifi", 16)
	})
}

// T128 reports the GUID and whether it changed since last login.
func (s *Source) T128(b *Builder) *Builder {
	return b.Tlv(0x128, func(w *binary.Writer) {
		w.WriteU16(0)
		w.WriteBool(false) // guid from file
		w.WriteBool(true)  // guid available
		w.WriteBool(false) // guid changed
		w.WriteU32(0)      // guid flag
		lvs(w, s.App.Os, 32)
		lv(w, s.Device.GUID[:], 16)
		lvs(w, s.App.VendorOs, 0)
	})
}

// T141 reports the network environment.
func (s *Source) T141(b *Builder) *Builder {
	return b.Tlv(0x141, func(w *binary.Writer) {
		w.WriteU16(1) // version
		lvs(w, "Unknown", 0)
		w.WriteU16(2) // network type: wifi
		lvs(w, "", 0)
	})
}

// T142 carries the package name.
func (s *Source) T142(b *Builder) *Builder {
	return b.Tlv(0x142, func(w *binary.Writer) {
		w.WriteU16(0)
		lvs(w, s.App.PackageName, 32)
	})
}

// T144 wraps the device-report TLVs, sealed with the tgtgt key.
func (s *Source) T144(b *Builder) *Builder {
	inner := NewBuilder()
	s.T109(inner)
	s.T52D(inner)
	s.T124(inner)
	s.T128(inner)
	s.T16E(inner)

	sealed, err := crypto.TEAEncrypt(s.TgtgtKey[:], inner.Bytes())
	if err != nil {
		panic(err)
	}
	return b.TlvBytes(0x144, sealed)
}

// T109 is the hashed device id.
func (s *Source) T109(b *Builder) *Builder {
	sum := md5.Sum([]byte(s.Device.AndroidID))
	return b.TlvBytes(0x109, sum[:])
}

// T145 is the raw GUID.
func (s *Source) T145(b *Builder) *Builder {
	return b.TlvBytes(0x145, s.Device.GUID[:])
}

// T147 binds the request to the apk identity.
func (s *Source) T147(b *Builder) *Builder {
	return b.Tlv(0x147, func(w *binary.Writer) {
		w.WriteU32(uint32(s.App.AppID))
		lvs(w, s.App.PtVersion, 32)
		lvs(w, s.App.ApkSignatureMd5, 32)
	})
}

// T154 echoes the SSO sequence the request rides on.
func (s *Source) T154(b *Builder, seq uint32) *Builder {
	return b.Tlv(0x154, func(w *binary.Writer) {
		w.WriteU32(seq)
	})
}

// T16E is the device name.
func (s *Source) T16E(b *Builder) *Builder {
	return b.TlvBytes(0x16e, []byte(s.Device.DeviceName))
}

// T177 declares the wt-login SDK build.
func (s *Source) T177(b *Builder) *Builder {
	return b.Tlv(0x177, func(w *binary.Writer) {
		w.WriteU8(1)
		w.WriteU32(0) // build time
		lvs(w, s.App.WtLoginSdk, 0)
	})
}

// T191 selects the slider-captcha capability.
func (s *Source) T191(b *Builder, k uint8) *Builder {
	return b.Tlv(0x191, func(w *binary.Writer) {
		w.WriteU8(k)
	})
}

// T318 is reserved; deployed clients send it empty.
func (s *Source) T318(b *Builder) *Builder {
	return b.TlvBytes(0x318, nil)
}

// T511 lists the web domains tickets are requested for.
func (s *Source) T511(b *Builder, domains []string) *Builder {
	return b.Tlv(0x511, func(w *binary.Writer) {
		w.WriteU16(uint16(len(domains)))
		for _, d := range domains {
			w.WriteU8(0x01)
			lvs(w, d, 0)
		}
	})
}

// T516 is a fixed source marker.
func (s *Source) T516(b *Builder) *Builder {
	return b.Tlv(0x516, func(w *binary.Writer) {
		w.WriteU32(0)
	})
}

// T521 declares the product type.
func (s *Source) T521(b *Builder, productType uint32, productDesc string) *Builder {
	return b.Tlv(0x521, func(w *binary.Writer) {
		w.WriteU32(productType)
		lvs(w, productDesc, 0)
	})
}

// T525 wraps the login-extra-data block.
func (s *Source) T525(b *Builder) *Builder {
	return b.Tlv(0x525, func(w *binary.Writer) {
		w.WriteU16(1) // entry count
		w.WriteU16(0x536)
		w.WriteTlv([]byte{0x01, 0x00})
	})
}

// T52D is the detailed device report; desktop flavors send it empty.
func (s *Source) T52D(b *Builder) *Builder {
	return b.TlvBytes(0x52d, nil)
}

// qrDeviceInfo is the protobuf payload of TLV 0xD1.
type qrDeviceInfo struct {
	Os         string `proto:"1"`
	DeviceName string `proto:"2"`
}

type qrExtra struct {
	Device  *qrDeviceInfo `proto:"1"`
	TypeBuf []byte        `proto:"4"`
}

// TD1 carries the QR-login device descriptor as protobuf.
func (s *Source) TD1(b *Builder) *Builder {
	body, err := proto.Marshal(&qrExtra{
		Device: &qrDeviceInfo{
			Os:         s.App.Os,
			DeviceName: s.Device.DeviceName,
		},
		TypeBuf: []byte{0x30, 0x01},
	})
	if err != nil {
		panic(err)
	}
	return b.TlvBytes(0x0d1, body)
}

// T016 identifies the app for QR-login commands.
func (s *Source) T016(b *Builder) *Builder {
	return b.Tlv(0x016, func(w *binary.Writer) {
		w.WriteU32(0) // sso version placeholder
		w.WriteU32(uint32(s.App.AppIDQrcode))
		w.WriteU32(uint32(s.App.AppID))
		w.WriteBytes(s.Device.GUID[:])
		lvs(w, s.App.PackageName, 0)
		lvs(w, s.App.PtVersion, 0)
	})
}

// T01B selects the QR image rendering parameters.
func (s *Source) T01B(b *Builder) *Builder {
	return b.Tlv(0x01b, func(w *binary.Writer) {
		w.WriteU32(0)  // micro
		w.WriteU32(0)  // version
		w.WriteU32(3)  // size
		w.WriteU32(4)  // margin
		w.WriteU32(72) // dpi
		w.WriteU32(2)  // error-correction level
		w.WriteU32(2)  // structure
		w.WriteU16(0)
	})
}

// T01D advertises the misc bitmap for QR login.
func (s *Source) T01D(b *Builder) *Builder {
	return b.Tlv(0x01d, func(w *binary.Writer) {
		w.WriteU8(1)
		w.WriteU32(uint32(s.App.MiscBitmap))
		w.WriteU32(0)
		w.WriteU8(0)
	})
}

// T033 is the raw GUID for QR login.
func (s *Source) T033(b *Builder) *Builder {
	return b.TlvBytes(0x033, s.Device.GUID[:])
}

// T035 declares the platform type.
func (s *Source) T035(b *Builder) *Builder {
	return b.Tlv(0x035, func(w *binary.Writer) {
		w.WriteU32(uint32(s.App.PtOsVersion))
	})
}

// T066 repeats the platform type under the tag the scan flow checks.
func (s *Source) T066(b *Builder) *Builder {
	return b.Tlv(0x066, func(w *binary.Writer) {
		w.WriteU32(uint32(s.App.PtOsVersion))
	})
}
