package auth

// AppInfo is the read-only record describing one client flavor. The values
// feed the SSO head, the wt-login TLVs and the sign request, and must stay
// consistent with each other within a flavor.
type AppInfo struct {
	Os       string
	VendorOs string
	Kernel   string

	CurrentVersion string
	BuildVersion   int32
	PtVersion      string
	PtOsVersion    int32

	MiscBitmap  uint32
	SsoVersion  uint32
	PackageName string
	WtLoginSdk  string

	AppID            uint32
	SubAppID         uint32
	AppIDQrcode      uint32
	AppClientVersion uint32

	MainSigMap  uint32
	SubSigMap   uint32
	NTLoginType uint32

	// ApkSignatureMd5 is the protobuf-carried apk signature digest used by
	// the sign request on Android flavors.
	ApkSignatureMd5 string

	Protocol Protocol
}

var appInfoTable = map[Protocol]*AppInfo{
	ProtocolLinux: {
		Os:               "Linux",
		VendorOs:         "linux",
		Kernel:           "Linux",
		CurrentVersion:   "3.2.15-30366",
		BuildVersion:     30366,
		PtVersion:        "2.0.0",
		PtOsVersion:      19,
		MiscBitmap:       32764,
		SsoVersion:       19,
		PackageName:      "com.tencent.qq",
		WtLoginSdk:       "nt.wtlogin.0.0.1",
		AppID:            1600001615,
		SubAppID:         537258424,
		AppIDQrcode:      13697054,
		AppClientVersion: 30366,
		MainSigMap:       169742560,
		SubSigMap:        0,
		NTLoginType:      1,
		ApkSignatureMd5:  "d1b929ad627e29a64f6d80bd0bf92c4c",
		Protocol:         ProtocolLinux,
	},
	ProtocolMacOS: {
		Os:               "Mac",
		VendorOs:         "mac",
		Kernel:           "Darwin",
		CurrentVersion:   "6.9.23-20139",
		BuildVersion:     20139,
		PtVersion:        "2.0.0",
		PtOsVersion:      23,
		MiscBitmap:       32764,
		SsoVersion:       23,
		PackageName:      "com.tencent.qq",
		WtLoginSdk:       "nt.wtlogin.0.0.1",
		AppID:            1600001602,
		SubAppID:         537200848,
		AppIDQrcode:      537200848,
		AppClientVersion: 13172,
		MainSigMap:       169742560,
		SubSigMap:        0,
		NTLoginType:      5,
		ApkSignatureMd5:  "d1b929ad627e29a64f6d80bd0bf92c4c",
		Protocol:         ProtocolMacOS,
	},
	ProtocolWindows: {
		Os:               "Windows",
		VendorOs:         "win32",
		Kernel:           "Windows_NT",
		CurrentVersion:   "9.9.2-15962",
		BuildVersion:     15962,
		PtVersion:        "2.0.0",
		PtOsVersion:      23,
		MiscBitmap:       32764,
		SsoVersion:       23,
		PackageName:      "com.tencent.qq",
		WtLoginSdk:       "nt.wtlogin.0.0.1",
		AppID:            1600001604,
		SubAppID:         537138217,
		AppIDQrcode:      537138217,
		AppClientVersion: 13172,
		MainSigMap:       169742560,
		SubSigMap:        0,
		NTLoginType:      5,
		ApkSignatureMd5:  "d1b929ad627e29a64f6d80bd0bf92c4c",
		Protocol:         ProtocolWindows,
	},
	ProtocolAndroidPhone: {
		Os:               "Android",
		VendorOs:         "android",
		Kernel:           "Linux",
		CurrentVersion:   "9.0.56",
		BuildVersion:     16830,
		PtVersion:        "9.0.56",
		PtOsVersion:      31,
		MiscBitmap:       150470524,
		SsoVersion:       20,
		PackageName:      "com.tencent.mobileqq",
		WtLoginSdk:       "6.0.0.2560",
		AppID:            16,
		SubAppID:         537220362,
		AppIDQrcode:      537220362,
		AppClientVersion: 0,
		MainSigMap:       16724722,
		SubSigMap:        66560,
		NTLoginType:      1,
		ApkSignatureMd5:  "a6b745bf24a2c277527716f6f36eb68d",
		Protocol:         ProtocolAndroidPhone,
	},
	ProtocolAndroidPad: {
		Os:               "Android",
		VendorOs:         "android",
		Kernel:           "Linux",
		CurrentVersion:   "9.0.56",
		BuildVersion:     16830,
		PtVersion:        "9.0.56",
		PtOsVersion:      31,
		MiscBitmap:       150470524,
		SsoVersion:       20,
		PackageName:      "com.tencent.mobileqq",
		WtLoginSdk:       "6.0.0.2560",
		AppID:            16,
		SubAppID:         537220424,
		AppIDQrcode:      537220424,
		AppClientVersion: 0,
		MainSigMap:       16724722,
		SubSigMap:        66560,
		NTLoginType:      1,
		ApkSignatureMd5:  "a6b745bf24a2c277527716f6f36eb68d",
		Protocol:         ProtocolAndroidPad,
	},
	ProtocolAndroidWatch: {
		Os:               "Android",
		VendorOs:         "android",
		Kernel:           "Linux",
		CurrentVersion:   "2.1.7",
		BuildVersion:     1594,
		PtVersion:        "2.1.7",
		PtOsVersion:      25,
		MiscBitmap:       16252796,
		SsoVersion:       5,
		PackageName:      "com.tencent.qqlite",
		WtLoginSdk:       "6.0.0.2366",
		AppID:            16,
		SubAppID:         537065138,
		AppIDQrcode:      537065138,
		AppClientVersion: 0,
		MainSigMap:       16724722,
		SubSigMap:        66560,
		NTLoginType:      1,
		ApkSignatureMd5:  "a6b745bf24a2c277527716f6f36eb68d",
		Protocol:         ProtocolAndroidWatch,
	},
}

// AppInfoFor returns the AppInfo record for the given flavor, or nil for
// ProtocolNone and unknown values.
func AppInfoFor(p Protocol) *AppInfo {
	return appInfoTable[p]
}
