package voice

// codecCatalog is the fixed set of codec pairs advertised in
// SELECT_PROTOCOL, each at priority 1000 (§6). Payload types are not
// negotiated beyond this table.
func codecCatalog() []codecDescriptor {
	return []codecDescriptor{
		{Name: "opus", Type: "audio", PayloadType: 120, Priority: 1000},
		{Name: "H264", Type: "video", PayloadType: 101, RTXPT: 102, Priority: 1000, Encode: true, Decode: true},
		{Name: "H265", Type: "video", PayloadType: 103, RTXPT: 104, Priority: 1000, Encode: true, Decode: true},
		{Name: "VP8", Type: "video", PayloadType: 105, RTXPT: 106, Priority: 1000, Encode: true, Decode: true},
		{Name: "VP9", Type: "video", PayloadType: 107, RTXPT: 108, Priority: 1000, Encode: true, Decode: true},
		{Name: "AV1", Type: "video", PayloadType: 109, RTXPT: 110, Priority: 1000, Encode: true, Decode: true},
	}
}

// aeadModes are the AEAD modes advertised in SELECT_PROTOCOL (§6).
func aeadModes() []string {
	return []string{
		"aead_aes256_gcm_rtpsize",
		"aead_xchacha20_poly1305_rtpsize",
	}
}
