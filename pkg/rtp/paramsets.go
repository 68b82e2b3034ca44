package rtp

import (
	"encoding/binary"
	"fmt"

	"github.com/ethan/discord-go-live/pkg/voiceerr"
)

// ParameterSets holds the out-of-band parameter-set NAL units parsed once
// from the container's avcC (H.264) or hvcC (H.265) extradata (§3, §4.3).
// H.264 uses SPS/PPS; H.265 additionally carries VPS.
type ParameterSets struct {
	VPS [][]byte
	SPS [][]byte
	PPS [][]byte
}

// Empty reports whether no parameter sets were parsed.
func (p ParameterSets) Empty() bool {
	return len(p.VPS) == 0 && len(p.SPS) == 0 && len(p.PPS) == 0
}

// ParseAVCDecoderConfig parses an H.264 avcC extradata record into its SPS
// and PPS NAL units. It requires configurationVersion == 1 (§7 Codec
// errors).
func ParseAVCDecoderConfig(extradata []byte) (ParameterSets, error) {
	if len(extradata) < 6 {
		return ParameterSets{}, voiceerr.Codec(fmt.Errorf("avcC record too short: %d bytes", len(extradata)))
	}
	if extradata[0] != 1 {
		return ParameterSets{}, voiceerr.Codec(fmt.Errorf("avcC configurationVersion %d, want 1", extradata[0]))
	}

	var sets ParameterSets
	offset := 5

	numSPS := int(extradata[offset] & 0x1F)
	offset++

	for i := 0; i < numSPS; i++ {
		nalu, next, err := readLengthPrefixedNALU(extradata, offset)
		if err != nil {
			return ParameterSets{}, voiceerr.Codec(fmt.Errorf("avcC SPS %d: %w", i, err))
		}
		sets.SPS = append(sets.SPS, nalu)
		offset = next
	}

	if offset >= len(extradata) {
		return ParameterSets{}, voiceerr.Codec(fmt.Errorf("avcC record truncated before PPS count"))
	}
	numPPS := int(extradata[offset])
	offset++

	for i := 0; i < numPPS; i++ {
		nalu, next, err := readLengthPrefixedNALU(extradata, offset)
		if err != nil {
			return ParameterSets{}, voiceerr.Codec(fmt.Errorf("avcC PPS %d: %w", i, err))
		}
		sets.PPS = append(sets.PPS, nalu)
		offset = next
	}

	return sets, nil
}

// HEVC NAL unit types carried in hvcC parameter-set arrays.
const (
	hevcNALUVPS = 32
	hevcNALUSPS = 33
	hevcNALUPPS = 34
)

// ParseHEVCDecoderConfig parses an H.265 hvcC extradata record into its
// VPS, SPS and PPS NAL units. It requires configurationVersion == 1 (§7
// Codec errors).
func ParseHEVCDecoderConfig(extradata []byte) (ParameterSets, error) {
	if len(extradata) < 23 {
		return ParameterSets{}, voiceerr.Codec(fmt.Errorf("hvcC record too short: %d bytes", len(extradata)))
	}
	if extradata[0] != 1 {
		return ParameterSets{}, voiceerr.Codec(fmt.Errorf("hvcC configurationVersion %d, want 1", extradata[0]))
	}

	var sets ParameterSets
	numArrays := int(extradata[22])
	offset := 23

	for a := 0; a < numArrays; a++ {
		if offset >= len(extradata) {
			return ParameterSets{}, voiceerr.Codec(fmt.Errorf("hvcC record truncated at array %d header", a))
		}
		naluType := extradata[offset] & 0x3F
		offset++

		if offset+2 > len(extradata) {
			return ParameterSets{}, voiceerr.Codec(fmt.Errorf("hvcC record truncated at array %d count", a))
		}
		numNalus := int(binary.BigEndian.Uint16(extradata[offset : offset+2]))
		offset += 2

		for n := 0; n < numNalus; n++ {
			nalu, next, err := readLengthPrefixedNALU(extradata, offset)
			if err != nil {
				return ParameterSets{}, voiceerr.Codec(fmt.Errorf("hvcC array %d nalu %d: %w", a, n, err))
			}
			offset = next

			switch naluType {
			case hevcNALUVPS:
				sets.VPS = append(sets.VPS, nalu)
			case hevcNALUSPS:
				sets.SPS = append(sets.SPS, nalu)
			case hevcNALUPPS:
				sets.PPS = append(sets.PPS, nalu)
			}
		}
	}

	return sets, nil
}

// readLengthPrefixedNALU reads a 2-byte big-endian length followed by that
// many bytes of NAL unit data, as used throughout avcC/hvcC records.
func readLengthPrefixedNALU(data []byte, offset int) (nalu []byte, next int, err error) {
	if offset+2 > len(data) {
		return nil, 0, fmt.Errorf("truncated length prefix at offset %d", offset)
	}
	length := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2
	if offset+length > len(data) {
		return nil, 0, fmt.Errorf("NALU length %d at offset %d exceeds record bounds", length, offset)
	}
	return data[offset : offset+length], offset + length, nil
}
