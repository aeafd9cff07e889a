// Package audioio holds the telephony audio codec: G.711 mu-law to and from
// linear PCM16, base64 transport payloads, framing and resampling helpers.
// Everything here is pure and safe for concurrent use.
package audioio

// Telephony audio profile.
const (
	SampleRate = 8000 // Hz, narrow-band
	FrameBytes = 160  // 20ms of mu-law at 8kHz
	ULawSilence byte = 0xFF
)

const (
	ulawBias = 0x84
	ulawClip = 32635
)

var ulawDecodeTable [256]int16

func init() {
	for i := range ulawDecodeTable {
		ulawDecodeTable[i] = decodeULawSample(byte(i))
	}
}

func decodeULawSample(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	sample := ((int(mantissa) << 3) + ulawBias) << exponent
	sample -= ulawBias
	if sign != 0 {
		return int16(-sample)
	}
	return int16(sample)
}

// EncodeULawSample compresses one linear sample to mu-law.
func EncodeULawSample(s int16) byte {
	v := int(s)
	var sign int
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > ulawClip {
		v = ulawClip
	}
	v += ulawBias

	exponent := 7
	for mask := 0x4000; v&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (v >> (exponent + 3)) & 0x0F

	return ^byte(sign | exponent<<4 | mantissa)
}

// DecodeULawSample expands one mu-law byte to a linear sample.
func DecodeULawSample(u byte) int16 {
	return ulawDecodeTable[u]
}

// DecodeULaw expands mu-law bytes to PCM16 samples.
func DecodeULaw(data []byte) []int16 {
	samples := make([]int16, len(data))
	for i, b := range data {
		samples[i] = ulawDecodeTable[b]
	}
	return samples
}

// EncodeULaw compresses PCM16 samples to mu-law bytes.
func EncodeULaw(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = EncodeULawSample(s)
	}
	return out
}

// PCM16BytesToULaw compresses little-endian PCM16 bytes to mu-law.
// A trailing odd byte is ignored.
func PCM16BytesToULaw(data []byte) []byte {
	return EncodeULaw(BytesToSamples(data))
}
