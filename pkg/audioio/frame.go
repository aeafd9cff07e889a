package audioio

import (
	"encoding/base64"
	"fmt"
)

// DecodePayload decodes a base64 media payload into raw mu-law bytes.
func DecodePayload(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode media payload: %w", err)
	}
	return data, nil
}

// EncodePayload encodes raw audio bytes as a base64 media payload.
func EncodePayload(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Chunk splits buf into frames of at most size bytes.
// The returned slices alias buf. A non-positive size returns buf whole.
func Chunk(buf []byte, size int) [][]byte {
	if len(buf) == 0 {
		return nil
	}
	if size <= 0 || size >= len(buf) {
		return [][]byte{buf}
	}

	chunks := make([][]byte, 0, (len(buf)+size-1)/size)
	for start := 0; start < len(buf); start += size {
		end := min(start+size, len(buf))
		chunks = append(chunks, buf[start:end])
	}
	return chunks
}

// Silence returns ms milliseconds of mu-law silence.
func Silence(ms int) []byte {
	n := ms * SampleRate / 1000
	out := make([]byte, n)
	for i := range out {
		out[i] = ULawSilence
	}
	return out
}
