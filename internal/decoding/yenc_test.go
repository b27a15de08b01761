package decoding

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildYencStream produces a minimal single-part yEnc message for data
// whose bytes avoid yEnc's critical values after the +42 shift, so no
// escape sequences are needed.
func buildYencStream(data []byte, withPart bool) []byte {
	encoded := make([]byte, len(data))
	for i, b := range data {
		encoded[i] = b + 42
	}

	var buf bytes.Buffer
	buf.WriteString("=ybegin line=128 size=" + strconv.Itoa(len(data)) + " name=test.bin\r\n")
	if withPart {
		buf.WriteString("=ypart begin=1 end=" + strconv.Itoa(len(data)) + "\r\n")
	}
	buf.Write(encoded)
	crc := crc32.ChecksumIEEE(data)
	buf.WriteString(fmt.Sprintf("\r\n=yend size=%d crc32=%08x\r\n", len(data), crc))
	return buf.Bytes()
}

func TestDecodeRoundTrip(t *testing.T) {
	payload := []byte("hello world, this is usenet test data")
	stream := buildYencStream(payload, false)

	dec := NewYencDecoder(bytes.NewReader(stream))
	require.NoError(t, dec.DiscardHeader())

	out, err := io.ReadAll(dec)
	assert.NoError(t, err)
	assert.Equal(t, payload, out)
	assert.NoError(t, dec.Verify())
}

func TestDecodePartHeaderOffsetIsZeroBased(t *testing.T) {
	payload := []byte("partial segment data")
	stream := buildYencStream(payload, true)

	dec := NewYencDecoder(bytes.NewReader(stream))
	require.NoError(t, dec.DiscardHeader())

	assert.Equal(t, int64(0), dec.PartOffset)
}

func TestVerifyDetectsCorruption(t *testing.T) {
	payload := []byte("data that will be corrupted")
	stream := buildYencStream(payload, false)

	dec := NewYencDecoder(bytes.NewReader(stream))
	require.NoError(t, dec.DiscardHeader())

	_, err := io.ReadAll(dec)
	require.NoError(t, err)

	dec.expectedCRC ^= 0xFFFFFFFF
	assert.Error(t, dec.Verify())
}
