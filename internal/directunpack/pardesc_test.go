package directunpack

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeFileDescPacket builds one raw PAR2 File Description packet,
// matching the layout ParseFileDescriptions expects.
func encodeFileDescPacket(md5_16k [16]byte, length uint64, name string) []byte {
	nameBytes := []byte(name)
	for len(nameBytes)%4 != 0 {
		nameBytes = append(nameBytes, 0)
	}

	bodyLen := fileDescBodyLen + len(nameBytes)
	totalLen := par2HeaderLen + bodyLen

	buf := make([]byte, totalLen)
	copy(buf[0:8], par2PacketMagic)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(totalLen))
	// packetMD5(16) and setID(16) left zero; the parser doesn't validate them.
	copy(buf[48:64], par2FileDescType)

	body := buf[par2HeaderLen:]
	// fileID(16) and fullMD5(16) left zero.
	copy(body[32:48], md5_16k[:])
	binary.LittleEndian.PutUint64(body[48:56], length)
	copy(body[56:], nameBytes)

	return buf
}

func TestParseFileDescriptionsSinglePacket(t *testing.T) {
	hash := md5.Sum([]byte("fake 16k prefix"))
	packet := encodeFileDescPacket(hash, 12345, "Movie.Title.mkv")

	descs, err := ParseFileDescriptions(bytes.NewReader(packet))
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "Movie.Title.mkv", descs[0].Name)
	assert.Equal(t, uint64(12345), descs[0].Length)
	assert.Equal(t, hash, descs[0].MD5_16k)
}

func TestParseFileDescriptionsMultiplePacketsWithNoise(t *testing.T) {
	h1 := md5.Sum([]byte("one"))
	h2 := md5.Sum([]byte("two"))

	var buf bytes.Buffer
	buf.WriteString("garbage-preamble-not-a-packet")
	buf.Write(encodeFileDescPacket(h1, 100, "a.mkv"))
	buf.WriteString("\x00\x00\x00filler-between-packets")
	buf.Write(encodeFileDescPacket(h2, 200, "b.nfo"))

	descs, err := ParseFileDescriptions(&buf)
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, "a.mkv", descs[0].Name)
	assert.Equal(t, "b.nfo", descs[1].Name)
}

func TestParseFileDescriptionsIgnoresOtherPacketTypes(t *testing.T) {
	packet := encodeFileDescPacket(md5.Sum([]byte("x")), 1, "ignored.bin")
	// Flip the type field to something else entirely.
	copy(packet[48:64], "PAR 2.0\x00Main   ")

	descs, err := ParseFileDescriptions(bytes.NewReader(packet))
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func TestParseFileDescriptionsEmptyInput(t *testing.T) {
	descs, err := ParseFileDescriptions(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func TestHash16kShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.bin")
	content := []byte("short content well under 16KB")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	got, err := Hash16k(path)
	require.NoError(t, err)
	assert.Equal(t, md5.Sum(content), got)
}
