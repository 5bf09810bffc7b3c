package tfrecord

import (
	"encoding/binary"
	"hash/crc32"
)

// Each record is framed as
//
//	uint64 length (little-endian)
//	uint32 masked crc32c of the length bytes
//	byte   data[length]
//	uint32 masked crc32c of data
//
// where the mask is the rotate-and-add transform applied by all TFRecord
// readers and writers. Reproducing it bit-exact is what makes the output
// readable by standard tooling.
const maskDelta = 0xa282ead8

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func maskedCRC32C(data []byte) uint32 {
	c := crc32.Checksum(data, castagnoli)
	return ((c >> 15) | (c << 17)) + maskDelta
}

// appendRecord frames one serialized message and appends it to dst.
func appendRecord(dst, data []byte) []byte {
	var header [12]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(len(data)))
	binary.LittleEndian.PutUint32(header[8:12], maskedCRC32C(header[:8]))

	var footer [4]byte
	binary.LittleEndian.PutUint32(footer[:], maskedCRC32C(data))

	dst = append(dst, header[:]...)
	dst = append(dst, data...)
	return append(dst, footer[:]...)
}
