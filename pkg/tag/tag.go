// Package tag reads and verifies UDF tagged descriptors.
//
// Every UDF metadata structure starts with a 16 byte descriptor tag:
//
//	bytes 0-1   tag identifier
//	bytes 2-3   descriptor version
//	byte  4     tag checksum (sum of bytes 0-3 and 5-15, modulo 256)
//	byte  5     reserved
//	bytes 6-7   tag serial number
//	bytes 8-9   descriptor CRC
//	bytes 10-11 descriptor CRC length
//	bytes 12-15 tag location
//
// The CRC covers DescriptorCRCLength bytes immediately after the tag.
package tag

import (
	"encoding/binary"
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/consts"
)

// Tag is the decoded descriptor tag.
type Tag struct {
	Identifier          uint16 `json:"identifier"`
	DescriptorVersion   uint16 `json:"descriptor_version"`
	Checksum            uint8  `json:"checksum"`
	Reserved            uint8  `json:"reserved"`
	SerialNumber        uint16 `json:"serial_number"`
	DescriptorCRC       uint16 `json:"descriptor_crc"`
	DescriptorCRCLength uint16 `json:"descriptor_crc_length"`
	Location            uint32 `json:"location"`
}

// Unmarshal parses the first 16 bytes of data into the tag.
func (t *Tag) Unmarshal(data []byte) error {
	if len(data) < consts.UDF_TAG_SIZE {
		return fmt.Errorf("descriptor tag needs %d bytes, got %d", consts.UDF_TAG_SIZE, len(data))
	}
	t.Identifier = binary.LittleEndian.Uint16(data[0:2])
	t.DescriptorVersion = binary.LittleEndian.Uint16(data[2:4])
	t.Checksum = data[4]
	t.Reserved = data[5]
	t.SerialNumber = binary.LittleEndian.Uint16(data[6:8])
	t.DescriptorCRC = binary.LittleEndian.Uint16(data[8:10])
	t.DescriptorCRCLength = binary.LittleEndian.Uint16(data[10:12])
	t.Location = binary.LittleEndian.Uint32(data[12:16])
	return nil
}

// Marshal converts the tag into its 16 byte on-disk representation. The checksum field is
// written as stored; use Seal to compute it.
func (t *Tag) Marshal() [consts.UDF_TAG_SIZE]byte {
	var buf [consts.UDF_TAG_SIZE]byte
	binary.LittleEndian.PutUint16(buf[0:2], t.Identifier)
	binary.LittleEndian.PutUint16(buf[2:4], t.DescriptorVersion)
	buf[4] = t.Checksum
	buf[5] = t.Reserved
	binary.LittleEndian.PutUint16(buf[6:8], t.SerialNumber)
	binary.LittleEndian.PutUint16(buf[8:10], t.DescriptorCRC)
	binary.LittleEndian.PutUint16(buf[10:12], t.DescriptorCRCLength)
	binary.LittleEndian.PutUint32(buf[12:16], t.Location)
	return buf
}

// Checksum returns the tag checksum of a 16 byte header: the sum of bytes 0-3 and 5-15
// modulo 256. Byte 4 holds the checksum itself and is excluded.
func Checksum(header []byte) uint8 {
	var sum uint8
	for i := 0; i < consts.UDF_TAG_SIZE; i++ {
		if i == 4 {
			continue
		}
		sum += header[i]
	}
	return sum
}

// crcTable is the CRC-16/CCITT table for the polynomial x^16 + x^12 + x^5 + 1.
var crcTable = func() [256]uint16 {
	var table [256]uint16
	for i := range table {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}()

// CRC computes the descriptor CRC (ECMA-167 1/7.2.6): CRC-16/CCITT, initial value 0, no
// reflection, no final xor.
func CRC(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}

// Seal writes a complete tag into buf[0:16], computing the CRC over buf[16:16+crcLength] and
// then the checksum. buf must already hold the descriptor body.
func Seal(buf []byte, identifier, version, serial uint16, location uint32, crcLength uint16) error {
	if len(buf) < consts.UDF_TAG_SIZE+int(crcLength) {
		return fmt.Errorf("crc length %d exceeds descriptor buffer of %d bytes", crcLength, len(buf))
	}
	t := Tag{
		Identifier:          identifier,
		DescriptorVersion:   version,
		SerialNumber:        serial,
		DescriptorCRC:       CRC(buf[consts.UDF_TAG_SIZE : consts.UDF_TAG_SIZE+int(crcLength)]),
		DescriptorCRCLength: crcLength,
		Location:            location,
	}
	header := t.Marshal()
	header[4] = Checksum(header[:])
	copy(buf, header[:])
	return nil
}
