package descriptor

import (
	"encoding/binary"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/cs0"
	"github.com/bgrewell/udf-kit/pkg/encoding"
)

// PrimaryVolumeDescriptor identifies the volume (ECMA-167 3/10.1).
type PrimaryVolumeDescriptor struct {
	VolumeDescriptorSequenceNumber uint32 `json:"vds_number"`
	PrimaryVolumeDescriptorNumber  uint32 `json:"pvd_number"`
	// Volume Identifier
	//  | Encoding: dstring[32]
	VolumeIdentifier        string `json:"volume_identifier"`
	VolumeSequenceNumber    uint16 `json:"volume_sequence_number"`
	MaxVolumeSequenceNumber uint16 `json:"max_volume_sequence_number"`
	InterchangeLevel        uint16 `json:"interchange_level"`
	MaxInterchangeLevel     uint16 `json:"max_interchange_level"`
	// Volume Set Identifier
	//  | Encoding: dstring[128]
	VolumeSetIdentifier   string            `json:"volume_set_identifier"`
	ApplicationIdentifier encoding.EntityID `json:"application_identifier"`
	// Recording Date and Time is when the volume was recorded. File entries with a malformed
	// timestamp fall back to it.
	RecordingDateTime        encoding.Timestamp `json:"recording_date_time"`
	ImplementationIdentifier encoding.EntityID  `json:"implementation_identifier"`
	Flags                    uint16             `json:"flags"`
}

func UnmarshalPrimaryVolumeDescriptor(data []byte) (*PrimaryVolumeDescriptor, error) {
	if err := need(data, 490, "primary volume descriptor"); err != nil {
		return nil, err
	}
	pvd := &PrimaryVolumeDescriptor{
		VolumeDescriptorSequenceNumber: le32(data[16:20]),
		PrimaryVolumeDescriptorNumber:  le32(data[20:24]),
		VolumeSequenceNumber:           le16(data[56:58]),
		MaxVolumeSequenceNumber:        le16(data[58:60]),
		InterchangeLevel:               le16(data[60:62]),
		MaxInterchangeLevel:            le16(data[62:64]),
		Flags:                          le16(data[488:490]),
	}
	var err error
	if pvd.VolumeIdentifier, err = cs0.DecodeDString(data[24:56]); err != nil {
		return nil, err
	}
	if pvd.VolumeSetIdentifier, err = cs0.DecodeDString(data[72:200]); err != nil {
		return nil, err
	}
	pvd.ApplicationIdentifier, _ = encoding.UnmarshalEntityID(data[344:376])
	pvd.RecordingDateTime, _ = encoding.UnmarshalTimestamp(data[376:388])
	pvd.ImplementationIdentifier, _ = encoding.UnmarshalEntityID(data[388:420])
	return pvd, nil
}

func (pvd *PrimaryVolumeDescriptor) TagIdentifier() uint16 { return consts.TAG_IDENT_PRIMARY_VOLUME }
func (pvd *PrimaryVolumeDescriptor) SequenceNumber() uint32 {
	return pvd.VolumeDescriptorSequenceNumber
}

func (pvd *PrimaryVolumeDescriptor) Marshal() []byte {
	b := make([]byte, standardSize)
	binary.LittleEndian.PutUint32(b[16:20], pvd.VolumeDescriptorSequenceNumber)
	binary.LittleEndian.PutUint32(b[20:24], pvd.PrimaryVolumeDescriptorNumber)
	copy(b[24:56], cs0.EncodeDString(pvd.VolumeIdentifier, 32))
	binary.LittleEndian.PutUint16(b[56:58], pvd.VolumeSequenceNumber)
	binary.LittleEndian.PutUint16(b[58:60], pvd.MaxVolumeSequenceNumber)
	binary.LittleEndian.PutUint16(b[60:62], pvd.InterchangeLevel)
	binary.LittleEndian.PutUint16(b[62:64], pvd.MaxInterchangeLevel)
	binary.LittleEndian.PutUint32(b[64:68], 1)
	binary.LittleEndian.PutUint32(b[68:72], 1)
	copy(b[72:200], cs0.EncodeDString(pvd.VolumeSetIdentifier, 128))
	putOSTACharSpec(b[200:264])
	putOSTACharSpec(b[264:328])
	pvd.ApplicationIdentifier.Put(b[344:376])
	ts := pvd.RecordingDateTime.Marshal()
	copy(b[376:388], ts[:])
	pvd.ImplementationIdentifier.Put(b[388:420])
	binary.LittleEndian.PutUint16(b[488:490], pvd.Flags)
	return b
}

// putOSTACharSpec writes the charspec for CS0 as restricted by OSTA (UDF 2.1.2).
func putOSTACharSpec(dst []byte) {
	dst[0] = 0
	copy(dst[1:], "OSTA Compressed Unicode")
}
