package consts

const (
	// UDF default sector size. Optical media always uses 2048 byte sectors.
	UDF_SECTOR_SIZE = 2048

	// Size of the descriptor tag that prefixes every tagged descriptor.
	UDF_TAG_SIZE = 16

	// Byte offset of the Volume Recognition Sequence. The sequence is laid out in 2048 byte
	// records regardless of the logical block size.
	UDF_VRS_OFFSET = 32768

	// Size of one Volume Recognition Sequence record.
	UDF_VRS_RECORD_SIZE = 2048

	// Maximum number of records scanned while looking for the end of the VRS.
	UDF_VRS_MAX_RECORDS = 64

	// Volume structure standard identifiers.
	UDF_STD_IDENTIFIER_BEA01 = "BEA01"
	UDF_STD_IDENTIFIER_NSR02 = "NSR02"
	UDF_STD_IDENTIFIER_NSR03 = "NSR03"
	UDF_STD_IDENTIFIER_TEA01 = "TEA01"
	UDF_STD_IDENTIFIER_CD001 = "CD001"
	UDF_STD_IDENTIFIER_BOOT2 = "BOOT2"

	// Primary location of the Anchor Volume Descriptor Pointer.
	UDF_ANCHOR_BLOCK = 256

	// Descriptor versions. Version 2 is used by NSR02 (UDF <= 1.50), version 3 by NSR03.
	UDF_DESCRIPTOR_VERSION_NSR02 = 2
	UDF_DESCRIPTOR_VERSION_NSR03 = 3
)

// Tag identifiers (ECMA-167 3/7.2.1 and 4/7.2.1).
const (
	TAG_IDENT_SPARING_TABLE        = 0
	TAG_IDENT_PRIMARY_VOLUME       = 1
	TAG_IDENT_ANCHOR_VOLUME        = 2
	TAG_IDENT_VOLUME_POINTER       = 3
	TAG_IDENT_IMPLEMENTATION_USE   = 4
	TAG_IDENT_PARTITION            = 5
	TAG_IDENT_LOGICAL_VOLUME       = 6
	TAG_IDENT_UNALLOCATED_SPACE    = 7
	TAG_IDENT_TERMINATING          = 8
	TAG_IDENT_LOGICAL_VOLUME_INTEG = 9
	TAG_IDENT_FILE_SET             = 256
	TAG_IDENT_FILE_IDENTIFIER      = 257
	TAG_IDENT_ALLOCATION_EXTENT    = 258
	TAG_IDENT_INDIRECT_ENTRY       = 259
	TAG_IDENT_TERMINAL_ENTRY       = 260
	TAG_IDENT_FILE_ENTRY           = 261
	TAG_IDENT_EXTENDED_ATTR_HEADER = 262
	TAG_IDENT_UNALLOCATED_SPACE_E  = 263
	TAG_IDENT_SPACE_BITMAP         = 264
	TAG_IDENT_PARTITION_INTEGRITY  = 265
	TAG_IDENT_EXTENDED_FILE_ENTRY  = 266
)

// ICB file types (ECMA-167 4/14.6.6 and UDF 2.60 2.3.5.2).
const (
	FILE_TYPE_UNSPECIFIED      = 0
	FILE_TYPE_UNALLOCATED      = 1
	FILE_TYPE_PARTITION_INTEG  = 2
	FILE_TYPE_INDIRECT         = 3
	FILE_TYPE_DIRECTORY        = 4
	FILE_TYPE_REGULAR          = 5
	FILE_TYPE_BLOCK_DEVICE     = 6
	FILE_TYPE_CHAR_DEVICE      = 7
	FILE_TYPE_EXTENDED_ATTR    = 8
	FILE_TYPE_FIFO             = 9
	FILE_TYPE_SOCKET           = 10
	FILE_TYPE_TERMINAL         = 11
	FILE_TYPE_SYMLINK          = 12
	FILE_TYPE_STREAM_DIRECTORY = 13
	FILE_TYPE_VAT20            = 248
	FILE_TYPE_REALTIME         = 249
	FILE_TYPE_METADATA         = 250
	FILE_TYPE_METADATA_MIRROR  = 251
	FILE_TYPE_METADATA_BITMAP  = 252
)

// ICB tag flags (ECMA-167 4/14.6.8).
const (
	ICB_FLAG_ALLOC_MASK     = 0x0007
	ICB_FLAG_AD_SHORT       = 0x0000
	ICB_FLAG_AD_LONG        = 0x0001
	ICB_FLAG_AD_EXTENDED    = 0x0002
	ICB_FLAG_AD_IN_ICB      = 0x0003
	ICB_FLAG_SORTED         = 0x0008
	ICB_FLAG_NONRELOCATABLE = 0x0010
	ICB_FLAG_ARCHIVE        = 0x0020
	ICB_FLAG_SETUID         = 0x0040
	ICB_FLAG_SETGID         = 0x0080
	ICB_FLAG_STICKY         = 0x0100
	ICB_FLAG_CONTIGUOUS     = 0x0200
	ICB_FLAG_SYSTEM         = 0x0400
	ICB_FLAG_TRANSFORMED    = 0x0800
	ICB_FLAG_MULTIVERSIONS  = 0x1000
	ICB_FLAG_STREAM         = 0x2000
)

// Partition map types and the entity identifiers of UDF type 2 maps.
const (
	PARTITION_MAP_TYPE_1 = 1
	PARTITION_MAP_TYPE_2 = 2

	PARTITION_MAP_TYPE_1_LENGTH = 6
	PARTITION_MAP_TYPE_2_LENGTH = 64

	UDF_ID_SPARABLE  = "*UDF Sparable Partition"
	UDF_ID_VIRTUAL   = "*UDF Virtual Partition"
	UDF_ID_METADATA  = "*UDF Metadata Partition"
	UDF_ID_SPARING   = "*UDF Sparing Table"
	UDF_ID_VAT15     = "*UDF Virtual Alloc Tbl"
	UDF_ID_COMPLIANT = "*OSTA UDF Compliant"
)

// Virtual Allocation Table layout.
const (
	// Unused VAT entries hold all ones.
	VAT_ENTRY_UNUSED = 0xFFFFFFFF

	// The UDF 1.50 VAT ends with a 32 byte regid and a 4 byte previous VAT ICB location.
	VAT15_TRAILER_SIZE = 36

	// Minimum header length of a UDF 2.00 VAT (everything up to the implementation use area).
	VAT20_MIN_HEADER_SIZE = 152

	// Number of blocks scanned backwards from the end of the media when locating the VAT ICB.
	VAT_SEARCH_BLOCKS = 32
)

// Sparing table layout.
const (
	SPARING_TABLE_HEADER_SIZE = 56
	SPARING_ENTRY_SIZE        = 8

	// Original locations at or above this value mark available or defective spare packets.
	SPARING_ENTRY_FREE_MIN = 0xFFFFFFF0
)

// Allocation descriptor sizes and extent length masks.
const (
	SHORT_AD_SIZE = 8
	LONG_AD_SIZE  = 16
	EXT_AD_SIZE   = 20

	EXTENT_LENGTH_MASK = 0x3FFFFFFF
	EXTENT_TYPE_SHIFT  = 30
)

// Fixed sizes of the file entry variants, up to the extended attribute area.
const (
	FILE_ENTRY_BASE_SIZE          = 176
	EXTENDED_FILE_ENTRY_BASE_SIZE = 216
)

// Ownership and naming limits.
const (
	// uid/gid value recorded when the owner is not specified.
	UDF_ID_UNSET = 0xFFFFFFFF

	// Highest uid/gid representable by the 16-bit host ids the materializer produces.
	UDF_ID_MAX = 0xFFFF

	// Maximum number of code units in a decoded name.
	UDF_NAME_MAX_UNITS = 255

	// CS0 compression identifiers.
	CS0_COMPRESSION_8  = 8
	CS0_COMPRESSION_16 = 16
)

// Timestamp limits for the approximate linear conversion.
const (
	TIMESTAMP_EPOCH_YEAR = 1970
	TIMESTAMP_MAX_YEAR   = 9999

	// Timezone value meaning "not specified".
	TIMESTAMP_TZ_UNSPECIFIED = -2047
	TIMESTAMP_TZ_LIMIT       = 1440
)

// Defaults applied by volume.Mount.
const (
	DEFAULT_VAT_CACHE_SLOTS  = 8192
	DEFAULT_VAT_CACHE_PROBES = 8
	DEFAULT_UID              = 0
	DEFAULT_GID              = 0
)
