// Package s7 implements a client for the Siemens S7 communication protocol
// over ISO-on-TCP (RFC 1006) / COTP (ISO 8073 class 0).
package s7

// Area is the memory area a Tag refers to, encoded on the wire as a single
// byte in the S7ANY address item.
type Area byte

// Memory area codes, as they appear on the wire.
const (
	AreaDB      Area = 0x84 // Data block
	AreaMerker  Area = 0x83 // Merker / flag memory (M)
	AreaInput   Area = 0x81 // Process image input (I / E)
	AreaOutput  Area = 0x82 // Process image output (Q / A)
	AreaTimer   Area = 0x1D // Timer
	AreaCounter Area = 0x1C // Counter
)

// String returns the short letter used to name the area in diagnostics.
func (a Area) String() string {
	switch a {
	case AreaDB:
		return "DB"
	case AreaMerker:
		return "M"
	case AreaInput:
		return "I"
	case AreaOutput:
		return "Q"
	case AreaTimer:
		return "T"
	case AreaCounter:
		return "C"
	default:
		return "?"
	}
}

// DataType identifies an S7 primitive type. Values are small and dense so
// they can index directly into lookup tables (see byteSizeTable).
type DataType byte

const (
	TypeBit DataType = iota
	TypeByte
	TypeChar
	TypeInt
	TypeWord
	TypeDInt
	TypeDWord
	TypeReal
	TypeLReal
	TypeString
	TypeWString

	numDataTypes // sentinel, keep last
)

// String returns the canonical type letter(s) used in textual addresses.
func (t DataType) String() string {
	switch t {
	case TypeBit:
		return "X"
	case TypeByte:
		return "B"
	case TypeChar:
		return "C"
	case TypeInt:
		return "I"
	case TypeWord:
		return "W"
	case TypeDInt:
		return "DI"
	case TypeDWord:
		return "DW"
	case TypeReal:
		return "R"
	case TypeLReal:
		return "LR"
	case TypeString:
		return "S"
	case TypeWString:
		return "WS"
	default:
		return "?"
	}
}

// Transport size codes used in the S7ANY request item (table 4.D).
const (
	transportBit   byte = 0x01
	transportByte  byte = 0x02
	transportChar  byte = 0x03
	transportWord  byte = 0x04
	transportDWord byte = 0x06
	transportReal  byte = 0x07 // only seen in some responses; requests use transportDWord
	transportOctet byte = 0x09 // octet string, used for STRING/WSTRING payloads
)

// S7 protocol identifier, message types and function codes.
const (
	protocolID byte = 0x32

	msgJob     byte = 0x01
	msgAck     byte = 0x02
	msgAckData byte = 0x03
	msgUserData byte = 0x07

	funcSetupComm byte = 0xF0
	funcReadVar   byte = 0x04
	funcWriteVar  byte = 0x05
	funcUserData  byte = 0x07
)

// S7ANY addressing item constants.
const (
	s7AnySpecType byte = 0x12
	s7AnyLen      byte = 0x0A
	s7AnySyntaxID byte = 0x10
)

// SZL identifiers used by the diagnostic helpers.
const (
	szlCPUDiagnosticStatus uint16 = 0x0424
	szlModuleIdent         uint16 = 0x0011
)

// Per-item return codes (data item return code byte in read/write responses).
const (
	ReturnSuccess             byte = 0xFF
	ReturnHardwareFault       byte = 0x01
	ReturnAccessDenied        byte = 0x03
	ReturnAddressOutOfRange   byte = 0x05
	ReturnDataTypeNotSupported byte = 0x06
	ReturnInvalidDataType     byte = 0x07
	ReturnObjectDoesNotExist  byte = 0x0A
)

// returnCodeName returns the canonical name for a per-item return code, used
// in ReadItemError/WriteItemError.
func returnCodeName(code byte) string {
	switch code {
	case ReturnSuccess:
		return "SUCCESS"
	case ReturnHardwareFault:
		return "HARDWARE_FAULT"
	case ReturnAccessDenied:
		return "ACCESS_DENIED"
	case ReturnAddressOutOfRange:
		return "ADDRESS_OUT_OF_RANGE"
	case ReturnDataTypeNotSupported:
		return "DATA_TYPE_NOT_SUPPORTED"
	case ReturnInvalidDataType:
		return "INVALID_DATA_TYPE"
	case ReturnObjectDoesNotExist:
		return "OBJECT_DOES_NOT_EXIST"
	default:
		return "UNKNOWN"
	}
}

// S7 error classes (bytes 10/11 of the S7 header on ACK_DATA/error responses).
const (
	errClassNone        byte = 0x00
	errClassAppRelation  byte = 0x81
	errClassObjDef       byte = 0x82
	errClassResource     byte = 0x83
	errClassService      byte = 0x84
	errClassNoResource   byte = 0x85
	errClassAccess       byte = 0x87
)

// TPKT / COTP constants (RFC 1006 / ISO 8073 class 0).
const (
	defaultS7Port = 102

	tpktVersion    byte = 0x03
	tpktHeaderSize      = 4

	cotpCR byte = 0xE0 // Connection Request
	cotpCC byte = 0xD0 // Connection Confirm
	cotpDT byte = 0xF0 // Data transfer

	cotpParamSrcTSAP  byte = 0xC1
	cotpParamDstTSAP  byte = 0xC2
	cotpParamTPDUSize byte = 0xC0
	cotpTPDUSize1024  byte = 0x0A // 2^10

	defaultRequestedPDUSize uint16 = 960
	minPDUSize              uint16 = 240
	maxPDUSize              uint16 = 960

	defaultLocalTSAP uint16 = 0x0100
)

// byteSizeTable is a direct lookup from DataType to the byte-size function
// for that type, indexed by the type's own ordinal. It must stay a table,
// not a branching chain, per the size derivation rule.
var byteSizeTable = [numDataTypes]func(length int) int{
	TypeBit:     func(int) int { return 1 },
	TypeByte:    func(length int) int { return length },
	TypeChar:    func(length int) int { return length },
	TypeInt:     func(length int) int { return 2 * length },
	TypeWord:    func(length int) int { return 2 * length },
	TypeDInt:    func(length int) int { return 4 * length },
	TypeDWord:   func(length int) int { return 4 * length },
	TypeReal:    func(length int) int { return 4 * length },
	TypeLReal:   func(length int) int { return 8 * length },
	TypeString:  func(length int) int { return length + 2 },
	TypeWString: func(length int) int { return 2*length + 4 },
}

// elementStride is the fixed per-element byte width for scalar numeric
// types; it is 0 for BIT and the variable-length string types, which the
// planner's coalescing pass excludes.
var elementStride = [numDataTypes]int{
	TypeBit:     0,
	TypeByte:    1,
	TypeChar:    1,
	TypeInt:     2,
	TypeWord:    2,
	TypeDInt:    4,
	TypeDWord:   4,
	TypeReal:    4,
	TypeLReal:   8,
	TypeString:  0,
	TypeWString: 0,
}

func ceilEven(n int) int {
	if n%2 == 1 {
		return n + 1
	}
	return n
}
