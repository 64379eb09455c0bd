package s7

import (
	"encoding/binary"
)

// itemTransportSize returns the transport-size code used in a READ_VAR
// item specification for t's data type.
func itemTransportSize(dt DataType) byte {
	switch dt {
	case TypeBit:
		return transportBit
	case TypeByte:
		return transportByte
	case TypeChar:
		return transportChar
	case TypeInt, TypeWord:
		return transportWord
	case TypeDInt, TypeDWord, TypeReal:
		return transportDWord
	case TypeLReal:
		// No wire transport code exists for an 8-byte element; fall back to
		// byte-based addressing, the same way the teacher's own
		// getTransportSize does for its 64-bit types (LWord/LInt/LReal).
		return transportByte
	case TypeString, TypeWString:
		return transportOctet
	default:
		return transportByte
	}
}

// isByteCountedTransport reports whether transportSize addresses its
// elements one byte at a time, so the item spec's count field must carry a
// byte count rather than an element count.
func isByteCountedTransport(transportSize byte) bool {
	return transportSize == transportByte || transportSize == transportChar || transportSize == transportOctet
}

// writeTransportSize returns the transport-size code used in a WRITE_VAR
// data section for t's data type.
func writeTransportSize(dt DataType) byte {
	switch dt {
	case TypeBit:
		return transportChar // 0x03, "bit" code in the data-section table
	case TypeString, TypeWString:
		return transportOctet
	default:
		return transportWord // 0x04, "byte-multiple" code in the data-section table
	}
}

// encodeItemSpec builds the 12-byte S7ANY item specification for a READ_VAR
// or WRITE_VAR parameter list entry.
func encodeItemSpec(t *Tag) []byte {
	transportSize := itemTransportSize(t.DataType)

	elementCount := t.Length
	switch {
	case t.DataType == TypeBit:
		elementCount = t.Length
	case isByteCountedTransport(transportSize):
		// Byte/char/octet transports count in bytes, not elements (matches
		// the teacher's own count = addr.Size rule whenever its
		// getTransportSize returns tsBYTE/tsCHAR): covers BYTE, CHAR,
		// STRING/WSTRING, and the LREAL byte-based fallback above.
		elementCount = t.Size()
	default:
		elementCount = t.Length
	}

	addr := uint32(t.Start)<<3 | uint32(t.BitOffset)
	item := []byte{
		s7AnySpecType,
		s7AnyLen,
		s7AnySyntaxID,
		transportSize,
		byte(elementCount >> 8), byte(elementCount),
		byte(t.DBNumber >> 8), byte(t.DBNumber),
		byte(t.Area),
		byte(addr >> 16), byte(addr >> 8), byte(addr),
	}
	return item
}

// EncodeReadVarRequest builds the READ_VAR parameter block for the given
// tags (up to 20, enforced by the planner before this is called).
func EncodeReadVarRequest(tags []*Tag) []byte {
	params := make([]byte, 0, 2+12*len(tags))
	params = append(params, funcReadVar, byte(len(tags)))
	for _, t := range tags {
		params = append(params, encodeItemSpec(t)...)
	}
	return params
}

// EncodeWriteVarRequest builds the WRITE_VAR parameter block (item specs)
// and data block (per-item payload sections) for the given tags and their
// already-encoded raw values.
func EncodeWriteVarRequest(tags []*Tag, payloads [][]byte) (params, data []byte) {
	params = make([]byte, 0, 2+12*len(tags))
	params = append(params, funcWriteVar, byte(len(tags)))
	for _, t := range tags {
		params = append(params, encodeItemSpec(t)...)
	}

	data = make([]byte, 0)
	for i, t := range tags {
		section := encodeWriteDataItem(t, payloads[i])
		if i < len(tags)-1 && len(section)%2 == 1 {
			section = append(section, 0x00)
		}
		data = append(data, section...)
	}
	return params, data
}

func encodeWriteDataItem(t *Tag, payload []byte) []byte {
	transportSize := writeTransportSize(t.DataType)
	var length int
	switch t.DataType {
	case TypeBit:
		length = t.Length
	case TypeString, TypeWString:
		length = len(payload)
	default:
		length = len(payload) * 8
	}

	section := []byte{0x00, transportSize, byte(length >> 8), byte(length)}
	return append(section, payload...)
}

// EncodeSetupCommRequest builds the COMM_SETUP parameter block.
func EncodeSetupCommRequest(requestedPDU uint16) []byte {
	return []byte{
		funcSetupComm,
		0x00,
		0x00, 0x01, // max AmQ calling
		0x00, 0x01, // max AmQ called
		byte(requestedPDU >> 8), byte(requestedPDU),
	}
}

// EncodeS7Header builds the 10-byte S7 header common to JOB requests
// (header fields before the ACK_DATA-only status bytes).
func EncodeS7Header(msgType byte, pduRef uint16, paramLen, dataLen int) []byte {
	h := make([]byte, 10)
	h[0] = protocolID
	h[1] = msgType
	// bytes 2-3 reserved
	binary.BigEndian.PutUint16(h[4:6], pduRef)
	binary.BigEndian.PutUint16(h[6:8], uint16(paramLen))
	binary.BigEndian.PutUint16(h[8:10], uint16(dataLen))
	return h
}

// EncodeJobRequest wraps params/data in a JOB S7 message.
func EncodeJobRequest(pduRef uint16, params, data []byte) []byte {
	header := EncodeS7Header(msgJob, pduRef, len(params), len(data))
	out := make([]byte, 0, len(header)+len(params)+len(data))
	out = append(out, header...)
	out = append(out, params...)
	out = append(out, data...)
	return out
}

// szlParamBlock builds the 8-byte USERDATA parameter block for a READ_SZL
// request or response. method is 0x11 for requests, 0x12 for responses.
func szlParamBlock(method byte, sequence byte) []byte {
	return []byte{0x00, 0x01, 0x12, 0x04, method, 0x44, 0x01, sequence}
}

// EncodeReadSZLRequest builds the USERDATA parameter+data blocks for a
// READ_SZL request identifying szlID/szlIndex, tagged with sequence for
// multi-fragment correlation.
func EncodeReadSZLRequest(szlID, szlIndex uint16, sequence byte) (params, data []byte) {
	params = szlParamBlock(0x11, sequence)
	data = []byte{
		0xFF, transportOctet,
		0x00, 0x04,
		byte(szlID >> 8), byte(szlID),
		byte(szlIndex >> 8), byte(szlIndex),
	}
	return params, data
}
