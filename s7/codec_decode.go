package s7

import "encoding/binary"

// S7Header is the parsed form of the 10-byte (or 12-byte for ACK_DATA)
// S7 header.
type S7Header struct {
	MsgType    byte
	PDURef     uint16
	ParamLen   int
	DataLen    int
	ErrClass   byte // ACK_DATA only
	ErrCode    byte // ACK_DATA only
}

// DecodeS7Header parses the S7 header from the start of raw (the bytes
// immediately following the COTP DT header). It returns the header and the
// offset of the parameter block.
func DecodeS7Header(raw []byte) (S7Header, int, error) {
	if len(raw) < 10 {
		return S7Header{}, 0, &CommunicationError{Reason: "truncated S7 header"}
	}
	if raw[0] != protocolID {
		return S7Header{}, 0, &CommunicationError{Reason: "not an S7 frame (bad protocol id)"}
	}
	h := S7Header{
		MsgType:  raw[1],
		PDURef:   binary.BigEndian.Uint16(raw[4:6]),
		ParamLen: int(binary.BigEndian.Uint16(raw[6:8])),
		DataLen:  int(binary.BigEndian.Uint16(raw[8:10])),
	}
	offset := 10
	if h.MsgType == msgAckData {
		if len(raw) < 12 {
			return S7Header{}, 0, &CommunicationError{Reason: "truncated ACK_DATA header"}
		}
		h.ErrClass = raw[10]
		h.ErrCode = raw[11]
		offset = 12
	}
	return h, offset, nil
}

// ReadItemResult is one decoded entry of a READ_VAR response.
type ReadItemResult struct {
	ReturnCode byte
	Payload    []byte
}

// DecodeReadVarResponse parses a READ_VAR response parameter+data block into
// per-item results, in request order.
func DecodeReadVarResponse(params, data []byte, itemCount int) ([]ReadItemResult, error) {
	if len(params) < 2 || params[0] != funcReadVar {
		return nil, &CommunicationError{Reason: "expected READ_VAR response parameters"}
	}

	results := make([]ReadItemResult, 0, itemCount)
	pos := 0
	for i := 0; i < itemCount; i++ {
		if pos+4 > len(data) {
			return nil, &CommunicationError{Reason: "truncated READ_VAR data item"}
		}
		returnCode := data[pos]
		transportSize := data[pos+1]
		length := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		pos += 4

		byteLen := length
		if transportSize != transportOctet {
			byteLen = (length + 7) / 8
		}
		if returnCode != ReturnSuccess {
			byteLen = 0
		}
		if pos+byteLen > len(data) {
			return nil, &CommunicationError{Reason: "truncated READ_VAR payload"}
		}
		payload := append([]byte(nil), data[pos:pos+byteLen]...)
		pos += byteLen

		last := i == itemCount-1
		if !last && byteLen%2 == 1 {
			pos++ // skip padding byte
		}

		results = append(results, ReadItemResult{ReturnCode: returnCode, Payload: payload})
	}
	return results, nil
}

// DecodeWriteVarResponse parses a WRITE_VAR response into per-item return
// codes, in request order.
func DecodeWriteVarResponse(params, data []byte, itemCount int) ([]byte, error) {
	if len(params) < 2 || params[0] != funcWriteVar {
		return nil, &CommunicationError{Reason: "expected WRITE_VAR response parameters"}
	}
	if len(data) < itemCount {
		return nil, &CommunicationError{Reason: "truncated WRITE_VAR response"}
	}
	return append([]byte(nil), data[:itemCount]...), nil
}

// DecodedSZLResponse is one fragment of a READ_SZL response.
type DecodedSZLResponse struct {
	LastUnit bool
	Payload  []byte
}

// DecodeReadSZLResponse parses a single USERDATA READ_SZL response fragment.
// The "last data unit" flag is carried as the final byte of data (this
// module's own convention, since USERDATA framing is not otherwise
// standardized by a literal byte scenario).
func DecodeReadSZLResponse(data []byte) (DecodedSZLResponse, error) {
	if len(data) < 5 {
		return DecodedSZLResponse{}, &CommunicationError{Reason: "truncated SZL response data"}
	}
	returnCode := data[0]
	if returnCode != ReturnSuccess && returnCode != 0x0A {
		return DecodedSZLResponse{}, &ProtocolError{Class: errClassResource, Code: returnCode}
	}
	length := int(binary.BigEndian.Uint16(data[2:4]))
	if 4+length+1 > len(data) {
		return DecodedSZLResponse{}, &CommunicationError{Reason: "truncated SZL payload"}
	}
	payload := append([]byte(nil), data[4:4+length]...)
	lastFlag := data[4+length]
	return DecodedSZLResponse{LastUnit: lastFlag != 0, Payload: payload}, nil
}
