package s7

import "encoding/binary"

// WrapTPKT prefixes payload with the 4-byte TPKT header (version, reserved,
// total length).
func WrapTPKT(payload []byte) []byte {
	length := len(payload) + tpktHeaderSize
	out := make([]byte, 0, length)
	out = append(out, tpktVersion, 0x00, byte(length>>8), byte(length))
	out = append(out, payload...)
	return out
}

// UnwrapTPKT validates and strips a TPKT header from a full frame, returning
// the payload.
func UnwrapTPKT(frame []byte) ([]byte, error) {
	if len(frame) < tpktHeaderSize {
		return nil, &CommunicationError{Reason: "TPKT frame too short"}
	}
	if frame[0] != tpktVersion {
		return nil, &CommunicationError{Reason: "unexpected TPKT version"}
	}
	length := int(binary.BigEndian.Uint16(frame[2:4]))
	if length != len(frame) {
		return nil, &CommunicationError{Reason: "TPKT length does not match frame size"}
	}
	return frame[tpktHeaderSize:], nil
}

// cotpDataHeader is the fixed 3-byte COTP DT (data transfer) header used to
// wrap every S7 JOB/ACK_DATA/USERDATA message.
var cotpDataHeader = []byte{0x02, cotpDT, 0x80}

// WrapCOTPData prepends the COTP DT header to an S7 payload.
func WrapCOTPData(s7Payload []byte) []byte {
	out := make([]byte, 0, len(cotpDataHeader)+len(s7Payload))
	out = append(out, cotpDataHeader...)
	out = append(out, s7Payload...)
	return out
}

// UnwrapCOTPData validates and strips the COTP DT header from a TPKT
// payload.
func UnwrapCOTPData(payload []byte) ([]byte, error) {
	if len(payload) < 3 {
		return nil, &CommunicationError{Reason: "COTP payload too short"}
	}
	if payload[1] != cotpDT {
		return nil, &CommunicationError{Reason: "expected COTP DT PDU"}
	}
	return payload[3:], nil
}

// EncodeCOTPConnectRequest builds the COTP Connection Request TPDU
// (everything after the TPKT header) for the given local/remote TSAPs.
func EncodeCOTPConnectRequest(localTSAP, remoteTSAP uint16) []byte {
	cr := []byte{
		0x00,       // length, filled below
		cotpCR,     // PDU type
		0x00, 0x00, // destination reference
		0x00, 0x00, // source reference
		0x00, // class 0
	}
	cr = append(cr, cotpParamTPDUSize, 0x01, cotpTPDUSize1024)
	cr = append(cr, cotpParamSrcTSAP, 0x02, byte(localTSAP>>8), byte(localTSAP))
	cr = append(cr, cotpParamDstTSAP, 0x02, byte(remoteTSAP>>8), byte(remoteTSAP))
	cr[0] = byte(len(cr) - 1)
	return cr
}

// DecodeCOTPConnectConfirm validates a COTP Connection Confirm TPDU.
func DecodeCOTPConnectConfirm(cc []byte) error {
	if len(cc) < 2 {
		return &ConnectionError{Op: "COTP connect", Err: &CommunicationError{Reason: "CC too short"}}
	}
	if cc[1] != cotpCC {
		return &ConnectionError{Op: "COTP connect", Err: &CommunicationError{Reason: "expected COTP CC"}}
	}
	return nil
}
