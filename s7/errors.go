package s7

import "fmt"

// ValidationError reports a Tag constructor invariant violation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("s7: invalid tag field %s: %s", e.Field, e.Reason)
}

// AddressFormatError reports a textual address that does not match the
// grammar in any of its accepted forms.
type AddressFormatError struct {
	Input  string
	Reason string
}

func (e *AddressFormatError) Error() string {
	return fmt.Sprintf("s7: invalid address %q: %s", e.Input, e.Reason)
}

// ConnectionError wraps a failure to establish or maintain the COTP/S7
// connection (DNS/TCP failure, COTP rejection, COMM_SETUP failure).
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("s7: connection error during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("s7: connection error during %s", e.Op)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// CommunicationError reports a mid-session transport failure: the peer
// closed the connection, sent an unexpected frame, or echoed the wrong PDU
// reference.
type CommunicationError struct {
	Reason string
	Err    error
}

func (e *CommunicationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("s7: communication error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("s7: communication error: %s", e.Reason)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// ProtocolError is a nonzero S7 error class/code returned in a response
// header, or a malformed header/transport-size field.
type ProtocolError struct {
	Class byte
	Code  byte
}

func (e *ProtocolError) Error() string {
	return protocolErrorMessage(e.Class, e.Code)
}

func protocolErrorMessage(class, code byte) string {
	switch class {
	case errClassNone:
		return "s7: no error"
	case errClassAppRelation:
		return fmt.Sprintf("s7: application relationship error (code 0x%02X)", code)
	case errClassObjDef:
		return fmt.Sprintf("s7: object definition error (code 0x%02X)", code)
	case errClassResource:
		return fmt.Sprintf("s7: resource error (code 0x%02X)", code)
	case errClassService:
		return fmt.Sprintf("s7: service error (code 0x%02X)", code)
	case errClassNoResource:
		return fmt.Sprintf("s7: no resource available - request may exceed negotiated PDU size (code 0x%02X)", code)
	case errClassAccess:
		return fmt.Sprintf("s7: access error (code 0x%02X)", code)
	default:
		return fmt.Sprintf("s7: protocol error class 0x%02X code 0x%02X", class, code)
	}
}

// TimeoutError reports a send or receive that exceeded the configured
// per-operation timeout.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("s7: timed out during %s", e.Op)
}

// PDUError reports that the planner could not fit a non-chunkable tag into
// the negotiated PDU size.
type PDUError struct {
	Tag       string
	Required  int
	Available int
}

func (e *PDUError) Error() string {
	return fmt.Sprintf("s7: tag %s needs %d bytes but only %d are available in the negotiated PDU",
		e.Tag, e.Required, e.Available)
}

// ReadItemError reports a per-item failure inside an otherwise successful
// READ_VAR response.
type ReadItemError struct {
	Tag  string
	Code byte
}

func (e *ReadItemError) Error() string {
	return fmt.Sprintf("s7: read %s failed: %s (0x%02X)", e.Tag, returnCodeName(e.Code), e.Code)
}

// WriteItemError reports a per-item failure inside an otherwise successful
// WRITE_VAR response.
type WriteItemError struct {
	Tag  string
	Code byte
}

func (e *WriteItemError) Error() string {
	return fmt.Sprintf("s7: write %s failed: %s (0x%02X)", e.Tag, returnCodeName(e.Code), e.Code)
}

// ValueError reports a value/type mismatch on write, an oversized string, or
// an array length mismatch.
type ValueError struct {
	Tag    string
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("s7: value error for %s: %s", e.Tag, e.Reason)
}

// RollbackError wraps a batch-write failure together with any secondary
// errors encountered while trying to restore the pre-transaction values.
type RollbackError struct {
	Cause            error
	RollbackFailures []error
}

func (e *RollbackError) Error() string {
	if len(e.RollbackFailures) == 0 {
		return fmt.Sprintf("s7: batch write failed: %v", e.Cause)
	}
	return fmt.Sprintf("s7: batch write failed: %v (rollback also failed for %d item(s): %v)",
		e.Cause, len(e.RollbackFailures), e.RollbackFailures)
}

func (e *RollbackError) Unwrap() error { return e.Cause }
