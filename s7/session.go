package s7

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// State is one node of the session's connection state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateNegotiating
	StateReady
	StateInRequest
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateNegotiating:
		return "Negotiating"
	case StateReady:
		return "Ready"
	case StateInRequest:
		return "InRequest"
	case StateClosing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// ConnectionType names the PLC-side role a session presents itself as.
type ConnectionType int

const (
	ConnS7Basic ConnectionType = iota
	ConnPG
	ConnOP
)

// options holds the resolved settings for a Session, built from the
// functional Option values passed to NewSession/NewSessionWithTSAP.
type options struct {
	pduSize        uint16
	timeout        time.Duration
	connectionType ConnectionType
	logger         Logger
}

// Option configures a Session at construction time.
type Option func(*options)

// WithPDUSize overrides the requested PDU size (default 960, clamped to
// [240, 960]).
func WithPDUSize(n uint16) Option {
	return func(o *options) { o.pduSize = n }
}

// WithTimeout overrides the per-operation timeout (default 5s).
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithConnectionType records the connection type in the session options
// (default S7Basic). The stored value does not change the TSAPs or any
// frame the session sends.
func WithConnectionType(c ConnectionType) Option {
	return func(o *options) { o.connectionType = c }
}

// WithLogger injects a Logger the session emits debug/error events to. The
// default is a no-op logger.
func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

func defaultOptions() options {
	return options{
		pduSize:        defaultRequestedPDUSize,
		timeout:        5 * time.Second,
		connectionType: ConnS7Basic,
		logger:         noopLogger{},
	}
}

// Session is a synchronous, single-threaded-per-instance S7 client. A
// Session must not be shared across goroutines without external
// synchronization; callers that need concurrency should own one Session per
// goroutine.
type Session struct {
	mu sync.Mutex

	host       string
	localTSAP  uint16
	remoteTSAP uint16
	opts       options

	conn            net.Conn
	state           State
	negotiatedPDU   uint16
	nextPDURef      uint16
	lastSZLSequence byte
}

// NewSession builds a Session targeting host at the given rack/slot (the
// remote TSAP is derived via TsapFromRackSlot).
func NewSession(host string, rack, slot int, opts ...Option) *Session {
	return NewSessionWithTSAP(host, defaultLocalTSAP, TsapFromRackSlot(rack, slot), opts...)
}

// NewSessionWithTSAP builds a Session with explicit local/remote TSAPs.
func NewSessionWithTSAP(host string, localTSAP, remoteTSAP uint16, opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.pduSize < minPDUSize {
		o.pduSize = minPDUSize
	}
	if o.pduSize > maxPDUSize {
		o.pduSize = maxPDUSize
	}
	return &Session{
		host:       host,
		localTSAP:  localTSAP,
		remoteTSAP: remoteTSAP,
		opts:       o,
		state:      StateDisconnected,
	}
}

// IsConnected reports whether the session is in the Ready state.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateReady
}

// PDUSize returns the negotiated PDU size (0 before Connect succeeds).
func (s *Session) PDUSize() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.negotiatedPDU
}

// Connect opens the TCP connection, performs the COTP CR/CC exchange, and
// negotiates the S7 PDU size via COMM_SETUP.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateConnecting
	address := s.host
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = fmt.Sprintf("%s:%d", s.host, defaultS7Port)
	}

	s.opts.logger.Debugf("s7: connecting to %s", address)
	conn, err := net.DialTimeout("tcp", address, s.opts.timeout)
	if err != nil {
		s.state = StateDisconnected
		s.opts.logger.Errorf("s7: connect to %s failed: %v", address, err)
		return &ConnectionError{Op: "dial", Err: err}
	}
	s.conn = conn

	if err := s.cotpConnect(); err != nil {
		conn.Close()
		s.conn = nil
		s.state = StateDisconnected
		s.opts.logger.Errorf("s7: COTP connect failed: %v", err)
		return &ConnectionError{Op: "COTP connect", Err: err}
	}

	s.state = StateNegotiating
	negotiated, err := s.setupComm()
	if err != nil {
		conn.Close()
		s.conn = nil
		s.state = StateDisconnected
		s.opts.logger.Errorf("s7: COMM_SETUP failed: %v", err)
		return &ConnectionError{Op: "COMM_SETUP", Err: err}
	}
	s.negotiatedPDU = negotiated
	s.nextPDURef = 1
	s.state = StateReady
	s.opts.logger.Debugf("s7: ready, negotiated PDU size %d", negotiated)
	return nil
}

// Disconnect closes the socket unconditionally and returns the session to
// Disconnected. It is idempotent.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnectLocked()
}

func (s *Session) disconnectLocked() error {
	s.state = StateClosing
	var err error
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
	}
	s.state = StateDisconnected
	return err
}

func (s *Session) cotpConnect() error {
	cr := EncodeCOTPConnectRequest(s.localTSAP, s.remoteTSAP)
	if err := s.sendRaw(cr); err != nil {
		return err
	}
	cc, err := s.recvRaw()
	if err != nil {
		return err
	}
	return DecodeCOTPConnectConfirm(cc)
}

func (s *Session) setupComm() (uint16, error) {
	params := EncodeSetupCommRequest(s.opts.pduSize)
	ref := s.allocatePDURef()
	req := EncodeJobRequest(ref, params, nil)
	resp, err := s.exchange(req)
	if err != nil {
		return 0, err
	}
	header, off, err := DecodeS7Header(resp)
	if err != nil {
		return 0, err
	}
	if header.PDURef != ref {
		return 0, &CommunicationError{Reason: "PDU reference mismatch during COMM_SETUP"}
	}
	if header.ErrClass != errClassNone {
		return 0, &ProtocolError{Class: header.ErrClass, Code: header.ErrCode}
	}
	paramBlock := resp[off : off+header.ParamLen]
	if len(paramBlock) < 8 {
		return 0, &CommunicationError{Reason: "truncated COMM_SETUP response"}
	}
	serverProposed := uint16(paramBlock[6])<<8 | uint16(paramBlock[7])
	negotiated := s.opts.pduSize
	if serverProposed < negotiated {
		negotiated = serverProposed
	}
	return negotiated, nil
}

// allocatePDURef returns the next PDU reference, incrementing modulo 2^16
// and skipping 0 on wraparound.
func (s *Session) allocatePDURef() uint16 {
	ref := s.nextPDURef
	s.nextPDURef++
	if s.nextPDURef == 0 {
		s.nextPDURef = 1
	}
	return ref
}

// sendRaw wraps a COTP-layer payload (CR/CC) in TPKT and writes it.
func (s *Session) sendRaw(payload []byte) error {
	frame := WrapTPKT(payload)
	s.opts.logger.Debugf("s7 TX (%d bytes):\n%s", len(frame), hexDump(frame))
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.timeout)); err != nil {
		return &TimeoutError{Op: "set write deadline"}
	}
	_, err := s.conn.Write(frame)
	return err
}

// recvRaw reads one TPKT frame and returns its COTP-layer payload.
func (s *Session) recvRaw() ([]byte, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.timeout)); err != nil {
		return nil, &TimeoutError{Op: "set read deadline"}
	}
	header := make([]byte, tpktHeaderSize)
	if _, err := io.ReadFull(s.conn, header); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, &TimeoutError{Op: "recv TPKT header"}
		}
		return nil, &CommunicationError{Reason: "reading TPKT header", Err: err}
	}
	if header[0] != tpktVersion {
		return nil, &CommunicationError{Reason: "unexpected TPKT version"}
	}
	length := int(header[2])<<8 | int(header[3])
	if length < tpktHeaderSize {
		return nil, &CommunicationError{Reason: "invalid TPKT length"}
	}
	payload := make([]byte, length-tpktHeaderSize)
	if _, err := io.ReadFull(s.conn, payload); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, &TimeoutError{Op: "recv TPKT payload"}
		}
		return nil, &CommunicationError{Reason: "reading TPKT payload", Err: err}
	}
	full := make([]byte, 0, len(header)+len(payload))
	full = append(full, header...)
	full = append(full, payload...)
	s.opts.logger.Debugf("s7 RX (%d bytes):\n%s", len(full), hexDump(full))
	return payload, nil
}

// exchange sends an S7 payload wrapped in a COTP DT TPDU and returns the
// peer's S7 payload (COTP DT header stripped).
func (s *Session) exchange(s7Payload []byte) ([]byte, error) {
	payload := WrapCOTPData(s7Payload)
	if err := s.sendRaw(payload); err != nil {
		s.disconnectLocked()
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, &TimeoutError{Op: "send"}
		}
		return nil, &CommunicationError{Reason: "send failed", Err: err}
	}
	resp, err := s.recvRaw()
	if err != nil {
		s.disconnectLocked()
		return nil, err
	}
	return UnwrapCOTPData(resp)
}

// ItemResult is one per-tag outcome of a detailed read or write.
type ItemResult struct {
	Tag   string
	Value Value
	Err   error
}

// Read parses addrs, plans and executes read batches (coalescing tags when
// optimize is true), and returns decoded values in the caller's order. It
// fails on the first per-item error.
func (s *Session) Read(addrs []string, optimize bool) ([]Value, error) {
	tags, err := parseAll(addrs)
	if err != nil {
		return nil, err
	}
	results, err := s.ReadTags(tags, optimize)
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(results))
	for i, r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		out[i] = r.Value
	}
	return out, nil
}

// ReadDetailed is like Read but never fails on a per-item error; each
// result entry carries its own error instead.
func (s *Session) ReadDetailed(addrs []string) ([]ItemResult, error) {
	tags, err := parseAll(addrs)
	if err != nil {
		return nil, err
	}
	return s.ReadTags(tags, true)
}

func parseAll(addrs []string) ([]*Tag, error) {
	tags := make([]*Tag, len(addrs))
	for i, a := range addrs {
		t, err := ParseAddress(a)
		if err != nil {
			return nil, err
		}
		tags[i] = t
	}
	return tags, nil
}

// ReadTags executes a read for pre-built tag descriptors.
func (s *Session) ReadTags(tags []*Tag, optimize bool) ([]ItemResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return nil, &ConnectionError{Op: "read", Err: fmt.Errorf("session is %s, not Ready", s.state)}
	}

	results := make([]ItemResult, len(tags))
	for i, t := range tags {
		results[i].Tag = t.Format()
	}

	plan, err := PlanReads(tags, s.negotiatedPDU, optimize)
	if err != nil {
		return nil, err
	}

	s.state = StateInRequest
	defer func() {
		if s.state == StateInRequest {
			s.state = StateReady
		}
	}()

	for _, batch := range plan.Batches {
		itemTags := make([]*Tag, len(batch.Items))
		for i, it := range batch.Items {
			itemTags[i] = it.Tag
		}
		params := EncodeReadVarRequest(itemTags)
		ref := s.allocatePDURef()
		req := EncodeJobRequest(ref, params, nil)
		resp, err := s.exchange(req)
		if err != nil {
			return nil, err
		}
		header, off, err := DecodeS7Header(resp)
		if err != nil {
			return nil, err
		}
		if header.PDURef != ref {
			s.disconnectLocked()
			return nil, &CommunicationError{Reason: "PDU reference mismatch on read response"}
		}
		if header.ErrClass != errClassNone {
			return nil, &ProtocolError{Class: header.ErrClass, Code: header.ErrCode}
		}
		respParams := resp[off : off+header.ParamLen]
		respData := resp[off+header.ParamLen : off+header.ParamLen+header.DataLen]

		items, err := DecodeReadVarResponse(respParams, respData, len(batch.Items))
		if err != nil {
			return nil, err
		}
		for i, it := range items {
			plannedTag := batch.Items[i].Tag
			if it.ReturnCode != ReturnSuccess {
				for _, src := range batch.Items[i].Sources {
					results[src.OriginalIndex].Err = &ReadItemError{Tag: plannedTag.Format(), Code: it.ReturnCode}
				}
				continue
			}
			for _, src := range batch.Items[i].Sources {
				slice := it.Payload[src.ByteOffset : src.ByteOffset+src.ByteLength]
				v, err := DecodeValue(&Tag{
					Area: plannedTag.Area, DBNumber: plannedTag.DBNumber, DataType: elementTypeFor(plannedTag, src),
					Start: plannedTag.Start + src.ByteOffset, BitOffset: 0, Length: elementLengthFor(plannedTag, src),
				}, slice)
				if err != nil {
					results[src.OriginalIndex].Err = err
					continue
				}
				results[src.OriginalIndex].Value = v
			}
		}
	}

	for _, ot := range plan.Oversize {
		v, err := s.readChunkedString(ot.Tag)
		if err != nil {
			results[ot.OriginalIndex].Err = err
			continue
		}
		results[ot.OriginalIndex].Value = v
	}

	return results, nil
}

// elementTypeFor returns the per-original-tag data type to decode a
// coalesced read slice with: the coalesced tag's own type, since
// coalescing only ever merges same-family tags.
func elementTypeFor(coalesced *Tag, src ItemSource) DataType {
	return coalesced.DataType
}

// elementLengthFor recovers the original tag's element length from its
// recorded byte span, using the coalesced tag's stride.
func elementLengthFor(coalesced *Tag, src ItemSource) int {
	stride := elementStride[coalesced.DataType]
	if stride == 0 {
		return 1
	}
	return src.ByteLength / stride
}

// readChunkedString performs the transparent chunked read described in
// §4.F.3/§4.G: a small header read followed by payload reads sized to fit
// the negotiated PDU, concatenated and decoded as text.
func (s *Session) readChunkedString(t *Tag) (Value, error) {
	headerLen := 2
	if t.DataType == TypeWString {
		headerLen = 4
	}
	headerTag, err := NewTag(t.Area, t.DBNumber, TypeByte, t.Start, 0, headerLen)
	if err != nil {
		return Value{}, err
	}
	header, err := s.readRawBytes(headerTag)
	if err != nil {
		return Value{}, err
	}

	var curLen, totalPayload int
	if t.DataType == TypeString {
		curLen = int(header[1])
		totalPayload = t.Length
	} else {
		curLen = int(header[2])<<8 | int(header[3])
		totalPayload = t.Length * 2
	}

	maxChunk := int(s.negotiatedPDU) - perPDUOverhead
	if t.DataType == TypeWString {
		maxChunk = ceilEven(maxChunk)
	}

	payload := make([]byte, 0, totalPayload)
	for offset := 0; offset < totalPayload; offset += maxChunk {
		n := maxChunk
		if offset+n > totalPayload {
			n = totalPayload - offset
		}
		chunkTag, err := NewTag(t.Area, t.DBNumber, TypeByte, t.Start+headerLen+offset, 0, n)
		if err != nil {
			return Value{}, err
		}
		chunk, err := s.readRawBytes(chunkTag)
		if err != nil {
			return Value{}, err
		}
		payload = append(payload, chunk...)
	}

	full := append(append([]byte{}, header...), payload...)
	return DecodeValue(t, full[:headerLen+curLenBytes(t, curLen)])
}

func curLenBytes(t *Tag, curLen int) int {
	if t.DataType == TypeWString {
		return curLen * 2
	}
	return curLen
}

// readRawBytes issues a single unbatched READ_VAR for one tag and returns
// its raw payload, bypassing the planner (used for chunked-string reads
// whose sizing the planner has already bounded to the PDU).
func (s *Session) readRawBytes(t *Tag) ([]byte, error) {
	params := EncodeReadVarRequest([]*Tag{t})
	ref := s.allocatePDURef()
	req := EncodeJobRequest(ref, params, nil)
	resp, err := s.exchange(req)
	if err != nil {
		return nil, err
	}
	header, off, err := DecodeS7Header(resp)
	if err != nil {
		return nil, err
	}
	if header.PDURef != ref {
		s.disconnectLocked()
		return nil, &CommunicationError{Reason: "PDU reference mismatch on read response"}
	}
	if header.ErrClass != errClassNone {
		return nil, &ProtocolError{Class: header.ErrClass, Code: header.ErrCode}
	}
	respParams := resp[off : off+header.ParamLen]
	respData := resp[off+header.ParamLen : off+header.ParamLen+header.DataLen]
	items, err := DecodeReadVarResponse(respParams, respData, 1)
	if err != nil {
		return nil, err
	}
	if items[0].ReturnCode != ReturnSuccess {
		return nil, &ReadItemError{Tag: t.Format(), Code: items[0].ReturnCode}
	}
	return items[0].Payload, nil
}

// Write validates and encodes values for addrs, plans and executes write
// batches, and fails on the first per-item error.
func (s *Session) Write(addrs []string, values []Value) error {
	results, err := s.WriteDetailed(addrs, values)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// WriteDetailed is like Write but never fails on a per-item error.
func (s *Session) WriteDetailed(addrs []string, values []Value) ([]ItemResult, error) {
	tags, err := parseAll(addrs)
	if err != nil {
		return nil, err
	}
	if len(tags) != len(values) {
		return nil, &ValueError{Reason: "tag/value count mismatch"}
	}

	payloads := make([][]byte, len(tags))
	for i, t := range tags {
		p, err := EncodeValue(t, values[i])
		if err != nil {
			return nil, err
		}
		payloads[i] = p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return nil, &ConnectionError{Op: "write", Err: fmt.Errorf("session is %s, not Ready", s.state)}
	}

	results := make([]ItemResult, len(tags))
	for i, t := range tags {
		results[i].Tag = t.Format()
	}

	batches, err := PlanWrites(tags, payloads, s.negotiatedPDU)
	if err != nil {
		return nil, err
	}

	s.state = StateInRequest
	defer func() {
		if s.state == StateInRequest {
			s.state = StateReady
		}
	}()

	for _, batch := range batches {
		params, data := EncodeWriteVarRequest(batch.Tags, batch.Payloads)
		ref := s.allocatePDURef()
		req := EncodeJobRequest(ref, params, data)
		resp, err := s.exchange(req)
		if err != nil {
			return nil, err
		}
		header, off, err := DecodeS7Header(resp)
		if err != nil {
			return nil, err
		}
		if header.PDURef != ref {
			s.disconnectLocked()
			return nil, &CommunicationError{Reason: "PDU reference mismatch on write response"}
		}
		if header.ErrClass != errClassNone {
			return nil, &ProtocolError{Class: header.ErrClass, Code: header.ErrCode}
		}
		respParams := resp[off : off+header.ParamLen]
		respData := resp[off+header.ParamLen : off+header.ParamLen+header.DataLen]
		codes, err := DecodeWriteVarResponse(respParams, respData, len(batch.Tags))
		if err != nil {
			return nil, err
		}
		for i, code := range codes {
			origIdx := batch.Indices[i]
			if code != ReturnSuccess {
				results[origIdx].Err = &WriteItemError{Tag: batch.Tags[i].Format(), Code: code}
			} else {
				results[origIdx].Value = values[origIdx]
			}
		}
	}

	return results, nil
}

// BatchWrite opens a transactional scope over addrs/values: it records the
// current value of each tag, writes the new values, and on any error writes
// the originals back before surfacing the error.
func (s *Session) BatchWrite(addrs []string, values []Value) error {
	originals, err := s.Read(addrs, false)
	if err != nil {
		return err
	}

	writeErr := s.Write(addrs, values)
	if writeErr == nil {
		return nil
	}

	results, rbErr := s.WriteDetailed(addrs, originals)
	if rbErr != nil {
		return &RollbackError{Cause: writeErr, RollbackFailures: []error{rbErr}}
	}
	var failures []error
	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, r.Err)
		}
	}
	if len(failures) > 0 {
		return &RollbackError{Cause: writeErr, RollbackFailures: failures}
	}
	return &RollbackError{Cause: writeErr}
}

// GetCPUStatus issues an SZL read of CPU_DIAGNOSTIC_STATUS and decodes the
// run/stop byte.
func (s *Session) GetCPUStatus() (string, error) {
	payload, err := s.readSZL(szlCPUDiagnosticStatus, 0)
	if err != nil {
		return "", err
	}
	if len(payload) < 4 {
		return "", &ProtocolError{Class: errClassResource, Code: 0}
	}
	switch payload[3] {
	case 0x08:
		return "RUN", nil
	case 0x03:
		return "STOP", nil
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", payload[3]), nil
	}
}

// ModuleInfo is one decoded module record from an SZL MODULE_IDENT read.
type ModuleInfo struct {
	Index          uint16
	OrderNumber    string
	HardwareVer    string
	FirmwareVer    string
}

// GetCPUInfo issues an SZL read of MODULE_IDENT and decodes each 28-byte
// module record.
func (s *Session) GetCPUInfo() ([]ModuleInfo, error) {
	payload, err := s.readSZL(szlModuleIdent, 0)
	if err != nil {
		return nil, err
	}

	const recordSize = 28
	var modules []ModuleInfo
	for off := 0; off+recordSize <= len(payload); off += recordSize {
		rec := payload[off : off+recordSize]
		index := uint16(rec[0])<<8 | uint16(rec[1])
		orderNumber := trimOrderNumber(rec[2:22])
		hw := rec[24:26]
		fw := rec[26:28]
		modules = append(modules, ModuleInfo{
			Index:       index,
			OrderNumber: orderNumber,
			HardwareVer: decodeHardwareVersion(hw),
			FirmwareVer: decodeFirmwareVersion(fw),
		})
	}
	return modules, nil
}

func trimOrderNumber(raw []byte) string {
	end := len(raw)
	for end > 0 && (raw[end-1] == ' ' || raw[end-1] == 0x00) {
		end--
	}
	return string(raw[:end])
}

// decodeHardwareVersion follows the source's quirky rule: if the high byte
// is nonzero it's read as a packed BCD-ish nibble pair; otherwise it falls
// back to the low byte as a plain decimal version.
func decodeHardwareVersion(hw []byte) string {
	if hw[0] != 0 {
		return fmt.Sprintf("V%d.%d", hw[0]>>4, hw[0]&0x0F)
	}
	return fmt.Sprintf("V%d", hw[1])
}

// decodeFirmwareVersion returns "N/A" when both bytes are ASCII spaces, the
// observed behavior on some CPUs that don't populate this field. Do not
// fabricate a version in that case.
func decodeFirmwareVersion(fw []byte) string {
	if fw[0] == 0x20 && fw[1] == 0x20 {
		return "N/A"
	}
	return fmt.Sprintf("V%d.%d", fw[0], fw[1])
}

// readSZL performs one or more USERDATA READ_SZL round trips, reassembling
// multi-fragment responses by incrementing the sequence number and
// re-issuing until the last-data-unit flag is set.
func (s *Session) readSZL(szlID, szlIndex uint16) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return nil, &ConnectionError{Op: "SZL read", Err: fmt.Errorf("session is %s, not Ready", s.state)}
	}

	var out []byte
	var sequence byte
	for {
		params, data := EncodeReadSZLRequest(szlID, szlIndex, sequence)
		ref := s.allocatePDURef()
		header := EncodeS7Header(msgUserData, ref, len(params), len(data))
		req := append(append(append([]byte{}, header...), params...), data...)
		resp, err := s.exchange(req)
		if err != nil {
			return nil, err
		}
		h, off, err := DecodeS7Header(resp)
		if err != nil {
			return nil, err
		}
		if h.PDURef != ref {
			s.disconnectLocked()
			return nil, &CommunicationError{Reason: "PDU reference mismatch on SZL response"}
		}
		respData := resp[off+h.ParamLen : off+h.ParamLen+h.DataLen]
		frag, err := DecodeReadSZLResponse(respData)
		if err != nil {
			return nil, err
		}
		out = append(out, frag.Payload...)
		if frag.LastUnit {
			break
		}
		sequence++
	}
	return out, nil
}
