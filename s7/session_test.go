package s7

import (
	"encoding/binary"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePLC is a minimal in-memory S7 server used to exercise Session's
// connect/read/write round trip without a real PLC. It understands just
// enough of COTP/COMM_SETUP/READ_VAR/WRITE_VAR to drive the scenarios this
// test suite covers.
type fakePLC struct {
	listener net.Listener
	store    map[[2]int][]byte // keyed by (area, dbNumber)
	pduSize  uint16
}

func newFakePLC(t *testing.T) *fakePLC {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return &fakePLC{listener: ln, store: make(map[[2]int][]byte), pduSize: 240}
}

func (f *fakePLC) addr() string { return f.listener.Addr().String() }

func (f *fakePLC) bytesFor(area Area, db int, start, length int) []byte {
	key := [2]int{int(area), db}
	buf := f.store[key]
	if len(buf) < start+length {
		grown := make([]byte, start+length)
		copy(grown, buf)
		buf = grown
		f.store[key] = buf
	}
	return buf[start : start+length]
}

func (f *fakePLC) serveOne(t *testing.T) {
	t.Helper()
	conn, err := f.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		frame, err := readTPKT(conn)
		if err != nil {
			return
		}
		if frame[1] == cotpCR {
			cc := []byte{0x06, cotpCC, 0x00, 0x01, 0x00, 0x00, 0x00}
			conn.Write(WrapTPKT(cc))
			continue
		}

		s7payload, err := UnwrapCOTPData(frame)
		if err != nil {
			return
		}
		header, off, err := DecodeS7Header(s7payload)
		if err != nil {
			return
		}
		params := s7payload[off : off+header.ParamLen]
		data := s7payload[off+header.ParamLen : off+header.ParamLen+header.DataLen]

		switch {
		case header.MsgType == msgJob && len(params) > 0 && params[0] == funcSetupComm:
			respParams := []byte{funcSetupComm, 0x00, 0x00, 0x01, 0x00, 0x01, byte(f.pduSize >> 8), byte(f.pduSize)}
			f.sendAck(conn, header.PDURef, respParams, nil)

		case header.MsgType == msgJob && len(params) > 0 && params[0] == funcReadVar:
			f.handleReadVar(conn, header.PDURef, params)

		case header.MsgType == msgJob && len(params) > 0 && params[0] == funcWriteVar:
			f.handleWriteVar(conn, header.PDURef, params, data)

		default:
			return
		}
	}
}

func (f *fakePLC) sendAck(conn net.Conn, pduRef uint16, params, data []byte) {
	h := make([]byte, 12)
	h[0] = protocolID
	h[1] = msgAckData
	binary.BigEndian.PutUint16(h[4:6], pduRef)
	binary.BigEndian.PutUint16(h[6:8], uint16(len(params)))
	binary.BigEndian.PutUint16(h[8:10], uint16(len(data)))
	out := append(append(append([]byte{}, h...), params...), data...)
	conn.Write(WrapTPKT(WrapCOTPData(out)))
}

type decodedItem struct {
	area       Area
	db         int
	transport  byte
	elemCount  int
	start      int
	bitOffset  int
}

func decodeItems(params []byte) []decodedItem {
	count := int(params[1])
	var items []decodedItem
	pos := 2
	for i := 0; i < count; i++ {
		spec := params[pos : pos+12]
		transport := spec[3]
		elemCount := int(spec[4])<<8 | int(spec[5])
		db := int(spec[6])<<8 | int(spec[7])
		area := Area(spec[8])
		addr := int(spec[9])<<16 | int(spec[10])<<8 | int(spec[11])
		items = append(items, decodedItem{
			area: area, db: db, transport: transport, elemCount: elemCount,
			start: addr >> 3, bitOffset: addr & 0x7,
		})
		pos += 12
	}
	return items
}

func (f *fakePLC) handleReadVar(conn net.Conn, pduRef uint16, params []byte) {
	items := decodeItems(params)
	respData := make([]byte, 0)
	for i, it := range items {
		byteLen := it.elemCount
		switch it.transport {
		case transportBit:
			byteLen = 1
		case transportWord:
			byteLen = it.elemCount * 2
		case transportDWord:
			byteLen = it.elemCount * 4
		}
		raw := f.bytesFor(it.area, it.db, it.start, byteLen)
		lengthField := byteLen * 8
		if it.transport == transportBit {
			lengthField = it.elemCount
		}
		if it.transport == transportOctet {
			lengthField = byteLen
		}
		section := []byte{ReturnSuccess, it.transport, byte(lengthField >> 8), byte(lengthField)}
		section = append(section, raw...)
		if i < len(items)-1 && len(section)%2 == 1 {
			section = append(section, 0x00)
		}
		respData = append(respData, section...)
	}
	respParams := []byte{funcReadVar, byte(len(items))}
	f.sendAck(conn, pduRef, respParams, respData)
}

func (f *fakePLC) handleWriteVar(conn net.Conn, pduRef uint16, params, data []byte) {
	items := decodeItems(params)
	pos := 0
	codes := make([]byte, 0, len(items))
	for i, it := range items {
		transportSize := data[pos+1]
		length := int(data[pos+2])<<8 | int(data[pos+3])
		pos += 4
		byteLen := length
		if transportSize != transportOctet {
			byteLen = (length + 7) / 8
		}
		payload := data[pos : pos+byteLen]
		pos += byteLen
		if i < len(items)-1 && byteLen%2 == 1 {
			pos++
		}

		if transportSize == transportChar && it.transport == transportBit {
			// bit write: merge into the addressed byte, preserving other bits
			dst := f.bytesFor(it.area, it.db, it.start, 1)
			if payload[0] != 0 {
				dst[0] |= 1 << uint(it.bitOffset)
			} else {
				dst[0] &^= 1 << uint(it.bitOffset)
			}
		} else {
			dst := f.bytesFor(it.area, it.db, it.start, byteLen)
			copy(dst, payload)
		}
		codes = append(codes, ReturnSuccess)
	}
	respParams := []byte{funcWriteVar, byte(len(items))}
	f.sendAck(conn, pduRef, respParams, codes)
}

func readTPKT(conn net.Conn) ([]byte, error) {
	header := make([]byte, tpktHeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, err
	}
	length := int(header[2])<<8 | int(header[3])
	payload := make([]byte, length-tpktHeaderSize)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// TestS7_WriteThenRead matches the first half of scenario S7: an INT write
// then read round trip. The bit write that preserves its sibling bits is
// covered by TestS7_BitWritePreservesSiblingBits.
func TestS7_WriteThenRead(t *testing.T) {
	plc := newFakePLC(t)
	defer plc.listener.Close()
	go plc.serveOne(t)

	sess := NewSession(plc.addr(), 0, 1, WithTimeout(2*time.Second))
	require.NoError(t, sess.Connect())
	defer sess.Disconnect()

	assert.True(t, sess.IsConnected())
	assert.Equal(t, uint16(240), sess.PDUSize())

	require.NoError(t, sess.Write([]string{"DB1,I30"}, []Value{IntValue(25000)}))
	values, err := sess.Read([]string{"DB1,I30"}, false)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, int64(25000), values[0].Int)
}

func TestS7_BitWritePreservesSiblingBits(t *testing.T) {
	plc := newFakePLC(t)
	defer plc.listener.Close()
	go plc.serveOne(t)

	sess := NewSession(plc.addr(), 0, 1, WithTimeout(2*time.Second))
	require.NoError(t, sess.Connect())
	defer sess.Disconnect()

	// Seed byte 0 of DB1 with bits 0-5 and 7 already set.
	plc.bytesFor(AreaDB, 1, 0, 1)[0] = 0b1011_1111

	require.NoError(t, sess.Write([]string{"DB1,X0.6"}, []Value{BoolValue(true)}))

	got := plc.bytesFor(AreaDB, 1, 0, 1)[0]
	assert.Equal(t, byte(0b1111_1111), got)
}

func TestConnect_PDUNegotiation(t *testing.T) {
	plc := newFakePLC(t)
	plc.pduSize = 480
	defer plc.listener.Close()
	go plc.serveOne(t)

	sess := NewSession(plc.addr(), 0, 2, WithPDUSize(960), WithTimeout(2*time.Second))
	require.NoError(t, sess.Connect())
	defer sess.Disconnect()

	assert.Equal(t, uint16(480), sess.PDUSize())
}

func TestReadBeforeConnect_Fails(t *testing.T) {
	sess := NewSession("127.0.0.1:1", 0, 1)
	_, err := sess.Read([]string{"DB1,I30"}, true)
	assert.Error(t, err)
	var connErr *ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

// TestS6_ChunkedStringRead matches scenario S6: a STRING[254] at
// DB1,S10.254 with PDU=240 does not fit a single READ_VAR response, so the
// planner marks it oversize and the session falls back to a header read
// followed by payload reads sized to fit the negotiated PDU.
func TestS6_ChunkedStringRead(t *testing.T) {
	plc := newFakePLC(t)
	defer plc.listener.Close()
	go plc.serveOne(t)

	sess := NewSession(plc.addr(), 0, 1, WithTimeout(2*time.Second))
	require.NoError(t, sess.Connect())
	defer sess.Disconnect()
	require.Equal(t, uint16(240), sess.PDUSize())

	tag, err := ParseAddress("DB1,S10.254")
	require.NoError(t, err)

	text := strings.Repeat("x", 200)
	payload, err := EncodeValue(tag, TextValue(text))
	require.NoError(t, err)
	copy(plc.bytesFor(AreaDB, 1, 10, len(payload)), payload)

	plan, err := PlanReads([]*Tag{tag}, sess.PDUSize(), true)
	require.NoError(t, err)
	assert.Empty(t, plan.Batches)
	require.Len(t, plan.Oversize, 1)

	values, err := sess.Read([]string{"DB1,S10.254"}, true)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, text, values[0].Text)
}
