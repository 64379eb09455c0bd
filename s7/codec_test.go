package s7

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hexBytes(t *testing.T, s string) []byte {
	t.Helper()
	b := make([]byte, 0)
	var hi byte
	have := false
	for _, c := range s {
		if c == ' ' {
			continue
		}
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = byte(c - '0')
		case c >= 'A' && c <= 'F':
			v = byte(c-'A') + 10
		case c >= 'a' && c <= 'f':
			v = byte(c-'a') + 10
		default:
			t.Fatalf("bad hex char %q", c)
		}
		if !have {
			hi = v
			have = true
		} else {
			b = append(b, hi<<4|v)
			have = false
		}
	}
	return b
}

// TestS1_COTPConnectRequest matches scenario S1: COTP CR bytes for rack 0
// slot 1, default local TSAP 0x0100.
func TestS1_COTPConnectRequest(t *testing.T) {
	want := hexBytes(t, "03 00 00 16 11 E0 00 00 00 00 00 C0 01 0A C1 02 01 00 C2 02 01 01")

	remoteTSAP := TsapFromRackSlot(0, 1)
	cr := EncodeCOTPConnectRequest(defaultLocalTSAP, remoteTSAP)
	got := WrapTPKT(cr)

	assert.Equal(t, want, got)
}

// TestS2_CommSetupJob matches scenario S2: COMM_SETUP job, PDU-ref 0x0001,
// requested PDU 0x03C0.
func TestS2_CommSetupJob(t *testing.T) {
	want := hexBytes(t, "03 00 00 19 02 F0 80 32 01 00 00 00 01 00 08 00 00 F0 00 00 01 00 01 03 C0")

	params := EncodeSetupCommRequest(0x03C0)
	job := EncodeJobRequest(0x0001, params, nil)
	got := WrapTPKT(WrapCOTPData(job))

	assert.Equal(t, want, got)
}

// TestS3_ReadVarItemSpec matches scenario S3: READ_VAR item for DB1,I30.
func TestS3_ReadVarItemSpec(t *testing.T) {
	want := hexBytes(t, "12 0A 10 04 00 01 00 01 84 00 00 F0")

	tag, err := ParseAddress("DB1,I30")
	require.NoError(t, err)

	got := encodeItemSpec(tag)
	assert.Equal(t, want, got)
}

// TestReadVarItemSpec_ByteCountedTransports checks that data types whose S7
// response transport size is byte-counted rather than element-counted get
// an item spec count field in bytes, not elements: a single LREAL element
// is 8 bytes, not 4 (no DWORD-sized transport code exists for it, so it
// falls back to BYTE transport like the teacher's own LWord/LInt/LReal
// case), and a STRING/WSTRING's count is always its declared byte size.
func TestReadVarItemSpec_ByteCountedTransports(t *testing.T) {
	cases := []struct {
		name          string
		addr          string
		transportSize byte
		count         uint16
	}{
		{"lreal scalar", "DB1,LR0", transportByte, 8},
		{"lreal array", "DB1,LR0.3", transportByte, 24},
		{"string", "DB1,S10.254", transportOctet, 256},
		{"wstring", "DB3,WS0.10", transportOctet, 24},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tag, err := ParseAddress(tc.addr)
			require.NoError(t, err)

			got := encodeItemSpec(tag)
			assert.Equal(t, tc.transportSize, got[3])
			assert.Equal(t, tc.count, binary.BigEndian.Uint16(got[4:6]))
		})
	}
}

// TestS3_ReadVarResponseDecode matches the expected decoded response header
// from scenario S3: FF 04 00 10 followed by a 2-byte INT payload.
func TestS3_ReadVarResponseDecode(t *testing.T) {
	data := hexBytes(t, "FF 04 00 10 61 A8") // 0x61A8 = 25000
	params := []byte{funcReadVar, 0x01}

	items, err := DecodeReadVarResponse(params, data, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ReturnSuccess, items[0].ReturnCode)
	assert.Equal(t, []byte{0x61, 0xA8}, items[0].Payload)

	tag, err := ParseAddress("DB1,I30")
	require.NoError(t, err)
	v, err := DecodeValue(tag, items[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), v.Int)
}

// TestS4_ParseBitAddress matches scenario S4.
func TestS4_ParseBitAddress(t *testing.T) {
	tag, err := ParseAddress("DB1,X0.6")
	require.NoError(t, err)
	assert.Equal(t, AreaDB, tag.Area)
	assert.Equal(t, 1, tag.DBNumber)
	assert.Equal(t, TypeBit, tag.DataType)
	assert.Equal(t, 0, tag.Start)
	assert.Equal(t, 6, tag.BitOffset)
	assert.Equal(t, 1, tag.Length)
	assert.Equal(t, 1, tag.Size())
}

func TestS7Header_RoundTrip(t *testing.T) {
	params := []byte{0xAA, 0xBB}
	data := []byte{0x01, 0x02, 0x03}
	req := EncodeJobRequest(0x1234, params, data)

	header, off, err := DecodeS7Header(req)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), header.PDURef)
	assert.Equal(t, len(params), header.ParamLen)
	assert.Equal(t, len(data), header.DataLen)
	assert.Equal(t, params, req[off:off+header.ParamLen])
	assert.Equal(t, data, req[off+header.ParamLen:off+header.ParamLen+header.DataLen])
}

func TestWriteVarRoundTrip(t *testing.T) {
	tag, err := ParseAddress("DB1,I30")
	require.NoError(t, err)
	payload, err := EncodeValue(tag, IntValue(25000))
	require.NoError(t, err)

	params, data := EncodeWriteVarRequest([]*Tag{tag}, [][]byte{payload})
	assert.Equal(t, []byte{funcWriteVar, 0x01}, params)

	// return-code placeholder, transport size, bit-length, payload
	assert.Equal(t, byte(0x00), data[0])
	assert.Equal(t, writeTransportSize(TypeInt), data[1])
	assert.Equal(t, uint16(16), binary.BigEndian.Uint16(data[2:4]))
	assert.Equal(t, payload, data[4:])

	respData := append([]byte{ReturnSuccess}, make([]byte, 0)...)
	codes, err := DecodeWriteVarResponse([]byte{funcWriteVar, 0x01}, respData, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{ReturnSuccess}, codes)
}

func TestUnwrapTPKT_LengthMismatch(t *testing.T) {
	frame := hexBytes(t, "03 00 00 05 01 02")
	_, err := UnwrapTPKT(frame)
	assert.Error(t, err)
}
