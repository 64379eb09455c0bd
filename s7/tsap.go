package s7

import (
	"fmt"
	"strconv"
	"strings"
)

// TsapFromRackSlot computes the remote TSAP for a CPU at the given rack and
// slot: 0x0100 | (rack*32 + slot).
func TsapFromRackSlot(rack, slot int) uint16 {
	return defaultLocalTSAP | uint16(rack*32+slot)
}

// TsapToString renders the rack/slot pair encoded in a TSAP's low byte as
// "rack.slot" (rack = top 3 bits, slot = low 5 bits). The high byte is not
// included in the output.
func TsapToString(tsap uint16) string {
	lo := byte(tsap)
	rack := lo >> 5
	slot := lo & 0x1F
	return fmt.Sprintf("%d.%d", rack, slot)
}

// TsapFromString parses the "RR.SS" rack/slot form produced by TsapToString
// back into a TSAP value.
func TsapFromString(s string) (uint16, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return 0, &AddressFormatError{Input: s, Reason: "expected \"rack.slot\""}
	}
	rack, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || rack < 0 {
		return 0, &AddressFormatError{Input: s, Reason: "invalid rack"}
	}
	slot, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || slot < 0 {
		return 0, &AddressFormatError{Input: s, Reason: "invalid slot"}
	}
	return TsapFromRackSlot(rack, slot), nil
}
