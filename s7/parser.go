package s7

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Two-letter type tokens must be tried before their one-letter prefixes
// (DI/DW/LR/WS before D.../W.../L.../S) or the regexp alternation would
// match the shorter, wrong token first.
const typeLetterPattern = `(?:DI|DW|LR|WS|X|B|C|I|W|R|S)`

var (
	// DB1,I30  DB1,X0.6  DB1,S10.254
	reDBCapture = regexp.MustCompile(`^DB(\d+),(` + typeLetterPattern + `)(\d+)(?:\.(\d+))?$`)

	// MX0.6  MB0  IW4  QDW10
	reAreaTyped = regexp.MustCompile(`^([IEQAM])(` + typeLetterPattern + `)(\d+)(?:\.(\d+))?$`)

	// Short bit form: M0.6, I3.2 (no type letter - bit access implied).
	reAreaShortBit = regexp.MustCompile(`^([IEQAM])(\d+)\.(\d+)$`)
)

var letterToType = map[string]DataType{
	"X":  TypeBit,
	"B":  TypeByte,
	"C":  TypeChar,
	"I":  TypeInt,
	"W":  TypeWord,
	"DI": TypeDInt,
	"DW": TypeDWord,
	"R":  TypeReal,
	"LR": TypeLReal,
	"S":  TypeString,
	"WS": TypeWString,
}

func areaLetterToArea(letter string) Area {
	switch letter {
	case "I", "E":
		return AreaInput
	case "Q", "A":
		return AreaOutput
	case "M":
		return AreaMerker
	default:
		return 0
	}
}

// ParseAddress parses a textual S7 address into a Tag. Supported forms:
//
//	DB<n>,<type><offset>[.<len_or_bit>]   e.g. DB1,I30  DB1,X0.6  DB1,S10.254
//	<IEQAM><type><offset>[.<bit>]         e.g. MX0.6  MB0  IW4  QDW10
//	<IEQAM><offset>.<bit>                 short bit form, e.g. M0.6
//
// TIMER and COUNTER tags have no textual form; build them with NewTag.
func ParseAddress(input string) (*Tag, error) {
	addr := strings.ToUpper(strings.TrimSpace(input))
	if addr == "" {
		return nil, &AddressFormatError{Input: input, Reason: "empty address"}
	}

	if m := reDBCapture.FindStringSubmatch(addr); m != nil {
		return buildDBTag(input, m)
	}
	if m := reAreaTyped.FindStringSubmatch(addr); m != nil {
		return buildAreaTag(input, m)
	}
	if m := reAreaShortBit.FindStringSubmatch(addr); m != nil {
		return buildAreaShortBitTag(input, m)
	}
	return nil, &AddressFormatError{Input: input, Reason: "does not match any supported address grammar"}
}

func buildDBTag(original string, m []string) (*Tag, error) {
	dbNum, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, &AddressFormatError{Input: original, Reason: "invalid DB number"}
	}
	dataType, ok := letterToType[m[2]]
	if !ok {
		return nil, &AddressFormatError{Input: original, Reason: "unknown type letter"}
	}
	offset, err := strconv.Atoi(m[3])
	if err != nil {
		return nil, &AddressFormatError{Input: original, Reason: "invalid offset"}
	}
	suffix := m[4]

	bitOffset, length, err := resolveSuffix(original, dataType, suffix)
	if err != nil {
		return nil, err
	}

	tag, err := NewTag(AreaDB, dbNum, dataType, offset, bitOffset, length)
	if err != nil {
		return nil, &AddressFormatError{Input: original, Reason: err.Error()}
	}
	return tag, nil
}

func buildAreaTag(original string, m []string) (*Tag, error) {
	area := areaLetterToArea(m[1])
	dataType, ok := letterToType[m[2]]
	if !ok {
		return nil, &AddressFormatError{Input: original, Reason: "unknown type letter"}
	}
	offset, err := strconv.Atoi(m[3])
	if err != nil {
		return nil, &AddressFormatError{Input: original, Reason: "invalid offset"}
	}
	suffix := m[4]

	bitOffset, length, err := resolveSuffix(original, dataType, suffix)
	if err != nil {
		return nil, err
	}

	tag, err := NewTag(area, 0, dataType, offset, bitOffset, length)
	if err != nil {
		return nil, &AddressFormatError{Input: original, Reason: err.Error()}
	}
	return tag, nil
}

func buildAreaShortBitTag(original string, m []string) (*Tag, error) {
	area := areaLetterToArea(m[1])
	offset, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, &AddressFormatError{Input: original, Reason: "invalid offset"}
	}
	bit, err := strconv.Atoi(m[3])
	if err != nil || bit < 0 || bit > 7 {
		return nil, &AddressFormatError{Input: original, Reason: "bit offset must be 0-7"}
	}

	tag, err := NewTag(area, 0, TypeBit, offset, bit, 1)
	if err != nil {
		return nil, &AddressFormatError{Input: original, Reason: err.Error()}
	}
	return tag, nil
}

// resolveSuffix interprets the optional ".<n>" trailing the offset: for BIT
// it is the required bit number, for STRING/WSTRING it is the declared
// maximum character count, and for every other type it is an optional array
// element count (absent means a scalar, length 1).
func resolveSuffix(original string, dataType DataType, suffix string) (bitOffset, length int, err error) {
	if dataType == TypeBit {
		if suffix == "" {
			return 0, 0, &AddressFormatError{Input: original, Reason: "BIT address requires a bit number (e.g. X0.6)"}
		}
		bit, convErr := strconv.Atoi(suffix)
		if convErr != nil || bit < 0 || bit > 7 {
			return 0, 0, &AddressFormatError{Input: original, Reason: "bit offset must be 0-7"}
		}
		return bit, 1, nil
	}

	if suffix == "" {
		if dataType == TypeString || dataType == TypeWString {
			return 0, 1, nil
		}
		return 0, 1, nil
	}
	length, convErr := strconv.Atoi(suffix)
	if convErr != nil || length <= 0 {
		return 0, 0, &AddressFormatError{Input: original, Reason: "length must be a positive integer"}
	}
	return 0, length, nil
}

// Format renders a Tag back into a canonical textual address. For DB tags
// this is the "DB<n>,<type><offset>[.<suffix>]" form; for I/Q/M tags it is
// the "<letter><type><offset>[.<suffix>]" form. TIMER/COUNTER tags have no
// textual grammar, so Format renders an informational (non-parseable)
// string for them.
func (t *Tag) Format() string {
	letter := t.DataType.String()
	var suffix string
	switch t.DataType {
	case TypeBit:
		suffix = fmt.Sprintf(".%d", t.BitOffset)
	case TypeString, TypeWString:
		suffix = fmt.Sprintf(".%d", t.Length)
	default:
		if t.Length > 1 {
			suffix = fmt.Sprintf(".%d", t.Length)
		}
	}

	switch t.Area {
	case AreaDB:
		return fmt.Sprintf("DB%d,%s%d%s", t.DBNumber, letter, t.Start, suffix)
	case AreaInput:
		return fmt.Sprintf("I%s%d%s", letter, t.Start, suffix)
	case AreaOutput:
		return fmt.Sprintf("Q%s%d%s", letter, t.Start, suffix)
	case AreaMerker:
		return fmt.Sprintf("M%s%d%s", letter, t.Start, suffix)
	case AreaTimer:
		return fmt.Sprintf("T%d", t.Start)
	case AreaCounter:
		return fmt.Sprintf("C%d", t.Start)
	default:
		return fmt.Sprintf("?%d", t.Start)
	}
}

// String implements fmt.Stringer via Format.
func (t *Tag) String() string { return t.Format() }

// ValidateAddress reports whether addr is a syntactically valid textual
// address without returning the parsed Tag.
func ValidateAddress(addr string) error {
	_, err := ParseAddress(addr)
	return err
}
