package s7

// Tag is an immutable descriptor of a single PLC memory location. It is
// produced by the parser or built directly by a caller, and is never
// mutated after construction; size() is cached at construction time since
// recomputing it from the lookup table on every access would be wasted
// work on a value that can't change.
type Tag struct {
	Area      Area
	DBNumber  int
	DataType  DataType
	Start     int
	BitOffset int
	Length    int

	byteSize int // cached, opaque to equality
}

// NewTag validates the given fields and returns an immutable Tag.
func NewTag(area Area, dbNumber int, dataType DataType, start, bitOffset, length int) (*Tag, error) {
	if dbNumber < 0 {
		return nil, &ValidationError{Field: "db_number", Reason: "must not be negative"}
	}
	if area == AreaDB && dbNumber == 0 {
		return nil, &ValidationError{Field: "db_number", Reason: "must be non-zero for DB area"}
	}
	if area != AreaDB && dbNumber != 0 {
		return nil, &ValidationError{Field: "db_number", Reason: "must be zero outside the DB area"}
	}
	if dataType >= numDataTypes {
		return nil, &ValidationError{Field: "data_type", Reason: "unknown data type"}
	}
	if start < 0 {
		return nil, &ValidationError{Field: "start", Reason: "must not be negative"}
	}
	if bitOffset < 0 || bitOffset > 7 {
		return nil, &ValidationError{Field: "bit_offset", Reason: "must be in [0,7]"}
	}
	if bitOffset != 0 && dataType != TypeBit {
		return nil, &ValidationError{Field: "bit_offset", Reason: "must be 0 for non-BIT types"}
	}
	if length <= 0 {
		return nil, &ValidationError{Field: "length", Reason: "must be positive"}
	}
	if dataType == TypeBit && bitOffset+length > 8 {
		return nil, &ValidationError{Field: "length", Reason: "BIT tag cannot span past the addressed byte"}
	}

	t := &Tag{
		Area:      area,
		DBNumber:  dbNumber,
		DataType:  dataType,
		Start:     start,
		BitOffset: bitOffset,
		Length:    length,
	}
	t.byteSize = byteSizeTable[dataType](length)
	return t, nil
}

// Size returns the cached byte size of the tag's value on the wire.
func (t *Tag) Size() int {
	return t.byteSize
}

// Equal reports whether two tags are structurally identical. The cached
// byte size is derived from the other fields and is not itself compared.
func (t *Tag) Equal(o *Tag) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.Area == o.Area &&
		t.DBNumber == o.DBNumber &&
		t.DataType == o.DataType &&
		t.Start == o.Start &&
		t.BitOffset == o.BitOffset &&
		t.Length == o.Length
}

// family groups types for the planner's coalescing pass: two tags can be
// merged only if they address the same area/DB and the same family.
func (t *Tag) family() DataType { return t.DataType }

// byteRange returns the half-open [start, end) byte range occupied by the
// tag, irrespective of bit addressing within the first byte.
func (t *Tag) byteRange() (start, end int) {
	return t.Start, t.Start + t.byteSize
}

// Contains reports whether other refers to the same area/DB/type family and
// its byte range lies wholly inside this tag's byte range.
func (t *Tag) Contains(other *Tag) bool {
	if t.Area != other.Area || t.DBNumber != other.DBNumber || t.family() != other.family() {
		return false
	}
	ts, te := t.byteRange()
	os, oe := other.byteRange()
	return os >= ts && oe <= te
}

// isCoalescable reports whether the tag's type can participate in the
// planner's adjacent-tag coalescing pass. BIT and the variable-length
// string types are excluded: BIT addressing is bit-granular within a single
// byte and strings carry their own length prefix, so merging them with
// neighbors would not produce a single well-formed item.
func (t *Tag) isCoalescable() bool {
	return elementStride[t.DataType] > 0
}
