package s7

import "sort"

// ItemSource records how one slot of a planned (possibly coalesced) item
// maps back to a position in the caller's original tag list.
type ItemSource struct {
	OriginalIndex int
	ByteOffset    int
	ByteLength    int
}

// PlannedItem is one wire-level read or write item, together with the
// original-tag positions it serves.
type PlannedItem struct {
	Tag     *Tag
	Sources []ItemSource
}

// Batch is one PDU's worth of planned items.
type Batch struct {
	Items []PlannedItem
}

// ReadPlan is the planner's output for a read operation: an ordered list of
// PDU-bounded batches, plus any tags too large to fit any PDU on their own
// (STRING/WSTRING candidates for transparent chunked reading).
type ReadPlan struct {
	Batches  []Batch
	Oversize []OversizeTag
}

// OversizeTag names a tag (by its position in the caller's original list)
// whose full read would not fit in any PDU.
type OversizeTag struct {
	OriginalIndex int
	Tag           *Tag
}

const (
	readRequestOverhead  = 19
	readResponseOverhead = 14
	perPDUOverhead       = 26
	maxItemsPerPDU       = 20

	readItemRequestBytes = 12
)

// PlanReads groups, optionally coalesces, and packs tags into PDU-bounded
// read batches.
func PlanReads(tags []*Tag, pduSize uint16, optimize bool) (*ReadPlan, error) {
	var items []PlannedItem
	if optimize {
		items = coalesceForRead(tags)
	} else {
		items = make([]PlannedItem, len(tags))
		for i, t := range tags {
			items[i] = PlannedItem{Tag: t, Sources: []ItemSource{{OriginalIndex: i, ByteOffset: 0, ByteLength: t.Size()}}}
		}
	}

	plan := &ReadPlan{}
	perPDUBudget := int(pduSize) - perPDUOverhead

	var packable []PlannedItem
	for _, item := range items {
		responseBytes := 4 + ceilEven(item.Tag.Size())
		if responseBytes > perPDUBudget {
			if item.Tag.DataType == TypeString || item.Tag.DataType == TypeWString {
				plan.Oversize = append(plan.Oversize, OversizeTag{
					OriginalIndex: item.Sources[0].OriginalIndex,
					Tag:           item.Tag,
				})
				continue
			}
			return nil, &PDUError{Tag: item.Tag.Format(), Required: responseBytes, Available: perPDUBudget}
		}
		packable = append(packable, item)
	}

	requestBudget := int(pduSize) - readRequestOverhead
	responseBudget := int(pduSize) - readResponseOverhead

	var current Batch
	reqUsed, respUsed := 0, 0
	flush := func() {
		if len(current.Items) > 0 {
			plan.Batches = append(plan.Batches, current)
			current = Batch{}
			reqUsed, respUsed = 0, 0
		}
	}
	for _, item := range packable {
		respBytes := 4 + ceilEven(item.Tag.Size())
		if len(current.Items) >= maxItemsPerPDU ||
			reqUsed+readItemRequestBytes > requestBudget ||
			respUsed+respBytes > responseBudget {
			flush()
		}
		current.Items = append(current.Items, item)
		reqUsed += readItemRequestBytes
		respUsed += respBytes
	}
	flush()

	return plan, nil
}

// coalesceForRead merges adjacent/overlapping same-area/db/type-family tags
// into single read items, recording how to re-slice each original tag's
// value out of the coalesced payload.
func coalesceForRead(tags []*Tag) []PlannedItem {
	type indexed struct {
		idx int
		tag *Tag
	}
	groups := make(map[[3]int][]indexed)
	var order []PlannedItem

	for i, t := range tags {
		if !t.isCoalescable() {
			order = append(order, PlannedItem{Tag: t, Sources: []ItemSource{{OriginalIndex: i, ByteOffset: 0, ByteLength: t.Size()}}})
			continue
		}
		key := [3]int{int(t.Area), t.DBNumber, int(t.DataType)}
		groups[key] = append(groups[key], indexed{idx: i, tag: t})
	}

	// Stable-ish ordering: process groups by first-seen original index, so
	// batch order is deterministic for identical inputs across runs.
	keys := make([][3]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		return groups[keys[a]][0].idx < groups[keys[b]][0].idx
	})

	for _, key := range keys {
		members := groups[key]
		sort.Slice(members, func(a, b int) bool { return members[a].tag.Start < members[b].tag.Start })

		i := 0
		for i < len(members) {
			runStart := i
			unionStart, unionEnd := members[i].tag.byteRange()
			i++
			for i < len(members) {
				s, e := members[i].tag.byteRange()
				if s > unionEnd {
					break
				}
				if e > unionEnd {
					unionEnd = e
				}
				i++
			}

			run := members[runStart:i]
			dataType := run[0].tag.DataType
			area := run[0].tag.Area
			dbNumber := run[0].tag.DBNumber
			stride := elementStride[dataType]

			if len(run) == 1 || stride == 0 {
				for _, m := range run {
					order = append(order, PlannedItem{Tag: m.tag, Sources: []ItemSource{{OriginalIndex: m.idx, ByteOffset: 0, ByteLength: m.tag.Size()}}})
				}
				continue
			}

			unionLen := (unionEnd - unionStart + stride - 1) / stride
			coalesced, err := NewTag(area, dbNumber, dataType, unionStart, 0, unionLen)
			if err != nil {
				for _, m := range run {
					order = append(order, PlannedItem{Tag: m.tag, Sources: []ItemSource{{OriginalIndex: m.idx, ByteOffset: 0, ByteLength: m.tag.Size()}}})
				}
				continue
			}

			var sources []ItemSource
			for _, m := range run {
				sources = append(sources, ItemSource{
					OriginalIndex: m.idx,
					ByteOffset:    m.tag.Start - unionStart,
					ByteLength:    m.tag.Size(),
				})
			}
			order = append(order, PlannedItem{Tag: coalesced, Sources: sources})
		}
	}

	return order
}

// WriteBatch is one PDU's worth of planned write items.
type WriteBatch struct {
	Tags     []*Tag
	Payloads [][]byte
	Indices  []int // original tag position for each item, for error reporting
}

// PlanWrites packs tags/payloads into PDU-bounded write batches. Writes are
// not coalesced: each original tag is its own wire item.
func PlanWrites(tags []*Tag, payloads [][]byte, pduSize uint16) ([]WriteBatch, error) {
	requestBudget := int(pduSize) - readRequestOverhead

	var batches []WriteBatch
	var current WriteBatch
	used := 0

	flush := func() {
		if len(current.Tags) > 0 {
			batches = append(batches, current)
			current = WriteBatch{}
			used = 0
		}
	}

	for i, t := range tags {
		dataBytes := 4 + ceilEven(len(payloads[i]))
		itemBytes := readItemRequestBytes + dataBytes
		if itemBytes > requestBudget {
			return nil, &PDUError{Tag: t.Format(), Required: itemBytes, Available: requestBudget}
		}
		if len(current.Tags) >= maxItemsPerPDU || used+itemBytes > requestBudget {
			flush()
		}
		current.Tags = append(current.Tags, t)
		current.Payloads = append(current.Payloads, payloads[i])
		current.Indices = append(current.Indices, i)
		used += itemBytes
	}
	flush()

	return batches, nil
}
