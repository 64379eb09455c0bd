package s7

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestS5_PlannerCoalescing matches scenario S5: 50 adjacent INT tags,
// PDU=240.
func TestS5_PlannerCoalescing(t *testing.T) {
	addrs := make([]string, 50)
	for i := 0; i < 50; i++ {
		addrs[i] = fmt.Sprintf("DB1,I%d", i*2)
	}
	tags, err := parseAll(addrs)
	require.NoError(t, err)

	t.Run("optimize=true produces one coalesced batch", func(t *testing.T) {
		plan, err := PlanReads(tags, 240, true)
		require.NoError(t, err)
		require.Len(t, plan.Batches, 1)
		require.Len(t, plan.Batches[0].Items, 1)
		item := plan.Batches[0].Items[0]
		assert.Equal(t, 100, item.Tag.Size())
		assert.Len(t, item.Sources, 50)
	})

	t.Run("optimize=false produces at least 3 batches of <=20 items", func(t *testing.T) {
		plan, err := PlanReads(tags, 240, false)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(plan.Batches), 3)
		for _, b := range plan.Batches {
			assert.LessOrEqual(t, len(b.Items), maxItemsPerPDU)
		}
	})
}

// TestPlanReads_InvariantsHold checks property #2 from the testable
// invariants across a mix of batch sizes and PDU sizes.
func TestPlanReads_InvariantsHold(t *testing.T) {
	var addrs []string
	for i := 0; i < 40; i++ {
		addrs = append(addrs, fmt.Sprintf("MW%d", i*2))
	}
	tags, err := parseAll(addrs)
	require.NoError(t, err)

	for _, pduSize := range []uint16{240, 480, 960} {
		t.Run(fmt.Sprintf("pdu=%d", pduSize), func(t *testing.T) {
			plan, err := PlanReads(tags, pduSize, false)
			require.NoError(t, err)
			for _, batch := range plan.Batches {
				assert.LessOrEqual(t, len(batch.Items), maxItemsPerPDU)

				reqSize := 0
				respSize := 0
				for _, item := range batch.Items {
					reqSize += readItemRequestBytes
					respSize += 4 + ceilEven(item.Tag.Size())
				}
				assert.LessOrEqual(t, reqSize, int(pduSize)-readRequestOverhead)
				assert.LessOrEqual(t, respSize, int(pduSize)-readResponseOverhead)
			}
		})
	}
}

func TestPlanReads_OversizeString(t *testing.T) {
	tag, err := ParseAddress("DB1,S10.254")
	require.NoError(t, err)

	plan, err := PlanReads([]*Tag{tag}, 240, true)
	require.NoError(t, err)
	assert.Empty(t, plan.Batches)
	require.Len(t, plan.Oversize, 1)
	assert.Equal(t, 0, plan.Oversize[0].OriginalIndex)
}

func TestPlanReads_OversizeNonStringFails(t *testing.T) {
	tag, err := ParseAddress("DB1,B0.300")
	require.NoError(t, err)

	_, err = PlanReads([]*Tag{tag}, 240, true)
	assert.Error(t, err)
	var pduErr *PDUError
	assert.ErrorAs(t, err, &pduErr)
}

func TestPlanWrites_RespectsBudgetAndCap(t *testing.T) {
	var addrs []string
	for i := 0; i < 30; i++ {
		addrs = append(addrs, fmt.Sprintf("MDW%d", i*4))
	}
	tags, err := parseAll(addrs)
	require.NoError(t, err)

	payloads := make([][]byte, len(tags))
	for i := range tags {
		p, err := EncodeValue(tags[i], IntValue(42))
		require.NoError(t, err)
		payloads[i] = p
	}

	batches, err := PlanWrites(tags, payloads, 240)
	require.NoError(t, err)
	for _, b := range batches {
		assert.LessOrEqual(t, len(b.Tags), maxItemsPerPDU)
	}
}
