package block

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorHandsOutDistinctBlocks(t *testing.T) {
	t.Parallel()

	a := NewAllocator()
	b1 := a.NewBlock()
	b2 := a.NewBlock()

	assert.Equal(t, ID(1), b1.ID)
	assert.Equal(t, InitialGenStamp, b1.GenStamp)
	assert.Equal(t, ID(2), b2.ID)
	assert.Greater(t, b2.GenStamp, b1.GenStamp)
	assert.Zero(t, b1.Length)
}

func TestAllocatorObserve(t *testing.T) {
	t.Parallel()

	a := NewAllocator()
	a.Observe(5000)
	assert.Equal(t, GenStamp(5001), a.NewBlock().GenStamp)

	// Observing an older stamp does not move the counter back.
	a.Observe(10)
	assert.Equal(t, GenStamp(5002), a.NewBlock().GenStamp)
}

func TestReportJSON(t *testing.T) {
	t.Parallel()

	r := Report{Node: "dn-0", Block: Identity{ID: 3, GenStamp: 1001, Length: 65536}, State: ReplicaFinalized}
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"FINALIZED"`)

	var back Report
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r, back)
}

func TestStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "blk_7", ID(7).String())
	assert.Equal(t, "blk_7_1001(len=10)", Identity{ID: 7, GenStamp: 1001, Length: 10}.String())
	assert.Equal(t, "UNDER_CONSTRUCTION", UnderConstruction.String())
	assert.Equal(t, "COMPLETE", Complete.String())
	assert.Equal(t, "RBW", ReplicaBeingWritten.String())
}
