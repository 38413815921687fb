package membership

import (
	"fmt"
	"math"
	"testing"

	"github.com/ValentinKolb/gridRPC/lib/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeNodes creates nodes with instance ids s0000000000 .. s(n-1)
func makeNodes(ids ...int) []*grid.ClusterNodeInfo {
	nodes := make([]*grid.ClusterNodeInfo, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, &grid.ClusterNodeInfo{
			RootName:       "root",
			ProjName:       "proj",
			ClusterName:    "cluster",
			NodeName:       fmt.Sprintf("node-%d", id),
			Host:           "127.0.0.1",
			Port:           7000 + id,
			InstanceNodeID: fmt.Sprintf("s%010d", id),
		})
	}
	return nodes
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func owners(table BucketTable) map[string]int {
	counts := map[string]int{}
	for _, o := range table {
		counts[o]++
	}
	return counts
}

func TestRebalanceInitialAssignsEveryBucket(t *testing.T) {
	nodes, table, changed := Rebalance(nil, nil, makeNodes(0, 1, 2))
	require.True(t, changed)
	require.Len(t, nodes, 3)
	require.Len(t, table, BucketCount)

	for i, o := range table {
		assert.NotEmpty(t, o, "bucket %d unassigned", i)
	}
	// every node receives a share
	assert.Len(t, owners(table), 3)
}

func TestRebalanceIdempotent(t *testing.T) {
	lists := [][]*grid.ClusterNodeInfo{
		makeNodes(0),
		makeNodes(0, 1, 2),
		makeNodes(seq(7)...),
	}

	for _, incoming := range lists {
		t.Run(fmt.Sprintf("%d nodes", len(incoming)), func(t *testing.T) {
			nodes, table, changed := Rebalance(nil, nil, incoming)
			require.True(t, changed)

			again := makeNodes(seq(len(incoming))...) // same ids, fresh pointers
			nodes2, table2, changed2 := Rebalance(nodes, table, again)
			assert.False(t, changed2)
			assert.Equal(t, table, table2)
			assert.Equal(t, nodes, nodes2)
		})
	}
}

func TestRebalanceGrowthInvariant(t *testing.T) {
	for size := 1; size < 12; size++ {
		t.Run(fmt.Sprintf("%d+1", size), func(t *testing.T) {
			nodes, table, _ := Rebalance(nil, nil, makeNodes(seq(size)...))

			grown := makeNodes(seq(size + 1)...)
			newID := grown[size].InstanceNodeID

			_, table2, changed := Rebalance(nodes, table, grown)
			require.True(t, changed)

			moved := 0
			for i := range table {
				if table[i] == table2[i] {
					continue
				}
				moved++
				// a still-present owner only ever hands a bucket to the new node
				assert.Equal(t, newID, table2[i], "bucket %d moved between existing nodes", i)
			}

			limit := int(math.Ceil(float64(BucketCount)/float64(size+1))) + 1
			assert.LessOrEqual(t, moved, limit)
			assert.Positive(t, moved)
		})
	}
}

func TestRebalanceShrinkInvariant(t *testing.T) {
	for size := 2; size < 10; size++ {
		for removed := 0; removed < size; removed++ {
			t.Run(fmt.Sprintf("%d-%d", size, removed), func(t *testing.T) {
				all := makeNodes(seq(size)...)
				nodes, table, _ := Rebalance(nil, nil, all)
				removedID := all[removed].InstanceNodeID

				var rest []int
				for i := 0; i < size; i++ {
					if i != removed {
						rest = append(rest, i)
					}
				}
				remaining := makeNodes(rest...)
				remainingIDs := map[string]bool{}
				for _, n := range remaining {
					remainingIDs[n.InstanceNodeID] = true
				}

				nodes2, table2, changed := Rebalance(nodes, table, remaining)
				require.True(t, changed)
				require.Len(t, nodes2, size-1)

				for i := range table {
					if table[i] == removedID {
						assert.True(t, remainingIDs[table2[i]], "bucket %d got owner %q", i, table2[i])
					} else {
						assert.Equal(t, table[i], table2[i], "bucket %d changed owner", i)
					}
				}
			})
		}
	}
}

func TestRebalanceMixedPrefersNewNodes(t *testing.T) {
	nodes, table, _ := Rebalance(nil, nil, makeNodes(0, 1, 2))

	// node 1 leaves, node 3 joins in the same notification
	nodes2, table2, changed := Rebalance(nodes, table, makeNodes(0, 2, 3))
	require.True(t, changed)
	require.Len(t, nodes2, 3)

	for i := range table {
		switch table[i] {
		case nodes[1].InstanceNodeID:
			assert.Equal(t, "s0000000003", table2[i])
		default:
			assert.Equal(t, table[i], table2[i])
		}
	}
}

func TestRebalanceWipeout(t *testing.T) {
	nodes, table, _ := Rebalance(nil, nil, makeNodes(0, 1))

	nodes2, table2, changed := Rebalance(nodes, table, nil)
	assert.True(t, changed)
	assert.Empty(t, nodes2)
	for _, o := range table2 {
		assert.Empty(t, o)
	}

	// the input table is untouched
	assert.NotEmpty(t, table[0])

	// wiping an empty membership is not a change
	_, _, changed = Rebalance(nil, nil, nil)
	assert.False(t, changed)
}

func TestByModProperty(t *testing.T) {
	values := []int64{0, 1, -1, 7, -7, 13, 999, -1000, 1 << 40, math.MaxInt64, math.MinInt64}

	for n := 1; n <= 6; n++ {
		nodes := makeNodes(seq(n)...)
		view := NewView(nodes, nil)

		for _, v := range values {
			got, err := view.ByMod(v)
			require.NoError(t, err)
			assert.Same(t, nodes[absUint64(v)%uint64(n)], got, "n=%d v=%d", n, v)

			// another value with the same residue selects the identical node
			other := v + int64(n)
			if v < 0 {
				other = v - int64(n)
			}
			if other != v && (v < 0) == (other < 0) && v != math.MaxInt64 && v != math.MinInt64 {
				got2, err := view.ByMod(other)
				require.NoError(t, err)
				assert.Same(t, got, got2)
			}
		}
	}

	_, err := NewView(nil, nil).ByMod(3)
	assert.ErrorIs(t, err, ErrNoNode)
}

func TestAbsUint64(t *testing.T) {
	assert.Equal(t, uint64(0), absUint64(0))
	assert.Equal(t, uint64(5), absUint64(-5))
	assert.Equal(t, uint64(math.MaxInt64)+1, absUint64(math.MinInt64))
	assert.Equal(t, 0, Bucket(-1000))
	assert.Equal(t, 1, Bucket(-1001))
}

func TestMembershipSelection(t *testing.T) {
	t.Run("master-slave", func(t *testing.T) {
		m := New(grid.ModeMasterSlave)
		_, err := m.Master()
		assert.Equal(t, grid.CodeClusterNoNode, grid.CodeOf(err))

		// unordered input is sorted by instance id
		m.Update(makeNodes(2, 0, 1))

		master, err := m.Master()
		require.NoError(t, err)
		assert.Equal(t, "s0000000000", master.InstanceNodeID)

		for i := 0; i < 50; i++ {
			slave, err := m.Slave()
			require.NoError(t, err)
			assert.NotEqual(t, master.InstanceNodeID, slave.InstanceNodeID)
		}

		_, err = m.ByHash(1)
		assert.ErrorIs(t, err, ErrInvalidMode)
	})

	t.Run("single node has no slave", func(t *testing.T) {
		m := New(grid.ModeMasterSlave)
		m.Update(makeNodes(0))
		_, err := m.Slave()
		assert.ErrorIs(t, err, ErrNoNode)
	})

	t.Run("cluster", func(t *testing.T) {
		m := New(grid.ModeCluster)
		m.Update(makeNodes(0, 1, 2))

		_, err := m.Master()
		assert.ErrorIs(t, err, ErrInvalidMode)

		n, err := m.ByMod(-4)
		require.NoError(t, err)
		assert.Equal(t, "s0000000001", n.InstanceNodeID)

		n, err = m.ByInstanceID("S0000000002")
		require.NoError(t, err)
		assert.Equal(t, "s0000000002", n.InstanceNodeID)

		_, err = m.ByInstanceID("s9")
		assert.ErrorIs(t, err, ErrNoNode)

		n, err = m.Random()
		require.NoError(t, err)
		assert.NotNil(t, n)
	})

	t.Run("cluster-hash", func(t *testing.T) {
		m := New(grid.ModeClusterWithHash)
		_, err := m.ByHash(10)
		assert.ErrorIs(t, err, ErrNoNode)

		m.Update(makeNodes(0, 1, 2, 3))
		view := m.Snapshot()

		for _, key := range []int64{0, 1, 42, -42, 999, 123456789} {
			n, err := m.ByHash(key)
			require.NoError(t, err)
			assert.Equal(t, view.Owner(Bucket(key)), n.InstanceNodeID)
		}

		a, err := m.ByHashKey("user-42")
		require.NoError(t, err)
		b, err := m.ByHashKey("user-42")
		require.NoError(t, err)
		assert.Same(t, a, b)
	})

	t.Run("update reports changes", func(t *testing.T) {
		m := New(grid.ModeClusterWithHash)
		assert.True(t, m.Update(makeNodes(0, 1)))
		before := m.Snapshot()
		assert.False(t, m.Update(makeNodes(1, 0)))
		assert.Same(t, before, m.Snapshot())
		assert.True(t, m.Update(nil))
		assert.Equal(t, 0, m.Snapshot().Len())
	})
}
