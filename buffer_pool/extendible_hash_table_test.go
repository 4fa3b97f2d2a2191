package buffer_pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/xstorage-engine/common"
)

func TestExtendibleHashTable(t *testing.T) {
	t.Run("基本读写", func(t *testing.T) {
		table := NewExtendibleHashTable(4)

		for i := 0; i < 8; i++ {
			table.Insert(common.PageID(i), common.FrameID(i*10))
		}
		for i := 0; i < 8; i++ {
			value, ok := table.Find(common.PageID(i))
			require.True(t, ok, "key %d", i)
			assert.Equal(t, common.FrameID(i*10), value)
		}

		_, ok := table.Find(common.PageID(100))
		assert.False(t, ok)
	})

	t.Run("覆盖写", func(t *testing.T) {
		table := NewExtendibleHashTable(4)
		table.Insert(1, 7)
		table.Insert(1, 9)

		value, ok := table.Find(1)
		require.True(t, ok)
		assert.Equal(t, common.FrameID(9), value)
	})

	t.Run("删除", func(t *testing.T) {
		table := NewExtendibleHashTable(4)
		table.Insert(1, 7)

		assert.True(t, table.Remove(1))
		assert.False(t, table.Remove(1))
		_, ok := table.Find(1)
		assert.False(t, ok)
	})

	t.Run("分裂后目录不变式", func(t *testing.T) {
		table := NewExtendibleHashTable(2)

		// 足够多的键保证触发多轮桶分裂和目录翻倍
		for i := 0; i < 64; i++ {
			table.Insert(common.PageID(i), common.FrameID(i))
		}
		assert.Greater(t, table.GetGlobalDepth(), 0)
		assert.Greater(t, table.GetNumBuckets(), 1)

		// 本地深度d的桶恰好被2^(g-d)个目录槽位引用
		g := table.GetGlobalDepth()
		for i := 0; i < table.GetDirSize(); i++ {
			d := table.GetLocalDepth(i)
			assert.LessOrEqual(t, d, g)
			assert.Equal(t, 1<<uint(g-d), table.refCount(i), "slot %d", i)
		}

		// 分裂不丢数据
		for i := 0; i < 64; i++ {
			value, ok := table.Find(common.PageID(i))
			require.True(t, ok, "key %d lost after splits", i)
			assert.Equal(t, common.FrameID(i), value)
		}
	})
}
