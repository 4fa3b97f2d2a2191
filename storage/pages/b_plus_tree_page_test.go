package pages

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/xstorage-engine/common"
)

func key8(s string) []byte {
	k := make([]byte, 8)
	copy(k, s)
	return k
}

func TestBPlusTreeLeafPage(t *testing.T) {
	t.Run("初始化与头字段", func(t *testing.T) {
		data := make([]byte, common.PAGE_SIZE)
		leaf := NewBPlusTreeLeafPage(data, 8, 8)
		leaf.Init(5, 3, 64)

		assert.True(t, leaf.IsLeafPage())
		assert.Equal(t, 0, leaf.GetSize())
		assert.Equal(t, 64, leaf.GetMaxSize())
		assert.Equal(t, 32, leaf.GetMinSize())
		assert.Equal(t, common.PageID(5), leaf.GetPageId())
		assert.Equal(t, common.PageID(3), leaf.GetParentPageId())
		assert.Equal(t, common.INVALID_PAGE_ID, leaf.GetNextPageId())
		assert.False(t, leaf.IsRootPage())
	})

	t.Run("有序插入与查找", func(t *testing.T) {
		data := make([]byte, common.PAGE_SIZE)
		leaf := NewBPlusTreeLeafPage(data, 8, 8)
		leaf.Init(1, common.INVALID_PAGE_ID, 16)

		for _, s := range []string{"delta", "alpha", "echo", "bravo", "charlie"} {
			leaf.Insert(key8(s), key8("v_"+s[:3]), bytes.Compare)
		}
		require.Equal(t, 5, leaf.GetSize())

		want := []string{"alpha", "bravo", "charlie", "delta", "echo"}
		for i, s := range want {
			assert.Equal(t, key8(s), leaf.KeyAt(i))
		}

		assert.Equal(t, 1, leaf.Lowerbound(key8("bravo"), bytes.Compare))
		assert.Equal(t, 2, leaf.Lowerbound(key8("c"), bytes.Compare))
		assert.Equal(t, 5, leaf.Lowerbound(key8("zulu"), bytes.Compare))
		assert.Equal(t, 3, leaf.KeyIndex(key8("delta"), bytes.Compare))
		assert.Equal(t, -1, leaf.KeyIndex(key8("foxtrot"), bytes.Compare))
	})

	t.Run("删除移位", func(t *testing.T) {
		data := make([]byte, common.PAGE_SIZE)
		leaf := NewBPlusTreeLeafPage(data, 8, 8)
		leaf.Init(1, common.INVALID_PAGE_ID, 16)

		for _, s := range []string{"a", "b", "c", "d"} {
			leaf.Insert(key8(s), key8("v"+s), bytes.Compare)
		}
		require.True(t, leaf.Remove(key8("b"), bytes.Compare))
		assert.False(t, leaf.Remove(key8("b"), bytes.Compare))
		assert.Equal(t, 3, leaf.GetSize())
		assert.Equal(t, key8("c"), leaf.KeyAt(1))
		assert.Equal(t, key8("vc"), leaf.ValueAt(1))
	})

	t.Run("分裂搬移上半部分", func(t *testing.T) {
		data := make([]byte, common.PAGE_SIZE)
		leaf := NewBPlusTreeLeafPage(data, 8, 8)
		leaf.Init(1, common.INVALID_PAGE_ID, 8)
		for _, s := range []string{"a", "b", "c", "d", "e"} {
			leaf.Insert(key8(s), key8("v"+s), bytes.Compare)
		}

		targetData := make([]byte, common.PAGE_SIZE)
		target := NewBPlusTreeLeafPage(targetData, 8, 8)
		target.Init(2, common.INVALID_PAGE_ID, 8)

		leaf.MoveHalfTo(target)
		// ceil(5/2)=3个留在左边
		assert.Equal(t, 3, leaf.GetSize())
		assert.Equal(t, 2, target.GetSize())
		assert.Equal(t, key8("d"), target.KeyAt(0))
		assert.Equal(t, key8("e"), target.KeyAt(1))
	})
}

func TestBPlusTreeInternalPage(t *testing.T) {
	t.Run("路由查找", func(t *testing.T) {
		data := make([]byte, common.PAGE_SIZE)
		node := NewBPlusTreeInternalPage(data, 8)
		node.Init(9, common.INVALID_PAGE_ID, 16)

		// 子节点10负责(-inf,"h")，20负责["h","p")，30负责["p",+inf)
		node.SetKV(0, key8("h"), 10)
		node.SetKV(1, key8("h"), 20)
		node.SetSize(2)
		node.Insert(key8("p"), 30, bytes.Compare)
		require.Equal(t, 3, node.GetSize())

		assert.Equal(t, common.PageID(10), node.Lookup(key8("alpha"), bytes.Compare))
		assert.Equal(t, common.PageID(20), node.Lookup(key8("h"), bytes.Compare))
		assert.Equal(t, common.PageID(20), node.Lookup(key8("kilo"), bytes.Compare))
		assert.Equal(t, common.PageID(30), node.Lookup(key8("p"), bytes.Compare))
		assert.Equal(t, common.PageID(30), node.Lookup(key8("zulu"), bytes.Compare))
	})

	t.Run("槽位定位与删除", func(t *testing.T) {
		data := make([]byte, common.PAGE_SIZE)
		node := NewBPlusTreeInternalPage(data, 8)
		node.Init(9, common.INVALID_PAGE_ID, 16)
		node.SetKV(0, key8("h"), 10)
		node.SetKV(1, key8("h"), 20)
		node.SetSize(2)
		node.Insert(key8("p"), 30, bytes.Compare)

		assert.Equal(t, 1, node.ValueIndex(20))
		assert.Equal(t, -1, node.ValueIndex(99))

		node.RemoveAt(1)
		assert.Equal(t, 2, node.GetSize())
		assert.Equal(t, common.PageID(30), node.ValueAt(1))
		assert.Equal(t, key8("p"), node.KeyAt(1))
	})

	t.Run("分裂搬移保留分隔键", func(t *testing.T) {
		data := make([]byte, common.PAGE_SIZE)
		node := NewBPlusTreeInternalPage(data, 8)
		node.Init(9, common.INVALID_PAGE_ID, 8)
		node.SetKV(0, key8("b"), 1)
		node.SetKV(1, key8("b"), 2)
		node.SetSize(2)
		node.Insert(key8("d"), 3, bytes.Compare)
		node.Insert(key8("f"), 4, bytes.Compare)
		node.Insert(key8("h"), 5, bytes.Compare)

		targetData := make([]byte, common.PAGE_SIZE)
		target := NewBPlusTreeInternalPage(targetData, 8)
		target.Init(10, common.INVALID_PAGE_ID, 8)

		node.MoveHalfTo(target)
		assert.Equal(t, 3, node.GetSize())
		assert.Equal(t, 2, target.GetSize())
		// 搬走的首键是上推的分隔键
		assert.Equal(t, key8("f"), target.KeyAt(0))
		assert.Equal(t, common.PageID(4), target.ValueAt(0))
		assert.Equal(t, common.PageID(5), target.ValueAt(1))
	})
}
