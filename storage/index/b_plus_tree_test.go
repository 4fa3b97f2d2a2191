package index

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/xstorage-engine/buffer_pool"
	"github.com/zhukovaskychina/xstorage-engine/common"
	"github.com/zhukovaskychina/xstorage-engine/storage/disk"
	"github.com/zhukovaskychina/xstorage-engine/storage/pages"
	"github.com/zhukovaskychina/xstorage-engine/util"
)

func compareUint64(a, b []byte) int {
	ua, ub := util.ReadUB8Byte2Long(a), util.ReadUB8Byte2Long(b)
	switch {
	case ua < ub:
		return -1
	case ua > ub:
		return 1
	default:
		return 0
	}
}

func k(i int) []byte {
	return util.ConvertULong8Bytes(uint64(i))
}

func v(i int) []byte {
	return util.ConvertULong8Bytes(uint64(i * 1000))
}

func newTestTree(t *testing.T, poolSize int, leafMax int, internalMax int) *BPlusTree {
	t.Helper()
	dm := disk.NewVirtualDiskManagerImpl("test.db")
	bpm := buffer_pool.NewBufferPoolManager(buffer_pool.BufferPoolConfig{
		PoolSize:        poolSize,
		ReplacerK:       2,
		TableBucketSize: 4,
	}, dm, nil)
	require.NoError(t, InitHeaderPage(bpm))
	return NewBPlusTree("test_index", bpm, compareUint64, 8, 8, leafMax, internalMax)
}

// collectLeafDepths 收集每个叶子的深度，校验所有叶子同层
func collectLeafDepths(t *testing.T, tree *BPlusTree, pageID common.PageID, depth int, depths map[int]int) {
	t.Helper()
	page, err := tree.bpm.FetchPage(pageID)
	require.NoError(t, err)
	node := pages.NewBPlusTreePage(page.GetData())
	if node.IsLeafPage() {
		depths[depth]++
	} else {
		internal := tree.asInternal(page)
		for i := 0; i < internal.GetSize(); i++ {
			collectLeafDepths(t, tree, internal.ValueAt(i), depth+1, depths)
		}
	}
	tree.bpm.UnpinPage(pageID, false)
}

// verifyTree 校验叶子同层、全树key升序且无重复，返回key数量
func verifyTree(t *testing.T, tree *BPlusTree) int {
	t.Helper()
	tree.rootLatch.RLock()
	rootID := tree.rootPageID
	tree.rootLatch.RUnlock()
	if rootID == common.INVALID_PAGE_ID {
		return 0
	}

	depths := make(map[int]int)
	collectLeafDepths(t, tree, rootID, 0, depths)
	require.Len(t, depths, 1, "leaves must share the same depth")

	it, err := tree.Begin()
	require.NoError(t, err)
	count := 0
	var prev []byte
	for !it.IsEnd() {
		key := it.Key()
		if prev != nil {
			require.Negative(t, compareUint64(prev, key), "keys out of order")
		}
		prev = key
		count++
		require.NoError(t, it.Next())
	}
	return count
}

func TestBPlusTreeBasic(t *testing.T) {
	t.Run("空树", func(t *testing.T) {
		tree := newTestTree(t, 16, 3, 3)
		assert.True(t, tree.IsEmpty())

		_, found, err := tree.GetValue(k(1))
		require.NoError(t, err)
		assert.False(t, found)

		// 删除不存在的key是no-op
		require.NoError(t, tree.Remove(k(1)))

		it, err := tree.Begin()
		require.NoError(t, err)
		assert.True(t, it.IsEnd())
	})

	t.Run("单叶插入查找", func(t *testing.T) {
		tree := newTestTree(t, 16, 3, 3)

		inserted, err := tree.Insert(k(10), v(10))
		require.NoError(t, err)
		assert.True(t, inserted)
		assert.False(t, tree.IsEmpty())

		value, found, err := tree.GetValue(k(10))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, v(10), value)

		// 重复key插入失败
		inserted, err = tree.Insert(k(10), v(99))
		require.NoError(t, err)
		assert.False(t, inserted)

		value, _, _ = tree.GetValue(k(10))
		assert.Equal(t, v(10), value, "duplicate insert must not overwrite")
	})

	t.Run("小扇出分裂", func(t *testing.T) {
		tree := newTestTree(t, 16, 3, 3)

		for _, i := range []int{10, 20, 30, 40, 25} {
			inserted, err := tree.Insert(k(i), v(i))
			require.NoError(t, err)
			require.True(t, inserted, "insert %d", i)
		}

		for _, i := range []int{10, 20, 25, 30, 40} {
			value, found, err := tree.GetValue(k(i))
			require.NoError(t, err)
			require.True(t, found, "key %d", i)
			assert.Equal(t, v(i), value)
		}
		assert.Equal(t, 5, verifyTree(t, tree))
	})

	t.Run("根页面编号持久化到头页面", func(t *testing.T) {
		tree := newTestTree(t, 16, 3, 3)
		for i := 1; i <= 9; i++ {
			_, err := tree.Insert(k(i), v(i))
			require.NoError(t, err)
		}

		headerPage, err := tree.bpm.FetchPage(common.HEADER_PAGE_ID)
		require.NoError(t, err)
		header := pages.NewHeaderPage(headerPage.GetData())
		rootID, ok := header.GetRootId("test_index")
		tree.bpm.UnpinPage(common.HEADER_PAGE_ID, false)

		require.True(t, ok)
		tree.rootLatch.RLock()
		assert.Equal(t, tree.rootPageID, rootID)
		tree.rootLatch.RUnlock()
	})
}

func TestBPlusTreeRemove(t *testing.T) {
	t.Run("合并场景", func(t *testing.T) {
		tree := newTestTree(t, 16, 3, 3)
		for _, i := range []int{10, 20, 30, 40, 25} {
			_, err := tree.Insert(k(i), v(i))
			require.NoError(t, err)
		}

		// 最左叶子下溢，与右侧叶子合并并消去父分隔键
		require.NoError(t, tree.Remove(k(10)))

		_, found, err := tree.GetValue(k(10))
		require.NoError(t, err)
		assert.False(t, found)
		for _, i := range []int{20, 25, 30, 40} {
			_, found, err := tree.GetValue(k(i))
			require.NoError(t, err)
			require.True(t, found, "key %d lost after merge", i)
		}
		assert.Equal(t, 4, verifyTree(t, tree))

		// 再删一次同一个key是no-op
		require.NoError(t, tree.Remove(k(10)))
		assert.Equal(t, 4, verifyTree(t, tree))
	})

	t.Run("删空整棵树后可重建", func(t *testing.T) {
		tree := newTestTree(t, 16, 3, 3)
		for i := 1; i <= 7; i++ {
			_, err := tree.Insert(k(i), v(i))
			require.NoError(t, err)
		}
		for i := 1; i <= 7; i++ {
			require.NoError(t, tree.Remove(k(i)))
		}
		assert.True(t, tree.IsEmpty())

		inserted, err := tree.Insert(k(100), v(100))
		require.NoError(t, err)
		assert.True(t, inserted)
		value, found, err := tree.GetValue(k(100))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, v(100), value)
	})

	t.Run("乱序增删大批量", func(t *testing.T) {
		tree := newTestTree(t, 64, 3, 3)
		const n = 200

		// 乱序但确定的排列
		for i := 0; i < n; i++ {
			key := i * 7 % n
			inserted, err := tree.Insert(k(key), v(key))
			require.NoError(t, err)
			require.True(t, inserted, "insert %d", key)
		}
		assert.Equal(t, n, verifyTree(t, tree))

		// 删除偶数key
		for i := 0; i < n; i += 2 {
			require.NoError(t, tree.Remove(k(i)))
		}
		assert.Equal(t, n/2, verifyTree(t, tree))

		for i := 0; i < n; i++ {
			_, found, err := tree.GetValue(k(i))
			require.NoError(t, err)
			assert.Equal(t, i%2 == 1, found, "key %d", i)
		}
	})
}

func TestBPlusTreeIterator(t *testing.T) {
	tree := newTestTree(t, 16, 3, 3)
	for _, i := range []int{5, 10, 15, 20, 25} {
		_, err := tree.Insert(k(i), v(i))
		require.NoError(t, err)
	}

	t.Run("全量扫描升序无遗漏", func(t *testing.T) {
		it, err := tree.Begin()
		require.NoError(t, err)

		var got []uint64
		for !it.IsEnd() {
			got = append(got, util.ReadUB8Byte2Long(it.Key()))
			require.NoError(t, it.Next())
		}
		assert.Equal(t, []uint64{5, 10, 15, 20, 25}, got)
	})

	t.Run("定位扫描", func(t *testing.T) {
		it, err := tree.BeginFrom(k(12))
		require.NoError(t, err)

		var got []uint64
		for !it.IsEnd() {
			got = append(got, util.ReadUB8Byte2Long(it.Key()))
			require.NoError(t, it.Next())
		}
		assert.Equal(t, []uint64{15, 20, 25}, got)
	})

	t.Run("定位到已有key", func(t *testing.T) {
		it, err := tree.BeginFrom(k(20))
		require.NoError(t, err)
		require.False(t, it.IsEnd())
		assert.Equal(t, uint64(20), util.ReadUB8Byte2Long(it.Key()))
		assert.Equal(t, v(20), it.Value())
		it.Close()
	})

	t.Run("定位越过最大key", func(t *testing.T) {
		it, err := tree.BeginFrom(k(26))
		require.NoError(t, err)
		assert.True(t, it.IsEnd())
	})
}

func TestBPlusTreeConcurrency(t *testing.T) {
	t.Run("并行插入不相交区间", func(t *testing.T) {
		tree := newTestTree(t, 64, 3, 3)
		const workers = 4
		const perWorker = 100

		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(base int) {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					key := base*perWorker + i
					if _, err := tree.Insert(k(key), v(key)); err != nil {
						t.Errorf("insert %d: %v", key, err)
						return
					}
				}
			}(w)
		}
		wg.Wait()

		assert.Equal(t, workers*perWorker, verifyTree(t, tree))
		for i := 0; i < workers*perWorker; i++ {
			value, found, err := tree.GetValue(k(i))
			require.NoError(t, err)
			require.True(t, found, "key %d lost", i)
			assert.Equal(t, v(i), value)
		}
	})

	t.Run("并行插入与点查", func(t *testing.T) {
		tree := newTestTree(t, 64, 3, 3)
		const committed = 100
		for i := 0; i < committed; i++ {
			_, err := tree.Insert(k(i), v(i))
			require.NoError(t, err)
		}

		var wg sync.WaitGroup
		// 写入线程插入新区间
		for w := 0; w < 2; w++ {
			wg.Add(1)
			go func(base int) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					key := committed + base*100 + i
					if _, err := tree.Insert(k(key), v(key)); err != nil {
						t.Errorf("insert %d: %v", key, err)
						return
					}
				}
			}(w)
		}
		// 读取线程查已提交的key，任何缺失都是错误
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for round := 0; round < 50; round++ {
					for i := 0; i < committed; i += 10 {
						value, found, err := tree.GetValue(k(i))
						if err != nil {
							t.Errorf("get %d: %v", i, err)
							return
						}
						if !found {
							t.Errorf("committed key %d missing", i)
							return
						}
						if compareUint64(value, v(i)) != 0 {
							t.Errorf("key %d returned wrong value", i)
							return
						}
					}
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, committed+200, verifyTree(t, tree))
	})

	t.Run("并行删除不相交区间", func(t *testing.T) {
		tree := newTestTree(t, 64, 3, 3)
		const n = 300
		for i := 0; i < n; i++ {
			_, err := tree.Insert(k(i), v(i))
			require.NoError(t, err)
		}

		var wg sync.WaitGroup
		for w := 0; w < 3; w++ {
			wg.Add(1)
			go func(base int) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					if err := tree.Remove(k(base*100 + i)); err != nil {
						t.Errorf("remove %d: %v", base*100+i, err)
						return
					}
				}
			}(w)
		}
		wg.Wait()

		assert.Equal(t, n-150, verifyTree(t, tree))
	})
}
