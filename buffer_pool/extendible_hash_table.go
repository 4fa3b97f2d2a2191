package buffer_pool

import (
	"sync"

	"github.com/zhukovaskychina/xstorage-engine/common"
	"github.com/zhukovaskychina/xstorage-engine/util"
)

// hashEntry 桶内的一条 page id 到 frame id 的映射
type hashEntry struct {
	key   common.PageID
	value common.FrameID
}

// hashBucket 容量受限的桶，localDepth 决定其在目录中被引用的次数
type hashBucket struct {
	entries    []hashEntry
	capacity   int
	localDepth int
}

func newHashBucket(capacity int, depth int) *hashBucket {
	return &hashBucket{
		entries:    make([]hashEntry, 0, capacity),
		capacity:   capacity,
		localDepth: depth,
	}
}

func (b *hashBucket) isFull() bool {
	return len(b.entries) >= b.capacity
}

func (b *hashBucket) find(key common.PageID) (common.FrameID, bool) {
	for _, e := range b.entries {
		if e.key == key {
			return e.value, true
		}
	}
	return -1, false
}

func (b *hashBucket) insert(key common.PageID, value common.FrameID) bool {
	for i := range b.entries {
		if b.entries[i].key == key {
			b.entries[i].value = value
			return true
		}
	}
	if b.isFull() {
		return false
	}
	b.entries = append(b.entries, hashEntry{key: key, value: value})
	return true
}

func (b *hashBucket) remove(key common.PageID) bool {
	for i := range b.entries {
		if b.entries[i].key == key {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return true
		}
	}
	return false
}

// ExtendibleHashTable 可扩展哈希目录，缓冲池用它维护
// page id 到 frame id 的映射。桶溢出时目录翻倍扩展，不做收缩。
type ExtendibleHashTable struct {
	mu          sync.Mutex
	globalDepth int
	bucketSize  int
	numBuckets  int
	dir         []*hashBucket
}

// NewExtendibleHashTable 创建可扩展哈希表，bucketSize为桶容量
func NewExtendibleHashTable(bucketSize int) *ExtendibleHashTable {
	table := &ExtendibleHashTable{
		bucketSize: bucketSize,
		numBuckets: 1,
		dir:        make([]*hashBucket, 1),
	}
	table.dir[0] = newHashBucket(bucketSize, 0)
	return table
}

func hashKey(key common.PageID) uint64 {
	return util.HashCode(util.ConvertInt4Bytes(int32(key)))
}

// indexOf 计算key所在的目录槽位
func (t *ExtendibleHashTable) indexOf(key common.PageID) uint64 {
	mask := uint64(1)<<uint(t.globalDepth) - 1
	return hashKey(key) & mask
}

// Find 查找key对应的frame id
func (t *ExtendibleHashTable) Find(key common.PageID) (common.FrameID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir[t.indexOf(key)].find(key)
}

// Insert 插入或覆盖映射，桶满时按分裂规则扩展，必定成功
func (t *ExtendibleHashTable) Insert(key common.PageID, value common.FrameID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.indexOf(key)
	if _, ok := t.dir[idx].find(key); ok {
		t.dir[idx].insert(key, value)
		return
	}

	for t.dir[idx].isFull() {
		bucket := t.dir[idx]
		localDepth := bucket.localDepth

		// 本地深度追上全局深度时目录翻倍
		if localDepth == t.globalDepth {
			curSize := len(t.dir)
			t.dir = append(t.dir, t.dir[:curSize]...)
			t.globalDepth++
		}

		b0 := newHashBucket(t.bucketSize, localDepth+1)
		b1 := newHashBucket(t.bucketSize, localDepth+1)
		t.numBuckets++

		localMask := uint64(1) << uint(localDepth)
		for _, e := range bucket.entries {
			if hashKey(e.key)&localMask != 0 {
				b1.insert(e.key, e.value)
			} else {
				b0.insert(e.key, e.value)
			}
		}

		// 原先指向旧桶的目录槽位按第localDepth位重新接线
		for i := hashKey(key) & (localMask - 1); i < uint64(len(t.dir)); i += localMask {
			if t.dir[i] != bucket {
				continue
			}
			if i&localMask != 0 {
				t.dir[i] = b1
			} else {
				t.dir[i] = b0
			}
		}
		idx = t.indexOf(key)
	}
	t.dir[idx].insert(key, value)
}

// Remove 删除key的映射，返回其是否存在
func (t *ExtendibleHashTable) Remove(key common.PageID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir[t.indexOf(key)].remove(key)
}

// GetGlobalDepth 返回全局深度
func (t *ExtendibleHashTable) GetGlobalDepth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.globalDepth
}

// GetLocalDepth 返回指定目录槽位所指桶的本地深度
func (t *ExtendibleHashTable) GetLocalDepth(dirIndex int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir[dirIndex].localDepth
}

// GetNumBuckets 返回桶数量
func (t *ExtendibleHashTable) GetNumBuckets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.numBuckets
}

// GetDirSize 返回目录槽位数量
func (t *ExtendibleHashTable) GetDirSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.dir)
}

// refCount 统计指向dirIndex所指桶的槽位数量，测试校验目录不变式用
func (t *ExtendibleHashTable) refCount(dirIndex int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for _, b := range t.dir {
		if b == t.dir[dirIndex] {
			count++
		}
	}
	return count
}
