package pages

import (
	"github.com/zhukovaskychina/xstorage-engine/common"
)

// BPlusTreeLeafPage 叶子节点视图。槽位i存放(key_i, value_i)，
// 按key升序排列，value为定宽负载。叶子之间通过next_page_id
// 构成按键升序的单链表
type BPlusTreeLeafPage struct {
	BPlusTreePage
	keySize   int
	valueSize int
}

// NewBPlusTreeLeafPage 将页面缓冲区包装为叶子节点视图
func NewBPlusTreeLeafPage(data []byte, keySize int, valueSize int) *BPlusTreeLeafPage {
	return &BPlusTreeLeafPage{
		BPlusTreePage: BPlusTreePage{data: data},
		keySize:       keySize,
		valueSize:     valueSize,
	}
}

// LeafMaxSize 按键值宽度计算一页能容纳的叶子槽位数量
func LeafMaxSize(keySize int, valueSize int) int {
	return (common.PAGE_SIZE - LeafHeaderSize) / (keySize + valueSize)
}

// Init 初始化新建的叶子节点
func (p *BPlusTreeLeafPage) Init(pageID common.PageID, parentID common.PageID, maxSize int) {
	p.SetPageType(PageTypeLeaf)
	p.SetPageId(pageID)
	p.SetSize(0)
	p.SetParentPageId(parentID)
	p.SetMaxSize(maxSize)
	p.SetNextPageId(common.INVALID_PAGE_ID)
}

func (p *BPlusTreeLeafPage) entrySize() int {
	return p.keySize + p.valueSize
}

func (p *BPlusTreeLeafPage) entryOffset(index int) int {
	return LeafHeaderSize + index*p.entrySize()
}

// GetNextPageId 读取下一个叶子的页面编号
func (p *BPlusTreeLeafPage) GetNextPageId() common.PageID {
	return p.readPageID(offsetNextPageID)
}

// SetNextPageId 写入下一个叶子的页面编号
func (p *BPlusTreeLeafPage) SetNextPageId(nextID common.PageID) {
	p.writePageID(offsetNextPageID, nextID)
}

// KeyAt 返回槽位i的key，返回的是页面内的切片视图
func (p *BPlusTreeLeafPage) KeyAt(index int) []byte {
	offset := p.entryOffset(index)
	return p.data[offset : offset+p.keySize]
}

// ValueAt 返回槽位i的value，返回的是页面内的切片视图
func (p *BPlusTreeLeafPage) ValueAt(index int) []byte {
	offset := p.entryOffset(index) + p.keySize
	return p.data[offset : offset+p.valueSize]
}

// SetKV 写入槽位i的键值对
func (p *BPlusTreeLeafPage) SetKV(index int, key []byte, value []byte) {
	offset := p.entryOffset(index)
	copy(p.data[offset:offset+p.keySize], key)
	copy(p.data[offset+p.keySize:offset+p.entrySize()], value)
}

// Lowerbound 返回第一个key不小于目标key的槽位，全部更小时返回size
func (p *BPlusTreeLeafPage) Lowerbound(key []byte, comparator common.KeyComparator) int {
	lo, hi := 0, p.GetSize()
	for lo < hi {
		mid := (lo + hi) / 2
		if comparator(p.KeyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// KeyIndex 返回key所在槽位，不存在时返回-1
func (p *BPlusTreeLeafPage) KeyIndex(key []byte, comparator common.KeyComparator) int {
	idx := p.Lowerbound(key, comparator)
	if idx < p.GetSize() && comparator(p.KeyAt(idx), key) == 0 {
		return idx
	}
	return -1
}

// Insert 按排序位置插入键值对，高位槽位右移一格
func (p *BPlusTreeLeafPage) Insert(key []byte, value []byte, comparator common.KeyComparator) {
	size := p.GetSize()
	idx := p.Lowerbound(key, comparator)
	if idx < size {
		copy(p.data[p.entryOffset(idx+1):p.entryOffset(size+1)],
			p.data[p.entryOffset(idx):p.entryOffset(size)])
	}
	p.SetKV(idx, key, value)
	p.IncreaseSize(1)
}

// RemoveAt 删除槽位i，尾部槽位左移一格
func (p *BPlusTreeLeafPage) RemoveAt(index int) {
	size := p.GetSize()
	if index < size-1 {
		copy(p.data[p.entryOffset(index):p.entryOffset(size-1)],
			p.data[p.entryOffset(index+1):p.entryOffset(size)])
	}
	p.IncreaseSize(-1)
}

// Remove 按key删除，返回key是否存在
func (p *BPlusTreeLeafPage) Remove(key []byte, comparator common.KeyComparator) bool {
	idx := p.KeyIndex(key, comparator)
	if idx < 0 {
		return false
	}
	p.RemoveAt(idx)
	return true
}

// MoveHalfTo 分裂时将上半部分槽位搬到目标叶子，
// ceil(size/2)个槽位留在左侧
func (p *BPlusTreeLeafPage) MoveHalfTo(target *BPlusTreeLeafPage) {
	oldSize := p.GetSize()
	offset := (oldSize + 1) / 2
	for i := offset; i < oldSize; i++ {
		target.SetKV(i-offset, p.KeyAt(i), p.ValueAt(i))
	}
	p.SetSize(offset)
	target.SetSize(oldSize - offset)
}
