package pages

import (
	"github.com/zhukovaskychina/xstorage-engine/common"
)

// BPlusTreeInternalPage 内部节点视图。槽位i存放(key_i, child_i)，
// key_0不参与比较，子节点i负责键区间[key_i, key_{i+1})
type BPlusTreeInternalPage struct {
	BPlusTreePage
	keySize int
}

// NewBPlusTreeInternalPage 将页面缓冲区包装为内部节点视图
func NewBPlusTreeInternalPage(data []byte, keySize int) *BPlusTreeInternalPage {
	return &BPlusTreeInternalPage{
		BPlusTreePage: BPlusTreePage{data: data},
		keySize:       keySize,
	}
}

// InternalMaxSize 按键宽度计算内部节点的容量上限。
// 分裂发生在插入之后，页面要留出一个临时的溢出槽位
func InternalMaxSize(keySize int) int {
	return (common.PAGE_SIZE-InternalHeaderSize)/(keySize+4) - 1
}

// Init 初始化新建的内部节点
func (p *BPlusTreeInternalPage) Init(pageID common.PageID, parentID common.PageID, maxSize int) {
	p.SetPageType(PageTypeInternal)
	p.SetPageId(pageID)
	p.SetSize(0)
	p.SetParentPageId(parentID)
	p.SetMaxSize(maxSize)
}

func (p *BPlusTreeInternalPage) entrySize() int {
	return p.keySize + 4
}

func (p *BPlusTreeInternalPage) entryOffset(index int) int {
	return InternalHeaderSize + index*p.entrySize()
}

// KeyAt 返回槽位i的key，返回的是页面内的切片视图
func (p *BPlusTreeInternalPage) KeyAt(index int) []byte {
	offset := p.entryOffset(index)
	return p.data[offset : offset+p.keySize]
}

// SetKeyAt 写入槽位i的key
func (p *BPlusTreeInternalPage) SetKeyAt(index int, key []byte) {
	offset := p.entryOffset(index)
	copy(p.data[offset:offset+p.keySize], key)
}

// ValueAt 返回槽位i的子节点页面编号
func (p *BPlusTreeInternalPage) ValueAt(index int) common.PageID {
	return p.readPageID(p.entryOffset(index) + p.keySize)
}

// SetValueAt 写入槽位i的子节点页面编号
func (p *BPlusTreeInternalPage) SetValueAt(index int, pageID common.PageID) {
	p.writePageID(p.entryOffset(index)+p.keySize, pageID)
}

// SetKV 写入槽位i的键和子节点
func (p *BPlusTreeInternalPage) SetKV(index int, key []byte, pageID common.PageID) {
	p.SetKeyAt(index, key)
	p.SetValueAt(index, pageID)
}

// ValueIndex 返回子节点页面编号所在槽位，不存在时返回-1
func (p *BPlusTreeInternalPage) ValueIndex(pageID common.PageID) int {
	for i := 0; i < p.GetSize(); i++ {
		if p.ValueAt(i) == pageID {
			return i
		}
	}
	return -1
}

// Lookup 返回key应当下降到的子节点：
// 第一个key_i大于目标key时取子节点i-1，否则取最后一个子节点
func (p *BPlusTreeInternalPage) Lookup(key []byte, comparator common.KeyComparator) common.PageID {
	size := p.GetSize()
	next := p.ValueAt(size - 1)
	for i := 1; i < size; i++ {
		if comparator(p.KeyAt(i), key) > 0 {
			next = p.ValueAt(i - 1)
			break
		}
	}
	return next
}

// Insert 按排序位置插入(key, child)，key_0约定保持不变
func (p *BPlusTreeInternalPage) Insert(key []byte, pageID common.PageID, comparator common.KeyComparator) {
	size := p.GetSize()
	idx := size
	for i := 1; i < size; i++ {
		if comparator(p.KeyAt(i), key) > 0 {
			idx = i
			break
		}
	}
	if idx < size {
		copy(p.data[p.entryOffset(idx+1):p.entryOffset(size+1)],
			p.data[p.entryOffset(idx):p.entryOffset(size)])
	}
	p.SetKV(idx, key, pageID)
	p.IncreaseSize(1)
}

// RemoveAt 删除槽位i，尾部槽位左移一格
func (p *BPlusTreeInternalPage) RemoveAt(index int) {
	size := p.GetSize()
	if index < size-1 {
		copy(p.data[p.entryOffset(index):p.entryOffset(size-1)],
			p.data[p.entryOffset(index+1):p.entryOffset(size)])
	}
	p.IncreaseSize(-1)
}

// MoveHalfTo 分裂时将上半部分槽位整体搬到目标节点，
// 搬走的第一个key作为上推的分隔键留在目标的key_0槽位
func (p *BPlusTreeInternalPage) MoveHalfTo(target *BPlusTreeInternalPage) {
	oldSize := p.GetSize()
	offset := (oldSize + 1) / 2
	for i := offset; i < oldSize; i++ {
		target.SetKV(i-offset, p.KeyAt(i), p.ValueAt(i))
	}
	p.SetSize(offset)
	target.SetSize(oldSize - offset)
}
