// Package pages implements the on-page layouts of the B+ tree index
package pages

import (
	"github.com/zhukovaskychina/xstorage-engine/common"
	"github.com/zhukovaskychina/xstorage-engine/util"
)

// 页面头布局，所有字段4字节小端
const (
	offsetPageType     = 0
	offsetSize         = 4
	offsetMaxSize      = 8
	offsetParentPageID = 12
	offsetPageID       = 16
	offsetNextPageID   = 20

	// InternalHeaderSize 内部节点头大小
	InternalHeaderSize = 20
	// LeafHeaderSize 叶子节点头大小，多一个next_page_id
	LeafHeaderSize = 24
)

// 页面类型
const (
	PageTypeInvalid  uint32 = 0
	PageTypeLeaf     uint32 = 1
	PageTypeInternal uint32 = 2
)

// BPlusTreePage B+树页面的公共头部分，叶子和内部节点共享。
// 所有操作直接读写页面字节缓冲区，并发保护由帧的latch提供
type BPlusTreePage struct {
	data []byte
}

// NewBPlusTreePage 将页面缓冲区包装为仅含公共头的视图
func NewBPlusTreePage(data []byte) *BPlusTreePage {
	return &BPlusTreePage{data: data}
}

func (p *BPlusTreePage) readUint32(offset int) uint32 {
	return util.ReadUB4Byte2UInt32(p.data[offset : offset+4])
}

func (p *BPlusTreePage) writeUint32(offset int, v uint32) {
	copy(p.data[offset:offset+4], util.ConvertUInt4Bytes(v))
}

func (p *BPlusTreePage) readPageID(offset int) common.PageID {
	return common.PageID(int32(p.readUint32(offset)))
}

func (p *BPlusTreePage) writePageID(offset int, id common.PageID) {
	copy(p.data[offset:offset+4], util.ConvertInt4Bytes(int32(id)))
}

// GetData 返回底层页面缓冲区
func (p *BPlusTreePage) GetData() []byte {
	return p.data
}

// GetPageType 读取页面类型
func (p *BPlusTreePage) GetPageType() uint32 {
	return p.readUint32(offsetPageType)
}

// SetPageType 写入页面类型
func (p *BPlusTreePage) SetPageType(pageType uint32) {
	p.writeUint32(offsetPageType, pageType)
}

// IsLeafPage 判断是否为叶子节点
func (p *BPlusTreePage) IsLeafPage() bool {
	return p.GetPageType() == PageTypeLeaf
}

// GetSize 读取已占用槽位数量
func (p *BPlusTreePage) GetSize() int {
	return int(int32(p.readUint32(offsetSize)))
}

// SetSize 写入已占用槽位数量
func (p *BPlusTreePage) SetSize(size int) {
	p.writeUint32(offsetSize, uint32(size))
}

// IncreaseSize 调整已占用槽位数量
func (p *BPlusTreePage) IncreaseSize(amount int) {
	p.SetSize(p.GetSize() + amount)
}

// GetMaxSize 读取容量上限
func (p *BPlusTreePage) GetMaxSize() int {
	return int(int32(p.readUint32(offsetMaxSize)))
}

// SetMaxSize 写入容量上限
func (p *BPlusTreePage) SetMaxSize(maxSize int) {
	p.writeUint32(offsetMaxSize, uint32(maxSize))
}

// GetMinSize 半满下限，根节点另有特例
func (p *BPlusTreePage) GetMinSize() int {
	return (p.GetMaxSize() + 1) / 2
}

// GetParentPageId 读取父节点页面编号
func (p *BPlusTreePage) GetParentPageId() common.PageID {
	return p.readPageID(offsetParentPageID)
}

// SetParentPageId 写入父节点页面编号
func (p *BPlusTreePage) SetParentPageId(parentID common.PageID) {
	p.writePageID(offsetParentPageID, parentID)
}

// GetPageId 读取本页面编号
func (p *BPlusTreePage) GetPageId() common.PageID {
	return p.readPageID(offsetPageID)
}

// SetPageId 写入本页面编号
func (p *BPlusTreePage) SetPageId(pageID common.PageID) {
	p.writePageID(offsetPageID, pageID)
}

// IsRootPage 判断是否为根节点
func (p *BPlusTreePage) IsRootPage() bool {
	return p.GetParentPageId() == common.INVALID_PAGE_ID
}
