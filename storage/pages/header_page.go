package pages

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/zhukovaskychina/xstorage-engine/common"
	"github.com/zhukovaskychina/xstorage-engine/util"
)

// 头页面(页面0)布局：偏移0处4字节记录数，
// 其后每条记录为32字节索引名加4字节根页面编号
const (
	headerRecordNameSize = 32
	headerRecordSize     = headerRecordNameSize + 4
	headerRecordsOffset  = 4
	headerMaxRecords     = (common.PAGE_SIZE - headerRecordsOffset) / headerRecordSize
)

var (
	ErrRecordExists   = errors.New("header record already exists")
	ErrRecordNotFound = errors.New("header record not found")
	ErrHeaderFull     = errors.New("header page is full")
	ErrNameTooLong    = errors.New("index name exceeds 32 bytes")
)

// HeaderPage 页面0的视图，保存每个索引的根页面编号
type HeaderPage struct {
	data []byte
}

// NewHeaderPage 将页面缓冲区包装为头页面视图
func NewHeaderPage(data []byte) *HeaderPage {
	return &HeaderPage{data: data}
}

// GetRecordCount 读取记录数量
func (h *HeaderPage) GetRecordCount() int {
	return int(util.ReadUB4Byte2UInt32(h.data[0:4]))
}

func (h *HeaderPage) setRecordCount(count int) {
	copy(h.data[0:4], util.ConvertUInt4Bytes(uint32(count)))
}

func (h *HeaderPage) recordOffset(index int) int {
	return headerRecordsOffset + index*headerRecordSize
}

// findRecord 返回记录下标，不存在时返回-1
func (h *HeaderPage) findRecord(name string) int {
	target := make([]byte, headerRecordNameSize)
	copy(target, name)
	for i := 0; i < h.GetRecordCount(); i++ {
		offset := h.recordOffset(i)
		if bytes.Equal(h.data[offset:offset+headerRecordNameSize], target) {
			return i
		}
	}
	return -1
}

func (h *HeaderPage) writeRecord(index int, name string, rootPageID common.PageID) {
	offset := h.recordOffset(index)
	nameBuf := make([]byte, headerRecordNameSize)
	copy(nameBuf, name)
	copy(h.data[offset:offset+headerRecordNameSize], nameBuf)
	copy(h.data[offset+headerRecordNameSize:offset+headerRecordSize],
		util.ConvertInt4Bytes(int32(rootPageID)))
}

// InsertRecord 新增一条(索引名, 根页面编号)记录
func (h *HeaderPage) InsertRecord(name string, rootPageID common.PageID) error {
	if len(name) > headerRecordNameSize {
		return errors.Wrapf(ErrNameTooLong, "index %q", name)
	}
	if h.findRecord(name) >= 0 {
		return errors.Wrapf(ErrRecordExists, "index %q", name)
	}
	count := h.GetRecordCount()
	if count >= headerMaxRecords {
		return errors.Wrapf(ErrHeaderFull, "index %q", name)
	}
	h.writeRecord(count, name, rootPageID)
	h.setRecordCount(count + 1)
	return nil
}

// UpdateRecord 更新已有记录的根页面编号
func (h *HeaderPage) UpdateRecord(name string, rootPageID common.PageID) error {
	idx := h.findRecord(name)
	if idx < 0 {
		return errors.Wrapf(ErrRecordNotFound, "index %q", name)
	}
	offset := h.recordOffset(idx) + headerRecordNameSize
	copy(h.data[offset:offset+4], util.ConvertInt4Bytes(int32(rootPageID)))
	return nil
}

// DeleteRecord 删除记录，尾部记录前移
func (h *HeaderPage) DeleteRecord(name string) error {
	idx := h.findRecord(name)
	if idx < 0 {
		return errors.Wrapf(ErrRecordNotFound, "index %q", name)
	}
	count := h.GetRecordCount()
	if idx < count-1 {
		copy(h.data[h.recordOffset(idx):h.recordOffset(count-1)],
			h.data[h.recordOffset(idx+1):h.recordOffset(count)])
	}
	h.setRecordCount(count - 1)
	return nil
}

// GetRootId 查找索引的根页面编号
func (h *HeaderPage) GetRootId(name string) (common.PageID, bool) {
	idx := h.findRecord(name)
	if idx < 0 {
		return common.INVALID_PAGE_ID, false
	}
	offset := h.recordOffset(idx) + headerRecordNameSize
	return common.PageID(int32(util.ReadUB4Byte2UInt32(h.data[offset : offset+4]))), true
}
