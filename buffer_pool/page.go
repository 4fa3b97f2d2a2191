package buffer_pool

import (
	"github.com/zhukovaskychina/xstorage-engine/common"
	"github.com/zhukovaskychina/xstorage-engine/latch"
)

// Page 缓冲池中的一个帧：固定大小的页面缓冲区加上帧元数据。
// 元数据(pageID/pinCount/isDirty)由缓冲池管理器的互斥锁保护，
// 页面内容由帧自带的读写latch保护。
type Page struct {
	data     []byte
	pageID   common.PageID
	pinCount int32
	isDirty  bool
	lock     *latch.Latch
}

func newPage() *Page {
	return &Page{
		data:   make([]byte, common.PAGE_SIZE),
		pageID: common.INVALID_PAGE_ID,
		lock:   latch.NewLatch(),
	}
}

// GetData 获取页面内容缓冲区
func (p *Page) GetData() []byte {
	return p.data
}

// GetPageId 获取当前驻留的页面编号
func (p *Page) GetPageId() common.PageID {
	return p.pageID
}

// GetPinCount 获取pin计数
func (p *Page) GetPinCount() int32 {
	return p.pinCount
}

// IsDirty 检查是否为脏页
func (p *Page) IsDirty() bool {
	return p.isDirty
}

// WLatch 获取页面写latch
func (p *Page) WLatch() {
	p.lock.Lock()
}

// WUnlatch 释放页面写latch
func (p *Page) WUnlatch() {
	p.lock.Unlock()
}

// RLatch 获取页面读latch
func (p *Page) RLatch() {
	p.lock.RLock()
}

// RUnlatch 释放页面读latch
func (p *Page) RUnlatch() {
	p.lock.RUnlock()
}

// resetMemory 清零页面缓冲区
func (p *Page) resetMemory() {
	for i := range p.data {
		p.data[i] = 0
	}
}
