package index

import (
	"github.com/juju/errors"
	"github.com/zhukovaskychina/xstorage-engine/buffer_pool"
	"github.com/zhukovaskychina/xstorage-engine/common"
	"github.com/zhukovaskychina/xstorage-engine/storage/pages"
)

// IndexIterator 叶子链表上的范围扫描游标。
// 持有当前叶子的pin，推进到下一个叶子时换页。
// 迭代期间由同一调用方修改树不是安全的
type IndexIterator struct {
	bpm       *buffer_pool.BufferPoolManager
	page      *buffer_pool.Page
	leaf      *pages.BPlusTreeLeafPage
	pageID    common.PageID
	index     int
	keySize   int
	valueSize int
}

func newIndexIterator(bpm *buffer_pool.BufferPoolManager, page *buffer_pool.Page, index int, keySize int, valueSize int) *IndexIterator {
	it := &IndexIterator{
		bpm:       bpm,
		page:      page,
		pageID:    common.INVALID_PAGE_ID,
		index:     index,
		keySize:   keySize,
		valueSize: valueSize,
	}
	if page != nil {
		it.pageID = page.GetPageId()
		it.leaf = pages.NewBPlusTreeLeafPage(page.GetData(), keySize, valueSize)
	}
	return it
}

// IsEnd 判断是否已扫描完全部叶子
func (it *IndexIterator) IsEnd() bool {
	return it.pageID == common.INVALID_PAGE_ID
}

// Key 返回当前槽位key的副本
func (it *IndexIterator) Key() []byte {
	it.page.RLatch()
	defer it.page.RUnlatch()
	return append([]byte(nil), it.leaf.KeyAt(it.index)...)
}

// Value 返回当前槽位value的副本
func (it *IndexIterator) Value() []byte {
	it.page.RLatch()
	defer it.page.RUnlatch()
	return append([]byte(nil), it.leaf.ValueAt(it.index)...)
}

// Next 推进到下一个槽位，越过叶子尾部时换到next_page_id指向的叶子
func (it *IndexIterator) Next() error {
	if it.IsEnd() {
		return nil
	}
	it.index++
	for {
		it.page.RLatch()
		size := it.leaf.GetSize()
		nextID := it.leaf.GetNextPageId()
		it.page.RUnlatch()
		if it.index < size {
			return nil
		}

		it.bpm.UnpinPage(it.pageID, false)
		if nextID == common.INVALID_PAGE_ID {
			it.page = nil
			it.leaf = nil
			it.pageID = common.INVALID_PAGE_ID
			return nil
		}
		nextPage, err := it.bpm.FetchPage(nextID)
		if err != nil {
			it.page = nil
			it.leaf = nil
			it.pageID = common.INVALID_PAGE_ID
			return errors.Trace(err)
		}
		it.page = nextPage
		it.pageID = nextID
		it.leaf = pages.NewBPlusTreeLeafPage(nextPage.GetData(), it.keySize, it.valueSize)
		it.index = 0
	}
}

// Close 提前结束扫描时释放当前叶子的pin
func (it *IndexIterator) Close() {
	if !it.IsEnd() {
		it.bpm.UnpinPage(it.pageID, false)
		it.page = nil
		it.leaf = nil
		it.pageID = common.INVALID_PAGE_ID
	}
}
