package index

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/zhukovaskychina/xstorage-engine/buffer_pool"
	"github.com/zhukovaskychina/xstorage-engine/common"
)

// Transaction 单次树操作的上下文：按获取顺序持有的页面写latch，
// 以及操作结束后待删除的页面集合。pageSet中的nil元素是根latch的哨兵
type Transaction struct {
	pageSet        []*buffer_pool.Page
	deletedPageSet mapset.Set[common.PageID]
}

// NewTransaction 创建操作上下文
func NewTransaction() *Transaction {
	return &Transaction{
		pageSet:        make([]*buffer_pool.Page, 0, 8),
		deletedPageSet: mapset.NewThreadUnsafeSet[common.PageID](),
	}
}

// AddIntoPageSet 记录一个已持有写latch的页面，nil代表根latch
func (txn *Transaction) AddIntoPageSet(page *buffer_pool.Page) {
	txn.pageSet = append(txn.pageSet, page)
}

// GetPageSet 返回当前持有的页面集合
func (txn *Transaction) GetPageSet() []*buffer_pool.Page {
	return txn.pageSet
}

// ClearPageSet 清空页面集合
func (txn *Transaction) ClearPageSet() {
	txn.pageSet = txn.pageSet[:0]
}

// AddIntoDeletedPageSet 标记页面待删除
func (txn *Transaction) AddIntoDeletedPageSet(pageID common.PageID) {
	txn.deletedPageSet.Add(pageID)
}

// GetDeletedPageSet 返回待删除页面集合
func (txn *Transaction) GetDeletedPageSet() mapset.Set[common.PageID] {
	return txn.deletedPageSet
}
