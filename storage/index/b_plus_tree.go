// Package index implements a concurrent B+ tree index on top of the
// buffer pool. Traversal follows the latch crabbing protocol: a
// tree-level root latch guards root_page_id, per-frame latches guard
// page contents, and ancestors are released as soon as a node is
// proven safe for the running operation.
package index

import (
	"github.com/juju/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/zhukovaskychina/xstorage-engine/buffer_pool"
	"github.com/zhukovaskychina/xstorage-engine/common"
	"github.com/zhukovaskychina/xstorage-engine/latch"
	"github.com/zhukovaskychina/xstorage-engine/logger"
	"github.com/zhukovaskychina/xstorage-engine/storage/pages"
)

type opType int

const (
	opRead opType = iota
	opInsert
	opRemove
)

// BPlusTree 基于缓冲池的并发B+树索引。
// key为定宽字节数组，排序由调用方提供的比较器决定；
// 叶子value为定宽负载，内部节点value为子页面编号
type BPlusTree struct {
	indexName  string
	rootPageID common.PageID
	bpm        *buffer_pool.BufferPoolManager
	comparator common.KeyComparator

	keySize         int
	valueSize       int
	leafMaxSize     int
	internalMaxSize int

	// rootLatch 保护rootPageID，悲观写入路径以排他方式持有
	rootLatch *latch.Latch
}

// NewBPlusTree 创建B+树索引。leafMaxSize/internalMaxSize传0时
// 按页面大小和键值宽度计算
func NewBPlusTree(indexName string, bpm *buffer_pool.BufferPoolManager, comparator common.KeyComparator,
	keySize int, valueSize int, leafMaxSize int, internalMaxSize int) *BPlusTree {
	if m := pages.LeafMaxSize(keySize, valueSize); leafMaxSize <= 0 || leafMaxSize > m {
		leafMaxSize = m
	}
	if m := pages.InternalMaxSize(keySize); internalMaxSize <= 0 || internalMaxSize > m {
		internalMaxSize = m
	}
	return &BPlusTree{
		indexName:       indexName,
		rootPageID:      common.INVALID_PAGE_ID,
		bpm:             bpm,
		comparator:      comparator,
		keySize:         keySize,
		valueSize:       valueSize,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootLatch:       latch.NewLatch(),
	}
}

// InitHeaderPage 在新建的数据文件上创建头页面(页面0)。
// 必须在任何索引写入前调用一次
func InitHeaderPage(bpm *buffer_pool.BufferPoolManager) error {
	page, err := bpm.NewPage()
	if err != nil {
		return errors.Trace(err)
	}
	if page.GetPageId() != common.HEADER_PAGE_ID {
		bpm.UnpinPage(page.GetPageId(), false)
		return errors.Errorf("header page allocated with id %d, want %d", page.GetPageId(), common.HEADER_PAGE_ID)
	}
	bpm.UnpinPage(common.HEADER_PAGE_ID, true)
	return nil
}

// ReloadRootPageId 从头页面恢复本索引的根页面编号，
// 重新打开已有数据文件时使用
func (t *BPlusTree) ReloadRootPageId() error {
	page, err := t.bpm.FetchPage(common.HEADER_PAGE_ID)
	if err != nil {
		return errors.Trace(err)
	}
	page.RLatch()
	header := pages.NewHeaderPage(page.GetData())
	rootID, ok := header.GetRootId(t.indexName)
	page.RUnlatch()
	t.bpm.UnpinPage(common.HEADER_PAGE_ID, false)

	t.rootLatch.Lock()
	if ok {
		t.rootPageID = rootID
	}
	t.rootLatch.Unlock()
	return nil
}

// IsEmpty 判断树是否为空
func (t *BPlusTree) IsEmpty() bool {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	return t.rootPageID == common.INVALID_PAGE_ID
}

func (t *BPlusTree) asLeaf(page *buffer_pool.Page) *pages.BPlusTreeLeafPage {
	return pages.NewBPlusTreeLeafPage(page.GetData(), t.keySize, t.valueSize)
}

func (t *BPlusTree) asInternal(page *buffer_pool.Page) *pages.BPlusTreeInternalPage {
	return pages.NewBPlusTreeInternalPage(page.GetData(), t.keySize)
}

// pageIsLeaf 读取页面类型。页面类型只在Init时写入一次，
// 持有父节点latch期间子页面不会被回收，读取无需latch
func pageIsLeaf(page *buffer_pool.Page) bool {
	return pages.NewBPlusTreePage(page.GetData()).IsLeafPage()
}

/*****************************************************************************
 * 查找
 *****************************************************************************/

// GetValue 点查询，返回key对应value的副本
func (t *BPlusTree) GetValue(key []byte) ([]byte, bool, error) {
	t.rootLatch.RLock()
	if t.rootPageID == common.INVALID_PAGE_ID {
		t.rootLatch.RUnlock()
		return nil, false, nil
	}
	page, err := t.bpm.FetchPage(t.rootPageID)
	if err != nil {
		t.rootLatch.RUnlock()
		return nil, false, errors.Trace(err)
	}
	page.RLatch()
	t.rootLatch.RUnlock()

	page, err = t.descendRead(page, key)
	if err != nil {
		return nil, false, errors.Trace(err)
	}

	leaf := t.asLeaf(page)
	idx := leaf.KeyIndex(key, t.comparator)
	var value []byte
	found := idx >= 0
	if found {
		value = append([]byte(nil), leaf.ValueAt(idx)...)
	}
	page.RUnlatch()
	t.bpm.UnpinPage(page.GetPageId(), false)
	return value, found, nil
}

// descendRead 从已R-latch的页面下降到目标叶子，
// latch coupling：先锁子节点，再放开父节点
func (t *BPlusTree) descendRead(page *buffer_pool.Page, key []byte) (*buffer_pool.Page, error) {
	for {
		node := pages.NewBPlusTreePage(page.GetData())
		if node.IsLeafPage() {
			return page, nil
		}
		internal := t.asInternal(page)
		var nextID common.PageID
		if key == nil {
			nextID = internal.ValueAt(0)
		} else {
			nextID = internal.Lookup(key, t.comparator)
		}
		child, err := t.bpm.FetchPage(nextID)
		if err != nil {
			page.RUnlatch()
			t.bpm.UnpinPage(page.GetPageId(), false)
			return nil, errors.Trace(err)
		}
		child.RLatch()
		page.RUnlatch()
		t.bpm.UnpinPage(page.GetPageId(), false)
		page = child
	}
}

/*****************************************************************************
 * 插入
 *****************************************************************************/

// Insert 插入键值对，key已存在时返回false
func (t *BPlusTree) Insert(key []byte, value []byte) (bool, error) {
	if t.IsEmpty() {
		inserted, handled, err := t.startNewTree(key, value)
		if handled {
			return inserted, err
		}
	}

	inserted, retry, err := t.insertOptimistic(key, value)
	if err != nil || !retry {
		return inserted, err
	}
	return t.insertPessimistic(key, value)
}

// startNewTree 空树时创建根叶子并写入第一条记录。
// 排他持有根latch后复查，其他线程已经建树时交还普通插入路径
func (t *BPlusTree) startNewTree(key []byte, value []byte) (bool, bool, error) {
	t.rootLatch.Lock()
	defer t.rootLatch.Unlock()
	if t.rootPageID != common.INVALID_PAGE_ID {
		return false, false, nil
	}

	page, err := t.bpm.NewPage()
	if err != nil {
		return false, true, errors.Trace(err)
	}
	leaf := t.asLeaf(page)
	leaf.Init(page.GetPageId(), common.INVALID_PAGE_ID, t.leafMaxSize)
	leaf.SetKV(0, key, value)
	leaf.SetSize(1)

	t.rootPageID = page.GetPageId()
	t.updateRootPageId(true)
	t.bpm.UnpinPage(page.GetPageId(), true)
	logger.Debugf("index %s started new tree at root page %d", t.indexName, t.rootPageID)
	return true, true, nil
}

// insertOptimistic 乐观写入路径：祖先只加读latch，叶子加写latch。
// 叶子不安全时整体放弃，返回retry=true走悲观路径
func (t *BPlusTree) insertOptimistic(key []byte, value []byte) (bool, bool, error) {
	page, ok, err := t.descendToLeafOptimistic(key)
	if err != nil {
		return false, false, errors.Trace(err)
	}
	if !ok {
		return false, true, nil
	}

	leaf := t.asLeaf(page)
	if leaf.KeyIndex(key, t.comparator) >= 0 {
		page.WUnlatch()
		t.bpm.UnpinPage(page.GetPageId(), false)
		return false, false, nil
	}
	if !t.leafSafeForInsert(leaf) {
		page.WUnlatch()
		t.bpm.UnpinPage(page.GetPageId(), false)
		return false, true, nil
	}
	leaf.Insert(key, value, t.comparator)
	page.WUnlatch()
	t.bpm.UnpinPage(page.GetPageId(), true)
	return true, false, nil
}

// descendToLeafOptimistic 读latch下降、叶子上写latch。
// 树为空或根本身是叶子时返回ok=false，交给悲观路径处理
func (t *BPlusTree) descendToLeafOptimistic(key []byte) (*buffer_pool.Page, bool, error) {
	t.rootLatch.RLock()
	if t.rootPageID == common.INVALID_PAGE_ID {
		t.rootLatch.RUnlock()
		return nil, false, nil
	}
	page, err := t.bpm.FetchPage(t.rootPageID)
	if err != nil {
		t.rootLatch.RUnlock()
		return nil, false, errors.Trace(err)
	}
	if pageIsLeaf(page) {
		// 根就是叶子，任何修改都可能改动root_page_id
		t.bpm.UnpinPage(page.GetPageId(), false)
		t.rootLatch.RUnlock()
		return nil, false, nil
	}
	page.RLatch()
	t.rootLatch.RUnlock()

	for {
		internal := t.asInternal(page)
		nextID := internal.Lookup(key, t.comparator)
		child, err := t.bpm.FetchPage(nextID)
		if err != nil {
			page.RUnlatch()
			t.bpm.UnpinPage(page.GetPageId(), false)
			return nil, false, errors.Trace(err)
		}
		childIsLeaf := pageIsLeaf(child)
		if childIsLeaf {
			child.WLatch()
		} else {
			child.RLatch()
		}
		page.RUnlatch()
		t.bpm.UnpinPage(page.GetPageId(), false)
		page = child
		if childIsLeaf {
			return page, true, nil
		}
	}
}

// leafSafeForInsert 插入后不会触发分裂
func (t *BPlusTree) leafSafeForInsert(leaf *pages.BPlusTreeLeafPage) bool {
	return leaf.GetSize() < t.leafMaxSize-1
}

// isSafe 悲观下降时的节点安全判定：安全节点保证本次操作
// 不会波及其父节点
func (t *BPlusTree) isSafe(node *pages.BPlusTreePage, op opType) bool {
	switch op {
	case opInsert:
		if node.IsLeafPage() {
			return node.GetSize() < node.GetMaxSize()-1
		}
		return node.GetSize() < node.GetMaxSize()
	case opRemove:
		if node.IsRootPage() {
			if node.IsLeafPage() {
				return node.GetSize() > 1
			}
			return node.GetSize() > 2
		}
		return node.GetSize() > node.GetMinSize()
	default:
		return true
	}
}

// releaseWLatches 按FIFO顺序释放事务持有的全部写latch，
// nil哨兵对应根latch
func (t *BPlusTree) releaseWLatches(txn *Transaction, dirty bool) {
	for _, page := range txn.GetPageSet() {
		if page == nil {
			t.rootLatch.Unlock()
			continue
		}
		pageID := page.GetPageId()
		page.WUnlatch()
		t.bpm.UnpinPage(pageID, dirty)
	}
	txn.ClearPageSet()
}

// descendPessimistic 悲观写入下降：排他持有根latch，逐层写latch，
// 遇到安全节点时释放其上全部latch。返回目标叶子，
// 叶子以及其上未释放的祖先都保留在txn中
func (t *BPlusTree) descendPessimistic(key []byte, op opType, txn *Transaction) (*buffer_pool.Page, error) {
	txn.AddIntoPageSet(nil)
	pageID := t.rootPageID
	for {
		page, err := t.bpm.FetchPage(pageID)
		if err != nil {
			t.releaseWLatches(txn, false)
			return nil, errors.Trace(err)
		}
		page.WLatch()
		node := pages.NewBPlusTreePage(page.GetData())
		if t.isSafe(node, op) {
			t.releaseWLatches(txn, false)
		}
		txn.AddIntoPageSet(page)
		if node.IsLeafPage() {
			return page, nil
		}
		pageID = t.asInternal(page).Lookup(key, t.comparator)
	}
}

// insertPessimistic 悲观写入路径，处理可能级联分裂的插入
func (t *BPlusTree) insertPessimistic(key []byte, value []byte) (bool, error) {
	txn := NewTransaction()
	t.rootLatch.Lock()
	if t.rootPageID == common.INVALID_PAGE_ID {
		t.rootLatch.Unlock()
		inserted, handled, err := t.startNewTree(key, value)
		if handled {
			return inserted, err
		}
		return t.insertPessimistic(key, value)
	}

	leafPage, err := t.descendPessimistic(key, opInsert, txn)
	if err != nil {
		return false, errors.Trace(err)
	}

	leaf := t.asLeaf(leafPage)
	if leaf.KeyIndex(key, t.comparator) >= 0 {
		t.releaseWLatches(txn, false)
		return false, nil
	}

	leaf.Insert(key, value, t.comparator)
	if leaf.GetSize() < t.leafMaxSize {
		t.releaseWLatches(txn, true)
		return true, nil
	}

	if err := t.splitLeaf(leafPage, txn); err != nil {
		t.releaseWLatches(txn, true)
		return false, errors.Trace(err)
	}
	t.releaseWLatches(txn, true)
	return true, nil
}

// splitLeaf 叶子分裂：上半部分搬入新叶子并接入叶子链表，
// 新叶子的首key作为分隔键上推
func (t *BPlusTree) splitLeaf(leafPage *buffer_pool.Page, txn *Transaction) error {
	leaf := t.asLeaf(leafPage)

	newPage, err := t.bpm.NewPage()
	if err != nil {
		return errors.Trace(err)
	}
	newLeaf := t.asLeaf(newPage)
	newLeaf.Init(newPage.GetPageId(), leaf.GetParentPageId(), t.leafMaxSize)
	newLeaf.SetNextPageId(leaf.GetNextPageId())
	leaf.MoveHalfTo(newLeaf)
	// 新叶子填充完毕后才接入链表
	leaf.SetNextPageId(newPage.GetPageId())

	splitKey := append([]byte(nil), newLeaf.KeyAt(0)...)
	err = t.insertIntoParent(leafPage, splitKey, newPage, txn)
	t.bpm.UnpinPage(newPage.GetPageId(), true)
	return errors.Trace(err)
}

// insertIntoParent 将分裂产生的(分隔键, 新节点)插入父节点，
// 父节点溢出时继续分裂，越过根时创建新根
func (t *BPlusTree) insertIntoParent(oldPage *buffer_pool.Page, splitKey []byte, newPage *buffer_pool.Page, txn *Transaction) error {
	oldNode := pages.NewBPlusTreePage(oldPage.GetData())
	newNode := pages.NewBPlusTreePage(newPage.GetData())

	if oldNode.IsRootPage() {
		rootPage, err := t.bpm.NewPage()
		if err != nil {
			return errors.Trace(err)
		}
		root := t.asInternal(rootPage)
		root.Init(rootPage.GetPageId(), common.INVALID_PAGE_ID, t.internalMaxSize)
		root.SetKV(0, splitKey, oldPage.GetPageId())
		root.SetKV(1, splitKey, newPage.GetPageId())
		root.SetSize(2)
		oldNode.SetParentPageId(rootPage.GetPageId())
		newNode.SetParentPageId(rootPage.GetPageId())

		t.rootPageID = rootPage.GetPageId()
		t.updateRootPageId(false)
		t.bpm.UnpinPage(rootPage.GetPageId(), true)
		logger.Debugf("index %s grew new root page %d", t.indexName, t.rootPageID)
		return nil
	}

	parentID := oldNode.GetParentPageId()
	parentPage, err := t.bpm.FetchPage(parentID)
	if err != nil {
		return errors.Trace(err)
	}
	parent := t.asInternal(parentPage)
	parent.Insert(splitKey, newPage.GetPageId(), t.comparator)
	newNode.SetParentPageId(parentID)

	if parent.GetSize() <= t.internalMaxSize {
		t.bpm.UnpinPage(parentID, true)
		return nil
	}

	// 父节点溢出，分裂出新的内部兄弟
	sibPage, err := t.bpm.NewPage()
	if err != nil {
		t.bpm.UnpinPage(parentID, true)
		return errors.Trace(err)
	}
	sib := t.asInternal(sibPage)
	sib.Init(sibPage.GetPageId(), parent.GetParentPageId(), t.internalMaxSize)
	parent.MoveHalfTo(sib)
	if err := t.reparentChildren(sib); err != nil {
		t.bpm.UnpinPage(sibPage.GetPageId(), true)
		t.bpm.UnpinPage(parentID, true)
		return errors.Trace(err)
	}

	nextSplitKey := append([]byte(nil), sib.KeyAt(0)...)
	err = t.insertIntoParent(parentPage, nextSplitKey, sibPage, txn)
	t.bpm.UnpinPage(sibPage.GetPageId(), true)
	t.bpm.UnpinPage(parentID, true)
	return errors.Trace(err)
}

// reparentChildren 把节点名下所有孩子的父指针指向自己
func (t *BPlusTree) reparentChildren(node *pages.BPlusTreeInternalPage) error {
	for i := 0; i < node.GetSize(); i++ {
		if err := t.reparentChild(node.ValueAt(i), node.GetPageId()); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (t *BPlusTree) reparentChild(childID common.PageID, parentID common.PageID) error {
	childPage, err := t.bpm.FetchPage(childID)
	if err != nil {
		return errors.Trace(err)
	}
	pages.NewBPlusTreePage(childPage.GetData()).SetParentPageId(parentID)
	t.bpm.UnpinPage(childID, true)
	return nil
}

/*****************************************************************************
 * 删除
 *****************************************************************************/

// Remove 删除key。key不存在时为no-op
func (t *BPlusTree) Remove(key []byte) error {
	retry, err := t.removeOptimistic(key)
	if err != nil || !retry {
		return err
	}
	return t.removePessimistic(key)
}

// removeOptimistic 乐观删除路径：叶子安全时直接删除
func (t *BPlusTree) removeOptimistic(key []byte) (bool, error) {
	page, ok, err := t.descendToLeafOptimistic(key)
	if err != nil {
		return false, errors.Trace(err)
	}
	if !ok {
		return true, nil
	}

	leaf := t.asLeaf(page)
	if leaf.KeyIndex(key, t.comparator) < 0 {
		page.WUnlatch()
		t.bpm.UnpinPage(page.GetPageId(), false)
		return false, nil
	}
	// 非根叶子，删除后仍然半满才是安全的
	if leaf.GetSize() <= leaf.GetMinSize() {
		page.WUnlatch()
		t.bpm.UnpinPage(page.GetPageId(), false)
		return true, nil
	}
	leaf.Remove(key, t.comparator)
	page.WUnlatch()
	t.bpm.UnpinPage(page.GetPageId(), true)
	return false, nil
}

// removePessimistic 悲观删除路径，处理借位与合并
func (t *BPlusTree) removePessimistic(key []byte) error {
	txn := NewTransaction()
	t.rootLatch.Lock()
	if t.rootPageID == common.INVALID_PAGE_ID {
		t.rootLatch.Unlock()
		return nil
	}

	leafPage, err := t.descendPessimistic(key, opRemove, txn)
	if err != nil {
		return errors.Trace(err)
	}

	leaf := t.asLeaf(leafPage)
	if !leaf.Remove(key, t.comparator) {
		t.releaseWLatches(txn, false)
		return nil
	}

	if leaf.IsRootPage() {
		if leaf.GetSize() == 0 {
			t.rootPageID = common.INVALID_PAGE_ID
			t.updateRootPageId(false)
			txn.AddIntoDeletedPageSet(leafPage.GetPageId())
			logger.Debugf("index %s became empty, root page %d dropped", t.indexName, leafPage.GetPageId())
		}
	} else if leaf.GetSize() < leaf.GetMinSize() {
		if err := t.handleUnderflow(leafPage, txn); err != nil {
			t.releaseWLatches(txn, true)
			return errors.Trace(err)
		}
	}

	t.releaseWLatches(txn, true)
	return t.dropDeletedPages(txn)
}

// dropDeletedPages 释放latch后删除本次操作废弃的页面。
// 被其他读者pin住的页面已经从树上摘除，留待其解pin后淘汰
func (t *BPlusTree) dropDeletedPages(txn *Transaction) error {
	var firstErr error
	txn.GetDeletedPageSet().Each(func(pageID common.PageID) bool {
		err := t.bpm.DeletePage(pageID)
		if err == nil {
			return false
		}
		if pkgerrors.Is(err, buffer_pool.ErrPagePinned) {
			logger.Debugf("index %s: detached page %d still pinned, skipping delete", t.indexName, pageID)
			return false
		}
		if firstErr == nil {
			firstErr = err
		}
		return false
	})
	return errors.Trace(firstErr)
}

// handleUnderflow 处理半满以下的节点：根的特例、向兄弟借位、
// 与兄弟合并，合并后父节点可能继续下溢
func (t *BPlusTree) handleUnderflow(page *buffer_pool.Page, txn *Transaction) error {
	node := pages.NewBPlusTreePage(page.GetData())
	if node.IsRootPage() {
		return t.adjustRoot(page, txn)
	}

	parentPage, err := t.bpm.FetchPage(node.GetParentPageId())
	if err != nil {
		return errors.Trace(err)
	}
	parent := t.asInternal(parentPage)
	idx := parent.ValueIndex(node.GetPageId())
	if idx < 0 {
		t.bpm.UnpinPage(parentPage.GetPageId(), false)
		return errors.Errorf("page %d not found in parent %d", node.GetPageId(), parentPage.GetPageId())
	}

	// 先左后右获取兄弟，保持左右方向上的获取次序
	var leftPage, rightPage *buffer_pool.Page
	if idx > 0 {
		if leftPage, err = t.bpm.FetchPage(parent.ValueAt(idx - 1)); err != nil {
			t.bpm.UnpinPage(parentPage.GetPageId(), false)
			return errors.Trace(err)
		}
		leftPage.WLatch()
	}
	if idx < parent.GetSize()-1 {
		if rightPage, err = t.bpm.FetchPage(parent.ValueAt(idx + 1)); err != nil {
			t.releaseSibling(leftPage)
			t.bpm.UnpinPage(parentPage.GetPageId(), false)
			return errors.Trace(err)
		}
		rightPage.WLatch()
	}

	borrowed, err := t.tryBorrow(page, leftPage, parentPage, true)
	if err == nil && !borrowed {
		borrowed, err = t.tryBorrow(page, rightPage, parentPage, false)
	}
	if err != nil {
		t.releaseSibling(leftPage)
		t.releaseSibling(rightPage)
		t.bpm.UnpinPage(parentPage.GetPageId(), true)
		return errors.Trace(err)
	}
	if borrowed {
		t.releaseSibling(leftPage)
		t.releaseSibling(rightPage)
		t.bpm.UnpinPage(parentPage.GetPageId(), true)
		return nil
	}

	// 借不到就合并，固定并入左侧
	if leftPage != nil {
		err = t.mergePages(leftPage, page, parentPage)
		txn.AddIntoDeletedPageSet(page.GetPageId())
	} else {
		err = t.mergePages(page, rightPage, parentPage)
		txn.AddIntoDeletedPageSet(rightPage.GetPageId())
	}
	t.releaseSibling(leftPage)
	t.releaseSibling(rightPage)
	if err != nil {
		t.bpm.UnpinPage(parentPage.GetPageId(), true)
		return errors.Trace(err)
	}

	if parent.GetSize() < parent.GetMinSize() {
		if err := t.handleUnderflow(parentPage, txn); err != nil {
			t.bpm.UnpinPage(parentPage.GetPageId(), true)
			return errors.Trace(err)
		}
	}
	t.bpm.UnpinPage(parentPage.GetPageId(), true)
	return nil
}

func (t *BPlusTree) releaseSibling(page *buffer_pool.Page) {
	if page == nil {
		return
	}
	pageID := page.GetPageId()
	page.WUnlatch()
	t.bpm.UnpinPage(pageID, true)
}

// adjustRoot 根节点的下溢特例：空的根叶子整树置空，
// 只剩一个孩子的根内部节点把孩子提升为新根
func (t *BPlusTree) adjustRoot(page *buffer_pool.Page, txn *Transaction) error {
	node := pages.NewBPlusTreePage(page.GetData())
	if node.IsLeafPage() {
		if node.GetSize() == 0 {
			t.rootPageID = common.INVALID_PAGE_ID
			t.updateRootPageId(false)
			txn.AddIntoDeletedPageSet(page.GetPageId())
		}
		return nil
	}
	if node.GetSize() > 1 {
		return nil
	}

	internal := t.asInternal(page)
	childID := internal.ValueAt(0)
	if err := t.reparentChild(childID, common.INVALID_PAGE_ID); err != nil {
		return errors.Trace(err)
	}
	t.rootPageID = childID
	t.updateRootPageId(false)
	txn.AddIntoDeletedPageSet(page.GetPageId())
	logger.Debugf("index %s promoted page %d to root", t.indexName, childID)
	return nil
}

// tryBorrow 从兄弟借一个槽位。兄弟必须高于半满。
// 叶子借位同步更新父分隔键，内部节点借位经由父分隔键旋转
func (t *BPlusTree) tryBorrow(page *buffer_pool.Page, sibPage *buffer_pool.Page, parentPage *buffer_pool.Page, fromLeft bool) (bool, error) {
	if sibPage == nil {
		return false, nil
	}
	sibNode := pages.NewBPlusTreePage(sibPage.GetData())
	if sibNode.GetSize() <= sibNode.GetMinSize() {
		return false, nil
	}

	node := pages.NewBPlusTreePage(page.GetData())
	parent := t.asInternal(parentPage)

	if node.IsLeafPage() {
		leaf := t.asLeaf(page)
		sibLeaf := t.asLeaf(sibPage)
		if fromLeft {
			last := sibLeaf.GetSize() - 1
			leaf.Insert(sibLeaf.KeyAt(last), sibLeaf.ValueAt(last), t.comparator)
			sibLeaf.RemoveAt(last)
			pidx := parent.ValueIndex(leaf.GetPageId())
			parent.SetKeyAt(pidx, leaf.KeyAt(0))
		} else {
			leaf.Insert(sibLeaf.KeyAt(0), sibLeaf.ValueAt(0), t.comparator)
			sibLeaf.RemoveAt(0)
			pidx := parent.ValueIndex(sibLeaf.GetPageId())
			parent.SetKeyAt(pidx, sibLeaf.KeyAt(0))
		}
		return true, nil
	}

	internal := t.asInternal(page)
	sibInternal := t.asInternal(sibPage)
	if fromLeft {
		last := sibInternal.GetSize() - 1
		pidx := parent.ValueIndex(internal.GetPageId())
		sepKey := append([]byte(nil), parent.KeyAt(pidx)...)
		borrowedChild := sibInternal.ValueAt(last)
		newSep := append([]byte(nil), sibInternal.KeyAt(last)...)

		// 原首孩子带着下移的分隔键成为key_1
		internal.Insert(sepKey, internal.ValueAt(0), t.comparator)
		internal.SetValueAt(0, borrowedChild)
		sibInternal.RemoveAt(last)
		parent.SetKeyAt(pidx, newSep)
		return true, errors.Trace(t.reparentChild(borrowedChild, internal.GetPageId()))
	}

	pidx := parent.ValueIndex(sibInternal.GetPageId())
	sepKey := append([]byte(nil), parent.KeyAt(pidx)...)
	borrowedChild := sibInternal.ValueAt(0)
	newSep := append([]byte(nil), sibInternal.KeyAt(1)...)

	internal.SetKV(internal.GetSize(), sepKey, borrowedChild)
	internal.IncreaseSize(1)
	// 右兄弟的key_1滑入哨兵位
	sibInternal.SetValueAt(0, sibInternal.ValueAt(1))
	sibInternal.RemoveAt(1)
	parent.SetKeyAt(pidx, newSep)
	return true, errors.Trace(t.reparentChild(borrowedChild, internal.GetPageId()))
}

// mergePages 把右节点并入左节点并删除父分隔键。
// 叶子合并修补链表指针，内部节点合并把分隔键下移衔接
func (t *BPlusTree) mergePages(leftPage *buffer_pool.Page, rightPage *buffer_pool.Page, parentPage *buffer_pool.Page) error {
	leftNode := pages.NewBPlusTreePage(leftPage.GetData())
	parent := t.asInternal(parentPage)
	ridx := parent.ValueIndex(rightPage.GetPageId())

	if leftNode.IsLeafPage() {
		left := t.asLeaf(leftPage)
		right := t.asLeaf(rightPage)
		for i := 0; i < right.GetSize(); i++ {
			left.Insert(right.KeyAt(i), right.ValueAt(i), t.comparator)
		}
		left.SetNextPageId(right.GetNextPageId())
		parent.RemoveAt(ridx)
		return nil
	}

	left := t.asInternal(leftPage)
	right := t.asInternal(rightPage)
	sepKey := append([]byte(nil), parent.KeyAt(ridx)...)

	left.SetKV(left.GetSize(), sepKey, right.ValueAt(0))
	left.IncreaseSize(1)
	if err := t.reparentChild(right.ValueAt(0), left.GetPageId()); err != nil {
		return errors.Trace(err)
	}
	for i := 1; i < right.GetSize(); i++ {
		left.SetKV(left.GetSize(), right.KeyAt(i), right.ValueAt(i))
		left.IncreaseSize(1)
		if err := t.reparentChild(right.ValueAt(i), left.GetPageId()); err != nil {
			return errors.Trace(err)
		}
	}
	parent.RemoveAt(ridx)
	return nil
}

/*****************************************************************************
 * 迭代器
 *****************************************************************************/

// Begin 返回定位在最左叶子第一个槽位的迭代器
func (t *BPlusTree) Begin() (*IndexIterator, error) {
	t.rootLatch.RLock()
	if t.rootPageID == common.INVALID_PAGE_ID {
		t.rootLatch.RUnlock()
		return t.End(), nil
	}
	page, err := t.bpm.FetchPage(t.rootPageID)
	if err != nil {
		t.rootLatch.RUnlock()
		return nil, errors.Trace(err)
	}
	page.RLatch()
	t.rootLatch.RUnlock()

	page, err = t.descendRead(page, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	page.RUnlatch()
	return newIndexIterator(t.bpm, page, 0, t.keySize, t.valueSize), nil
}

// BeginFrom 返回定位在第一个不小于key的槽位的迭代器
func (t *BPlusTree) BeginFrom(key []byte) (*IndexIterator, error) {
	t.rootLatch.RLock()
	if t.rootPageID == common.INVALID_PAGE_ID {
		t.rootLatch.RUnlock()
		return t.End(), nil
	}
	page, err := t.bpm.FetchPage(t.rootPageID)
	if err != nil {
		t.rootLatch.RUnlock()
		return nil, errors.Trace(err)
	}
	page.RLatch()
	t.rootLatch.RUnlock()

	page, err = t.descendRead(page, key)
	if err != nil {
		return nil, errors.Trace(err)
	}
	leaf := t.asLeaf(page)
	idx := leaf.Lowerbound(key, t.comparator)
	size := leaf.GetSize()
	page.RUnlatch()

	it := newIndexIterator(t.bpm, page, idx, t.keySize, t.valueSize)
	if idx >= size {
		// key大于本叶子所有键，从下一个叶子开始
		it.index = size - 1
		if err := it.Next(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return it, nil
}

// End 返回结束迭代器
func (t *BPlusTree) End() *IndexIterator {
	return newIndexIterator(t.bpm, nil, 0, t.keySize, t.valueSize)
}

/*****************************************************************************
 * 头页面
 *****************************************************************************/

// updateRootPageId 把root_page_id的变化落到头页面。
// insertRecord为true时新建记录，否则更新已有记录
func (t *BPlusTree) updateRootPageId(insertRecord bool) {
	page, err := t.bpm.FetchPage(common.HEADER_PAGE_ID)
	if err != nil {
		logger.Errorf("index %s: fetch header page failed: %v", t.indexName, err)
		return
	}
	page.WLatch()
	header := pages.NewHeaderPage(page.GetData())
	if insertRecord {
		err = header.InsertRecord(t.indexName, t.rootPageID)
		if pkgerrors.Is(err, pages.ErrRecordExists) {
			err = header.UpdateRecord(t.indexName, t.rootPageID)
		}
	} else {
		err = header.UpdateRecord(t.indexName, t.rootPageID)
		if pkgerrors.Is(err, pages.ErrRecordNotFound) {
			err = header.InsertRecord(t.indexName, t.rootPageID)
		}
	}
	page.WUnlatch()
	t.bpm.UnpinPage(common.HEADER_PAGE_ID, true)
	if err != nil {
		logger.Errorf("index %s: persist root page id failed: %v", t.indexName, err)
	}
}
