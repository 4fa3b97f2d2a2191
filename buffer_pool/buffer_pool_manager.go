package buffer_pool

import (
	"container/list"
	"sync"

	"github.com/zhukovaskychina/xstorage-engine/common"
	"github.com/zhukovaskychina/xstorage-engine/logger"
	"github.com/zhukovaskychina/xstorage-engine/storage/disk"
)

// LogManager WAL落盘接口。淘汰脏页前需要先刷日志，
// 当前核心不产生日志记录，句柄可以为nil
type LogManager interface {
	Flush() error
}

// BufferPoolManager 管理固定数量的帧，在磁盘和内存之间缓存页面。
// 页面查找走可扩展哈希目录，淘汰决策走LRU-K替换器。
type BufferPoolManager struct {
	mu        sync.Mutex
	poolSize  int
	pages     []*Page
	pageTable *ExtendibleHashTable
	replacer  *LRUKReplacer
	freeList  *list.List

	diskManager disk.DiskManager
	logManager  LogManager

	*stats
}

// BufferPoolConfig 缓冲池配置
type BufferPoolConfig struct {
	PoolSize        int
	ReplacerK       int
	TableBucketSize int
}

// NewBufferPoolManager 创建缓冲池管理器，所有帧初始在空闲链表中
func NewBufferPoolManager(config BufferPoolConfig, diskManager disk.DiskManager, logManager LogManager) *BufferPoolManager {
	if config.PoolSize <= 0 {
		panic("buffer pool size must be positive")
	}
	if config.ReplacerK <= 0 {
		config.ReplacerK = 2
	}
	if config.TableBucketSize <= 0 {
		config.TableBucketSize = 4
	}

	bpm := &BufferPoolManager{
		poolSize:    config.PoolSize,
		pages:       make([]*Page, config.PoolSize),
		pageTable:   NewExtendibleHashTable(config.TableBucketSize),
		replacer:    NewLRUKReplacer(config.PoolSize, config.ReplacerK),
		freeList:    list.New(),
		diskManager: diskManager,
		logManager:  logManager,
		stats:       &stats{},
	}
	for i := 0; i < config.PoolSize; i++ {
		bpm.pages[i] = newPage()
		bpm.freeList.PushBack(common.FrameID(i))
	}
	return bpm
}

// getAvailableFrame 取一个可用帧：优先空闲链表，否则淘汰。
// 淘汰时先写回脏页并移除旧映射。调用方必须持有bpm.mu
func (bpm *BufferPoolManager) getAvailableFrame() (common.FrameID, error) {
	if bpm.freeList.Len() > 0 {
		front := bpm.freeList.Front()
		bpm.freeList.Remove(front)
		return front.Value.(common.FrameID), nil
	}

	frameID, ok := bpm.replacer.Evict()
	if !ok {
		return -1, NewError("getAvailableFrame", ErrBufferPoolFull)
	}

	page := bpm.pages[frameID]
	if page.isDirty {
		if err := bpm.flushLog(); err != nil {
			return -1, NewError("getAvailableFrame", err)
		}
		logger.Debugf("evicting dirty page %d from frame %d, writing back", page.pageID, frameID)
		if err := bpm.diskManager.WritePage(page.pageID, page.data); err != nil {
			return -1, NewError("getAvailableFrame", err)
		}
		bpm.IncrWriteCount()
	}
	bpm.pageTable.Remove(page.pageID)
	page.pageID = common.INVALID_PAGE_ID
	page.isDirty = false
	page.pinCount = 0
	return frameID, nil
}

func (bpm *BufferPoolManager) flushLog() error {
	if bpm.logManager == nil {
		return nil
	}
	return bpm.logManager.Flush()
}

// NewPage 分配一个新页面并固定在帧中返回。
// 所有帧都被pin住时返回ErrBufferPoolFull
func (bpm *BufferPoolManager) NewPage() (*Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, err := bpm.getAvailableFrame()
	if err != nil {
		return nil, err
	}

	pageID := bpm.diskManager.AllocatePage()
	page := bpm.pages[frameID]
	page.pageID = pageID
	page.pinCount = 1
	page.isDirty = false
	page.resetMemory()

	bpm.pageTable.Insert(pageID, frameID)
	bpm.replacer.RecordAccess(frameID)
	bpm.replacer.SetEvictable(frameID, false)
	return page, nil
}

// FetchPage 获取页面并pin住。不在缓冲池中时从磁盘读入
func (bpm *BufferPoolManager) FetchPage(pageID common.PageID) (*Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if frameID, ok := bpm.pageTable.Find(pageID); ok {
		bpm.IncrHitCount()
		page := bpm.pages[frameID]
		page.pinCount++
		bpm.replacer.RecordAccess(frameID)
		bpm.replacer.SetEvictable(frameID, false)
		return page, nil
	}
	bpm.IncrMissCount()

	frameID, err := bpm.getAvailableFrame()
	if err != nil {
		return nil, err
	}

	page := bpm.pages[frameID]
	if err := bpm.diskManager.ReadPage(pageID, page.data); err != nil {
		// 读失败的帧退回空闲链表
		bpm.freeList.PushBack(frameID)
		return nil, NewError("FetchPage", err)
	}
	page.pageID = pageID
	page.pinCount = 1
	page.isDirty = false

	bpm.pageTable.Insert(pageID, frameID)
	bpm.replacer.RecordAccess(frameID)
	bpm.replacer.SetEvictable(frameID, false)
	return page, nil
}

// UnpinPage 释放一次pin。pin计数降到0时帧变为可淘汰。
// 页面不在缓冲池或pin计数已经为0时返回false
func (bpm *BufferPoolManager) UnpinPage(pageID common.PageID, isDirty bool) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable.Find(pageID)
	if !ok {
		return false
	}
	page := bpm.pages[frameID]
	if page.pinCount <= 0 {
		return false
	}
	page.pinCount--
	// 脏标记在一次驻留内只增不减
	page.isDirty = page.isDirty || isDirty
	if page.pinCount == 0 {
		bpm.replacer.SetEvictable(frameID, true)
	}
	return true
}

// FlushPage 将页面写回磁盘，无论是否为脏页。
// 写回成功后清除脏标记。页面不在缓冲池时返回ErrPageNotFound
func (bpm *BufferPoolManager) FlushPage(pageID common.PageID) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	return bpm.flushPageLocked(pageID)
}

func (bpm *BufferPoolManager) flushPageLocked(pageID common.PageID) error {
	frameID, ok := bpm.pageTable.Find(pageID)
	if !ok {
		return NewError("FlushPage", ErrPageNotFound)
	}
	page := bpm.pages[frameID]
	if err := bpm.flushLog(); err != nil {
		return NewError("FlushPage", err)
	}
	if err := bpm.diskManager.WritePage(pageID, page.data); err != nil {
		return NewError("FlushPage", err)
	}
	bpm.IncrWriteCount()
	page.isDirty = false
	return nil
}

// FlushAllPages 写回所有驻留页面
func (bpm *BufferPoolManager) FlushAllPages() error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	for _, page := range bpm.pages {
		if page.pageID == common.INVALID_PAGE_ID {
			continue
		}
		if err := bpm.flushPageLocked(page.pageID); err != nil {
			return err
		}
	}
	return nil
}

// DeletePage 从缓冲池删除页面并归还页面编号。
// 页面不在缓冲池时直接成功，被pin住时返回ErrPagePinned。
// 删除不做写回
func (bpm *BufferPoolManager) DeletePage(pageID common.PageID) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable.Find(pageID)
	if !ok {
		bpm.diskManager.DeallocatePage(pageID)
		return nil
	}
	page := bpm.pages[frameID]
	if page.pinCount > 0 {
		return NewError("DeletePage", ErrPagePinned)
	}

	bpm.pageTable.Remove(pageID)
	bpm.replacer.Remove(frameID)
	page.pageID = common.INVALID_PAGE_ID
	page.pinCount = 0
	page.isDirty = false
	page.resetMemory()
	bpm.freeList.PushBack(frameID)
	bpm.diskManager.DeallocatePage(pageID)
	return nil
}

// GetPoolSize 返回帧数量
func (bpm *BufferPoolManager) GetPoolSize() int {
	return bpm.poolSize
}
