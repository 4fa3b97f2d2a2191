package disk

import "github.com/zhukovaskychina/xstorage-engine/common"

// DiskManager 负责页面粒度的磁盘读写以及页面编号的分配
type DiskManager interface {
	// ReadPage 读取一个页面的内容到pageData，阻塞直到完成
	ReadPage(pageID common.PageID, pageData []byte) error

	// WritePage 将pageData持久化到指定页面，阻塞直到完成
	WritePage(pageID common.PageID, pageData []byte) error

	// AllocatePage 分配一个新的页面编号，单调递增
	AllocatePage() common.PageID

	// DeallocatePage 释放页面编号
	DeallocatePage(pageID common.PageID)

	// ShutDown 关闭底层文件
	ShutDown()

	// Size 返回数据文件的字节大小
	Size() int64
}
