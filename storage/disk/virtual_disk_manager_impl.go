package disk

import (
	"sync"

	"github.com/dsnet/golib/memfile"
	"github.com/juju/errors"
	"github.com/zhukovaskychina/xstorage-engine/common"
)

// VirtualDiskManagerImpl 内存文件实现，测试专用
type VirtualDiskManagerImpl struct {
	db         *memfile.File
	fileName   string
	nextPageID common.PageID
	numWrites  uint64
	size       int64
	mu         sync.Mutex
}

// NewVirtualDiskManagerImpl 返回内存盘管理器
func NewVirtualDiskManagerImpl(dbFilename string) *VirtualDiskManagerImpl {
	return &VirtualDiskManagerImpl{
		db:       memfile.New(make([]byte, 0)),
		fileName: dbFilename,
	}
}

// ShutDown do nothing
func (d *VirtualDiskManagerImpl) ShutDown() {}

// WritePage 将一个页面写入内存文件
func (d *VirtualDiskManagerImpl) WritePage(pageID common.PageID, pageData []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(pageID) * int64(common.PAGE_SIZE)
	if _, err := d.db.WriteAt(pageData, offset); err != nil {
		return errors.Annotatef(err, "write page %d", pageID)
	}

	if offset >= d.size {
		d.size = offset + int64(len(pageData))
	}
	d.numWrites++
	return nil
}

// ReadPage 从内存文件读取一个页面
func (d *VirtualDiskManagerImpl) ReadPage(pageID common.PageID, pageData []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(pageID) * int64(common.PAGE_SIZE)
	if offset > d.size || offset+int64(len(pageData)) > d.size {
		return errors.Errorf("read past end of file: page %d", pageID)
	}

	if _, err := d.db.ReadAt(pageData, offset); err != nil {
		return errors.Annotatef(err, "read page %d", pageID)
	}
	return nil
}

// AllocatePage 分配一个新的页面编号
func (d *VirtualDiskManagerImpl) AllocatePage() common.PageID {
	d.mu.Lock()
	defer d.mu.Unlock()

	ret := d.nextPageID
	d.nextPageID++
	return ret
}

// DeallocatePage do nothing
func (d *VirtualDiskManagerImpl) DeallocatePage(pageID common.PageID) {}

// GetNumWrites 返回写入次数
func (d *VirtualDiskManagerImpl) GetNumWrites() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.numWrites
}

// Size 返回数据大小
func (d *VirtualDiskManagerImpl) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}
