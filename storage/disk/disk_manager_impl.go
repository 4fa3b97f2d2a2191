package disk

import (
	"io"
	"os"
	"sync"

	"github.com/juju/errors"
	"github.com/ncw/directio"
	"github.com/zhukovaskychina/xstorage-engine/common"
	"github.com/zhukovaskychina/xstorage-engine/logger"
)

// DiskManagerImpl 基于文件的磁盘管理器实现
type DiskManagerImpl struct {
	db         *os.File
	fileName   string
	nextPageID common.PageID
	numWrites  uint64
	size       int64
	mu         sync.Mutex
}

// NewDiskManagerImpl 打开或创建数据文件并返回磁盘管理器
func NewDiskManagerImpl(dbFilename string) (*DiskManagerImpl, error) {
	file, err := directio.OpenFile(dbFilename, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, errors.Annotatef(err, "open db file %s", dbFilename)
	}

	fileInfo, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Trace(err)
	}

	fileSize := fileInfo.Size()
	nPages := fileSize / common.PAGE_SIZE

	return &DiskManagerImpl{
		db:         file,
		fileName:   dbFilename,
		nextPageID: common.PageID(nPages),
		size:       fileSize,
	}, nil
}

// ShutDown 关闭数据文件
func (d *DiskManagerImpl) ShutDown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.db.Close(); err != nil {
		logger.Errorf("close of db file %s failed: %v", d.fileName, err)
	}
}

// WritePage 将一个页面写入数据文件
func (d *DiskManagerImpl) WritePage(pageID common.PageID, pageData []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(pageID) * int64(common.PAGE_SIZE)
	if _, err := d.db.Seek(offset, io.SeekStart); err != nil {
		return errors.Annotatef(err, "seek to page %d", pageID)
	}

	// directio.BlockSize == common.PAGE_SIZE，对齐块可以直接落盘
	block := directio.AlignedBlock(directio.BlockSize)
	copy(block, pageData)

	bytesWritten, err := d.db.Write(block)
	if err != nil {
		return errors.Annotatef(err, "write page %d", pageID)
	}
	if bytesWritten != common.PAGE_SIZE {
		return errors.Errorf("short write on page %d: %d bytes", pageID, bytesWritten)
	}

	if offset >= d.size {
		d.size = offset + int64(bytesWritten)
	}
	d.numWrites++
	return nil
}

// ReadPage 从数据文件读取一个页面
func (d *DiskManagerImpl) ReadPage(pageID common.PageID, pageData []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(pageID) * int64(common.PAGE_SIZE)
	if offset > d.size {
		return errors.Errorf("read past end of file: page %d", pageID)
	}

	if _, err := d.db.Seek(offset, io.SeekStart); err != nil {
		return errors.Annotatef(err, "seek to page %d", pageID)
	}

	bytesRead, err := d.db.Read(pageData)
	if err != nil && err != io.EOF {
		return errors.Annotatef(err, "read page %d", pageID)
	}
	if bytesRead < common.PAGE_SIZE {
		// 文件尾部的新页面读到的不足一页，按全零处理
		for i := bytesRead; i < common.PAGE_SIZE; i++ {
			pageData[i] = 0
		}
	}
	return nil
}

// AllocatePage 分配一个新的页面编号
func (d *DiskManagerImpl) AllocatePage() common.PageID {
	d.mu.Lock()
	defer d.mu.Unlock()

	ret := d.nextPageID
	d.nextPageID++
	return ret
}

// DeallocatePage 释放页面编号。需要头页面中的位图跟踪空闲页，目前无操作
func (d *DiskManagerImpl) DeallocatePage(pageID common.PageID) {}

// GetNumWrites 返回磁盘写入次数
func (d *DiskManagerImpl) GetNumWrites() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.numWrites
}

// Size 返回数据文件大小
func (d *DiskManagerImpl) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}
