package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zhukovaskychina/xstorage-engine/buffer_pool"
	"github.com/zhukovaskychina/xstorage-engine/conf"
	"github.com/zhukovaskychina/xstorage-engine/logger"
	"github.com/zhukovaskychina/xstorage-engine/storage/disk"
	"github.com/zhukovaskychina/xstorage-engine/storage/index"
	"github.com/zhukovaskychina/xstorage-engine/util"
)

var configPath = flag.String("config", "", "path to ini config file")

func main() {
	flag.Parse()

	cfg := conf.NewCfg()
	if err := cfg.Load(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if err := logger.InitLogger(logger.LogConfig{
		ErrorLogPath: cfg.LogError,
		InfoLogPath:  cfg.LogInfos,
		LogLevel:     cfg.LogLevel,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Fatalf("create data dir failed: %v", err)
	}
	dbFile := cfg.DBFilePath("xstorage.db")
	freshDB := true
	if _, err := os.Stat(dbFile); err == nil {
		freshDB = false
	}

	diskManager, err := disk.NewDiskManagerImpl(dbFile)
	if err != nil {
		logger.Fatalf("open disk manager failed: %v", err)
	}
	defer diskManager.ShutDown()

	bpm := buffer_pool.NewBufferPoolManager(buffer_pool.BufferPoolConfig{
		PoolSize:        cfg.BufferPoolPages,
		ReplacerK:       cfg.ReplacerK,
		TableBucketSize: cfg.PageTableBucketSize,
	}, diskManager, nil)

	if freshDB {
		if err := index.InitHeaderPage(bpm); err != nil {
			logger.Fatalf("init header page failed: %v", err)
		}
	}

	compareUint64 := func(a, b []byte) int {
		ua, ub := util.ReadUB8Byte2Long(a), util.ReadUB8Byte2Long(b)
		switch {
		case ua < ub:
			return -1
		case ua > ub:
			return 1
		default:
			return 0
		}
	}
	tree := index.NewBPlusTree("demo_index", bpm, compareUint64, 8, 8,
		cfg.LeafMaxSize, cfg.InternalMaxSize)
	if !freshDB {
		if err := tree.ReloadRootPageId(); err != nil {
			logger.Fatalf("reload root page id failed: %v", err)
		}
	}

	logger.Infof("running demo workload against %s", filepath.Base(dbFile))
	const n = 1000
	for i := 0; i < n; i++ {
		key := util.ConvertULong8Bytes(uint64(i * 7 % n))
		value := util.ConvertULong8Bytes(uint64(i))
		if _, err := tree.Insert(key, value); err != nil {
			logger.Fatalf("insert failed: %v", err)
		}
	}

	it, err := tree.Begin()
	if err != nil {
		logger.Fatalf("begin scan failed: %v", err)
	}
	count := 0
	for !it.IsEnd() {
		count++
		if err := it.Next(); err != nil {
			logger.Fatalf("scan failed: %v", err)
		}
	}
	logger.Infof("full scan visited %d keys", count)

	for i := 0; i < n; i += 2 {
		if err := tree.Remove(util.ConvertULong8Bytes(uint64(i))); err != nil {
			logger.Fatalf("remove failed: %v", err)
		}
	}

	if err := bpm.FlushAllPages(); err != nil {
		logger.Fatalf("flush failed: %v", err)
	}
	logger.Infof("buffer pool hit rate: %.2f%%", bpm.HitRate()*100)
}
