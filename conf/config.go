package conf

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/ini.v1"
)

/**
datadir		= /var/lib/xstorage
buffer_pool_pages = 1024
replacer_k	= 2
page_table_bucket_size = 4
*/
type Cfg struct {
	Raw     *ini.File
	BaseDir string
	DataDir string
	AppName string

	// logs
	LogError string `default:"logs/error.log" json:"log_error,omitempty"`
	LogInfos string `default:"logs/storage.log" json:"log_infos,omitempty"`
	LogLevel string `default:"info" json:"log_level,omitempty"`

	// buffer pool
	BufferPoolPages     int `default:"1024" json:"buffer_pool_pages,omitempty"`
	ReplacerK           int `default:"2" json:"replacer_k,omitempty"`
	PageTableBucketSize int `default:"4" json:"page_table_bucket_size,omitempty"`

	// index
	LeafMaxSize     int `default:"0" json:"leaf_max_size,omitempty"`
	InternalMaxSize int `default:"0" json:"internal_max_size,omitempty"`

	// flush
	FlushInterval         string `default:"30s" json:"flush_interval,omitempty"`
	FlushIntervalDuration time.Duration
}

// NewCfg 返回带默认值的配置
func NewCfg() *Cfg {
	return &Cfg{
		AppName:               "xstorage-engine",
		DataDir:               "data",
		LogError:              "logs/error.log",
		LogInfos:              "logs/storage.log",
		LogLevel:              "info",
		BufferPoolPages:       1024,
		ReplacerK:             2,
		PageTableBucketSize:   4,
		FlushInterval:         "30s",
		FlushIntervalDuration: 30 * time.Second,
	}
}

// Load 从ini文件加载配置，文件不存在时返回默认配置
func (cfg *Cfg) Load(configPath string) error {
	if configPath == "" {
		return nil
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	raw, err := ini.Load(configPath)
	if err != nil {
		return err
	}
	cfg.Raw = raw

	sec := raw.Section("storage")
	cfg.DataDir = sec.Key("datadir").MustString(cfg.DataDir)
	cfg.BufferPoolPages = sec.Key("buffer_pool_pages").MustInt(cfg.BufferPoolPages)
	cfg.ReplacerK = sec.Key("replacer_k").MustInt(cfg.ReplacerK)
	cfg.PageTableBucketSize = sec.Key("page_table_bucket_size").MustInt(cfg.PageTableBucketSize)

	idx := raw.Section("index")
	cfg.LeafMaxSize = idx.Key("leaf_max_size").MustInt(cfg.LeafMaxSize)
	cfg.InternalMaxSize = idx.Key("internal_max_size").MustInt(cfg.InternalMaxSize)

	logs := raw.Section("logs")
	cfg.LogError = logs.Key("log_error").MustString(cfg.LogError)
	cfg.LogInfos = logs.Key("log_infos").MustString(cfg.LogInfos)
	cfg.LogLevel = logs.Key("log_level").MustString(cfg.LogLevel)

	flush := sec.Key("flush_interval").MustString(cfg.FlushInterval)
	cfg.FlushInterval = flush
	if d, err := time.ParseDuration(flush); err == nil {
		cfg.FlushIntervalDuration = d
	}

	return nil
}

// DBFilePath 返回数据文件完整路径
func (cfg *Cfg) DBFilePath(name string) string {
	return filepath.Join(cfg.DataDir, name)
}
