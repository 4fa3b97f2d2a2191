package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCfg(t *testing.T) {
	t.Run("默认配置", func(t *testing.T) {
		cfg := NewCfg()
		require.NoError(t, cfg.Load(""))
		assert.Equal(t, 1024, cfg.BufferPoolPages)
		assert.Equal(t, 2, cfg.ReplacerK)
		assert.Equal(t, 4, cfg.PageTableBucketSize)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("从ini加载", func(t *testing.T) {
		content := `[storage]
datadir = /tmp/xstorage-test
buffer_pool_pages = 256
replacer_k = 3
flush_interval = 10s

[index]
leaf_max_size = 32

[logs]
log_level = debug
`
		path := filepath.Join(t.TempDir(), "storage.ini")
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg := NewCfg()
		require.NoError(t, cfg.Load(path))
		assert.Equal(t, "/tmp/xstorage-test", cfg.DataDir)
		assert.Equal(t, 256, cfg.BufferPoolPages)
		assert.Equal(t, 3, cfg.ReplacerK)
		assert.Equal(t, 32, cfg.LeafMaxSize)
		assert.Equal(t, 0, cfg.InternalMaxSize)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "10s", cfg.FlushInterval)
		assert.Equal(t, filepath.Join("/tmp/xstorage-test", "a.db"), cfg.DBFilePath("a.db"))
	})

	t.Run("缺失文件返回默认值", func(t *testing.T) {
		cfg := NewCfg()
		require.NoError(t, cfg.Load("/nonexistent/storage.ini"))
		assert.Equal(t, 1024, cfg.BufferPoolPages)
	})
}
