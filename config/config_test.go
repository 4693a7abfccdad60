package config

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewConfig 测试默认配置
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, AlgorithmHammingKademlia, cfg.Routing.Algorithm)
	assert.Equal(t, 20, cfg.IDSize())
	assert.Equal(t, 3, cfg.DHT.ReplicationFactor)
	assert.Equal(t, 2, cfg.DHT.SpareCandidates)
	assert.Equal(t, 3*time.Hour, cfg.DHT.DefaultTTL.Duration())
	assert.Equal(t, 7*24*time.Hour, cfg.DHT.MaxTTL.Duration())
	assert.True(t, cfg.DHT.SimilaritySearch)
	assert.Equal(t, 65536, cfg.Routing.GrayCacheSize)

	t.Log("✅ NewConfig 测试通过")
}

// TestConfig_Validate 测试非法配置在构造时失败
func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"UnknownAlgorithm", func(c *Config) { c.Routing.Algorithm = "Pastry" }},
		{"BitLengthNotByteAligned", func(c *Config) { c.Routing.IDBitLength = 12 }},
		{"UnknownDaemonMode", func(c *Config) { c.Routing.Daemon.Mode = "thread" }},
		{"Jitter", func(c *Config) { c.Routing.Daemon.JitterRatio = 1.5 }},
		{"UnknownMetric", func(c *Config) { c.DHT.SimilarityMetric = "Cosine" }},
		{"ZeroReplication", func(c *Config) { c.DHT.ReplicationFactor = 0 }},
		{"MinAcksTooLarge", func(c *Config) { c.DHT.MinReplicaAcks = 4 }},
		{"UnknownDirectory", func(c *Config) { c.Directory.Type = "redis" }},
		{"LSHDimensions", func(c *Config) { c.LSH.Dimensions = 0 }},
		{"LSHBitLengthMismatch", func(c *Config) { c.LSH.IDBitLength = 64 }},
		{"PersistentWithoutDir", func(c *Config) {
			c.Directory.Type = DirectoryPersistent
			c.Storage.DataDir = ""
		}},
		{"LogLevel", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Log("✅ Config.Validate 测试通过")
}

// TestFromJSON 测试从 JSON 加载，未出现的字段保留默认值
func TestFromJSON(t *testing.T) {
	cfg, err := FromJSON([]byte(`{
		"routing": {"algorithm": "HammingChord", "id_bit_length": 64},
		"dht": {"replication_factor": 2, "default_ttl": "90m"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, AlgorithmHammingChord, cfg.Routing.Algorithm)
	assert.Equal(t, 8, cfg.IDSize())
	assert.Equal(t, 2, cfg.DHT.ReplicationFactor)
	assert.Equal(t, 90*time.Minute, cfg.DHT.DefaultTTL.Duration())
	assert.Equal(t, 20, cfg.Routing.BucketSize)
	assert.Equal(t, 64, cfg.LSH.IDBitLength)
	require.NoError(t, cfg.Validate())

	_, err = FromJSON([]byte(`{"dht": {"default_ttl": "soon"}}`))
	assert.Error(t, err)
}

// TestFromJSON_LSHBitLength 测试 LSH 比特数跟随路由比特数，显式设置时保留
func TestFromJSON_LSHBitLength(t *testing.T) {
	cfg, err := FromJSON([]byte(`{"routing": {"id_bit_length": 32}}`))
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.LSH.IDBitLength)
	require.NoError(t, cfg.Validate())

	cfg, err = FromJSON([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, cfg.Routing.IDBitLength, cfg.LSH.IDBitLength)

	cfg, err = FromJSON([]byte(`{"routing": {"id_bit_length": 32}, "lsh": {"id_bit_length": 64}}`))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.LSH.IDBitLength)
	assert.Error(t, cfg.Validate())

	t.Log("✅ LSH 比特数默认值测试通过")
}

// TestLoadSave 测试文件读写
func TestLoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simdht.json")
	cfg := NewConfig()
	cfg.DHT.ExtraHops = 5
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

// TestCloneConfig 测试克隆互不影响
func TestCloneConfig(t *testing.T) {
	cfg := NewConfig()
	cloned := CloneConfig(cfg)
	cloned.DHT.ReplicationFactor = 1
	assert.Equal(t, 3, cfg.DHT.ReplicationFactor)
	assert.Nil(t, CloneConfig(nil))
}

// TestDuration 测试 Duration 的两种 JSON 格式
func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1h30m"`), &d))
	assert.Equal(t, 90*time.Minute, d.Duration())

	require.NoError(t, json.Unmarshal([]byte(`1000`), &d))
	assert.Equal(t, time.Microsecond, d.Duration())

	out, err := json.Marshal(Duration(5 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"5s"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
}
