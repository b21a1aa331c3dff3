package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-vport/pkg/types"
)

func validConfig() *Config {
	cfg := NewConfig()
	cfg.Endpoint.ServerHost = "coord.example.com"
	cfg.Endpoint.ClientKey = "device-1"
	return cfg
}

// TestNewConfig 测试默认配置
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	// 身份字段没有默认值
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 8700, cfg.Session.Port)
	assert.Equal(t, 4*time.Second, cfg.Rendezvous.TCPTraversalTimeout.Duration())
	assert.Equal(t, 7*time.Second, cfg.Rendezvous.UDPTraversalTimeout.Duration())
	assert.Equal(t, SetupTolerant, cfg.Rendezvous.SetupPolicy)
}

// TestEndpointConfig_Identity 测试身份转换
func TestEndpointConfig_Identity(t *testing.T) {
	t.Run("Multi_Credentialed", func(t *testing.T) {
		cfg := EndpointConfig{ServerHost: "h", ClientKey: "k", Scheme: "multi", Password: "pw"}
		id, err := cfg.Identity()
		require.NoError(t, err)
		assert.Equal(t, types.SchemeMultiService, id.Scheme)
		assert.True(t, id.Category().Has(types.CategoryCredentialed))
		assert.True(t, id.Category().Has(types.CategoryMultiService))
	})

	t.Run("InvalidScheme", func(t *testing.T) {
		cfg := EndpointConfig{ServerHost: "h", ClientKey: "k", Scheme: "triple"}
		_, err := cfg.Identity()
		assert.ErrorIs(t, err, types.ErrInvalidScheme)
	})

	t.Run("MissingKey", func(t *testing.T) {
		cfg := EndpointConfig{ServerHost: "h", Scheme: "single"}
		assert.ErrorIs(t, cfg.Validate(), types.ErrEmptyClientKey)
	})
}

// TestRendezvousConfig_Validate 测试会合配置校验
func TestRendezvousConfig_Validate(t *testing.T) {
	t.Run("EmptyPolicyRepaired", func(t *testing.T) {
		cfg := DefaultRendezvousConfig()
		cfg.SetupPolicy = ""
		require.NoError(t, cfg.Validate())
		assert.Equal(t, SetupTolerant, cfg.SetupPolicy)
	})

	t.Run("UnknownPolicy", func(t *testing.T) {
		cfg := DefaultRendezvousConfig()
		cfg.SetupPolicy = "yolo"
		assert.Error(t, cfg.Validate())
	})

	t.Run("BudgetShorterThanTraversal", func(t *testing.T) {
		cfg := DefaultRendezvousConfig()
		cfg.TCPWaitBudget = Duration(time.Second)
		assert.Error(t, cfg.Validate())
	})

	t.Run("PortOutOfRange", func(t *testing.T) {
		cfg := DefaultRendezvousConfig()
		cfg.UDPPort = 70000
		assert.Error(t, cfg.Validate())
	})
}

// TestFromJSON 测试 JSON 覆盖默认值
func TestFromJSON(t *testing.T) {
	data := []byte(`{
		"endpoint": {"server_host": "coord:9000", "client_key": "abc", "scheme": "multi"},
		"session": {"connect_timeout": "3s"},
		"liveness": {"local_ping_period": "90s"},
		"rendezvous": {"setup_policy": "strict", "tcp_traversal_timeout": 2000000000}
	}`)

	cfg, err := FromJSON(data)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "coord:9000", cfg.Endpoint.ServerHost)
	assert.Equal(t, 3*time.Second, cfg.Session.ConnectTimeout.Duration())
	assert.Equal(t, 90*time.Second, cfg.Liveness.LocalPingPeriod.Duration())
	assert.Equal(t, SetupStrict, cfg.Rendezvous.SetupPolicy)
	assert.Equal(t, 2*time.Second, cfg.Rendezvous.TCPTraversalTimeout.Duration())
	// 未出现的字段保持默认
	assert.Equal(t, 8700, cfg.Session.Port)
	assert.Equal(t, 4, cfg.Workers.Size)
}

// TestDuration_JSON 测试 Duration 编解码
func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, d.Duration())

	out, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))

	assert.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))
	assert.Error(t, d.UnmarshalJSON([]byte(`true`)))
}

// TestLoadFile 测试从文件加载
func TestLoadFile(t *testing.T) {
	cfg := validConfig()
	data, err := cfg.ToJSON()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "vport.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
