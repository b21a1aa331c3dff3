package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/dep2p/go-vport/config"
)

// ============================================================================
//                              配置加载（CLI 专用）
// ============================================================================

// 环境变量名（均使用 VPORT_ 前缀）
const (
	envPrefix     = "VPORT_"
	envServerHost = "SERVER_HOST"
	envClientKey  = "CLIENT_KEY"
	envPassword   = "PASSWORD"
	envScheme     = "SCHEME"
	envStateful   = "STATEFUL"
	envEnableP2P  = "ENABLE_P2P"
)

// loadConfig 从 JSON 文件加载配置，路径为空时返回默认配置
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.NewConfig(), nil
	}
	return config.LoadFile(path)
}

// applyEnvOverrides 应用环境变量覆盖配置
//
// 环境变量优先级高于配置文件，但低于命令行参数。
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv(envPrefix + envServerHost); v != "" {
		cfg.Endpoint.ServerHost = v
	}
	if v := os.Getenv(envPrefix + envClientKey); v != "" {
		cfg.Endpoint.ClientKey = v
	}
	if v, ok := os.LookupEnv(envPrefix + envPassword); ok {
		cfg.Endpoint.Password = v
	}
	if v := os.Getenv(envPrefix + envScheme); v != "" {
		cfg.Endpoint.Scheme = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(envPrefix + envStateful); v != "" {
		cfg.Endpoint.Stateful = parseBool(v)
	}
	if v := os.Getenv(envPrefix + envEnableP2P); v != "" {
		cfg.Rendezvous.EnableP2P = parseBool(v)
	}
}

// parseBool 解析布尔值字符串
func parseBool(s string) bool {
	if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
		return b
	}
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "on"
}
