package config

import "errors"

// LivenessConfig 存活检测配置
type LivenessConfig struct {
	// LocalPingPeriod 本地配置的 Ping 周期，0 表示未配置（使用服务器要求或默认 300s）
	LocalPingPeriod Duration `json:"local_ping_period"`
}

// DefaultLivenessConfig 返回默认存活检测配置
func DefaultLivenessConfig() LivenessConfig {
	return LivenessConfig{}
}

// Validate 校验存活检测配置
func (c *LivenessConfig) Validate() error {
	if c.LocalPingPeriod < 0 {
		return errors.New("liveness: local_ping_period must be >= 0")
	}
	return nil
}
