package config

import "errors"

// WorkersConfig 回调工作池配置
type WorkersConfig struct {
	// Size 工作协程数
	Size int `json:"size"`

	// Queue 队列初始容量；队列不设上限，提交不会阻塞
	Queue int `json:"queue"`
}

// DefaultWorkersConfig 返回默认工作池配置
func DefaultWorkersConfig() WorkersConfig {
	return WorkersConfig{Size: 4, Queue: 1024}
}

// Validate 校验工作池配置
func (c *WorkersConfig) Validate() error {
	if c.Size < 1 {
		return errors.New("workers: size must be >= 1")
	}
	if c.Queue < 1 {
		return errors.New("workers: queue must be >= 1")
	}
	return nil
}
