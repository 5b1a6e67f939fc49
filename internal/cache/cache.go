package cache

import (
	"time"
)

// Cache 缓存接口
// 用于缓存分块的Markdown生成结果，避免重投递时重复调用模型
type Cache interface {
	Get(key string) (value string, found bool, err error)
	Set(key string, value string, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Factory 缓存工厂函数类型
type Factory func(config Config) (Cache, error)

// 注册的缓存实现
var registry = make(map[string]Factory)

// RegisterCache 注册缓存实现
func RegisterCache(name string, factory Factory) {
	registry[name] = factory
}

// NewCache 创建缓存实例
// 未注册的类型回退到内存缓存
func NewCache(config Config) (Cache, error) {
	if factory, ok := registry[config.Type]; ok {
		return factory(config)
	}
	return NewMemoryCache(config)
}

// Config 缓存配置
type Config struct {
	Type            string        // 缓存类型: "memory", "redis"
	RedisAddr       string        // Redis连接地址 (仅Redis缓存使用)
	RedisPassword   string        // Redis密码 (仅Redis缓存使用)
	RedisDB         int           // Redis数据库编号 (仅Redis缓存使用)
	DefaultTTL      time.Duration // 默认缓存过期时间
	CleanupInterval time.Duration // 过期项自动清理间隔 (仅内存缓存使用)
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Type:            "memory",
		DefaultTTL:      24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// GenerateCacheKey 生成标准化的缓存键
func GenerateCacheKey(prefix string, parts ...string) string {
	key := prefix
	for _, part := range parts {
		key += ":" + part
	}
	return key
}
