package config

import (
	"os"
)

import (
	"gopkg.in/yaml.v3"
)

// ServerCfg —— HTTP 服务端口/地址配置
type ServerCfg struct {
	HTTPAddr string `yaml:"httpAddr"` // 监听地址，例如 ":8080" 或 "0.0.0.0:8080"
}

// RedisCfg —— 可选的共享计数后端（留空则使用进程内存储）
type RedisCfg struct {
	Addr           string `yaml:"addr"`           // Redis address, e.g. "127.0.0.1:6379"
	Password       string `yaml:"password"`       // Redis password
	DB             int    `yaml:"db"`             // Redis DB index
	Prefix         string `yaml:"prefix"`         // Key prefix
	PoolSize       int    `yaml:"poolSize"`       // Connection pool size
	MinIdleConns   int    `yaml:"minIdleConns"`   // Minimum idle connections
	MaxRetries     int    `yaml:"maxRetries"`     // Command retry count
	ReadTimeoutMs  int    `yaml:"readTimeoutMs"`  // Read timeout (ms)
	WriteTimeoutMs int    `yaml:"writeTimeoutMs"` // Write timeout (ms)
	DialTimeoutMs  int    `yaml:"dialTimeoutMs"`  // Dial timeout (ms)
}

func (r RedisCfg) Enabled() bool {
	return r.Addr != ""
}

// Features —— 特性开关
type Features struct {
	FailPolicy   string `yaml:"failPolicy"`   // fail-open | fail-closed（存储故障时的准入策略）
	SweepEveryMs int64  `yaml:"sweepEveryMs"` // 内存存储过期条目清理周期（<=0 关闭）
}

// Policy —— 单条准入策略（固定窗口）
type Policy struct {
	Name     string   `yaml:"name"     json:"name"`     // 策略唯一名称，同时是计数器命名空间
	Match    string   `yaml:"match"    json:"match"`    // 路由匹配（示例："/api/login"、"/api/*" 或 "*"）
	Methods  []string `yaml:"methods"  json:"methods"`  // HTTP methods, empty matches all
	Priority int      `yaml:"priority" json:"priority"` // higher wins
	WindowMs int64    `yaml:"windowMs" json:"windowMs"` // 窗口时长（毫秒）
	Max      int64    `yaml:"max"      json:"max"`      // 窗口内允许的最大请求数
	Enabled  bool     `yaml:"enabled"  json:"enabled"`  // 是否启用此策略
}

// Config —— 全量配置
type Config struct {
	Server            ServerCfg `yaml:"server"`            // 服务配置
	Redis             RedisCfg  `yaml:"redis"`             // Redis 配置（可选）
	Features          Features  `yaml:"features"`          // 特性开关
	TrustedOrigins    []string  `yaml:"trustedOrigins"`    // 跨域来源白名单（完整 URL 或裸主机名）
	BootstrapPolicies []Policy  `yaml:"bootstrapPolicies"` // 启动时注入的初始策略
}

// Load —— 从 YAML 文件加载配置
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(b))
	var c Config
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return nil, err
	}
	return &c, nil
}
