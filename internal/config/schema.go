package config

import "time"

// Config is the top-level YAML structure.
type Config struct {
	Version  string       `yaml:"version"`
	Server   ServerConf   `yaml:"server"`
	Codegen  CodegenConf  `yaml:"codegen"`
	Catalog  CatalogConf  `yaml:"catalog"`
	Store    StoreConf    `yaml:"store"`
	Compiler CompilerConf `yaml:"compiler"`
}

// ServerConf configures the HTTP listener and editor sessions.
type ServerConf struct {
	Addr              string `yaml:"addr"`
	SessionTTLMinutes int    `yaml:"session_ttl_minutes"`
}

// SessionTTL is how long an idle editor session is kept.
func (s ServerConf) SessionTTL() time.Duration {
	return time.Duration(s.SessionTTLMinutes) * time.Minute
}

// CodegenConf selects the target language and whether capture calls are emitted.
type CodegenConf struct {
	Language   string `yaml:"language"`
	Instrument bool   `yaml:"instrument"`
}

// CatalogConf points at the YAML template catalog. An empty path serves only the
// built-in batch templates.
type CatalogConf struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// StoreConf configures graph persistence. An empty path disables the store.
type StoreConf struct {
	Path string `yaml:"path"`
}

// CompilerConf holds tunable concurrency settings for standalone compilation.
type CompilerConf struct {
	Workers    int `yaml:"workers"`
	QueueDepth int `yaml:"queue_depth"`
	TimeoutMs  int `yaml:"timeout_ms"`
}

// Timeout is the per-request compile deadline.
func (c CompilerConf) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}
