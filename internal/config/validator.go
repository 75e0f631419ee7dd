package config

import (
	"fmt"
	"strings"
)

// Validate checks required fields and value ranges, reporting every problem at once.
// knownLanguages lists the code generator languages the binary supports.
func Validate(cfg *Config, knownLanguages []string) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string

	if cfg.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if cfg.Server.SessionTTLMinutes < 0 {
		errs = append(errs, fmt.Sprintf("server.session_ttl_minutes must not be negative, got %d", cfg.Server.SessionTTLMinutes))
	}

	known := false
	for _, l := range knownLanguages {
		if l == cfg.Codegen.Language {
			known = true
			break
		}
	}
	if !known {
		errs = append(errs, fmt.Sprintf("codegen.language %q is not supported (have %s)", cfg.Codegen.Language, strings.Join(knownLanguages, ", ")))
	}

	if cfg.Catalog.Watch && cfg.Catalog.Path == "" {
		errs = append(errs, "catalog.watch requires catalog.path")
	}

	if cfg.Compiler.Workers < 1 {
		errs = append(errs, fmt.Sprintf("compiler.workers must be at least 1, got %d", cfg.Compiler.Workers))
	}
	if cfg.Compiler.QueueDepth < cfg.Compiler.Workers {
		errs = append(errs, fmt.Sprintf("compiler.queue_depth (%d) must be at least compiler.workers (%d)", cfg.Compiler.QueueDepth, cfg.Compiler.Workers))
	}
	if cfg.Compiler.TimeoutMs <= 0 {
		errs = append(errs, fmt.Sprintf("compiler.timeout_ms must be positive, got %d", cfg.Compiler.TimeoutMs))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
