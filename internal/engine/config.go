package engine

import (
	"context"

	"github.com/kazz187/permguard/internal/permission"
	"github.com/kazz187/permguard/internal/policy"
	"github.com/kazz187/permguard/pkg/cerr"
)

// Config is the portable form of the catalog and policy. Grants and the
// audit log are runtime state and are not part of it.
type Config struct {
	Permissions []permission.Permission `yaml:"permissions,omitempty" json:"permissions,omitempty"`
	Policy      *policy.Policy          `yaml:"policy,omitempty" json:"policy,omitempty"`
}

func (e *Engine) ExportConfig() Config {
	p := e.Policy()
	return Config{
		Permissions: e.catalog.List(),
		Policy:      &p,
	}
}

// ImportConfig replaces the catalog when cfg.Permissions is non-nil and the
// policy when cfg.Policy is non-nil. Absent sections are left untouched.
func (e *Engine) ImportConfig(cfg Config) {
	if cfg.Permissions != nil {
		e.catalog.Replace(cfg.Permissions)
	}
	if cfg.Policy != nil {
		e.SetPolicy(*cfg.Policy)
	}
}

// ConfigRepository persists an engine Config.
type ConfigRepository interface {
	// Get returns a cerr NotFound error when nothing has been saved yet.
	Get(ctx context.Context) (*Config, error)
	Save(ctx context.Context, cfg *Config) error
}

// LoadConfig imports the stored config, if any. It reports whether one was
// found.
func (e *Engine) LoadConfig(ctx context.Context, repo ConfigRepository) (bool, error) {
	cfg, err := repo.Get(ctx)
	if err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			return false, nil
		}
		return false, err
	}
	e.ImportConfig(*cfg)
	return true, nil
}

func (e *Engine) SaveConfig(ctx context.Context, repo ConfigRepository) error {
	cfg := e.ExportConfig()
	return repo.Save(ctx, &cfg)
}
