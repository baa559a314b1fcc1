package repositoryimpl

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/permguard/internal/engine"
	"github.com/kazz187/permguard/pkg/cerr"
	"github.com/kazz187/permguard/pkg/storage"
)

// ConfigPath is where the engine config lives inside storage.
const ConfigPath = "config/permguard.yaml"

type YAMLRepository struct {
	storage storage.Storage
	path    string
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s, path: ConfigPath}
}

func (r *YAMLRepository) Get(ctx context.Context) (*engine.Config, error) {
	data, err := r.storage.Read(ctx, r.path)
	if err != nil {
		return nil, cerr.WrapStorageReadError("config", err)
	}
	return Decode(data)
}

func (r *YAMLRepository) Save(ctx context.Context, cfg *engine.Config) error {
	data, err := Encode(cfg)
	if err != nil {
		return err
	}
	if err := r.storage.Write(ctx, r.path, data); err != nil {
		return cerr.WrapStorageWriteError("config", err)
	}
	return nil
}

// Decode parses a YAML config document. Unknown operators, scopes and risks
// are rejected.
func Decode(data []byte) (*engine.Config, error) {
	var cfg engine.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cerr.NewError(cerr.InvalidArgument, "invalid config", fmt.Errorf("failed to unmarshal config: %w", err))
	}
	return &cfg, nil
}

func Encode(cfg *engine.Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal config: %w", err))
	}
	return data, nil
}
