package repositoryimpl

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/permguard/internal/audit"
	"github.com/kazz187/permguard/pkg/cerr"
	"github.com/kazz187/permguard/pkg/storage"
)

const auditPrefix = "audit"

// YAMLRepository stores one YAML file per audit entry. Entry IDs are ULIDs,
// so listing the directory yields append order.
type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", auditPrefix, id)
}

func (r *YAMLRepository) Create(ctx context.Context, e *audit.Entry) error {
	data, err := yaml.Marshal(e)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal audit entry: %w", err))
	}
	if err := r.storage.Write(ctx, path(e.ID), data); err != nil {
		return cerr.WrapStorageWriteError("audit entry", err)
	}
	return nil
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*audit.Entry, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("audit entry", err)
	}
	var e audit.Entry
	if err := yaml.Unmarshal(data, &e); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal audit entry: %w", err))
	}
	return &e, nil
}

func (r *YAMLRepository) List(ctx context.Context, f audit.Filter) ([]*audit.Entry, error) {
	paths, err := r.storage.List(ctx, auditPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("audit entries", err)
	}

	var out []*audit.Entry
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			slog.WarnContext(ctx, "skipping unreadable audit entry", "path", p, "error", err)
			continue
		}
		var e audit.Entry
		if err := yaml.Unmarshal(data, &e); err != nil {
			slog.WarnContext(ctx, "skipping malformed audit entry", "path", p, "error", err)
			continue
		}
		if f.Match(&e) {
			out = append(out, &e)
		}
	}
	return out, nil
}
