package cachestore

import (
	"context"
	"fmt"

	"github.com/vesaa/pagepulse/internal/host"
	"github.com/vesaa/pagepulse/internal/models"
)

// Inspect lists every named cache in storage with its request keys. A nil
// storage yields an empty list.
func Inspect(ctx context.Context, storage host.CacheStorage) ([]models.CacheInfo, error) {
	out := []models.CacheInfo{}
	if storage == nil {
		return out, nil
	}

	names, err := storage.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("inspect caches: %w", err)
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reqs, err := storage.Requests(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("inspect cache %s: %w", name, err)
		}
		if reqs == nil {
			reqs = []string{}
		}
		out = append(out, models.CacheInfo{Name: name, Requests: reqs, Count: len(reqs)})
	}
	return out, nil
}

// InspectHost inspects the host's cache storage if it offers any.
func InspectHost(ctx context.Context, h host.Host) ([]models.CacheInfo, error) {
	if p, ok := h.(host.CacheProvider); ok {
		if cs, ok := p.CacheStorage(); ok {
			return Inspect(ctx, cs)
		}
	}
	return Inspect(ctx, nil)
}
