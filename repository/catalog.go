package repository

import (
	"context"
	"sort"
	"sync"

	"voicecaption/models"
)

// AssetCatalog records every media asset the pipeline creates
type AssetCatalog interface {
	Save(ctx context.Context, asset models.MediaAsset) error
	Get(ctx context.Context, id string) (models.MediaAsset, error)
	Delete(ctx context.Context, id string) error
	ListByRequest(ctx context.Context, requestID string) ([]models.MediaAsset, error)
}

// MemoryCatalog keeps assets in process memory
type MemoryCatalog struct {
	assets map[string]models.MediaAsset
	paths  map[string]string
	mu     sync.RWMutex
}

// NewMemoryCatalog creates an empty in-memory catalog
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		assets: make(map[string]models.MediaAsset),
		paths:  make(map[string]string),
	}
}

func (c *MemoryCatalog) Save(ctx context.Context, asset models.MediaAsset) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.paths[asset.Path]; exists {
		return models.ErrDuplicatePath
	}
	if _, exists := c.assets[asset.ID]; exists {
		return models.ErrDuplicatePath
	}
	c.assets[asset.ID] = asset
	c.paths[asset.Path] = asset.ID
	return nil
}

func (c *MemoryCatalog) Get(ctx context.Context, id string) (models.MediaAsset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	asset, exists := c.assets[id]
	if !exists {
		return models.MediaAsset{}, models.ErrAssetNotFound
	}
	return asset, nil
}

// Delete removes the record. The path stays reserved so it is never handed out again.
func (c *MemoryCatalog) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.assets[id]; !exists {
		return models.ErrAssetNotFound
	}
	delete(c.assets, id)
	return nil
}

func (c *MemoryCatalog) ListByRequest(ctx context.Context, requestID string) ([]models.MediaAsset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]models.MediaAsset, 0)
	for _, asset := range c.assets {
		if asset.RequestID == requestID {
			result = append(result, asset)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
