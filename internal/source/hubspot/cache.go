package hubspot

import (
	"context"
	"sync"
	"time"
)

// metadataTTL bounds how long cached pipeline metadata is trusted before the
// next sync refreshes it.
const metadataTTL = time.Hour

// metadataCache holds pipeline/stage metadata per source instance. Two
// sources pointing at different HubSpot portals must never share entries, so
// the cache is keyed by source id. Safe for concurrent use.
type metadataCache struct {
	mu      sync.RWMutex
	entries map[string]*metadataEntry
}

type metadataEntry struct {
	pipelines []pipeline
	stages    map[string]stage // stage id -> stage, across all pipelines
	expiresAt time.Time
}

func newMetadataCache() *metadataCache {
	return &metadataCache{entries: make(map[string]*metadataEntry)}
}

// get returns the cached entry for a source, or nil when missing or expired.
func (c *metadataCache) get(sourceID string) *metadataEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[sourceID]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry
}

// refresh fetches pipeline metadata and replaces the source's cache entry.
func (c *metadataCache) refresh(ctx context.Context, sourceID string, hc *client) (*metadataEntry, error) {
	pipelines, err := hc.listPipelines(ctx)
	if err != nil {
		return nil, err
	}

	entry := &metadataEntry{
		pipelines: pipelines,
		stages:    make(map[string]stage),
		expiresAt: time.Now().Add(metadataTTL),
	}
	for _, p := range pipelines {
		for _, st := range p.Stages {
			entry.stages[st.ID] = st
		}
	}

	c.mu.Lock()
	c.entries[sourceID] = entry
	c.mu.Unlock()
	return entry, nil
}

// invalidate drops a source's cache entry.
func (c *metadataCache) invalidate(sourceID string) {
	c.mu.Lock()
	delete(c.entries, sourceID)
	c.mu.Unlock()
}
