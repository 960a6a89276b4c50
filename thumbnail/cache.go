package thumbnail

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var errThumbnailNotInCache = errors.New("the thumbnail isn't in cache")

type cachedThumbnail struct {
	data              []byte
	expireAtTimestamp int64
}

// LocalCache Encoded thumbnails kept in memory until they expire
type LocalCache struct {
	stop chan struct{}
	ttl  time.Duration

	wg         sync.WaitGroup
	mu         sync.RWMutex
	thumbnails map[string]cachedThumbnail
}

// NewLocalCache Create a new local cache swept every cleanupInterval
func NewLocalCache(ttl time.Duration, cleanupInterval time.Duration) *LocalCache {
	log.Info("Creating new thumbnail cache with cleanup interval ", cleanupInterval)
	lc := &LocalCache{
		ttl:        ttl,
		thumbnails: make(map[string]cachedThumbnail),
		stop:       make(chan struct{}),
	}

	lc.wg.Add(1)
	go func(cleanupInterval time.Duration) {
		defer lc.wg.Done()
		lc.cleanupLoop(cleanupInterval)
	}(cleanupInterval)

	return lc
}

// cleanupLoop Drop expired thumbnails
func (lc *LocalCache) cleanupLoop(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-lc.stop:
			return
		case <-t.C:
			now := time.Now().UnixNano()
			lc.mu.Lock()
			for key, ct := range lc.thumbnails {
				if ct.expireAtTimestamp <= now {
					log.Debug("Thumbnail expired: ", key)
					delete(lc.thumbnails, key)
				}
			}
			lc.mu.Unlock()
		}
	}
}

// Stop Stop the cleanup goroutine
func (lc *LocalCache) Stop() {
	close(lc.stop)
	lc.wg.Wait()
}

// Update Add a thumbnail to the cache
func (lc *LocalCache) Update(key string, data []byte) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	log.Debug(fmt.Sprintf("Updating %s in cache", key))

	lc.thumbnails[key] = cachedThumbnail{
		data:              data,
		expireAtTimestamp: time.Now().Add(lc.ttl).UnixNano(),
	}
}

// Read Read a thumbnail from the cache
func (lc *LocalCache) Read(key string) ([]byte, error) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	ct, ok := lc.thumbnails[key]
	if !ok || ct.expireAtTimestamp <= time.Now().UnixNano() {
		return nil, errThumbnailNotInCache
	}
	return ct.data, nil
}

// Invalidate Remove every cached size of an image
func (lc *LocalCache) Invalidate(imageID uint) {
	prefix := fmt.Sprintf("%d/", imageID)
	lc.mu.Lock()
	defer lc.mu.Unlock()
	for key := range lc.thumbnails {
		if strings.HasPrefix(key, prefix) {
			delete(lc.thumbnails, key)
		}
	}
}

func (lc *LocalCache) size() int {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return len(lc.thumbnails)
}
