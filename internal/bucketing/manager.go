package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"sourcing-service/internal/config"
)

// BucketingManager maps identifiers onto a fixed number of buckets so audit
// rows can be partitioned without storing a second copy of the raw identifier.
type BucketingManager struct {
	identifierBuckets int
	hasherPool        sync.Pool
}

func NewBucketingManager(cfg *config.Config) *BucketingManager {
	bm := &BucketingManager{
		identifierBuckets: cfg.Bucketing.IdentifierBuckets,
	}

	// Pool of hash functions to avoid allocation overhead
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return bm
}

// GetIdentifierBucket returns a consistent bucket in [0, identifierBuckets).
func (bm *BucketingManager) GetIdentifierBucket(identifier string) int {
	return int(bm.getHash(identifier) % uint64(bm.identifierBuckets))
}

// GetDateBucket returns the UTC date partition for events.
func (bm *BucketingManager) GetDateBucket() string {
	return time.Now().UTC().Format("2006-01-02")
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}

func (bm *BucketingManager) IdentifierBuckets() int {
	return bm.identifierBuckets
}
