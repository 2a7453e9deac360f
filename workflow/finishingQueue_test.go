package workflow

import (
	"path"
	"testing"

	"github.com/mmdatafocus/factory_backend/models"
)

// The snapshot writer and the event-driven invalidation must agree on key
// shape, or stale backlogs survive session and order events.
func TestQueueBacklogCacheKeyMatchesInvalidationPattern(t *testing.T) {
	pattern := queueBacklogCachePattern("biz-1")
	for _, stage := range []models.QueueStage{models.QueueStageFinishing, models.QueueStagePackaging} {
		key := queueBacklogCacheKey("biz-1", stage)
		ok, err := path.Match(pattern, key)
		if err != nil {
			t.Fatalf("bad pattern %q: %v", pattern, err)
		}
		if !ok {
			t.Fatalf("pattern %q does not cover snapshot key %q", pattern, key)
		}
	}
}

func TestQueueBacklogCachePattern_ScopedToBusiness(t *testing.T) {
	otherKey := queueBacklogCacheKey("biz-2", models.QueueStageFinishing)
	if ok, _ := path.Match(queueBacklogCachePattern("biz-1"), otherKey); ok {
		t.Fatalf("pattern for biz-1 must not cover %q", otherKey)
	}
}
