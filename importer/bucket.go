package importer

import (
	"sync"

	"github.com/nine4-team/inventory_backend/utils"
)

// CreatedItem is the view of a just-persisted item used for reconciliation.
type CreatedItem struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// ReconciliationBucket maps normalized description to the ordered ids of
// items just created for a transaction. Claims consume FIFO, which is what
// lets several identically-described duplicate items each receive their own
// uploaded image without colliding. Run-scoped; claimed concurrently by
// upload tasks, hence the mutex.
type ReconciliationBucket struct {
	mu     sync.Mutex
	byDesc map[string][]int
}

func NewReconciliationBucket(items []CreatedItem) *ReconciliationBucket {
	b := &ReconciliationBucket{byDesc: make(map[string][]int)}
	for _, item := range items {
		key := utils.NormalizeDescription(item.Description)
		b.byDesc[key] = append(b.byDesc[key], item.ID)
	}
	return b
}

// Claim pops the oldest remaining item id for the description. A false
// return means the bucket for that description is exhausted, i.e. more
// assets were submitted than items were actually created.
func (b *ReconciliationBucket) Claim(description string) (int, bool) {
	key := utils.NormalizeDescription(description)
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := b.byDesc[key]
	if len(ids) == 0 {
		return 0, false
	}
	id := ids[0]
	b.byDesc[key] = ids[1:]
	return id, true
}

// Remaining reports how many unclaimed ids are left for a description.
func (b *ReconciliationBucket) Remaining(description string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byDesc[utils.NormalizeDescription(description)])
}
