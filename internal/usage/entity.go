// AngelaMos | 2026
// entity.go

package usage

import (
	"time"
)

type Record struct {
	ID          int64     `db:"id"`
	AccountID   string    `db:"account_id"`
	Query       string    `db:"query"`
	ArtifactRef string    `db:"artifact_ref"`
	CreatedAt   time.Time `db:"created_at"`
}
