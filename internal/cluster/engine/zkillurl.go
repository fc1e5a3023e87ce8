package engine

import (
	"fmt"
	"time"
)

// ZkillRelatedURL composes zkillboard.com's "related kills" URL for a
// system and a battle start time. This is the chosen scheme for
// spec.md §9's open question on zkillRelatedUrl composition: it mirrors
// zkillboard's own "/related/{systemID}/{YYYYMMDDHHmm}/" convention.
func ZkillRelatedURL(systemID int64, startTime time.Time) string {
	return fmt.Sprintf("https://zkillboard.com/related/%d/%s/", systemID, startTime.UTC().Format("200601021504"))
}
