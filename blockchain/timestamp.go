package blockchain

import (
	"sort"
	"time"

	"github.com/sabledatanetworks/pandanite-node/types"
)

// maxFutureDrift bounds how far into the network's estimated clock a new
// block's timestamp may sit.
const maxFutureDrift = 2 * time.Hour

// medianWindow is the number of trailing block timestamps the
// median-monotone rule is computed over.
const medianWindow = 10

// VerifyTimestamp applies spec §4.3.1: blocks after the first must not
// claim a time more than two hours ahead of the estimated network clock,
// and once the chain is more than ten blocks tall a new timestamp must
// not fall before the median of the last ten confirmed timestamps.
func VerifyTimestamp(id uint64, timestamp, networkNow time.Time, height uint64, recentTimestamps []time.Time) types.Status {
	if id == 1 {
		return types.StatusSuccess
	}
	if timestamp.After(networkNow.Add(maxFutureDrift)) {
		return types.StatusBlockTimestampInFuture
	}
	if height > medianWindow {
		median := medianTimestamp(recentTimestamps)
		if timestamp.Before(median) {
			return types.StatusBlockTimestampTooOld
		}
	}
	return types.StatusSuccess
}

// medianTimestamp returns the median of ts, using the lower-upper
// average for an even cardinality (matching HostManager.NetworkTimestamp's
// median convention).
func medianTimestamp(ts []time.Time) time.Time {
	sorted := make([]time.Time, len(ts))
	copy(sorted, ts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	n := len(sorted)
	if n == 0 {
		return time.Time{}
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	lower := sorted[n/2-1]
	upper := sorted[n/2]
	return lower.Add(upper.Sub(lower) / 2)
}
