package orchestrator

import "hash/fnv"

// abTestVariant deterministically buckets a user into one of two
// recommendation-algorithm variants by hashing their id, so the same user
// always lands in the same bucket without any persisted assignment table.
// This is bucket assignment only; analyzing outcomes across variants
// happens elsewhere.
func abTestVariant(userID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	if h.Sum32()%2 == 0 {
		return "control"
	}
	return "treatment"
}
