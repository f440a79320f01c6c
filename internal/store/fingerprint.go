package store

import "github.com/cespare/xxhash/v2"

// Fingerprint computes a Resource's content checksum. Resource freshness
// checks are a high-frequency, non-adversarial identity comparison (is this
// the same file content as last time?), not a content-addressed cache key,
// so this package deliberately uses xxhash rather than the sha256 framing
// used for task/graph cache identities elsewhere in the module.
func Fingerprint(data []byte) []byte {
	sum := xxhash.Sum64(data)
	return u64be(sum)
}
