package store

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/brilliant-build/bbuild/internal/model"
)

// Key prefixes, one byte each, mirroring the prefixed-key idiom used for
// BadgerDB-backed vertex/edge/index tables (nodes/edges/label-index) in the
// graph-database storage layer this store is grounded on.
const (
	prefixResourceRecord  = byte(0x01)
	prefixTaskRecord      = byte(0x02)
	prefixResourcePathIdx = byte(0x03)
	prefixTaskKeyIdx      = byte(0x04)
	prefixEdgeRT          = byte(0x05) // resource -> task, keyed by (resID, taskID, type)
	prefixEdgeTR          = byte(0x06) // task -> resource, keyed by (taskID, resID, type)
	prefixEdgeRTRev       = byte(0x07) // incoming(task): keyed by (taskID, resID, type)
	prefixEdgeTRRev       = byte(0x08) // incoming(resource): keyed by (resID, taskID, type)
	prefixPendingResource = byte(0x09)
	prefixPendingTask     = byte(0x0A)
	prefixCounter         = byte(0x0B)
)

var (
	counterResourceKey = []byte{prefixCounter, 'r'}
	counterTaskKey     = []byte{prefixCounter, 't'}
)

func u64be(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func parseU64be(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func resourceRecordKey(id uint64) []byte {
	return append([]byte{prefixResourceRecord}, u64be(id)...)
}

func taskRecordKey(id uint64) []byte {
	return append([]byte{prefixTaskRecord}, u64be(id)...)
}

func resourcePathKey(path string) []byte {
	return append([]byte{prefixResourcePathIdx}, []byte(path)...)
}

// writeField length-prefixes data before hashing, the same unambiguous
// framing TaskHasher.ComputeHash uses so sibling fields can never alias.
func writeField(h interface{ Write([]byte) (int, error) }, data []byte) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(data)))
	h.Write(lenBuf[:])
	h.Write(data)
}

// taskNaturalKeyHash computes a stable identity for a Task's natural key
// (commands, workingDirectory), the §3 uniqueness key. Adapted from the
// length-prefixed sha256 framing used to compute TaskHash/GraphHash identity
// in the teacher's hasher — here it identifies the *declarative* key rather
// than a cache/content identity.
func taskNaturalKeyHash(key model.TaskKey) [32]byte {
	h := sha256.New()
	writeField(h, []byte(key.WorkingDirectory))
	var cmdCount [8]byte
	binary.BigEndian.PutUint64(cmdCount[:], uint64(len(key.Commands)))
	h.Write(cmdCount[:])
	for _, cmd := range key.Commands {
		var argCount [8]byte
		binary.BigEndian.PutUint64(argCount[:], uint64(len(cmd)))
		h.Write(argCount[:])
		for _, arg := range cmd {
			writeField(h, []byte(arg))
		}
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func taskKeyIndexKey(key model.TaskKey) []byte {
	sum := taskNaturalKeyHash(key)
	return append([]byte{prefixTaskKeyIdx}, sum[:]...)
}

func edgeTypeByte(t model.EdgeType) byte { return byte(t) }

func edgeForwardKey(prefix byte, fromID, toID uint64, t model.EdgeType) []byte {
	k := make([]byte, 0, 1+8+8+1)
	k = append(k, prefix)
	k = append(k, u64be(fromID)...)
	k = append(k, u64be(toID)...)
	k = append(k, edgeTypeByte(t))
	return k
}

func edgeForwardPrefix(prefix byte, fromID uint64) []byte {
	k := make([]byte, 0, 1+8)
	k = append(k, prefix)
	k = append(k, u64be(fromID)...)
	return k
}

func pendingKey(prefix byte, id uint64) []byte {
	return append([]byte{prefix}, u64be(id)...)
}
