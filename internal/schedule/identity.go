package schedule

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	appLog "confsched/internal/log"
)

// uuidNamespace is the fixed namespace all deterministic guids are derived
// in. It must never change: downstream systems key on these guids across
// conference runs.
var uuidNamespace = uuid.MustParse("0c9a24b4-72aa-4202-9f91-5a2b6bff2e6f")

// GenerateUUID derives a stable version-5 UUID from a name. The same input
// always yields the same guid, which makes regenerated exports diff-clean.
func GenerateUUID(name string) string {
	return uuid.NewSHA1(uuidNamespace, []byte(name)).String()
}

// GeneratePersonUUID derives a stable guid for a person from a durable
// property such as an email address.
func GeneratePersonUUID(identity string) string {
	return uuid.NewSHA1(uuidNamespace, []byte("person:"+identity)).String()
}

// RandomUUID returns a fresh random guid for events that carry no durable
// identity material at all.
func RandomUUID() string {
	return uuid.NewString()
}

// DerivedID deterministically maps a guid onto a numeric id with the given
// number of digits (first digit nonzero, so the width is stable). Used when a
// source's own small ids cannot be trusted.
func DerivedID(guid string, digits int) int {
	if digits < 1 {
		digits = 4
	}
	low := 1
	for i := 1; i < digits; i++ {
		low *= 10
	}
	span := low*10 - low

	h := fnv.New64a()
	h.Write([]byte(guid))
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], h.Sum64())
	v := int(binary.BigEndian.Uint32(sum[4:]))
	if v < 0 {
		v = -v
	}
	return low + v%span
}

// IDAllocator mints small, stable, human-facing event ids. Each guid gets the
// same id for the lifetime of the allocator, including across process runs
// when the allocator is persisted with Save and restored with LoadIDAllocator.
//
// The allocator is always passed explicitly into the operation that needs it;
// there is no ambient process-wide counter.
type IDAllocator struct {
	Next   int            `json:"next_id"`
	ByGUID map[string]int `json:"ids"`

	generated int
}

// NewIDAllocator returns an allocator that starts minting at base.
func NewIDAllocator(base int) *IDAllocator {
	if base <= 0 {
		base = 1000
	}
	return &IDAllocator{Next: base, ByGUID: make(map[string]int)}
}

// ID returns the id assigned to guid, minting a new one on first sight.
func (a *IDAllocator) ID(guid string) int {
	if id, ok := a.ByGUID[guid]; ok {
		return id
	}
	id := a.Next
	a.ByGUID[guid] = id
	a.Next++
	a.generated++
	return id
}

// Generated reports how many ids were minted since the allocator was created
// or loaded.
func (a *IDAllocator) Generated() int {
	return a.generated
}

// LoadIDAllocator restores a persisted allocator. A missing file is not an
// error; it yields a fresh allocator starting at base.
func LoadIDAllocator(path string, base int) (*IDAllocator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewIDAllocator(base), nil
		}
		return nil, err
	}

	a := NewIDAllocator(base)
	if err := json.Unmarshal(data, a); err != nil {
		return nil, err
	}
	if a.ByGUID == nil {
		a.ByGUID = make(map[string]int)
	}
	if a.Next < base {
		a.Next = base
	}
	appLog.Debug("id allocator loaded", "path", path, "known_ids", len(a.ByGUID), "next", a.Next)
	return a, nil
}

// Save persists the allocator state. The write goes through a temp file and
// rename so a crashed run never leaves a truncated id map behind.
func (a *IDAllocator) Save(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".confsched-ids-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
