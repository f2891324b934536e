package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xcalcc/llvm-project/internal/machine"
	"github.com/xcalcc/llvm-project/internal/peephole"
)

// Current schema version - increment when DiskPayload format changes
const diskCacheSchemaVersion uint16 = 1

// Digest is a SHA-256 cache key.
type Digest [sha256.Size]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// DiskCache keeps optimised functions keyed by a digest of the input function
// and the pass configuration. Thread-safe for concurrent access.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// DiskPayload is one cached function together with what the pass did to it.
type DiskPayload struct {
	// Schema version for safe invalidation when format changes
	Schema uint16

	Func   *machine.Func
	Stats  peephole.Stats
	Rounds int
}

// OpenDiskCache initializes and returns a disk cache at the standard location.
func OpenDiskCache(app string) (*DiskCache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return NewDiskCache(filepath.Join(base, app))
}

// NewDiskCache opens a cache rooted at dir, creating it if needed.
func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *DiskCache) Dir() string { return c.dir }

func (c *DiskCache) pathFor(key Digest) string {
	return filepath.Join(c.dir, "funcs", key.String()+".mp")
}

// Put serializes and writes a payload to the disk cache.
func (c *DiskCache) Put(key Digest, payload *DiskPayload) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if err := msgpack.NewEncoder(f).Encode(payload); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// atomic replace
	if err := os.Rename(f.Name(), p); err != nil {
		return err
	}
	committed = true
	return nil
}

// Get reads and deserializes a payload from the disk cache.
func (c *DiskCache) Get(key Digest, out *DiskPayload) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	if err := msgpack.NewDecoder(f).Decode(out); err != nil {
		return false, err
	}
	return true, nil
}

// DropAll invalidates the cache, useful after format changes.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}

// cacheKey: H(schema || pass name || options || msgpack(f)).
func cacheKey(f *machine.Func, opts Options, rounds int) (Digest, error) {
	body, err := msgpack.Marshal(f)
	if err != nil {
		return Digest{}, err
	}
	hdr, err := msgpack.Marshal([]any{
		diskCacheSchemaVersion,
		peephole.Descriptor.Name,
		uint8(opts.Target.Zero),
		opts.Pass.DisableJumpToReturn,
		opts.Pass.DisableAssignAfterTest,
		rounds,
	})
	if err != nil {
		return Digest{}, err
	}

	h := sha256.New()
	_, _ = h.Write(hdr)
	_, _ = h.Write(body)
	var out Digest
	copy(out[:], h.Sum(nil))
	return out, nil
}

func funcPayload(f *machine.Func, fr FuncReport) *DiskPayload {
	return &DiskPayload{
		Schema: diskCacheSchemaVersion,
		Func:   f,
		Stats:  fr.Stats,
		Rounds: fr.Rounds,
	}
}

// payloadFunc returns the cached function, or nil when the payload is from
// another schema or does not hold a valid function.
func payloadFunc(payload *DiskPayload) *machine.Func {
	if payload == nil || payload.Schema != diskCacheSchemaVersion || payload.Func == nil {
		return nil
	}
	if err := machine.Validate(payload.Func); err != nil {
		return nil
	}
	return payload.Func
}
