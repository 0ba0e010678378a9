package driver

// LadybugDriverConfig configures the embedded Ladybug database. It compiles
// without cgo so callers can build configs either way.
type LadybugDriverConfig struct {
	// DBPath is a directory, or ":memory:".
	DBPath string

	MaxNumThreads     int
	BufferPoolSize    uint64 // bytes
	EnableCompression bool
	MaxDbSize         uint64 // bytes

	// ReadOnly opens an existing database without write access.
	ReadOnly bool

	// Embedder computes vectors for entities loaded without one.
	Embedder TextEmbedder
}

// DefaultLadybugDriverConfig is an in-memory database with one thread, a
// 1 GiB buffer pool and an 8 TiB size cap.
func DefaultLadybugDriverConfig() *LadybugDriverConfig {
	return &LadybugDriverConfig{
		DBPath:            ":memory:",
		MaxNumThreads:     1,
		BufferPoolSize:    1 << 30,
		EnableCompression: true,
		MaxDbSize:         1 << 43,
	}
}

func (c *LadybugDriverConfig) WithDBPath(path string) *LadybugDriverConfig {
	c.DBPath = path
	return c
}

func (c *LadybugDriverConfig) WithBufferPoolSize(size uint64) *LadybugDriverConfig {
	c.BufferPoolSize = size
	return c
}

func (c *LadybugDriverConfig) WithReadOnly(readOnly bool) *LadybugDriverConfig {
	c.ReadOnly = readOnly
	return c
}

func (c *LadybugDriverConfig) WithEmbedder(e TextEmbedder) *LadybugDriverConfig {
	c.Embedder = e
	return c
}
