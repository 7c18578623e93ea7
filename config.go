package vecdb

import (
	"fmt"

	"github.com/go-vecdb/vecdb/pkg/distance"
	"github.com/go-vecdb/vecdb/pkg/index"
)

// IndexType selects the index implementation a database is backed by.
type IndexType string

const (
	IndexTypeHNSW IndexType = "hnsw"
	IndexTypeFlat IndexType = "flat"
)

// IndexConfig configures index creation, per §6's configuration table.
type IndexConfig struct {
	Type           IndexType
	Metric         distance.Metric
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultIndexConfig returns an HNSW index over cosine distance with
// conventional construction parameters.
func DefaultIndexConfig() IndexConfig {
	hnsw := index.DefaultHNSWConfig()
	return IndexConfig{
		Type:           IndexTypeHNSW,
		Metric:         distance.Cosine,
		M:              hnsw.M,
		EfConstruction: hnsw.EfConstruction,
		EfSearch:       hnsw.EfSearch,
	}
}

// ParseIndexConfig validates raw option values (as they would arrive
// from a REST payload or CLI flags) into an IndexConfig, the boundary
// where Configuration errors surface before touching the core.
func ParseIndexConfig(typ, metric string, m, efConstruction, efSearch int) (IndexConfig, error) {
	cfg := DefaultIndexConfig()

	switch IndexType(typ) {
	case IndexTypeHNSW, IndexTypeFlat, "":
		if typ != "" {
			cfg.Type = IndexType(typ)
		}
	default:
		return IndexConfig{}, newError(KindConfiguration, "ParseIndexConfig", fmt.Sprintf("unknown index type %q", typ))
	}

	if metric != "" {
		m := distance.Metric(metric)
		switch m {
		case distance.Cosine, distance.Euclidean, distance.SquaredEuclidean,
			distance.Manhattan, distance.Chebyshev, distance.DotProduct,
			distance.Hamming, distance.Jaccard:
			cfg.Metric = m
		default:
			return IndexConfig{}, newError(KindConfiguration, "ParseIndexConfig", fmt.Sprintf("unknown metric %q", metric))
		}
	}

	if m > 0 {
		cfg.M = m
	}
	if efConstruction > 0 {
		cfg.EfConstruction = efConstruction
	}
	if efSearch > 0 {
		cfg.EfSearch = efSearch
	}
	return cfg, nil
}

// StorageType selects the storage backend a database is backed by.
type StorageType string

const (
	StorageTypeMemory StorageType = "memory"
	StorageTypeDisk   StorageType = "disk"
)

// StorageConfig configures storage backend creation.
type StorageConfig struct {
	Type        StorageType
	DataDir     string
	CacheSizeMB int
}

// DefaultStorageConfig returns an in-memory backend.
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{Type: StorageTypeMemory}
}

// ParseStorageConfig validates raw option values into a StorageConfig.
func ParseStorageConfig(typ, dataDir string, cacheSizeMB int) (StorageConfig, error) {
	cfg := DefaultStorageConfig()

	switch StorageType(typ) {
	case StorageTypeMemory, "":
	case StorageTypeDisk:
		cfg.Type = StorageTypeDisk
		if dataDir == "" {
			return StorageConfig{}, newError(KindConfiguration, "ParseStorageConfig", "disk storage requires data_dir")
		}
	default:
		return StorageConfig{}, newError(KindConfiguration, "ParseStorageConfig", fmt.Sprintf("unknown storage type %q", typ))
	}

	cfg.DataDir = dataDir
	cfg.CacheSizeMB = cacheSizeMB
	return cfg, nil
}

// QuantizerType selects the optional vector compression scheme.
type QuantizerType string

const (
	QuantizerTypeNone    QuantizerType = ""
	QuantizerTypeScalar  QuantizerType = "scalar"
	QuantizerTypeProduct QuantizerType = "product"
)

// QuantizerConfig configures optional quantizer creation.
type QuantizerConfig struct {
	Type       QuantizerType
	Bits       int // scalar
	Subvectors int // product
	Centroids  int // product
}

// DefaultQuantizerConfig returns the no-quantization configuration.
func DefaultQuantizerConfig() QuantizerConfig {
	return QuantizerConfig{Type: QuantizerTypeNone}
}

// ParseQuantizerConfig validates raw option values into a
// QuantizerConfig.
func ParseQuantizerConfig(typ string, bits, subvectors, centroids int) (QuantizerConfig, error) {
	cfg := DefaultQuantizerConfig()

	switch QuantizerType(typ) {
	case QuantizerTypeNone:
		return cfg, nil
	case QuantizerTypeScalar:
		cfg.Type = QuantizerTypeScalar
		cfg.Bits = bits
		if cfg.Bits <= 0 {
			cfg.Bits = 8
		}
	case QuantizerTypeProduct:
		cfg.Type = QuantizerTypeProduct
		cfg.Subvectors = subvectors
		cfg.Centroids = centroids
		if cfg.Centroids <= 0 {
			cfg.Centroids = 256
		}
	default:
		return QuantizerConfig{}, newError(KindConfiguration, "ParseQuantizerConfig", fmt.Sprintf("unknown quantizer type %q", typ))
	}
	return cfg, nil
}

// DatabaseConfig is the full configuration a database is constructed
// from: index, storage, and optional quantizer settings plus a logger.
type DatabaseConfig struct {
	Index     IndexConfig
	Storage   StorageConfig
	Quantizer QuantizerConfig
	Logger    Logger
	MaxK      int
}

// DefaultMaxK bounds the k accepted by search, per the InvalidInput rule
// "k > MAX_K".
const DefaultMaxK = 10000

// DefaultDatabaseConfig returns an in-memory HNSW database with no
// quantization and a no-op logger.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Index:     DefaultIndexConfig(),
		Storage:   DefaultStorageConfig(),
		Quantizer: DefaultQuantizerConfig(),
		Logger:    NopLogger(),
		MaxK:      DefaultMaxK,
	}
}
