package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lifesupport.ai/internal/persistence/indexdb"
	"lifesupport.ai/internal/sim/lifesupport"
	"lifesupport.ai/internal/sim/planets"
)

type runtimeIndex interface {
	lifesupport.Sink
	Close() error
	UpsertPlanets(cat *planets.Catalog) error
}

func indexPath(dataDir string) string {
	return filepath.Join(dataDir, "index", "zones.sqlite")
}

// openRuntimeIndex returns nil when indexing is off. The index is a read model only; the
// service never reads it back.
func openRuntimeIndex(dataDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("LS_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(indexPath(dataDir))
	default:
		return nil, fmt.Errorf("unsupported LS_INDEX_BACKEND: %s", backend)
	}
}
