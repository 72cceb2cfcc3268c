package catalog

import (
	_ "embed"
	"sync"
)

//go:embed default.cue
var defaultCUE []byte

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the embedded catalog. The embedded source is validated on
// first use; a broken embed is a build defect, so the error is returned
// rather than panicking to keep callers testable.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = LoadBytes(defaultCUE)
	})
	return defaultCatalog, defaultErr
}
