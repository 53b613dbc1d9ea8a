package player

import (
	"github.com/cockroachdb/errors"

	"github.com/yusa21/tunedeck/internal/app/loader"
	"github.com/yusa21/tunedeck/internal/infra/catalog"
)

// CatalogClassifier maps catalog resolve errors onto loader failure
// classes: missing tracks fail permanently, outages are retried
// without ever blacklisting the track.
func CatalogClassifier() loader.Classifier {
	return func(err error) loader.FailureClass {
		switch {
		case err == nil:
			return loader.ClassNone
		case errors.Is(err, catalog.ErrNotFound):
			return loader.ClassTerminal
		case errors.Is(err, catalog.ErrUnavailable):
			return loader.ClassUpstream
		default:
			return loader.ClassTransient
		}
	}
}
