// Package artifact reads and writes the files a detector persists between
// train and execute: plain numeric vectors, delimited score matrices, gob
// model blobs, and relocatable tar.gz archives with atomic replacement.
package artifact

import (
	"os"

	"github.com/hed1ad/tsguard/pkg/errors"
)

// open wraps os.Open so a missing artifact is distinguishable from other
// read failures.
func open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.MissingArtifactf("no artifact at %s, run train first", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening artifact %s", path)
	}
	return f, nil
}
