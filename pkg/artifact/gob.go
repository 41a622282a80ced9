package artifact

import (
	"encoding/gob"
	"os"

	"github.com/hed1ad/tsguard/pkg/errors"
)

// EncodeGob writes v to path as a gob stream.
func EncodeGob(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		return errors.Wrapf(err, "encoding %s", path)
	}
	return errors.WrapfOrNil(f.Close(), "closing %s", path)
}

// DecodeGob reads a gob stream written by EncodeGob into v.
func DecodeGob(path string, v interface{}) error {
	f, err := open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return errors.WrapfOrNil(gob.NewDecoder(f).Decode(v), "decoding %s", path)
}
