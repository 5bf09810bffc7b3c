package labelmap

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/vocprep/vocprep/errors"
)

// WriteTo emits the vocabulary in the label-map text format consumed by the
// TensorFlow object detection tooling, one item per label, sorted by id:
//
//	item {
//	  name: "dog"
//	  id: 1
//	}
func (v *Vocabulary) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for i, label := range v.labels {
		n, err := fmt.Fprintf(w, "item {\n  name: %s\n  id: %d\n}\n",
			strconv.Quote(label), v.startID+int64(i))
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteToFile serializes the vocabulary to the provided path. The file is
// staged under a .tmp suffix and renamed into place so an interrupted run
// never leaves a partial label map under the final name.
func (v *Vocabulary) WriteToFile(path string) error {
	tmp := path + ".tmp"
	if err := v.writeFile(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, strings.TrimSuffix(tmp, ".tmp")); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "unable to rename %s -> %s", tmp, path)
	}
	return nil
}

func (v *Vocabulary) writeFile(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "error creating %s", path)
	}
	defer errors.Defer(&err, f.Close)

	_, err = v.WriteTo(f)
	return errors.WrapfOrNil(err, "error writing label map %s", path)
}
