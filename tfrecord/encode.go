package tfrecord

import (
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/vocprep/vocprep/errors"
	"github.com/vocprep/vocprep/labelmap"
	"github.com/vocprep/vocprep/pascalvoc"
)

// ErrImageRead marks image files that could not be read.
var ErrImageRead = errors.New("unable to read image")

// EncodeExample reads the raw image bytes and maps them together with the
// annotation into the object-detection feature schema. The vocabulary must
// contain every label referenced by the annotation.
func EncodeExample(imagePath string, ann pascalvoc.Annotation, vocab *labelmap.Vocabulary) (*Example, error) {
	img, err := ioutil.ReadFile(imagePath)
	if err != nil {
		return nil, errors.Wrapf(ErrImageRead, "%s: %v", imagePath, err)
	}

	filename := ann.ImageFilename
	if filename == "" {
		filename = filepath.Base(imagePath)
	}
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(imagePath), "."))

	xmins := make([]float32, 0, len(ann.Boxes))
	xmaxs := make([]float32, 0, len(ann.Boxes))
	ymins := make([]float32, 0, len(ann.Boxes))
	ymaxs := make([]float32, 0, len(ann.Boxes))
	texts := make([]string, 0, len(ann.Boxes))
	ids := make([]int64, 0, len(ann.Boxes))

	for _, box := range ann.Boxes {
		id, err := vocab.ID(box.Label)
		if err != nil {
			return nil, errors.WrapfOrNil(err, "%s", imagePath)
		}
		xmins = append(xmins, float32(box.XMin))
		xmaxs = append(xmaxs, float32(box.XMax))
		ymins = append(ymins, float32(box.YMin))
		ymaxs = append(ymaxs, float32(box.YMax))
		texts = append(texts, box.Label)
		ids = append(ids, id)
	}

	e := NewExample()
	e.SetInt64s("image/height", int64(ann.Height))
	e.SetInt64s("image/width", int64(ann.Width))
	e.SetText("image/filename", filename)
	e.SetText("image/source_id", filename)
	e.SetBytes("image/encoded", img)
	e.SetText("image/format", format)
	e.SetFloats("image/object/bbox/xmin", xmins...)
	e.SetFloats("image/object/bbox/xmax", xmaxs...)
	e.SetFloats("image/object/bbox/ymin", ymins...)
	e.SetFloats("image/object/bbox/ymax", ymaxs...)
	e.SetText("image/object/class/text", texts...)
	e.SetInt64s("image/object/class/label", ids...)
	return e, nil
}
