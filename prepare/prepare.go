package prepare

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/vocprep/vocprep/errors"
	"github.com/vocprep/vocprep/labelmap"
	"github.com/vocprep/vocprep/pascalvoc"
	"github.com/vocprep/vocprep/split"
	"github.com/vocprep/vocprep/tfrecord"
	"github.com/vocprep/vocprep/workerpool"
)

// ErrMissingAnnotation marks an image file without a sibling .xml annotation.
var ErrMissingAnnotation = errors.New("image has no matching annotation file")

// Output file names, fixed so downstream training configs can rely on them.
const (
	TrainFilename    = "train.tfrecord"
	TestFilename     = "test.tfrecord"
	LabelMapFilename = "label_map.pbtxt"
)

// Options configure one preparation run.
type Options struct {
	// Inputs are searched recursively for annotated images.
	Inputs []string
	// OutputDir receives train.tfrecord, test.tfrecord and label_map.pbtxt.
	OutputDir string
	// TestRatio is the fraction of entries assigned to the test set.
	// Defaults to 0.2.
	TestRatio float64
	// Seed drives the split permutation. The zero value selects DefaultSeed
	// so repeated runs over the same input produce identical splits; callers
	// needing the literal seed 0 should use split.Split directly.
	Seed int64
	// LabelOrder selects the id numbering policy, lexicographic by default.
	LabelOrder labelmap.Order
	// LabelStartID is the first label id, 1 by default.
	LabelStartID int64
	// Workers bounds the parse worker pool. Defaults to NumCPU.
	Workers int
}

// DefaultSeed keeps splits reproducible across runs unless overridden.
const DefaultSeed = 42

func (o Options) withDefaults() Options {
	if o.TestRatio == 0 {
		o.TestRatio = 0.2
	}
	if o.Seed == 0 {
		o.Seed = DefaultSeed
	}
	if o.Workers == 0 {
		o.Workers = runtime.NumCPU()
	}
	return o
}

// Pair is one discovered (image, annotation) file pair.
type Pair struct {
	ImagePath      string
	AnnotationPath string
}

// DatasetEntry is one image with its parsed annotation, consumed exactly
// once by either the training or the testing subset.
type DatasetEntry struct {
	Pair
	Annotation pascalvoc.Annotation
}

// Report summarizes a completed run.
type Report struct {
	Examples   int
	Boxes      int
	Labels     int
	Train      int
	Test       int
	TrainBytes int64
	TestBytes  int64
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Discover recursively walks the input directories and pairs every image
// file with its sibling <name>.xml annotation. An image without one fails
// the whole run with ErrMissingAnnotation. The result is sorted by image
// path so the input order does not depend on file system enumeration.
func Discover(inputs []string) ([]Pair, error) {
	var pairs []Pair
	for _, dir := range inputs {
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return errors.Wrapf(err, "error walking %s", dir)
			}
			if info.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if !imageExts[ext] {
				return nil
			}
			xml := strings.TrimSuffix(path, filepath.Ext(path)) + ".xml"
			if _, err := os.Stat(xml); err != nil {
				return errors.Wrapf(ErrMissingAnnotation, "%s", path)
			}
			pairs = append(pairs, Pair{ImagePath: path, AnnotationPath: xml})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].ImagePath < pairs[j].ImagePath
	})
	return pairs, nil
}

// Run converts the discovered dataset into training artifacts: a global
// label map plus train and test record files. Phase one parses every
// annotation and accumulates the vocabulary; only once the vocabulary is
// complete and frozen does phase two split the dataset and encode the two
// subsets in parallel.
func Run(opts Options) (Report, error) {
	opts = opts.withDefaults()
	var report Report

	pairs, err := Discover(opts.Inputs)
	if err != nil {
		return report, err
	}
	if len(pairs) == 0 {
		return report, errors.WithStack(split.ErrInsufficientData)
	}
	log.Printf("found %d annotated images", len(pairs))

	entries, vocab, err := parseAll(pairs, opts)
	if err != nil {
		return report, err
	}

	report.Examples = len(entries)
	report.Labels = vocab.Len()
	for _, e := range entries {
		report.Boxes += len(e.Annotation.Boxes)
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return report, errors.Wrapf(err, "error creating output directory %s", opts.OutputDir)
	}

	if err := vocab.WriteToFile(filepath.Join(opts.OutputDir, LabelMapFilename)); err != nil {
		return report, err
	}
	log.Printf("wrote %s with %d labels", LabelMapFilename, vocab.Len())

	res, err := split.Split(len(entries), opts.TestRatio, opts.Seed)
	if err != nil {
		return report, err
	}
	report.Train = len(res.Train)
	report.Test = len(res.Test)

	// train and test lanes share nothing but the read-only vocabulary, so
	// each writes its own file on its own worker
	var trainBytes, testBytes int64
	pool := workerpool.New(2)
	pool.Add([]workerpool.Job{
		func() (err error) {
			trainBytes, err = writeRecords(filepath.Join(opts.OutputDir, TrainFilename), entries, res.Train, vocab)
			return err
		},
		func() (err error) {
			testBytes, err = writeRecords(filepath.Join(opts.OutputDir, TestFilename), entries, res.Test, vocab)
			return err
		},
	})
	defer pool.Stop()
	if err := pool.Wait(); err != nil {
		return report, err
	}
	report.TrainBytes = trainBytes
	report.TestBytes = testBytes

	log.Printf("wrote %s with %d examples, %s with %d examples", TrainFilename, report.Train, TestFilename, report.Test)
	return report, nil
}

// parseAll parses every annotation on a worker pool and accumulates the
// global label vocabulary. Results keep the order of pairs. Any parse error
// aborts the run: a dataset with silently dropped entries would corrupt the
// label ids and the split ratio.
func parseAll(pairs []Pair, opts Options) ([]DatasetEntry, *labelmap.Vocabulary, error) {
	entries := make([]DatasetEntry, len(pairs))
	builder := labelmap.NewBuilder(labelmap.Options{
		Order:   opts.LabelOrder,
		StartID: opts.LabelStartID,
	})

	jobs := make([]workerpool.Job, 0, len(pairs))
	for i, pair := range pairs {
		i, pair := i, pair
		jobs = append(jobs, func() error {
			ann, err := pascalvoc.ParseFile(pair.AnnotationPath)
			if err != nil {
				return err
			}
			for _, box := range ann.Boxes {
				builder.Add(box.Label)
			}
			entries[i] = DatasetEntry{Pair: pair, Annotation: ann}
			return nil
		})
	}

	pool := workerpool.New(opts.Workers)
	defer pool.Stop()
	pool.Add(jobs)
	if err := pool.Wait(); err != nil {
		return nil, nil, err
	}

	vocab, err := builder.Vocabulary()
	if err != nil {
		return nil, nil, err
	}
	return entries, vocab, nil
}

// writeRecords encodes one subset into a record file. The writer stages to
// a temp file, so a failed lane leaves no output under the final name.
func writeRecords(path string, entries []DatasetEntry, idxs []int, vocab *labelmap.Vocabulary) (int64, error) {
	w, err := tfrecord.NewWriter(path)
	if err != nil {
		return 0, err
	}

	for _, i := range idxs {
		e := entries[i]
		example, err := tfrecord.EncodeExample(e.ImagePath, e.Annotation, vocab)
		if err != nil {
			w.Abort()
			return 0, err
		}
		if err := w.WriteExample(example); err != nil {
			w.Abort()
			return 0, err
		}
	}

	if err := w.Close(); err != nil {
		return 0, err
	}
	return w.BytesWritten(), nil
}
