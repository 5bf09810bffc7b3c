package prepare

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vocprep/vocprep/errors"
	"github.com/vocprep/vocprep/labelmap"
	"github.com/vocprep/vocprep/pascalvoc"
	"github.com/vocprep/vocprep/split"
)

func annotationXML(filename, label string) []byte {
	return []byte(fmt.Sprintf(
		"<annotation><filename>%s</filename>"+
			"<size><width>100</width><height>100</height><depth>3</depth></size>"+
			"<object><name>%s</name><bndbox><xmin>10</xmin><ymin>10</ymin><xmax>90</xmax><ymax>90</ymax></bndbox></object>"+
			"</annotation>", filename, label))
}

// writePair creates <name>.jpg plus <name>.xml under dir.
func writePair(t *testing.T, dir, name, label string) {
	img := filepath.Join(dir, name+".jpg")
	require.NoError(t, ioutil.WriteFile(img, []byte("jpegbytes-"+name), 0644))
	xml := filepath.Join(dir, name+".xml")
	require.NoError(t, ioutil.WriteFile(xml, annotationXML(name+".jpg", label), 0644))
}

func tempDirs(t *testing.T) (in, out string, cleanup func()) {
	in, err := ioutil.TempDir("", "prepare-in")
	require.NoError(t, err)
	out, err = ioutil.TempDir("", "prepare-out")
	require.NoError(t, err)
	return in, out, func() {
		os.RemoveAll(in)
		os.RemoveAll(out)
	}
}

var testCastagnoli = crc32.MakeTable(crc32.Castagnoli)

func masked(data []byte) uint32 {
	c := crc32.Checksum(data, testCastagnoli)
	return ((c >> 15) | (c << 17)) + 0xa282ead8
}

// countRecords walks the record framing of a file, verifying both checksums
// of every record.
func countRecords(t *testing.T, path string) int {
	buf, err := ioutil.ReadFile(path)
	require.NoError(t, err)

	var count int
	for len(buf) > 0 {
		require.True(t, len(buf) >= 16, "truncated record header")
		length := binary.LittleEndian.Uint64(buf[:8])
		require.True(t, uint64(len(buf)) >= 16+length, "truncated record body")
		require.Equal(t, masked(buf[:8]), binary.LittleEndian.Uint32(buf[8:12]))
		data := buf[12 : 12+length]
		require.Equal(t, masked(data), binary.LittleEndian.Uint32(buf[12+length:16+length]))
		buf = buf[16+length:]
		count++
	}
	return count
}

func TestRun_Scenario(t *testing.T) {
	in, out, cleanup := tempDirs(t)
	defer cleanup()

	labels := []string{"person", "dog", "cat"}
	for i := 0; i < 10; i++ {
		writePair(t, in, fmt.Sprintf("img%02d", i), labels[i%3])
	}

	report, err := Run(Options{Inputs: []string{in}, OutputDir: out, TestRatio: 0.2, Seed: 42})
	require.NoError(t, err)

	assert.Equal(t, 10, report.Examples)
	assert.Equal(t, 10, report.Boxes)
	assert.Equal(t, 3, report.Labels)
	assert.Equal(t, 8, report.Train)
	assert.Equal(t, 2, report.Test)

	assert.Equal(t, 8, countRecords(t, filepath.Join(out, TrainFilename)))
	assert.Equal(t, 2, countRecords(t, filepath.Join(out, TestFilename)))

	lm, err := ioutil.ReadFile(filepath.Join(out, LabelMapFilename))
	require.NoError(t, err)
	expected := "item {\n  name: \"cat\"\n  id: 1\n}\n" +
		"item {\n  name: \"dog\"\n  id: 2\n}\n" +
		"item {\n  name: \"person\"\n  id: 3\n}\n"
	assert.Equal(t, expected, string(lm))
}

func TestRun_Deterministic(t *testing.T) {
	in, out1, cleanup := tempDirs(t)
	defer cleanup()
	out2, err := ioutil.TempDir("", "prepare-out")
	require.NoError(t, err)
	defer os.RemoveAll(out2)

	labels := []string{"person", "dog", "cat"}
	for i := 0; i < 10; i++ {
		writePair(t, in, fmt.Sprintf("img%02d", i), labels[i%3])
	}

	_, err = Run(Options{Inputs: []string{in}, OutputDir: out1, Seed: 42})
	require.NoError(t, err)
	_, err = Run(Options{Inputs: []string{in}, OutputDir: out2, Seed: 42})
	require.NoError(t, err)

	for _, name := range []string{TrainFilename, TestFilename, LabelMapFilename} {
		a, err := ioutil.ReadFile(filepath.Join(out1, name))
		require.NoError(t, err)
		b, err := ioutil.ReadFile(filepath.Join(out2, name))
		require.NoError(t, err)
		assert.Equal(t, a, b, "%s must be byte-identical across runs", name)
	}
}

func TestRun_ZeroSeedUsesDefault(t *testing.T) {
	in, out1, cleanup := tempDirs(t)
	defer cleanup()
	out2, err := ioutil.TempDir("", "prepare-out")
	require.NoError(t, err)
	defer os.RemoveAll(out2)

	labels := []string{"person", "dog", "cat"}
	for i := 0; i < 10; i++ {
		writePair(t, in, fmt.Sprintf("img%02d", i), labels[i%3])
	}

	_, err = Run(Options{Inputs: []string{in}, OutputDir: out1})
	require.NoError(t, err)
	_, err = Run(Options{Inputs: []string{in}, OutputDir: out2, Seed: DefaultSeed})
	require.NoError(t, err)

	for _, name := range []string{TrainFilename, TestFilename} {
		a, err := ioutil.ReadFile(filepath.Join(out1, name))
		require.NoError(t, err)
		b, err := ioutil.ReadFile(filepath.Join(out2, name))
		require.NoError(t, err)
		assert.Equal(t, a, b, "%s must match the explicit default seed", name)
	}
}

func TestRun_SingleEntry(t *testing.T) {
	in, out, cleanup := tempDirs(t)
	defer cleanup()

	writePair(t, in, "only", "dog")

	report, err := Run(Options{Inputs: []string{in}, OutputDir: out})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Train)
	assert.Equal(t, 0, report.Test)

	// the empty test file still exists
	assert.Equal(t, 1, countRecords(t, filepath.Join(out, TrainFilename)))
	assert.Equal(t, 0, countRecords(t, filepath.Join(out, TestFilename)))
}

func TestRun_MissingAnnotation(t *testing.T) {
	in, out, cleanup := tempDirs(t)
	defer cleanup()

	writePair(t, in, "good", "dog")
	require.NoError(t, ioutil.WriteFile(filepath.Join(in, "orphan.jpg"), []byte("x"), 0644))

	_, err := Run(Options{Inputs: []string{in}, OutputDir: out})
	require.Error(t, err)
	assert.Equal(t, ErrMissingAnnotation, errors.Cause(err))

	// fails before any output file is written
	files, err := ioutil.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRun_AbortsOnParseError(t *testing.T) {
	in, out, cleanup := tempDirs(t)
	defer cleanup()

	writePair(t, in, "good", "dog")
	require.NoError(t, ioutil.WriteFile(filepath.Join(in, "bad.jpg"), []byte("x"), 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(in, "bad.xml"), []byte("<annotation>"), 0644))

	_, err := Run(Options{Inputs: []string{in}, OutputDir: out})
	require.Error(t, err)
	assert.Equal(t, pascalvoc.ErrMalformedAnnotation, errors.Cause(err))

	files, err := ioutil.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRun_EmptyVocabulary(t *testing.T) {
	in, out, cleanup := tempDirs(t)
	defer cleanup()

	// a valid annotation with no objects
	require.NoError(t, ioutil.WriteFile(filepath.Join(in, "empty.jpg"), []byte("x"), 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(in, "empty.xml"), []byte(
		"<annotation><filename>empty.jpg</filename>"+
			"<size><width>10</width><height>10</height></size></annotation>"), 0644))

	_, err := Run(Options{Inputs: []string{in}, OutputDir: out})
	require.Error(t, err)
	assert.Equal(t, labelmap.ErrEmptyVocabulary, errors.Cause(err))
}

func TestRun_NoInput(t *testing.T) {
	in, out, cleanup := tempDirs(t)
	defer cleanup()

	_, err := Run(Options{Inputs: []string{in}, OutputDir: out})
	require.Error(t, err)
	assert.Equal(t, split.ErrInsufficientData, errors.Cause(err))
}

func TestDiscover(t *testing.T) {
	in, _, cleanup := tempDirs(t)
	defer cleanup()

	// nested directories are searched, non-image files are ignored
	nested := filepath.Join(in, "sub")
	require.NoError(t, os.MkdirAll(nested, 0755))
	writePair(t, nested, "b", "dog")
	writePair(t, in, "a", "cat")
	require.NoError(t, ioutil.WriteFile(filepath.Join(in, "notes.txt"), []byte("x"), 0644))

	pairs, err := Discover([]string{in})
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	assert.Equal(t, filepath.Join(in, "a.jpg"), pairs[0].ImagePath)
	assert.Equal(t, filepath.Join(in, "a.xml"), pairs[0].AnnotationPath)
	assert.Equal(t, filepath.Join(nested, "b.jpg"), pairs[1].ImagePath)
}

func TestDiscover_CaseInsensitiveExtensions(t *testing.T) {
	in, _, cleanup := tempDirs(t)
	defer cleanup()

	require.NoError(t, ioutil.WriteFile(filepath.Join(in, "shout.JPG"), []byte("x"), 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(in, "shout.xml"), annotationXML("shout.JPG", "dog"), 0644))

	pairs, err := Discover([]string{in})
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, filepath.Join(in, "shout.JPG"), pairs[0].ImagePath)
}
