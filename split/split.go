package split

import (
	"math"
	"math/rand"

	"github.com/vocprep/vocprep/errors"
)

// ErrInsufficientData is returned when there are no entries to split.
var ErrInsufficientData = errors.New("dataset is empty")

// Result holds the index partition of a dataset: every index in [0,n)
// appears exactly once, in either Train or Test.
type Result struct {
	Train []int
	Test  []int
}

// Split partitions n entries into a training and a testing subset. The
// permutation is driven solely by seed, so the same seed and the same input
// order always yield the identical split. ratio is the fraction assigned to
// the test subset: floor(n*ratio) permuted indices go to test, the rest to
// train. Small n therefore rounds in favor of train; a test subset of size
// zero is valid (the caller still writes an empty test file), an empty
// input is not.
func Split(n int, ratio float64, seed int64) (Result, error) {
	if n == 0 {
		return Result{}, errors.WithStack(ErrInsufficientData)
	}
	if ratio <= 0 || ratio >= 1 {
		return Result{}, errors.Errorf("split ratio must be in (0,1), got %v", ratio)
	}

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	source := rand.New(rand.NewSource(seed))
	source.Shuffle(n, func(i, j int) {
		perm[i], perm[j] = perm[j], perm[i]
	})

	numTest := int(math.Floor(float64(n) * ratio))
	numTrain := n - numTest
	return Result{
		Train: perm[:numTrain],
		Test:  perm[numTrain:],
	}, nil
}
