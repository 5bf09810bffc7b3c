package main

import (
	"log"
	"runtime"
	"strconv"
	"strings"

	arg "github.com/alexflint/go-arg"
	humanize "github.com/dustin/go-humanize"

	"github.com/vocprep/vocprep/errors"
	"github.com/vocprep/vocprep/labelmap"
	"github.com/vocprep/vocprep/prepare"
)

func main() {
	args := struct {
		Input      []string `arg:"-i,required" help:"input directories, searched recursively for annotated images"`
		Output     string   `arg:"-o,required" help:"output directory for the record files and the label map"`
		Retain     string   `help:"fraction of the data retained for the test set, e.g. 20%, 1/5 or 0.2"`
		Seed       int64    `help:"seed for the deterministic train/test shuffle"`
		LabelOrder string   `arg:"--label-order" help:"label id numbering policy: sorted or first-seen"`
		StartID    int64    `arg:"--start-id" help:"id assigned to the first label"`
		Workers    int      `help:"number of annotation parse workers"`
	}{
		Retain:     "20%",
		Seed:       prepare.DefaultSeed,
		LabelOrder: "sorted",
		StartID:    1,
		Workers:    runtime.NumCPU(),
	}
	arg.MustParse(&args)

	ratio, err := parseRetain(args.Retain)
	if err != nil {
		log.Fatal(err)
	}

	var order labelmap.Order
	switch args.LabelOrder {
	case "sorted":
		order = labelmap.OrderSorted
	case "first-seen":
		order = labelmap.OrderFirstSeen
	default:
		log.Fatalf("unknown label order %q, expected sorted or first-seen", args.LabelOrder)
	}

	report, err := prepare.Run(prepare.Options{
		Inputs:       args.Input,
		OutputDir:    args.Output,
		TestRatio:    ratio,
		Seed:         args.Seed,
		LabelOrder:   order,
		LabelStartID: args.StartID,
		Workers:      args.Workers,
	})
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("done: %d examples with %d boxes over %d labels, %d train / %d test, %s written",
		report.Examples, report.Boxes, report.Labels, report.Train, report.Test,
		humanize.Bytes(uint64(report.TrainBytes+report.TestBytes)))
}

// parseRetain accepts a percentage ("20%"), a fraction ("1/5") or a plain
// ratio ("0.2"). A bare number >= 1 is read as a percentage.
func parseRetain(s string) (float64, error) {
	s = strings.TrimSpace(s)

	switch {
	case strings.HasSuffix(s, "%"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0, errors.Errorf("invalid retain percentage %q", s)
		}
		return v / 100, nil

	case strings.Contains(s, "/"):
		parts := strings.SplitN(s, "/", 2)
		num, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0, errors.Errorf("invalid retain fraction %q", s)
		}
		den, err := strconv.ParseFloat(parts[1], 64)
		if err != nil || den == 0 {
			return 0, errors.Errorf("invalid retain fraction %q", s)
		}
		return num / den, nil

	default:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errors.Errorf("invalid retain value %q", s)
		}
		if v >= 1 {
			v /= 100
		}
		return v, nil
	}
}
