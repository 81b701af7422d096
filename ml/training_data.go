package ml

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Dataset holds feature rows in Columns order and binary targets.
type Dataset struct {
	Columns  []string
	Features [][]float64
	Labels   []int
}

func (d *Dataset) Len() int {
	return len(d.Labels)
}

// ClassCounts maps each target value to its number of rows.
func (d *Dataset) ClassCounts() map[int]int {
	counts := make(map[int]int)
	for _, label := range d.Labels {
		counts[label]++
	}
	return counts
}

// Column returns every value of one named column.
func (d *Dataset) Column(name string) ([]float64, error) {
	idx := -1
	for i, column := range d.Columns {
		if column == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingFeature, name)
	}
	values := make([]float64, len(d.Features))
	for i, row := range d.Features {
		values[i] = row[idx]
	}
	return values, nil
}

func (d *Dataset) subset(indices []int) *Dataset {
	out := &Dataset{
		Columns:  d.Columns,
		Features: make([][]float64, 0, len(indices)),
		Labels:   make([]int, 0, len(indices)),
	}
	for _, idx := range indices {
		out.Features = append(out.Features, d.Features[idx])
		out.Labels = append(out.Labels, d.Labels[idx])
	}
	return out
}

func decoderFor(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8BOM, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "gbk":
		return simplifiedchinese.GBK, nil
	case "gb18030":
		return simplifiedchinese.GB18030, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

// LoadCSV reads a training file whose header names every feature plus the
// target column. Columns may come in any order; extra columns are dropped.
func LoadCSV(path, sourceEncoding string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCSV(file, sourceEncoding)
}

func ReadCSV(r io.Reader, sourceEncoding string) (*Dataset, error) {
	enc, err := decoderFor(sourceEncoding)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(transform.NewReader(r, enc.NewDecoder()))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	positions := make(map[string]int, len(header))
	for i, name := range header {
		positions[strings.TrimSpace(name)] = i
	}

	names := FeatureNames()
	columnIdx := make([]int, len(names))
	for i, name := range names {
		pos, ok := positions[name]
		if !ok {
			return nil, fmt.Errorf("%w: column %s not in header", ErrMissingFeature, name)
		}
		columnIdx[i] = pos
	}
	targetIdx, ok := positions[TargetColumn]
	if !ok {
		return nil, fmt.Errorf("%w: column %s not in header", ErrMissingFeature, TargetColumn)
	}

	ds := &Dataset{Columns: names}
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		vector := make([]float64, len(names))
		for i, pos := range columnIdx {
			value, err := strconv.ParseFloat(strings.TrimSpace(row[pos]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, names[i], err)
			}
			vector[i] = value
		}
		target, err := strconv.ParseFloat(strings.TrimSpace(row[targetIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d column %s: %w", line, TargetColumn, err)
		}
		if target != 0 && target != 1 {
			return nil, fmt.Errorf("line %d: target must be 0 or 1, got %g", line, target)
		}
		ds.Features = append(ds.Features, vector)
		ds.Labels = append(ds.Labels, int(target))
	}
	if ds.Len() == 0 {
		return nil, errors.New("csv has no data rows")
	}
	return ds, nil
}

// StratifiedSplit shuffles each class with seed and moves testRatio of it to
// the test partition, so both partitions keep the class balance.
func StratifiedSplit(ds *Dataset, testRatio float64, seed int64) (train, test *Dataset, err error) {
	if ds == nil || ds.Len() == 0 {
		return nil, nil, errors.New("dataset is empty")
	}
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}

	byClass := make(map[int][]int)
	classes := make([]int, 0, 2)
	for i, label := range ds.Labels {
		if _, seen := byClass[label]; !seen {
			classes = append(classes, label)
		}
		byClass[label] = append(byClass[label], i)
	}
	sort.Ints(classes)

	rnd := rand.New(rand.NewSource(seed))
	var trainIdx, testIdx []int
	for _, class := range classes {
		indices := byClass[class]
		rnd.Shuffle(len(indices), func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
		nTest := int(float64(len(indices))*testRatio + 0.5)
		if nTest == 0 && len(indices) > 1 {
			nTest = 1
		}
		if nTest >= len(indices) {
			nTest = len(indices) - 1
		}
		testIdx = append(testIdx, indices[:nTest]...)
		trainIdx = append(trainIdx, indices[nTest:]...)
	}
	if len(testIdx) == 0 {
		return nil, nil, errors.New("dataset too small to split")
	}
	rnd.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	rnd.Shuffle(len(testIdx), func(i, j int) { testIdx[i], testIdx[j] = testIdx[j], testIdx[i] })
	return ds.subset(trainIdx), ds.subset(testIdx), nil
}
