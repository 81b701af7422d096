package ml

import (
	"encoding/csv"
	"io"
	"math"
	"math/rand"
	"strconv"
)

// SyntheticDataset draws n plausible patient rows whose target follows a
// noisy logistic risk score, for demos and tests when the real dataset is
// unavailable.
func SyntheticDataset(n int, seed int64) *Dataset {
	rnd := rand.New(rand.NewSource(seed))
	ds := &Dataset{
		Columns:  FeatureNames(),
		Features: make([][]float64, 0, n),
		Labels:   make([]int, 0, n),
	}
	for i := 0; i < n; i++ {
		age := clamp(math.Round(54+9*rnd.NormFloat64()), 18, 100)
		sex := float64(boolInt(rnd.Float64() < 0.75))
		chestPain := float64(rnd.Intn(4))
		bp := clamp(math.Round(132+18*rnd.NormFloat64()), 90, 200)
		chol := clamp(math.Round(220+55*rnd.NormFloat64()), 100, 600)
		fbs := float64(boolInt(rnd.Float64() < 0.2))
		ecg := float64(rnd.Intn(3))
		maxHR := clamp(math.Round(200-age*0.7+15*rnd.NormFloat64()), 60, 202)
		angina := float64(boolInt(rnd.Float64() < 0.35))
		oldpeak := clamp(math.Round(math.Abs(1.0*rnd.NormFloat64())*10)/10, 0, 6.2)
		slope := float64(rnd.Intn(3))

		score := -6.0 +
			0.05*age +
			0.8*sex +
			0.6*chestPain +
			0.01*(bp-120) +
			0.004*(chol-200) +
			0.5*fbs +
			0.3*ecg -
			0.02*(maxHR-150) +
			1.2*angina +
			0.7*oldpeak +
			0.6*slope
		prob := 1 / (1 + math.Exp(-score))
		label := boolInt(rnd.Float64() < prob)

		ds.Features = append(ds.Features, []float64{
			age, sex, chestPain, bp, chol, fbs, ecg, maxHR, angina, oldpeak, slope,
		})
		ds.Labels = append(ds.Labels, label)
	}
	return ds
}

// WriteCSV writes ds with a header of its columns plus the target column.
func WriteCSV(w io.Writer, ds *Dataset) error {
	writer := csv.NewWriter(w)
	header := append(append([]string(nil), ds.Columns...), TargetColumn)
	if err := writer.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for i, features := range ds.Features {
		for j, value := range features {
			row[j] = strconv.FormatFloat(value, 'f', -1, 64)
		}
		row[len(row)-1] = strconv.Itoa(ds.Labels[i])
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func clamp(value, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, value))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
