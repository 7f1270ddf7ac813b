package classify

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/lightcurve"
	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/periodsearch"
)

// Label is the categorical verdict on a detected period.
type Label string

const (
	LabelSignificant    Label = "significant"
	LabelMarginal       Label = "marginal"
	LabelNotSignificant Label = "not_significant"
)

// Thresholds holds every constant the rule-based classification depends on.
// The decision is deterministic; nothing here is learned or hidden.
type Thresholds struct {
	// RelTolerance is the maximum fractional period difference under which
	// two bands count as agreeing.
	RelTolerance float64
	// SignificantStrength is the strength floor for a significant verdict
	// backed by cross-band agreement.
	SignificantStrength float64
	// MarginalStrength is the strength floor for a marginal verdict.
	MarginalStrength float64
	// SingleBandStrength is the higher strength bar a single-band detection
	// must clear to be called significant without cross-band support.
	SingleBandStrength float64
	// IoUMin is the minimum overlap of the two bands' period error circles
	// for an agreeing pair to count as significant.
	IoUMin float64
}

// DefaultThresholds returns the default classification constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RelTolerance:        0.1,
		SignificantStrength: 0.9,
		MarginalStrength:    0.5,
		SingleBandStrength:  0.99,
		IoUMin:              0.5,
	}
}

// Validate rejects threshold sets that cannot order the three labels.
func (t Thresholds) Validate() error {
	if t.RelTolerance <= 0 {
		return fmt.Errorf("relative tolerance must be positive, got %g", t.RelTolerance)
	}
	if t.MarginalStrength > t.SignificantStrength {
		return fmt.Errorf("marginal strength %g exceeds significant strength %g", t.MarginalStrength, t.SignificantStrength)
	}
	if t.SignificantStrength > t.SingleBandStrength {
		return fmt.Errorf("significant strength %g exceeds single-band strength %g", t.SignificantStrength, t.SingleBandStrength)
	}
	if t.IoUMin < 0 || t.IoUMin > 1 {
		return fmt.Errorf("IoU minimum %g outside [0, 1]", t.IoUMin)
	}
	return nil
}

// ObjectPeriods collects the per-band candidate periods detected for one
// object.
type ObjectPeriods struct {
	ObjectID string
	Bands    map[lightcurve.Band]periodsearch.CandidatePeriod
}

// PairRow is one band-pair comparison for an object: the combined-results
// table has one row per pair.
type PairRow struct {
	ObjectID string
	BandA    lightcurve.Band
	BandB    lightcurve.Band
	PeriodA  float64
	PeriodB  float64
	Strength float64 // weaker of the two band strengths
	RelDiff  float64
	IoU      float64
	Label    Label
}

// ClassificationResult is the final per-object pipeline output.
type ClassificationResult struct {
	ObjectID       string
	PerBand        map[lightcurve.Band]periodsearch.CandidatePeriod
	CombinedPeriod float64
	HasCombined    bool
	Label          Label
}

// LabelStats summarizes the objects carrying one confidence label.
type LabelStats struct {
	Label        Label
	Count        int
	MeanPeriod   float64
	MeanStrength float64
}

// Classifier applies the rule-based cross-band period classification.
type Classifier struct {
	t Thresholds
}

// NewClassifier creates a classifier with the given thresholds.
func NewClassifier(t Thresholds) (*Classifier, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid classification thresholds: %w", err)
	}
	return &Classifier{t: t}, nil
}

// Thresholds returns the configured constants.
func (c *Classifier) Thresholds() Thresholds { return c.t }

// Pairs builds the band-pair comparison rows for one object, bands in sorted
// order so the output is deterministic.
func (c *Classifier) Pairs(obj ObjectPeriods) []PairRow {
	bands := make([]lightcurve.Band, 0, len(obj.Bands))
	for b := range obj.Bands {
		bands = append(bands, b)
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i] < bands[j] })

	var rows []PairRow
	for i := 0; i < len(bands); i++ {
		for j := i + 1; j < len(bands); j++ {
			a := obj.Bands[bands[i]]
			b := obj.Bands[bands[j]]

			ref := math.Max(math.Max(a.Period, b.Period), 1e-7)
			dist := math.Abs(a.Period - b.Period)
			row := PairRow{
				ObjectID: obj.ObjectID,
				BandA:    bands[i],
				BandB:    bands[j],
				PeriodA:  a.Period,
				PeriodB:  b.Period,
				Strength: math.Min(a.Strength, b.Strength),
				RelDiff:  dist / ref,
				IoU:      ErrorCircleIoU((a.LowerErr+a.UpperErr)/2, (b.LowerErr+b.UpperErr)/2, dist),
			}
			row.Label = c.ClassifyPeriod(row)
			rows = append(rows, row)
		}
	}
	return rows
}

// ClassifyPeriod maps one combined row to a confidence label.
func (c *Classifier) ClassifyPeriod(row PairRow) Label {
	agrees := row.RelDiff <= c.t.RelTolerance
	switch {
	case agrees && row.Strength >= c.t.SignificantStrength && row.IoU >= c.t.IoUMin:
		return LabelSignificant
	case row.Strength >= c.t.MarginalStrength && row.RelDiff <= 2*c.t.RelTolerance:
		return LabelMarginal
	default:
		return LabelNotSignificant
	}
}

// Classify merges one object's per-band candidates into a single verdict.
// With a single band available the verdict can only reach significant
// through the higher single-band strength bar.
func (c *Classifier) Classify(obj ObjectPeriods) ClassificationResult {
	res := ClassificationResult{
		ObjectID: obj.ObjectID,
		PerBand:  obj.Bands,
		Label:    LabelNotSignificant,
	}

	switch len(obj.Bands) {
	case 0:
		return res
	case 1:
		var cand periodsearch.CandidatePeriod
		for _, v := range obj.Bands {
			cand = v
		}
		switch {
		case cand.Strength >= c.t.SingleBandStrength:
			res.Label = LabelSignificant
		case cand.Strength >= c.t.MarginalStrength:
			res.Label = LabelMarginal
		}
		if res.Label != LabelNotSignificant {
			res.CombinedPeriod = cand.Period
			res.HasCombined = true
		}
		return res
	}

	rows := c.Pairs(obj)
	res.Label = aggregateLabels(rows)
	if res.Label == LabelNotSignificant {
		return res
	}

	// Combined period: strength-weighted mean over the best-labeled pair.
	best := bestRow(rows)
	a := obj.Bands[best.BandA]
	b := obj.Bands[best.BandB]
	wSum := a.Strength + b.Strength
	if wSum <= 0 {
		res.CombinedPeriod = (a.Period + b.Period) / 2
	} else {
		res.CombinedPeriod = (a.Period*a.Strength + b.Period*b.Strength) / wSum
	}
	res.HasCombined = true
	return res
}

// ClassifyPeriods classifies a batch of objects, preserving input order.
// Re-running on identical inputs yields identical results.
func (c *Classifier) ClassifyPeriods(objs []ObjectPeriods) []ClassificationResult {
	out := make([]ClassificationResult, len(objs))
	for i, obj := range objs {
		out[i] = c.Classify(obj)
	}
	return out
}

// AggregateStatistics summarizes the significant and marginal objects of a
// batch: counts and mean combined period and strength per label.
func AggregateStatistics(results []ClassificationResult) []LabelStats {
	type bucket struct {
		periods   []float64
		strengths []float64
	}
	buckets := map[Label]*bucket{
		LabelSignificant: {},
		LabelMarginal:    {},
	}

	for _, res := range results {
		b, ok := buckets[res.Label]
		if !ok || !res.HasCombined {
			continue
		}
		b.periods = append(b.periods, res.CombinedPeriod)
		var strongest float64
		for _, cand := range res.PerBand {
			strongest = math.Max(strongest, cand.Strength)
		}
		b.strengths = append(b.strengths, strongest)
	}

	var out []LabelStats
	for _, label := range []Label{LabelSignificant, LabelMarginal} {
		b := buckets[label]
		if len(b.periods) == 0 {
			continue
		}
		out = append(out, LabelStats{
			Label:        label,
			Count:        len(b.periods),
			MeanPeriod:   stat.Mean(b.periods, nil),
			MeanStrength: stat.Mean(b.strengths, nil),
		})
	}
	return out
}

// aggregateLabels folds per-pair labels into one object-level label.
// Consistent pairs keep their shared label; mixed labels with at least one
// significant pair downgrade to marginal, otherwise to not significant.
func aggregateLabels(rows []PairRow) Label {
	first := rows[0].Label
	consistent := true
	anySignificant := first == LabelSignificant
	for _, row := range rows[1:] {
		if row.Label != first {
			consistent = false
		}
		if row.Label == LabelSignificant {
			anySignificant = true
		}
	}
	if consistent {
		return first
	}
	if anySignificant {
		return LabelMarginal
	}
	return LabelNotSignificant
}

// bestRow picks the strongest row carrying the best label present.
func bestRow(rows []PairRow) PairRow {
	rank := map[Label]int{LabelSignificant: 2, LabelMarginal: 1, LabelNotSignificant: 0}
	best := rows[0]
	for _, row := range rows[1:] {
		if rank[row.Label] > rank[best.Label] ||
			(rank[row.Label] == rank[best.Label] && row.Strength > best.Strength) {
			best = row
		}
	}
	return best
}

// ErrorCircleIoU computes the intersection-over-union of two period error
// circles separated by the given distance between their centers.
func ErrorCircleIoU(radius1, radius2, distance float64) float64 {
	if radius1 <= 0 || radius2 <= 0 {
		return 0
	}
	if distance > radius1+radius2 {
		return 0
	}
	if distance <= math.Abs(radius1-radius2) {
		return 1
	}

	area1 := math.Pi * radius1 * radius1
	area2 := math.Pi * radius2 * radius2

	part1 := math.Acos((radius1*radius1 + distance*distance - radius2*radius2) / (2 * radius1 * distance))
	part2 := math.Acos((radius2*radius2 + distance*distance - radius1*radius1) / (2 * radius2 * distance))
	intersection := part1*radius1*radius1 + part2*radius2*radius2 -
		0.5*(radius1*radius1*math.Sin(2*part1)+radius2*radius2*math.Sin(2*part2))

	union := area1 + area2 - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}
