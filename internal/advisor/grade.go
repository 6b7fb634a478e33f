package advisor

import (
	"github.com/vesaa/pagepulse/internal/models"
	"github.com/vesaa/pagepulse/internal/thresholds"
)

// Score starts at 100 and deducts, independently per metric:
//
//	load time  -30 above 2x target, else -15 above target
//	LCP        -20 above 1.5x target, else -10 above target
//	CLS        -20 above 2x target, else -10 above target
//	bundle     -20 above target
//
// Metrics without samples deduct nothing.
func Score(in Inputs, th thresholds.Table) int {
	score := 100

	if st, ok := in.Snapshot.Get(thresholds.MetricPageLoad); ok {
		score -= tiered(st.Current, th.LoadTime, 2, 30, 15)
	}
	if st, ok := in.Snapshot.Get(thresholds.MetricLCP); ok {
		score -= tiered(st.Current, th.LargestContentfulPaint, 1.5, 20, 10)
	}
	if st, ok := in.Snapshot.Get(thresholds.MetricCLS); ok {
		score -= tiered(st.Current, th.CumulativeLayoutShift, 2, 20, 10)
	}
	if in.BundleMeasured && thresholds.Exceeds(float64(in.BundleBytes), th.BundleSize) {
		score -= 20
	}
	return score
}

func tiered(value, target, severeFactor float64, severe, mild int) int {
	switch {
	case thresholds.Exceeds(value, target*severeFactor):
		return severe
	case thresholds.Exceeds(value, target):
		return mild
	default:
		return 0
	}
}

// GradeFor maps a score to its letter.
func GradeFor(score int) models.Grade {
	switch {
	case score >= 90:
		return models.GradeA
	case score >= 80:
		return models.GradeB
	case score >= 70:
		return models.GradeC
	case score >= 60:
		return models.GradeD
	default:
		return models.GradeF
	}
}

// Grade scores the inputs and returns the letter.
func Grade(in Inputs, th thresholds.Table) models.Grade {
	return GradeFor(Score(in, th))
}
