package metrics

import (
	"math"
	"sort"
)

// Labels returns the sorted distinct values across all given label slices.
func Labels(ys ...[]float64) []float64 {
	seen := map[float64]struct{}{}
	for _, y := range ys {
		for _, v := range y {
			seen[v] = struct{}{}
		}
	}
	out := make([]float64, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

// Confusion returns the confusion matrix with rows indexed by true label and
// columns by predicted label, both in the order of labels. Values outside
// labels are ignored.
func Confusion(yTrue, yPred, labels []float64) [][]int {
	index := make(map[float64]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}
	out := make([][]int, len(labels))
	for i := range out {
		out[i] = make([]int, len(labels))
	}
	for i := range yTrue {
		r, okR := index[yTrue[i]]
		c, okC := index[yPred[i]]
		if okR && okC {
			out[r][c]++
		}
	}
	return out
}

func Accuracy(yTrue, yPred []float64) float64 {
	hits := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue))
}

type classCounts struct {
	tp, fp, fn int
}

func countsFor(yTrue, yPred []float64, class float64) classCounts {
	var c classCounts
	for i := range yTrue {
		t, p := yTrue[i] == class, yPred[i] == class
		switch {
		case t && p:
			c.tp++
		case !t && p:
			c.fp++
		case t && !p:
			c.fn++
		}
	}
	return c
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func f1Of(c classCounts) float64 {
	return ratio(2*c.tp, 2*c.tp+c.fp+c.fn)
}

func precisionOf(c classCounts) float64 { return ratio(c.tp, c.tp+c.fp) }

func recallOf(c classCounts) float64 { return ratio(c.tp, c.tp+c.fn) }

// averaged applies per to the positive class when classes holds exactly two
// values (the larger is positive) and macro-averages it over classes
// otherwise. The formula depends only on classes, never on which labels a
// particular slice happens to contain.
func averaged(yTrue, yPred, classes []float64, per func(classCounts) float64) float64 {
	switch len(classes) {
	case 0:
		return math.NaN()
	case 2:
		return per(countsFor(yTrue, yPred, classes[1]))
	}
	total := 0.0
	for _, class := range classes {
		total += per(countsFor(yTrue, yPred, class))
	}
	return total / float64(len(classes))
}

// F1 scores the positive class for binary problems and macro-averages for
// multiclass ones. Classes are taken from yTrue and yPred; bind the target's
// classes with Metric.WithClasses to keep scores comparable across slices.
func F1(yTrue, yPred []float64) float64 {
	return F1Classes(yTrue, yPred, Labels(yTrue, yPred))
}

func F1Classes(yTrue, yPred, classes []float64) float64 {
	return averaged(yTrue, yPred, classes, f1Of)
}

func F1Macro(yTrue, yPred []float64) float64 {
	return F1MacroClasses(yTrue, yPred, Labels(yTrue, yPred))
}

func F1MacroClasses(yTrue, yPred, classes []float64) float64 {
	if len(classes) == 0 {
		return math.NaN()
	}
	total := 0.0
	for _, class := range classes {
		total += f1Of(countsFor(yTrue, yPred, class))
	}
	return total / float64(len(classes))
}

func Precision(yTrue, yPred []float64) float64 {
	return PrecisionClasses(yTrue, yPred, Labels(yTrue, yPred))
}

func PrecisionClasses(yTrue, yPred, classes []float64) float64 {
	return averaged(yTrue, yPred, classes, precisionOf)
}

func Recall(yTrue, yPred []float64) float64 {
	return RecallClasses(yTrue, yPred, Labels(yTrue, yPred))
}

func RecallClasses(yTrue, yPred, classes []float64) float64 {
	return averaged(yTrue, yPred, classes, recallOf)
}

// BalancedAccuracy is the mean recall over the classes present in yTrue.
func BalancedAccuracy(yTrue, yPred []float64) float64 {
	labels := Labels(yTrue)
	total := 0.0
	for _, l := range labels {
		total += recallOf(countsFor(yTrue, yPred, l))
	}
	return total / float64(len(labels))
}

// ROCAUC computes the area under the ROC curve using yPred as the score.
// Multiclass problems use the unweighted one-vs-rest average over classes
// present in yTrue, with hard predictions as indicator scores. The result is
// NaN when yTrue holds a single class.
func ROCAUC(yTrue, yPred []float64) float64 {
	return ROCAUCClasses(yTrue, yPred, Labels(yTrue))
}

// ROCAUCClasses is ROCAUC with the binary or one-vs-rest choice made from
// classes. Classes absent from yTrue are skipped in the multiclass average.
func ROCAUCClasses(yTrue, yPred, classes []float64) float64 {
	if len(classes) < 2 {
		return math.NaN()
	}
	if len(classes) == 2 {
		return oneVsRestAUC(yTrue, yPred, classes[1])
	}

	total, n := 0.0, 0
	for _, class := range classes {
		auc := oneVsRestAUC(yTrue, yPred, class)
		if math.IsNaN(auc) {
			continue
		}
		total += auc
		n++
	}
	if n < 2 {
		return math.NaN()
	}
	return total / float64(n)
}

func oneVsRestAUC(yTrue, yPred []float64, positive float64) float64 {
	truth := make([]bool, len(yTrue))
	scores := make([]float64, len(yPred))
	for i := range yTrue {
		truth[i] = yTrue[i] == positive
		if yPred[i] == positive {
			scores[i] = 1
		}
	}
	return binaryAUC(truth, scores)
}

// binaryAUC is the Mann-Whitney statistic with average ranks for ties.
func binaryAUC(truth []bool, scores []float64) float64 {
	n := len(scores)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] < scores[order[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && scores[order[j+1]] == scores[order[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[order[k]] = avg
		}
		i = j + 1
	}

	var nPos, nNeg int
	rankSum := 0.0
	for i, t := range truth {
		if t {
			nPos++
			rankSum += ranks[i]
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return math.NaN()
	}
	return (rankSum - float64(nPos*(nPos+1))/2) / float64(nPos*nNeg)
}
