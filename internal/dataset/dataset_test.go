package dataset

import (
	"errors"
	"math"
	"strings"
	"testing"

	"automl/internal/estimator"
	"automl/internal/model"
)

const housing = `rooms,area,garage,city,price,sold
3,70.5,true,north,120.5,yes
2,50.0,false,south,90.25,no
4,95.0,true,north,180.0,yes

5,120.0,true,east,240.75,yes
1,30.0,false,south,60.0,no
3,80.0,false,east,130.5,no
`

func readHousing(t *testing.T) *Frame {
	t.Helper()
	f, err := ReadCSV(strings.NewReader(housing))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return f
}

func TestReadCSVSkipsBlankLines(t *testing.T) {
	f := readHousing(t)
	if f.Len() != 6 {
		t.Fatalf("expected 6 rows, got %d", f.Len())
	}
	if got := strings.Join(f.Columns(), ","); got != "rooms,area,garage,city,price,sold" {
		t.Fatalf("unexpected columns: %s", got)
	}
}

func TestReadCSVRejectsRaggedRows(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("a,b\n1,2\n3\n")); err == nil {
		t.Fatal("expected ragged row error")
	}
	if _, err := ReadCSV(strings.NewReader("")); err == nil {
		t.Fatal("expected empty csv error")
	}
}

func TestNumericColumnsDropText(t *testing.T) {
	f := readHousing(t)
	got := strings.Join(f.NumericColumns(), ",")
	if got != "rooms,area,garage,price" {
		t.Fatalf("unexpected numeric columns: %s", got)
	}
}

func TestInferTask(t *testing.T) {
	cases := []struct {
		name   string
		values []string
		want   estimator.Task
	}{
		{name: "bool", values: []string{"true", "false", "true"}, want: estimator.Classification},
		{name: "text", values: []string{"yes", "no"}, want: estimator.Classification},
		{name: "float", values: []string{"1", "2.5", "3"}, want: estimator.Regression},
		{name: "few integers", values: []string{"0", "1", "2", "1"}, want: estimator.Classification},
	}
	many := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		many = append(many, string(rune('0'+i%10))+string(rune('0'+i/10)))
	}
	cases = append(cases, struct {
		name   string
		values []string
		want   estimator.Task
	}{name: "many integers", values: many, want: estimator.Regression})

	for _, tc := range cases {
		if got := InferTask(tc.values, DefaultUniqueLimit); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestBuildRegressionTarget(t *testing.T) {
	f := readHousing(t)
	target, err := BuildTarget(f, "price", Options{Exclude: []string{"sold"}})
	if err != nil {
		t.Fatalf("build target: %v", err)
	}
	if target.Task != estimator.Regression {
		t.Fatalf("expected regression, got %s", target.Task)
	}
	if got := strings.Join(target.Features, ","); got != "rooms,area,garage" {
		t.Fatalf("unexpected features: %s", got)
	}
	if target.Primary() != "r2" {
		t.Fatalf("expected r2 primary, got %s", target.Primary())
	}
	if len(target.XTrain)+len(target.XTest) != 6 || len(target.XTest) == 0 {
		t.Fatalf("unexpected split train=%d test=%d", len(target.XTrain), len(target.XTest))
	}
	for _, row := range append(append([][]float64{}, target.XTrain...), target.XTest...) {
		for _, v := range row {
			if v < 0 || v > 1 {
				t.Fatalf("feature value %f outside [0,1]", v)
			}
		}
	}
	if err := target.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestBuildClassificationTargetEncodesTextLabels(t *testing.T) {
	f := readHousing(t)
	target, err := BuildTarget(f, "sold", Options{Exclude: []string{"price"}, Metrics: []string{"accuracy"}})
	if err != nil {
		t.Fatalf("build target: %v", err)
	}
	if target.Task != estimator.Classification {
		t.Fatalf("expected classification, got %s", target.Task)
	}
	if got := strings.Join(target.ClassNames, ","); got != "no,yes" {
		t.Fatalf("unexpected class names: %s", got)
	}
	if target.Label(1) != "yes" || target.Label(0) != "no" {
		t.Fatalf("unexpected label decoding: %s %s", target.Label(1), target.Label(0))
	}
	for _, y := range append(append([]float64{}, target.YTrain...), target.YTest...) {
		if y != 0 && y != 1 {
			t.Fatalf("unexpected encoded label %f", y)
		}
	}
}

func TestBuildTargetErrors(t *testing.T) {
	f := readHousing(t)
	var cfgErr *model.ConfigurationError
	if _, err := BuildTarget(f, "missing", Options{}); !errors.As(err, &cfgErr) {
		t.Fatalf("expected configuration error for missing column, got %v", err)
	}
	if _, err := BuildTarget(f, "price", Options{Metrics: []string{"accuracy"}}); !errors.As(err, &cfgErr) {
		t.Fatalf("expected configuration error for mismatched metric, got %v", err)
	}
	only, err := NewFrame([]string{"y", "label"}, [][]string{{"1.5", "a"}, {"2.5", "b"}})
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	if _, err := BuildTarget(only, "y", Options{}); !errors.As(err, &cfgErr) {
		t.Fatalf("expected configuration error without features, got %v", err)
	}
}

func TestSplitIsSeededAndKeepsBothSides(t *testing.T) {
	trainA, testA := Split(10, 0.8, DefaultSplitSeed)
	trainB, testB := Split(10, 0.8, DefaultSplitSeed)
	if len(trainA) != 8 || len(testA) != 2 {
		t.Fatalf("unexpected split sizes %d/%d", len(trainA), len(testA))
	}
	for i := range trainA {
		if trainA[i] != trainB[i] {
			t.Fatal("split is not deterministic for a fixed seed")
		}
	}
	if testA[0] != testB[0] {
		t.Fatal("split is not deterministic for a fixed seed")
	}
	train, test := Split(2, 0.99, 1)
	if len(train) != 1 || len(test) != 1 {
		t.Fatalf("expected 1/1 split, got %d/%d", len(train), len(test))
	}
}

func TestSliceAndProject(t *testing.T) {
	f := readHousing(t)
	target, err := BuildTarget(f, "price", Options{Exclude: []string{"sold"}})
	if err != nil {
		t.Fatalf("build target: %v", err)
	}
	sliced, err := target.Slice(target.XTrain, []string{"garage", "rooms"})
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if sliced[0][0] != target.XTrain[0][2] || sliced[0][1] != target.XTrain[0][0] {
		t.Fatalf("slice did not follow requested order: %v vs %v", sliced[0], target.XTrain[0])
	}
	if _, err := target.Slice(target.XTrain, []string{"nope"}); err == nil {
		t.Fatal("expected unknown feature error")
	}

	fresh, err := NewFrame([]string{"rooms", "area", "garage"}, [][]string{{"5", "120.0", "true"}, {"1", "30.0", "false"}})
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	X, err := target.Project(fresh)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if X[0][0] != 1 || X[1][0] != 0 || X[0][1] != 1 || X[1][1] != 0 {
		t.Fatalf("unexpected projected values: %v", X)
	}
}

func TestMinMaxScalerConstantColumn(t *testing.T) {
	scaler, err := FitMinMax([][]float64{{1, 5}, {3, 5}})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	out, err := scaler.Transform([][]float64{{2, 5}})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if math.Abs(out[0][0]-0.5) > 1e-12 || out[0][1] != 0 {
		t.Fatalf("unexpected scaled row: %v", out[0])
	}
	if _, err := scaler.Transform([][]float64{{1}}); err == nil {
		t.Fatal("expected width mismatch error")
	}
}
