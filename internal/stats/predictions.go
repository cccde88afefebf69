package stats

import (
	"encoding/csv"
	"fmt"
	"os"
)

// PredictedColumn names the column WritePredictions adds for target.
func PredictedColumn(target string) string {
	return target + "_predicted"
}

// WritePredictions copies the input table and appends one predicted column
// per target, in targets order.
func WritePredictions(path string, columns []string, rows [][]string, targets []string, predicted map[string][]string) error {
	for _, target := range targets {
		values, ok := predicted[target]
		if !ok {
			return fmt.Errorf("no predictions for target %s", target)
		}
		if len(values) != len(rows) {
			return fmt.Errorf("target %s has %d predictions for %d rows", target, len(values), len(rows))
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := append([]string(nil), columns...)
	for _, target := range targets {
		header = append(header, PredictedColumn(target))
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for i, row := range rows {
		record := append([]string(nil), row...)
		for _, target := range targets {
			record = append(record, predicted[target][i])
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Sync()
}
