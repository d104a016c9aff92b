package app

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const reportFileName = "report.json"

// SaveReport writes rep to dir/report.json atomically and returns the path.
func SaveReport(dir string, rep *Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, reportFileName)
	tmp := path + ".tmp"

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	return path, os.Rename(tmp, path)
}

// LoadReport reads a report written by SaveReport.
func LoadReport(dir string) (*Report, error) {
	data, err := os.ReadFile(filepath.Join(dir, reportFileName))
	if err != nil {
		return nil, err
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}
