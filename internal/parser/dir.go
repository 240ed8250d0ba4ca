package parser

import (
	"os"
	"path/filepath"
)

// ExtractDir extracts every supported file directly under dir, keyed by
// file name. Per-file failures are reported as warnings, not errors; the
// error return covers only the directory listing itself.
func ExtractDir(dir string) (map[string]string, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	docs := make(map[string]string)
	var warnings []string
	for _, entry := range entries {
		if entry.IsDir() || !Supported(entry.Name()) {
			continue
		}
		text, err := Extract(filepath.Join(dir, entry.Name()))
		if err != nil {
			warnings = append(warnings, entry.Name()+": "+err.Error())
			continue
		}
		docs[entry.Name()] = text
	}
	return docs, warnings, nil
}
