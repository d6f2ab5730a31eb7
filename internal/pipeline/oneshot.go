package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"fomm/internal"
)

// LoadInputFiles reads the given paths in order. Directories contribute
// their spreadsheet files sorted by name; explicit files are always read.
func LoadInputFiles(paths []string) ([]internal.InputFile, error) {
	out := []internal.InputFile{}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			f, err := readInputFile(p)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() && IsSpreadsheetName(e.Name()) {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			f, err := readInputFile(filepath.Join(p, name))
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no spreadsheet files in %v", paths)
	}
	return out, nil
}

func readInputFile(path string) (internal.InputFile, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return internal.InputFile{}, err
	}
	return internal.InputFile{Name: filepath.Base(path), Content: blob}, nil
}
