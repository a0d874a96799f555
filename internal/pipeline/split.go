package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadSplit reads a split file: one non-negative integer per non-blank line,
// kept in file order. Duplicates are preserved. Any problem, including an
// empty list, is an ErrConfiguration.
func ReadSplit(path string) ([]SceneIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: split file: %w", ErrConfiguration, err)
	}
	defer f.Close()

	var indices []SceneIndex
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		n, err := strconv.Atoi(line)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %s:%d: %q is not a scene index", ErrConfiguration, path, lineNo, line)
		}
		indices = append(indices, SceneIndex(n))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrConfiguration, path, err)
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("%w: split file %s lists no indices", ErrConfiguration, path)
	}
	return indices, nil
}
