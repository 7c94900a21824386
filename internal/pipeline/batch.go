package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// commentPrefixes follow the download engine's batch-file convention.
var commentPrefixes = []string{"#", ";", "]"}

// ReadURLList collects http(s) URLs from a batch list: one or more
// comma-separated URLs per line, blank and comment lines ignored, duplicates
// dropped, order preserved. Other values are skipped and counted.
func ReadURLList(r io.Reader) ([]string, int, error) {
	var urls []string
	skipped := 0
	seen := map[string]struct{}{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || isComment(line) {
			continue
		}
		for _, part := range strings.Split(line, ",") {
			candidate := strings.TrimSpace(part)
			if candidate == "" {
				continue
			}
			target, err := validateURL(candidate)
			if err != nil {
				skipped++
				continue
			}
			if _, dup := seen[target]; dup {
				continue
			}
			seen[target] = struct{}{}
			urls = append(urls, target)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("read URL list: %w", err)
	}
	return urls, skipped, nil
}

func isComment(line string) bool {
	for _, prefix := range commentPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
