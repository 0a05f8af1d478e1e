// Package detector reads the log of an external buffer overflow detector and
// pulls out the lines that report an overflow.
package detector

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
)

// DefaultPattern matches the overflow banner printed by interposing detectors
const DefaultPattern = `(?i)buffer overflow`

// Finding is one overflow report line
type Finding struct {
	Line int
	Text string
}

// Result collects every overflow report in a log
type Result struct {
	Source   string
	Findings []Finding
}

// Reported reports whether the detector flagged any overflow
func (r *Result) Reported() bool { return r != nil && len(r.Findings) > 0 }

// ScanLog reads r line by line and returns the lines matching pattern
func ScanLog(r io.Reader, pattern string) (*Result, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad detector pattern %q: %w", pattern, err)
	}

	res := &Result{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		if re.MatchString(sc.Text()) {
			res.Findings = append(res.Findings, Finding{Line: n, Text: sc.Text()})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading detector log: %w", err)
	}
	return res, nil
}

// ScanFile scans the detector log at path. An empty path means no detector
// is configured and yields a nil Result. A log that does not exist yet is
// treated as empty, since detectors only create it on first report.
func ScanFile(path, pattern string) (*Result, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Result{Source: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening detector log: %w", err)
	}
	defer f.Close()

	res, err := ScanLog(f, pattern)
	if err != nil {
		return nil, err
	}
	res.Source = path
	return res, nil
}
