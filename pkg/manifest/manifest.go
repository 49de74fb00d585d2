// Package manifest reads and writes pair sets: the line-oriented manifest
// seed that bypasses walking, and the per-group JSON Lines records staged
// for the batch framework.
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/yuya-takeyama/strict-tree-sync/pkg/backend"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/pairs"
)

const maxLineSize = 1 << 20

// ReadPairs parses a manifest seed: one "<src> <dest> <size>" file pair per
// line. Blank lines and lines starting with # are ignored. Malformed lines
// are logged and skipped.
func ReadPairs(r io.Reader) ([]pairs.FilePair, error) {
	var result []pairs.FilePair

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := parseLine(line)
		if err != nil {
			slog.Warn("skipping manifest line", "line", lineNo, "error", err)
			continue
		}
		result = append(result, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return result, nil
}

func parseLine(line string) (pairs.FilePair, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return pairs.FilePair{}, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}
	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil || size < 0 {
		return pairs.FilePair{}, fmt.Errorf("invalid size %q", fields[2])
	}
	if err := backend.RequireSupported(fields[0], fields[1]); err != nil {
		return pairs.FilePair{}, err
	}
	return pairs.FilePair{
		Src:    backend.Normalize(fields[0]),
		Dest:   backend.Normalize(fields[1]),
		IsFile: true,
		Size:   size,
	}, nil
}

// WritePairs writes the file pairs of ps in manifest seed form and returns
// how many were written. Directory pairs have no manifest representation and
// are left out.
func WritePairs(w io.Writer, ps []pairs.FilePair) (int, error) {
	bw := bufio.NewWriter(w)
	n := 0
	for _, p := range ps {
		if !p.IsFile {
			continue
		}
		if strings.ContainsAny(p.Src, " \t\n") || strings.ContainsAny(p.Dest, " \t\n") {
			return n, fmt.Errorf("pair %s: paths with whitespace cannot be written to a manifest", p)
		}
		if _, err := fmt.Fprintf(bw, "%s %s %d\n", p.Src, p.Dest, p.Size); err != nil {
			return n, err
		}
		n++
	}
	return n, bw.Flush()
}
