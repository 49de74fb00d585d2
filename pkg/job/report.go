package job

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/yuya-takeyama/strict-tree-sync/pkg/executor"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/listing"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/logger"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/manifest"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/pairs"
)

// MismatchRecord is one path whose metadata differs between the trees.
type MismatchRecord struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	SrcSize  *int64 `json:"src_size,omitempty"`
	DestSize *int64 `json:"dest_size,omitempty"`
}

type GroupReport struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Pairs    int    `json:"pairs"`
	Files    int64  `json:"files"`
	Dirs     int64  `json:"dirs"`
	Bytes    int64  `json:"bytes"`
	Failures int    `json:"failures"`
	Summary  string `json:"summary,omitempty"`
}

func newGroupReport(g *pairs.Group, path string, res *executor.Result) GroupReport {
	gr := GroupReport{
		ID:      g.ID,
		Path:    path,
		Pairs:   g.Len(),
		Files:   g.FileCount,
		Dirs:    g.DirCount,
		Bytes:   g.TotalBytes,
		Summary: g.Summary(),
	}
	if res != nil {
		gr.Failures = res.FailureCount()
	}
	return gr
}

// groupID recovers the group number from a staged group path, or -1.
func groupID(p string) int {
	name := path.Base(p)
	if !strings.HasPrefix(name, "group-") || !strings.HasSuffix(name, ".jsonl") {
		return -1
	}
	id, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "group-"), ".jsonl"))
	if err != nil {
		return -1
	}
	return id
}

// Report is the outcome of one operation, written as the result JSON.
type Report struct {
	Mode       string             `json:"mode"`
	RunID      string             `json:"run_id,omitempty"`
	Src        string             `json:"src,omitempty"`
	Dest       string             `json:"dest,omitempty"`
	Manifest   string             `json:"manifest,omitempty"`
	Matched    int                `json:"matched"`
	Mismatches []MismatchRecord   `json:"mismatches"`
	Failures   []executor.Failure `json:"failures"`
	Stats      executor.Stats     `json:"stats"`
	Groups     []GroupReport      `json:"groups"`
	Duration   time.Duration      `json:"duration_ns"`

	mu sync.Mutex
}

func newReport(mode string, opts Options) *Report {
	return &Report{
		Mode:       mode,
		RunID:      manifest.NewRunID(),
		Src:        opts.Src,
		Dest:       opts.Dest,
		Manifest:   opts.Manifest,
		Mismatches: []MismatchRecord{},
		Failures:   []executor.Failure{},
		Groups:     []GroupReport{},
	}
}

func (r *Report) addDiff(result listing.DiffResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Matched += len(result.Matched)
	for _, m := range result.Mismatched {
		rec := MismatchRecord{Path: m.Path, Kind: string(m.Kind)}
		if m.Src != nil {
			size := m.Src.Size
			rec.SrcSize = &size
		}
		if m.Dest != nil {
			size := m.Dest.Size
			rec.DestSize = &size
		}
		r.Mismatches = append(r.Mismatches, rec)
	}
}

func (r *Report) addResult(res *executor.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, res.Failures...)
	r.Stats.Copied += res.Copied
	r.Stats.Dirs += res.Dirs
	r.Stats.Verified += res.Verified
	r.Stats.Skipped += res.Skipped
	r.Stats.Bytes += res.Bytes
	r.Stats.Failed += res.Failed
	r.Stats.Mismatched += res.Mismatched
	r.Stats.Retries += res.Retries
}

// FailureCount is the job outcome: metadata mismatches plus failed or
// mismatched pairs. Zero means success.
func (r *Report) FailureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Mismatches) + len(r.Failures)
}

// Summary condenses the report for PrintSummary.
func (r *Report) Summary() logger.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pairCount int64
	for _, g := range r.Groups {
		pairCount += int64(g.Pairs)
	}
	return logger.Summary{
		Mode:       r.Mode,
		Groups:     len(r.Groups),
		Pairs:      pairCount,
		Copied:     r.Stats.Copied,
		Verified:   r.Stats.Verified,
		Bytes:      r.Stats.Bytes,
		Mismatches: int64(len(r.Mismatches)) + r.Stats.Mismatched,
		Failures:   r.Stats.Failed,
		Duration:   r.Duration,
	}
}

// WriteJSON writes the report to path.
func (r *Report) WriteJSON(path string) error {
	r.mu.Lock()
	data, err := json.MarshalIndent(r, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
