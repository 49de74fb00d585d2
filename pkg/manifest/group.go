package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/pairs"
)

// Record is one line of a serialized group.
type Record struct {
	Seq int `json:"seq"`
	pairs.FilePair
}

// WriteGroup writes the group's pairs in order, one JSON record per line,
// numbered from 0.
func WriteGroup(w io.Writer, g *pairs.Group) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, p := range g.Pairs {
		if err := enc.Encode(Record{Seq: i, FilePair: p}); err != nil {
			return fmt.Errorf("encode record %d of group %d: %w", i, g.ID, err)
		}
	}
	return bw.Flush()
}

// ReadGroup decodes records written by WriteGroup. Records must be numbered
// consecutively from 0; a gap means the file was truncated or reordered.
func ReadGroup(r io.Reader) ([]pairs.FilePair, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	var result []pairs.FilePair
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(result), err)
		}
		if rec.Seq != len(result) {
			return nil, fmt.Errorf("record out of sequence: expected %d, got %d", len(result), rec.Seq)
		}
		result = append(result, rec.FilePair)
	}
}
