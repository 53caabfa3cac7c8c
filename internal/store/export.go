package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// WriteCSV writes one row per sample time: a "time" column followed by one
// column per trajectory label.
func WriteCSV(w io.Writer, rs RunSet) error {
	cw := csv.NewWriter(w)
	header := make([]string, 0, len(rs.Trajectories)+1)
	header = append(header, "time")
	for _, tr := range rs.Trajectories {
		if len(tr.Values) != len(rs.Times) {
			return fmt.Errorf("trajectory %s has %d samples, want %d", tr.Label, len(tr.Values), len(rs.Times))
		}
		header = append(header, tr.Label)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	row := make([]string, len(header))
	for i, t := range rs.Times {
		row[0] = strconv.FormatFloat(t, 'g', -1, 64)
		for j, tr := range rs.Trajectories {
			row[j+1] = strconv.FormatFloat(tr.Values[i], 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// EncodeJSON encodes a run set as an indented JSON document.
func EncodeJSON(rs RunSet) ([]byte, error) {
	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode run set: %w", err)
	}
	return data, nil
}

// DecodeJSON decodes a run set written by EncodeJSON and checks that every
// trajectory matches the sample times.
func DecodeJSON(data []byte) (RunSet, error) {
	var rs RunSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return RunSet{}, fmt.Errorf("failed to decode run set: %w", err)
	}
	seen := make(map[string]struct{}, len(rs.Trajectories))
	for i, tr := range rs.Trajectories {
		if tr.Label == "" {
			return RunSet{}, fmt.Errorf("trajectory at index %d has empty label", i)
		}
		if _, dup := seen[tr.Label]; dup {
			return RunSet{}, fmt.Errorf("duplicate trajectory label: %s", tr.Label)
		}
		seen[tr.Label] = struct{}{}
		if len(tr.Values) != len(rs.Times) {
			return RunSet{}, fmt.Errorf("trajectory %s has %d samples, want %d", tr.Label, len(tr.Values), len(rs.Times))
		}
	}
	return rs, nil
}
