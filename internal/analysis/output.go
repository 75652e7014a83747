package analysis

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/tphakala/fretlab/internal/errors"
	"github.com/tphakala/fretlab/internal/tuning"
)

// Output formats accepted by WriteResults.
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
)

// Segment is a run of consecutive frames with the same note.
type Segment struct {
	Start     time.Duration `json:"start"`
	End       time.Duration `json:"end"`
	Note      string        `json:"note"`
	Frequency float64       `json:"frequency"` // mean over the run
	Detune    float64       `json:"detune"`    // mean over the run
	Status    tuning.Status `json:"status"`
	Target    string        `json:"target,omitempty"`
	Frames    int           `json:"frames"`
}

// Segments merges consecutive results with the same note. Frames without a
// pitch end the current segment and are not reported. frame is the
// duration of one frame, used to close the last segment.
func Segments(results []Result, frame time.Duration) []Segment {
	var segments []Segment
	var cur *Segment

	flush := func(end time.Duration) {
		if cur == nil {
			return
		}
		cur.End = end
		cur.Frequency /= float64(cur.Frames)
		cur.Detune /= float64(cur.Frames)
		cur.Status = tuning.Classify(cur.Detune)
		segments = append(segments, *cur)
		cur = nil
	}

	for _, r := range results {
		if r.Note == nil {
			flush(r.Offset)
			continue
		}
		if cur != nil && cur.Note != r.Note.Name() {
			flush(r.Offset)
		}
		if cur == nil {
			cur = &Segment{Start: r.Offset, Note: r.Note.Name(), Target: r.Target}
		}
		cur.Frequency += r.Note.Frequency
		cur.Detune += r.Note.Detune
		cur.Frames++
	}
	if len(results) > 0 {
		flush(results[len(results)-1].Offset + frame)
	}
	return segments
}

// WriteResults renders segments in format.
func WriteResults(w io.Writer, segments []Segment, format string) error {
	switch format {
	case FormatTable, "":
		return writeTable(w, segments)
	case FormatCSV:
		return writeCSV(w, segments)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(segments)
	default:
		return errors.Newf("unknown output format %q", format).
			Component("analysis").
			Category(errors.CategoryValidation).
			Build()
	}
}

func writeTable(w io.Writer, segments []Segment) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tNOTE\tFREQ (Hz)\tCENTS\tSTATUS\tSTRING")
	for _, s := range segments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%+.1f\t%s\t%s\n",
			formatOffset(s.Start), formatOffset(s.End), s.Note, s.Frequency, s.Detune, s.Status, s.Target)
	}
	return tw.Flush()
}

func writeCSV(w io.Writer, segments []Segment) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"start", "end", "note", "frequency", "detune", "status", "target", "frames"}); err != nil {
		return err
	}
	for _, s := range segments {
		record := []string{
			strconv.FormatFloat(s.Start.Seconds(), 'f', 3, 64),
			strconv.FormatFloat(s.End.Seconds(), 'f', 3, 64),
			s.Note,
			strconv.FormatFloat(s.Frequency, 'f', 2, 64),
			strconv.FormatFloat(s.Detune, 'f', 1, 64),
			string(s.Status),
			s.Target,
			strconv.Itoa(s.Frames),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatOffset(d time.Duration) string {
	return fmt.Sprintf("%02d:%06.3f", int(d.Minutes()), d.Seconds()-60*float64(int(d.Minutes())))
}
