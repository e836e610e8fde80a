// Package recombinant reads the recombinants file written by 3seq.
//
// The file has one header line followed by one tab-separated row per
// predicted recombination event:
//
//	P_ACCNUM Q_ACCNUM C_ACCNUM m n k p HS? log(p) DS(p) DS(p) min_rec_length breakpoints...
//
// Each breakpoint is written as "a-b & c-d" and there may be several of them,
// separated by tabs.
package recombinant

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"

	"github.com/acorg/go3seq/internal/models"
)

// Header is the header line 3seq writes at the top of a recombinants file.
var Header = strings.Join(strings.Fields(
	"P_ACCNUM Q_ACCNUM C_ACCNUM m n k p HS? log(p) DS(p) DS(p) min_rec_length breakpoints"), "\t")

// minFields is the number of fixed columns plus one breakpoints column.
const minFields = 13

type MalformedOutputError struct {
	Path string
	Line int
	Err  error
}

func (e *MalformedOutputError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed recombinants output on line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("malformed recombinants output on line %d of %s: %v", e.Line, e.Path, e.Err)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

// Read returns a sequence over the recombinants in path. The file is opened
// when iteration starts, so every call (and every range over the result)
// reads from the top. Iteration stops after the first error.
func Read(path string) iter.Seq2[*models.Recombinant, error] {
	return func(yield func(*models.Recombinant, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(nil, fmt.Errorf("failed to open recombinants file: %w", err))
			return
		}
		defer f.Close()

		for rec, err := range Parse(f, path) {
			if !yield(rec, err) {
				return
			}
		}
	}
}

// Parse is Read over an already open reader. name is only used in errors.
// The returned sequence can be consumed once.
func Parse(r io.Reader, name string) iter.Seq2[*models.Recombinant, error] {
	return func(yield func(*models.Recombinant, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		lineNumber := 0
		for scanner.Scan() {
			lineNumber++
			line := strings.TrimRight(scanner.Text(), "\r")

			if lineNumber == 1 {
				if err := checkHeader(line); err != nil {
					yield(nil, &MalformedOutputError{Path: name, Line: lineNumber, Err: err})
					return
				}
				continue
			}
			if strings.TrimSpace(line) == "" {
				continue
			}

			rec, err := ParseLine(line)
			if err != nil {
				yield(nil, &MalformedOutputError{Path: name, Line: lineNumber, Err: err})
				return
			}
			if !yield(rec, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("failed to read %s: %w", name, err))
		}
	}
}

func checkHeader(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "P_ACCNUM" {
		return fmt.Errorf("unrecognized header line: %q", line)
	}
	return nil
}

// ParseLine parses a single data row.
func ParseLine(line string) (*models.Recombinant, error) {
	var fixed []string
	var rest string

	if strings.Contains(line, "\t") {
		fields := strings.SplitN(line, "\t", minFields)
		if len(fields) < minFields {
			return nil, fmt.Errorf("expected at least %d fields, got %d", minFields, len(fields))
		}
		fixed, rest = fields[:minFields-1], fields[minFields-1]
	} else {
		fields := strings.Fields(line)
		if len(fields) < minFields {
			return nil, fmt.Errorf("expected at least %d fields, got %d", minFields, len(fields))
		}
		fixed, rest = fields[:minFields-1], strings.Join(fields[minFields-1:], " ")
	}
	for i := range fixed {
		fixed[i] = strings.TrimSpace(fixed[i])
	}

	rec := &models.Recombinant{
		PID:           fixed[0],
		QID:           fixed[1],
		RecombinantID: fixed[2],
	}

	p := &fieldParser{fields: fixed}
	rec.M = p.int(3, "m")
	rec.N = p.int(4, "n")
	rec.K = p.int(5, "k")
	rec.P = p.float(6, "p")
	rec.HS = p.bool(7, "HS?")
	rec.LogP = p.float(8, "log(p)")
	rec.FirstDSP = p.float(9, "DS(p)")
	rec.DSP = p.float(10, "DS(p)")
	rec.MinRecLength = p.int(11, "min_rec_length")
	if p.err != nil {
		return nil, p.err
	}

	breakpoints, err := parseBreakpoints(rest)
	if err != nil {
		return nil, err
	}
	rec.Breakpoints = breakpoints

	return rec, nil
}

// fieldParser converts columns one by one and remembers the first failure,
// so the error names the offending column.
type fieldParser struct {
	fields []string
	err    error
}

func (p *fieldParser) int(i int, name string) int {
	if p.err != nil {
		return 0
	}
	v, err := strconv.Atoi(p.fields[i])
	if err != nil {
		p.err = fmt.Errorf("column %s: %w", name, err)
	}
	return v
}

func (p *fieldParser) float(i int, name string) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(p.fields[i], 64)
	if err != nil {
		p.err = fmt.Errorf("column %s: %w", name, err)
	}
	return v
}

func (p *fieldParser) bool(i int, name string) bool {
	if p.err != nil {
		return false
	}
	switch p.fields[i] {
	case "0":
		return false
	case "1":
		return true
	}
	p.err = fmt.Errorf("column %s: expected 0 or 1, got %q", name, p.fields[i])
	return false
}

var breakpointTokens = strings.NewReplacer("&", " & ", "\t", " ")

// parseBreakpoints reads every "a-b & c-d" group in s. Tokens that are not
// part of such a group are columns this parser does not know and are
// skipped.
func parseBreakpoints(s string) ([]models.Breakpoint, error) {
	tokens := strings.Fields(breakpointTokens.Replace(s))

	var breakpoints []models.Breakpoint
	for i := 0; i < len(tokens); {
		if tokens[i] == "&" {
			return nil, fmt.Errorf("breakpoint %q has no left range", strings.Join(tokens[i:], " "))
		}
		if i+1 >= len(tokens) || tokens[i+1] != "&" {
			i++
			continue
		}
		if i+2 >= len(tokens) {
			return nil, fmt.Errorf("breakpoint %q has no right range", strings.Join(tokens[i:], " "))
		}

		bp, err := parseBreakpoint(tokens[i], tokens[i+2])
		if err != nil {
			return nil, err
		}
		breakpoints = append(breakpoints, bp)
		i += 3
	}

	if len(breakpoints) == 0 {
		return nil, errors.New("no breakpoints found")
	}
	return breakpoints, nil
}

func parseBreakpoint(left, right string) (models.Breakpoint, error) {
	var bp models.Breakpoint
	var err error

	if bp.Left, err = parseInterval(left); err != nil {
		return bp, err
	}
	if bp.Right, err = parseInterval(right); err != nil {
		return bp, err
	}

	if !(bp.Left.Start <= bp.Left.End && bp.Left.End < bp.Right.Start && bp.Right.Start <= bp.Right.End) {
		return bp, fmt.Errorf("breakpoints (%s & %s) do not have non-descending indices", left, right)
	}
	return bp, nil
}

func parseInterval(s string) (models.Interval, error) {
	start, end, ok := strings.Cut(s, "-")
	if !ok {
		return models.Interval{}, fmt.Errorf("breakpoint range %q is not of the form start-end", s)
	}
	a, err := strconv.Atoi(start)
	if err != nil {
		return models.Interval{}, fmt.Errorf("breakpoint range %q: %w", s, err)
	}
	b, err := strconv.Atoi(end)
	if err != nil {
		return models.Interval{}, fmt.Errorf("breakpoint range %q: %w", s, err)
	}
	return models.Interval{Start: a, End: b}, nil
}

// Collect drains seq into a slice, stopping at the first error.
func Collect(seq iter.Seq2[*models.Recombinant, error]) ([]*models.Recombinant, error) {
	var recs []*models.Recombinant
	for rec, err := range seq {
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
