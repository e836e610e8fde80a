package recombinant

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acorg/go3seq/internal/models"
)

// row turns a space separated description into a tab separated row.
func row(s string) string {
	return strings.ReplaceAll(s, " ", "\t")
}

func writeRec(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "file.rec")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func TestReadHeaderOnly(t *testing.T) {
	recs, err := Collect(Read(writeRec(t, Header)))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestReadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.rec")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	recs, err := Collect(Read(path))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestReadMissingFile(t *testing.T) {
	_, err := Collect(Read(filepath.Join(t.TempDir(), "missing.rec")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadUnrecognizedHeader(t *testing.T) {
	_, err := Collect(Read(writeRec(t, "bad header")))

	var malformed *MalformedOutputError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, 1, malformed.Line)
	assert.Contains(t, err.Error(), `unrecognized header line: "bad header"`)
}

func TestReadMalformedRows(t *testing.T) {
	const prefix = "id1 id2 id3 0 0 6 1.0 1 3.0 4.0 4.0 6 "

	tests := []struct {
		name    string
		line    string
		wantErr string
	}{
		{name: "insufficient fields", line: "only\tthree\tfields", wantErr: "expected at least 13 fields, got 3"},
		{name: "insufficient whitespace fields", line: "only three fields", wantErr: "expected at least 13 fields, got 3"},
		{name: "m not an int", line: row("id1 id2 id3 six 0 0 1.0 1 3.0 4.0 4.0 5 1-2 & 3-4"), wantErr: "column m"},
		{name: "n not an int", line: row("id1 id2 id3 0 six 0 1.0 1 3.0 4.0 4.0 5 1-2 & 3-4"), wantErr: "column n"},
		{name: "k not an int", line: row("id1 id2 id3 0 0 six 1.0 1 3.0 4.0 4.0 5 1-2 & 3-4"), wantErr: "column k"},
		{name: "p not a float", line: row("id1 id2 id3 0 0 0 six 1 3.0 4.0 4.0 5 1-2 & 3-4"), wantErr: "column p"},
		{name: "hs not 0 or 1", line: row("id1 id2 id3 0 0 0 3.1 x 3.0 4.0 4.0 5 1-2 & 3-4"), wantErr: `column HS?: expected 0 or 1, got "x"`},
		{name: "log(p) not a float", line: row("id1 id2 id3 0 0 0 6 1 six 4.0 4.0 5 1-2 & 3-4"), wantErr: "column log(p)"},
		{name: "ds(p) not a float", line: row("id1 id2 id3 0 0 0 6 1 4.0 4.0 six 5 1-2 & 3-4"), wantErr: "column DS(p)"},
		{name: "min rec length not an int", line: row("id1 id2 id3 0 0 6 1.0 1 3.0 4.0 4.0 six 1-2 & 3-4"), wantErr: "column min_rec_length"},
		{name: "no breakpoints", line: row(prefix), wantErr: "no breakpoints found"},
		{name: "left start not an int", line: row(prefix) + "a-2 & 3-4", wantErr: `breakpoint range "a-2"`},
		{name: "left end not an int", line: row(prefix) + "2-a & 3-4", wantErr: `breakpoint range "2-a"`},
		{name: "right start not an int", line: row(prefix) + "2-3 & a-4", wantErr: `breakpoint range "a-4"`},
		{name: "right end not an int", line: row(prefix) + "2-3 & 4-a", wantErr: `breakpoint range "4-a"`},
		{name: "descending within pair", line: row(prefix) + "2-1 & 4-6", wantErr: "breakpoints (2-1 & 4-6) do not have non-descending indices"},
		{name: "descending across pair", line: row(prefix) + "1-5 & 4-6", wantErr: "breakpoints (1-5 & 4-6) do not have non-descending indices"},
		{name: "dangling ampersand", line: row(prefix) + "& 4-6", wantErr: "has no left range"},
		{name: "missing right range", line: row(prefix) + "1-2 &", wantErr: "has no right range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Collect(Read(writeRec(t, Header, tt.line)))

			var malformed *MalformedOutputError
			require.True(t, errors.As(err, &malformed), "got %v", err)
			assert.Equal(t, 2, malformed.Line)
			assert.True(t, strings.HasSuffix(malformed.Path, "file.rec"))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadNumericErrorsUnwrap(t *testing.T) {
	line := row("id1 id2 id3 six 0 0 1.0 1 3.0 4.0 4.0 5 1-2 & 3-4")
	_, err := Collect(Read(writeRec(t, Header, line)))
	assert.True(t, errors.Is(err, strconv.ErrSyntax))
}

func TestReadExpectedRecombinants(t *testing.T) {
	path := writeRec(t,
		Header,
		row("id1 id2 id3 0 1 6 1.0 1 3.0 5.0 4.0 6 ")+" 1-3 &  4-6\t10-12 & 50-62",
		row("id4 id5 id6 1 2 7 2.0 0 4.0 6.0 5.0 7 ")+" 2-4 &  5-7\t11-13 & 51-63",
	)

	recs, err := Collect(Read(path))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, &models.Recombinant{
		PID: "id1", QID: "id2", RecombinantID: "id3",
		M: 0, N: 1, K: 6,
		P: 1.0, HS: true, LogP: 3.0, FirstDSP: 5.0, DSP: 4.0,
		MinRecLength: 6,
		Breakpoints: []models.Breakpoint{
			{Left: models.Interval{Start: 1, End: 3}, Right: models.Interval{Start: 4, End: 6}},
			{Left: models.Interval{Start: 10, End: 12}, Right: models.Interval{Start: 50, End: 62}},
		},
	}, recs[0])

	assert.Equal(t, &models.Recombinant{
		PID: "id4", QID: "id5", RecombinantID: "id6",
		M: 1, N: 2, K: 7,
		P: 2.0, HS: false, LogP: 4.0, FirstDSP: 6.0, DSP: 5.0,
		MinRecLength: 7,
		Breakpoints: []models.Breakpoint{
			{Left: models.Interval{Start: 2, End: 4}, Right: models.Interval{Start: 5, End: 7}},
			{Left: models.Interval{Start: 11, End: 13}, Right: models.Interval{Start: 51, End: 63}},
		},
	}, recs[1])
}

func TestReadWhitespaceDelimited(t *testing.T) {
	path := writeRec(t,
		strings.ReplaceAll(Header, "\t", " "),
		"A1 A2 R1 3 4 2 0.0001 0 -4 0.01 0.002 40 1-3 & 4-6   10-12 & 50-62",
	)

	recs, err := Collect(Read(path))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "R1", recs[0].RecombinantID)
	assert.Equal(t, 0.002, recs[0].DSP)
	assert.Len(t, recs[0].Breakpoints, 2)
}

func TestReadIgnoresUnknownTrailingColumns(t *testing.T) {
	path := writeRec(t,
		Header+"\textra",
		row("A1 A2 R1 3 4 2 0.0001 0 -4 0.01 0.002 40 ")+"1-3 & 4-6\tsomething-new",
	)

	recs, err := Collect(Read(path))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []models.Breakpoint{
		{Left: models.Interval{Start: 1, End: 3}, Right: models.Interval{Start: 4, End: 6}},
	}, recs[0].Breakpoints)
}

func TestReadSkipsBlankLines(t *testing.T) {
	path := writeRec(t,
		Header,
		"",
		row("A1 A2 R1 3 4 2 0.0001 0 -4 0.01 0.002 40 ")+"1-3 & 4-6",
		"",
	)

	recs, err := Collect(Read(path))
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestReadRestartsFromTop(t *testing.T) {
	path := writeRec(t,
		Header,
		row("A1 A2 R1 3 4 2 0.0001 0 -4 0.01 0.002 40 ")+"1-3 & 4-6",
		row("A1 A3 R2 3 4 2 0.0001 0 -4 0.01 0.002 40 ")+"1-3 & 4-6",
	)

	seq := Read(path)
	for rec, err := range seq {
		require.NoError(t, err)
		assert.Equal(t, "R1", rec.RecombinantID)
		break
	}

	recs, err := Collect(Read(path))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "R1", recs[0].RecombinantID)
}

func TestParseStopsAfterFirstError(t *testing.T) {
	input := strings.Join([]string{
		Header,
		row("A1 A2 R1 3 4 2 0.0001 0 -4 0.01 0.002 40 ") + "1-3 & 4-6",
		"broken",
		row("A1 A3 R2 3 4 2 0.0001 0 -4 0.01 0.002 40 ") + "1-3 & 4-6",
	}, "\n")

	var ids []string
	var errs []error
	for rec, err := range Parse(strings.NewReader(input), "") {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, rec.RecombinantID)
	}

	assert.Equal(t, []string{"R1"}, ids)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "line 3")
}

func TestWriteRoundTrip(t *testing.T) {
	want := []*models.Recombinant{
		{
			PID: "A1", QID: "A2", RecombinantID: "R1",
			M: 3, N: 4, K: 2, P: 0.0001, HS: true, LogP: -4, FirstDSP: 0.01, DSP: 1.5e-7,
			MinRecLength: 40,
			Breakpoints: []models.Breakpoint{
				{Left: models.Interval{Start: 1, End: 3}, Right: models.Interval{Start: 4, End: 6}},
			},
		},
		{
			PID: "B1", QID: "B2", RecombinantID: "R2",
			M: 1, N: 1, K: 1, P: 0.5, LogP: -0.30103, FirstDSP: 1, DSP: 1,
			MinRecLength: 7,
			Breakpoints: []models.Breakpoint{
				{Left: models.Interval{Start: 10, End: 12}, Right: models.Interval{Start: 50, End: 62}},
				{Left: models.Interval{Start: 70, End: 70}, Right: models.Interval{Start: 80, End: 90}},
			},
		},
	}

	var b strings.Builder
	require.NoError(t, Write(&b, want))

	got, err := Collect(Parse(strings.NewReader(b.String()), "round-trip"))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
