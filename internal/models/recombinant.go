package models

import "fmt"

// Interval is an inclusive range of alignment offsets.
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Breakpoint is a pair of candidate breakpoint ranges: the left range bounds
// the start of the recombinant segment and the right range bounds its end.
type Breakpoint struct {
	Left  Interval `json:"left"`
	Right Interval `json:"right"`
}

func (b Breakpoint) String() string {
	return fmt.Sprintf("%d-%d & %d-%d", b.Left.Start, b.Left.End, b.Right.Start, b.Right.End)
}

// Recombinant is one row of the 3seq recombinants file: a child sequence
// predicted to be a mosaic of parents P and Q.
type Recombinant struct {
	PID           string
	QID           string
	RecombinantID string

	// M and N are the up and down steps of the random walk between the
	// child and its parents (P and Q informative sites). K is the maximum
	// descent observed for the triplet.
	M int
	N int
	K int

	P            float64
	HS           bool // Hogan-Siegmund approximation used
	LogP         float64
	FirstDSP     float64 // the first of the tool's two DS(p) columns
	DSP          float64 // Dunn-Sidak corrected p
	MinRecLength int
	Breakpoints  []Breakpoint
}

// Parents returns the parent ids in sorted order, so that (A, B) and (B, A)
// compare equal.
func (r *Recombinant) Parents() (string, string) {
	if r.QID < r.PID {
		return r.QID, r.PID
	}
	return r.PID, r.QID
}
