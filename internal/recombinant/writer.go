package recombinant

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/acorg/go3seq/internal/models"
)

// Write writes recs in the same layout 3seq uses, header included, so the
// result can be read back with Parse.
func Write(w io.Writer, recs []*models.Recombinant) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Header + "\n"); err != nil {
		return err
	}
	for _, rec := range recs {
		if _, err := bw.WriteString(FormatLine(rec) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func FormatLine(rec *models.Recombinant) string {
	hs := "0"
	if rec.HS {
		hs = "1"
	}

	fields := []string{
		rec.PID,
		rec.QID,
		rec.RecombinantID,
		strconv.Itoa(rec.M),
		strconv.Itoa(rec.N),
		strconv.Itoa(rec.K),
		formatFloat(rec.P),
		hs,
		formatFloat(rec.LogP),
		formatFloat(rec.FirstDSP),
		formatFloat(rec.DSP),
		strconv.Itoa(rec.MinRecLength),
	}
	for _, bp := range rec.Breakpoints {
		fields = append(fields, bp.String())
	}
	return strings.Join(fields, "\t")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
