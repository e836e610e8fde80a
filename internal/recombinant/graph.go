package recombinant

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/acorg/go3seq/internal/models"
)

// WriteDOT writes the recombination network as a Graphviz digraph with an
// edge from each parent to each child. Repeated edges are written once.
func WriteDOT(w io.Writer, recs []*models.Recombinant, title string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph recombination {")
	if title != "" {
		fmt.Fprintf(bw, "\tlabel=%s;\n", strconv.Quote(title))
	}

	seen := make(map[[2]string]bool)
	for _, rec := range recs {
		for _, parent := range []string{rec.PID, rec.QID} {
			edge := [2]string{parent, rec.RecombinantID}
			if seen[edge] {
				continue
			}
			seen[edge] = true
			fmt.Fprintf(bw, "\t%s -> %s;\n", strconv.Quote(parent), strconv.Quote(rec.RecombinantID))
		}
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
