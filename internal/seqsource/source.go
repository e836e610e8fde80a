// Package seqsource turns the different ways a caller can supply sequences
// into a single file the external tool can read.
package seqsource

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evolbioinfo/goalign/align"
	"github.com/evolbioinfo/goalign/io/fasta"
	"github.com/evolbioinfo/goalign/io/phylip"
)

// InputFile is the name used for sequences written into a working directory.
const InputFile = "input.fasta"

var ErrUnsupportedFormat = errors.New("unsupported sequence format")

type Format int

const (
	FormatUnknown Format = iota
	FormatFASTA
	FormatPhylip
)

func (f Format) String() string {
	switch f {
	case FormatFASTA:
		return "fasta"
	case FormatPhylip:
		return "phylip"
	default:
		return "unknown"
	}
}

// Source is anything that can produce an input file for the tool. dir is the
// working directory the tool will run in; sources that need to write a file
// write it there.
type Source interface {
	Resolve(dir string) (string, error)
}

// Path is an existing FASTA or Phylip file. It is passed to the tool as-is.
type Path string

func (p Path) Resolve(dir string) (string, error) {
	abs, err := filepath.Abs(string(p))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", p, err)
	}

	format, err := DetectFormat(abs)
	if err != nil {
		return "", err
	}
	if err := validate(abs, format); err != nil {
		return "", err
	}

	return abs, nil
}

// DetectFormat sniffs the first non-blank line of path.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("failed to open sequence file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			return FormatFASTA, nil
		}
		if isPhylipHeader(line) {
			return FormatPhylip, nil
		}
		break
	}
	if err := scanner.Err(); err != nil {
		return FormatUnknown, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return FormatUnknown, fmt.Errorf("%w: %s is neither FASTA nor Phylip", ErrUnsupportedFormat, path)
}

func isPhylipHeader(line string) bool {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return false
	}
	for _, field := range fields {
		for _, r := range field {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

func validate(path string, format Format) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open sequence file: %w", err)
	}
	defer f.Close()

	var al align.Alignment
	switch format {
	case FormatFASTA:
		al, err = fasta.NewParser(f).Parse()
	case FormatPhylip:
		al, err = phylip.NewParser(f, false).Parse()
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return fmt.Errorf("%w: %s does not parse as %s: %v", ErrUnsupportedFormat, path, format, err)
	}
	if al.NbSequences() == 0 {
		return fmt.Errorf("%w: %s contains no sequences", ErrUnsupportedFormat, path)
	}

	return nil
}

type Sequence struct {
	ID       string
	Residues string
}

// Collection is an ordered set of in-memory sequences. It is written to the
// working directory as FASTA.
type Collection []Sequence

// FromMap builds a Collection ordered by sequence id.
func FromMap(m map[string]string) Collection {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	c := make(Collection, 0, len(ids))
	for _, id := range ids {
		c = append(c, Sequence{ID: id, Residues: m[id]})
	}
	return c
}

func (c Collection) Resolve(dir string) (string, error) {
	if len(c) == 0 {
		return "", errors.New("sequence collection is empty")
	}

	al := align.NewAlign(align.NUCLEOTIDS)
	for _, s := range c {
		if s.ID == "" {
			return "", errors.New("sequence collection contains a sequence with no id")
		}
		if err := al.AddSequence(s.ID, s.Residues, ""); err != nil {
			return "", fmt.Errorf("failed to add sequence %s: %w", s.ID, err)
		}
	}

	return writeFASTA(dir, al)
}

// Alignment adapts a goalign alignment that is already in memory.
type Alignment struct {
	align.Alignment
}

func (a Alignment) Resolve(dir string) (string, error) {
	if a.Alignment == nil || a.NbSequences() == 0 {
		return "", errors.New("alignment is empty")
	}
	return writeFASTA(dir, a.Alignment)
}

func writeFASTA(dir string, al align.Alignment) (string, error) {
	path := filepath.Join(dir, InputFile)
	if err := os.WriteFile(path, []byte(fasta.WriteAlignment(al)), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// FromValue picks a Source for a loosely typed input: a file name, a
// map of id to sequence, a goalign alignment, or a Source.
func FromValue(v any) (Source, error) {
	switch in := v.(type) {
	case Source:
		return in, nil
	case string:
		return Path(in), nil
	case map[string]string:
		return FromMap(in), nil
	case []Sequence:
		return Collection(in), nil
	case align.Alignment:
		return Alignment{in}, nil
	default:
		return nil, fmt.Errorf("%w: cannot use %T as sequence input", ErrUnsupportedFormat, v)
	}
}
