package histogram

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/G-Research/cliffbench/internal/common/benchctx"
	"github.com/G-Research/cliffbench/internal/common/bencherrors"
)

// OperationNames says which operations a histogram file holds, in the order they were written. Logs do not record
// operation names themselves.
type OperationNames struct {
	// Default applies to files matched by no entry in ByFilename.
	Default []string `mapstructure:"default"`
	// ByFilename maps a substring of the file name to the operations of matching files.
	ByFilename map[string][]string `mapstructure:"byFilename"`
}

func DefaultOperationNames() OperationNames {
	return OperationNames{Default: []string{"writes", "reads"}}
}

// For returns the operation names for path. When several substrings match, the lexically first one wins.
func (o OperationNames) For(path string) []string {
	patterns := maps.Keys(o.ByFilename)
	slices.Sort(patterns)
	for _, p := range patterns {
		if strings.Contains(path, p) {
			return o.ByFilename[p]
		}
	}
	return o.Default
}

// ExtractFiles decodes every file and merges the operations they share. The result includes the AllOperations
// timeline.
func ExtractFiles(ctx *benchctx.Context, paths []string, names OperationNames) (Report, error) {
	report := Report{}
	for _, path := range paths {
		if err := extractFile(ctx, report, path, names.For(path)); err != nil {
			return nil, errors.WithMessagef(err, "failed to process histograms in %s", path)
		}
	}
	if len(report) == 0 {
		return nil, errors.WithStack(ErrNoHistograms)
	}
	return report.WithAll()
}

func extractFile(ctx *benchctx.Context, report Report, path string, ops []string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return errors.WithStack(&bencherrors.ErrNotFound{Type: "histogram file", Value: path})
	} else if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	n, err := DecodeInto(report, f, ops)
	if err != nil {
		return err
	}
	ctx.Log.WithField("file", path).Debugf("decoded %d operations", n)
	return nil
}

// DecodeInto decodes the operations of one interval log into report, naming them in order. It fails if the log
// holds more operations than there are names.
func DecodeInto(report Report, r io.Reader, ops []string) (int, error) {
	d, err := NewDecoder(r)
	if err != nil {
		return 0, err
	}
	decoded := 0
	for _, op := range ops {
		tl, err := d.Operation()
		if err == io.EOF {
			break
		}
		if err != nil {
			return decoded, errors.WithMessagef(err, "operation %s", op)
		}
		if err := report.Add(op, tl); err != nil {
			return decoded, err
		}
		decoded++
	}
	return decoded, d.Finish()
}
