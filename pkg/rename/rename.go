// Package rename simplifies read-pair filenames in a materialized BaseCalls
// directory to the <SampleID>_R<1|2>.fastq.gz form.
package rename

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/seqcore/basemount-retrieve/pkg/store"
)

// ErrRenameCollision reports a simplified name already taken by a file that
// does not belong to the same sample. The original file is left untouched.
var ErrRenameCollision = errors.Base("rename collision")

// readPairPattern matches the local-sequencer naming convention
// <SampleName>_<SampleID>_L<lane>_R<1|2>_001.fastq.gz.
var readPairPattern = regexp.MustCompile(`^(.+)_(S\d+)_L\d{3}_(R[12])_\d{3}\.fastq\.gz$`)

// 🔁 Rule is one applied (or refused) filename simplification.
type Rule struct {
	Original   string // original filename
	Simplified string // derived <SampleID>_R<1|2>.fastq.gz name
	SampleID   string // sample identifier token
	Err        error  // ErrRenameCollision when the rename was refused
}

// 🏷️ Derive returns the simplified name for a read-pair filename, or false
// when the name does not follow the convention.
func Derive(filename string) (Rule, bool) {
	groups := readPairPattern.FindStringSubmatch(filename)
	if groups == nil {
		return Rule{}, false
	}
	return Rule{
		Original:   filename,
		Simplified: groups[2] + "_" + groups[3] + ".fastq.gz",
		SampleID:   groups[2],
	}, true
}

// 🏃 Run scans files directly under the materialized BaseCalls directory and
// renames recognized read pairs. Collisions are reported on the returned
// rules, never overwritten; non-matching files are left alone. Returns only
// the rules for files it attempted.
func Run(ctx context.Context, st store.Store, baseCallsDir string) ([]Rule, error) {
	logger := zerolog.Ctx(ctx)

	dirEntries, err := os.ReadDir(baseCallsDir)
	if err != nil {
		return nil, errors.Errorf("listing BaseCalls directory %q: %w", baseCallsDir, err)
	}

	// ownedBy tracks simplified names produced by this pass, so the second
	// read of a pair does not trip over its own sibling.
	ownedBy := map[string]string{}

	var rules []Rule
	for _, entry := range dirEntries {
		if entry.IsDir() {
			continue
		}
		rule, ok := Derive(entry.Name())
		if !ok {
			continue
		}

		oldPath := filepath.Join(baseCallsDir, rule.Original)
		newPath := filepath.Join(baseCallsDir, rule.Simplified)

		if owner, taken := ownedBy[rule.Simplified]; taken && owner != rule.Original {
			rule.Err = errors.Errorf("simplified name %q already produced from %q: %w",
				rule.Simplified, owner, ErrRenameCollision)
			rules = append(rules, rule)
			continue
		}

		exists, err := st.Exists(ctx, newPath)
		if err != nil {
			rule.Err = err
			rules = append(rules, rule)
			continue
		}
		if exists {
			// A resumed retrieval re-copies the original long name next to
			// the simplified file an earlier pass produced. Identical
			// content means the same reads: collapse the duplicate by
			// renaming over it. Anything else is a foreign sample.
			same, err := identicalContent(oldPath, newPath)
			if err != nil {
				rule.Err = err
				rules = append(rules, rule)
				continue
			}
			if !same {
				rule.Err = errors.Errorf("destination %q exists and belongs to another sample: %w",
					rule.Simplified, ErrRenameCollision)
				rules = append(rules, rule)
				continue
			}
		}

		if err := st.Rename(ctx, oldPath, newPath); err != nil {
			rule.Err = err
			rules = append(rules, rule)
			continue
		}

		ownedBy[rule.Simplified] = rule.Original
		logger.Debug().
			Str("from", rule.Original).
			Str("to", rule.Simplified).
			Msg("renamed read pair file")
		rules = append(rules, rule)
	}

	return rules, nil
}

// identicalContent reports whether two files hold the same bytes, comparing
// sizes before hashing.
func identicalContent(a, b string) (bool, error) {
	infoA, err := os.Stat(a)
	if err != nil {
		return false, errors.Errorf("comparing %q: %w", a, err)
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false, errors.Errorf("comparing %q: %w", b, err)
	}
	if infoA.Size() != infoB.Size() {
		return false, nil
	}

	sumA, err := fileDigest(a)
	if err != nil {
		return false, err
	}
	sumB, err := fileDigest(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(sumA, sumB), nil
}

func fileDigest(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Errorf("hashing %q: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, errors.Errorf("hashing %q: %w", path, err)
	}
	return h.Sum(nil), nil
}
