package materialize_test

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/seqcore/basemount-retrieve/pkg/locate"
	"github.com/seqcore/basemount-retrieve/pkg/materialize"
	"github.com/seqcore/basemount-retrieve/pkg/status"
	"github.com/seqcore/basemount-retrieve/pkg/store"
)

func testContext(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	return logger.WithContext(context.Background())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newRun builds a synthetic source run and the matching descriptor
func newRun(t *testing.T, name string, files map[string]string) locate.RunDescriptor {
	t.Helper()
	tmpDir := t.TempDir()
	source := filepath.Join(tmpDir, "src", name)
	require.NoError(t, os.MkdirAll(source, 0o755))
	for rel, content := range files {
		writeFile(t, filepath.Join(source, filepath.FromSlash(rel)), content)
	}
	return locate.RunDescriptor{
		Name:        name,
		SourcePath:  source,
		Destination: filepath.Join(tmpDir, "out", name),
	}
}

func newMaterializer(t *testing.T, opts materialize.Options) *materialize.Materializer {
	t.Helper()
	if opts.Store == nil {
		opts.Store = store.New(store.Options{})
	}
	m, err := materialize.New(opts)
	require.NoError(t, err)
	return m
}

// countFiles counts regular files under root
func countFiles(t *testing.T, root string) int {
	t.Helper()
	count := 0
	require.NoError(t, filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	}))
	return count
}

// 🧪 TestMaterializeRun covers the end-to-end scenario: skeleton, classified
// copies and the aggregate outcome counts.
func TestMaterializeRun(t *testing.T) {
	ctx := testContext(t)
	run := newRun(t, "20180714_WGS_M01308", map[string]string{
		"Data/Intensities/BaseCalls/SampleA_S1_L001_R1_001.fastq.gz": "reads",
		"InterOp/empty.bin": "",
	})

	m := newMaterializer(t, materialize.Options{})
	outcomes, err := m.Materialize(ctx, run)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	for _, outcome := range outcomes {
		assert.Equal(t, status.StatusCopied, outcome.Status)
	}

	// The full canonical skeleton exists, including empty directories
	for _, dir := range []string{
		"Config",
		"Data/Intensities/BaseCalls",
		"Images",
		"InterOp",
		"Logs",
		"Recipes",
		"Thumbnail_Images",
	} {
		assert.DirExists(t, filepath.Join(run.Destination, filepath.FromSlash(dir)))
	}

	assert.FileExists(t, filepath.Join(run.Destination, "Data", "Intensities", "BaseCalls", "SampleA_S1_L001_R1_001.fastq.gz"))
	assert.FileExists(t, filepath.Join(run.Destination, "InterOp", "empty.bin"))
}

// 🧪 TestMaterializeIdempotent: the second pass copies nothing
func TestMaterializeIdempotent(t *testing.T) {
	ctx := testContext(t)
	run := newRun(t, "run1", map[string]string{
		"Logs/RTAStart.log": "log",
		"Config/a.cfg":      "cfg",
	})

	m := newMaterializer(t, materialize.Options{})
	first, err := m.Materialize(ctx, run)
	require.NoError(t, err)
	require.Len(t, first, 2)

	filesAfterFirst := countFiles(t, run.Destination)

	second, err := m.Materialize(ctx, run)
	require.NoError(t, err)
	require.Len(t, second, 2)
	for _, outcome := range second {
		assert.Equal(t, status.StatusSkipped, outcome.Status)
	}
	assert.Equal(t, filesAfterFirst, countFiles(t, run.Destination))
}

// 🧪 TestMaterializeNoDataLoss: every source file lands somewhere, including
// unclassified layout variants.
func TestMaterializeNoDataLoss(t *testing.T) {
	ctx := testContext(t)
	run := newRun(t, "run1", map[string]string{
		"Config/a.cfg":          "1",
		"InterOp/QMetrics.bin":  "2",
		"Weird/Layout/file.txt": "3",
		"toplevel.txt":          "4",
		"Sample.99.S7/Files/SampleB_S7_L001_R1_001.fastq.gz": "5",
	})

	m := newMaterializer(t, materialize.Options{})
	outcomes, err := m.Materialize(ctx, run)
	require.NoError(t, err)
	require.Len(t, outcomes, 5)

	assert.Equal(t, countFiles(t, run.SourcePath), countFiles(t, run.Destination))

	// Unclassified files keep their relative paths under the run root
	assert.FileExists(t, filepath.Join(run.Destination, "Weird", "Layout", "file.txt"))
	assert.FileExists(t, filepath.Join(run.Destination, "toplevel.txt"))
	// Nested sample reads land in BaseCalls
	assert.FileExists(t, filepath.Join(run.Destination, "Data", "Intensities", "BaseCalls", "SampleB_S7_L001_R1_001.fastq.gz"))
}

// 🧪 TestMaterializeIgnorePatterns: BaseMount bookkeeping entries are not
// retrieved and produce no outcome.
func TestMaterializeIgnorePatterns(t *testing.T) {
	ctx := testContext(t)
	run := newRun(t, "run1", map[string]string{
		"Logs/run.log":        "log",
		"Logs/.id.3f9a":       "meta",
		"Sample.1.S1/.id.9bc": "meta",
	})

	m := newMaterializer(t, materialize.Options{IgnorePatterns: []string{"**/.id.*"}})
	outcomes, err := m.Materialize(ctx, run)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "log", readFile(t, filepath.Join(run.Destination, "Logs", "run.log")))
}

// 🧪 TestMaterializeMetadataRemap: BaseSpace metadata lands at the run root
// under benchtop names.
func TestMaterializeMetadataRemap(t *testing.T) {
	ctx := testContext(t)
	run := newRun(t, "run1", map[string]string{
		"Properties/Input.sample-sheet":             "[Header]\nExperiment Name,run1\n",
		"Properties/Input.Runs/0/Files/RunInfo.xml": "<RunInfo/>",
		"Logs/RunParameters.xml":                    "<RunParameters/>",
	})

	m := newMaterializer(t, materialize.Options{})
	_, err := m.Materialize(ctx, run)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(run.Destination, "SampleSheet.csv"))
	assert.FileExists(t, filepath.Join(run.Destination, "RunInfo.xml"))
	assert.FileExists(t, filepath.Join(run.Destination, "RunParameters.xml"))
}

// 🧪 TestMaterializeMetadataDuplicateFirstWins: when several source locations
// carry the same metadata file, the first one encountered wins and later
// duplicates skip even when their sizes differ.
func TestMaterializeMetadataDuplicateFirstWins(t *testing.T) {
	ctx := testContext(t)
	run := newRun(t, "run1", map[string]string{
		"Logs/RunInfo.xml":                          "<RunInfo>four lanes</RunInfo>",
		"Properties/Input.Runs/0/Files/RunInfo.xml": "<RunInfo/>",
	})

	m := newMaterializer(t, materialize.Options{})
	outcomes, err := m.Materialize(ctx, run)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	byStatus := map[status.CopyStatus]int{}
	for _, outcome := range outcomes {
		byStatus[outcome.Status]++
	}
	assert.Equal(t, 1, byStatus[status.StatusCopied])
	assert.Equal(t, 1, byStatus[status.StatusSkipped])
	// Traversal visits Logs before Properties
	assert.Equal(t, "<RunInfo>four lanes</RunInfo>", readFile(t, filepath.Join(run.Destination, "RunInfo.xml")))
}

// 🧪 TestMaterializeSampleSheetOutsideProperties: only the Properties copy of
// the sample sheet claims the benchtop name.
func TestMaterializeSampleSheetOutsideProperties(t *testing.T) {
	ctx := testContext(t)
	run := newRun(t, "run1", map[string]string{
		"Properties/Input.sample-sheet": "[Header]\nExperiment Name,run1\n",
		"Misc/Input.sample-sheet":       "stale",
	})

	m := newMaterializer(t, materialize.Options{})
	outcomes, err := m.Materialize(ctx, run)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, "[Header]\nExperiment Name,run1\n", readFile(t, filepath.Join(run.Destination, "SampleSheet.csv")))
	// The stray copy keeps its relative path instead of contending for the name
	assert.FileExists(t, filepath.Join(run.Destination, "Misc", "Input.sample-sheet"))
}

// 🧪 TestMaterializePartialFailure: a failing file is recorded and the rest
// of the run still copies.
func TestMaterializePartialFailure(t *testing.T) {
	ctx := testContext(t)
	run := newRun(t, "run1", map[string]string{
		"Logs/a.log": "a",
		"Logs/b.log": "b",
		"Logs/c.log": "c",
	})

	failing := &failingStore{
		Store:    store.New(store.Options{}),
		failPath: "b.log",
	}
	m := newMaterializer(t, materialize.Options{Store: failing})

	outcomes, err := m.Materialize(ctx, run)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	byStatus := map[status.CopyStatus]int{}
	for _, outcome := range outcomes {
		byStatus[outcome.Status]++
		if outcome.Status == status.StatusFailed {
			assert.Error(t, outcome.Err)
			assert.Contains(t, outcome.Source, "b.log")
		}
	}
	assert.Equal(t, 2, byStatus[status.StatusCopied])
	assert.Equal(t, 1, byStatus[status.StatusFailed])
}

// 🧪 TestMaterializeParallel: the worker pool yields one outcome per file
// and failures never cancel siblings.
func TestMaterializeParallel(t *testing.T) {
	ctx := testContext(t)
	files := map[string]string{}
	for i := 0; i < 40; i++ {
		files[filepath.ToSlash(filepath.Join("Logs", "log"+strings.Repeat("x", i%5)+string(rune('a'+i%26))+".log"))] = strings.Repeat("z", i)
	}
	files["Logs/poison.log"] = "p"
	run := newRun(t, "run1", files)

	failing := &failingStore{
		Store:    store.New(store.Options{}),
		failPath: "poison.log",
	}
	mgr := status.NewManager(status.NewDefaultFileFormatter(), false)
	m := newMaterializer(t, materialize.Options{
		Store:    failing,
		Reporter: mgr,
		Workers:  8,
	})

	outcomes, err := m.Materialize(ctx, run)
	require.NoError(t, err)
	assert.Len(t, outcomes, len(files))
	assert.Len(t, mgr.Outcomes(), len(files))

	failed := 0
	for _, outcome := range outcomes {
		if outcome.Status == status.StatusFailed {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

// 🧪 TestMaterializeMissingSourceRoot: an unreadable run root fails the run
func TestMaterializeMissingSourceRoot(t *testing.T) {
	ctx := testContext(t)
	tmpDir := t.TempDir()
	run := locate.RunDescriptor{
		Name:        "gone",
		SourcePath:  filepath.Join(tmpDir, "does-not-exist"),
		Destination: filepath.Join(tmpDir, "out", "gone"),
	}

	m := newMaterializer(t, materialize.Options{})
	_, err := m.Materialize(ctx, run)
	require.Error(t, err)
}

func TestNewRejectsInvalidPattern(t *testing.T) {
	_, err := materialize.New(materialize.Options{
		Store:          store.New(store.Options{}),
		IgnorePatterns: []string{"[unclosed"},
	})
	require.Error(t, err)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

// failingStore wraps a real store and fails copies whose source matches
type failingStore struct {
	store.Store
	failPath string
}

func (s *failingStore) CopyFile(ctx context.Context, src, dst string) (store.CopyResult, int64, error) {
	if strings.Contains(src, s.failPath) {
		return store.ResultCopied, 0, errors.New("injected copy failure")
	}
	return s.Store.CopyFile(ctx, src, dst)
}
