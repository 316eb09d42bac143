package serialization

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiln-ml/kiln/internal/tensor"
)

func makeTensor(t *testing.T, shape tensor.Shape, fill float32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	data := raw.AsFloat32()
	for i := range data {
		data[i] = fill + float32(i)
	}
	return raw
}

func writeCheckpoint(t *testing.T, path string, stateDict map[string]*tensor.RawTensor, header Header) {
	t.Helper()
	w, err := NewWriter(path)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()
	require.NoError(t, w.WriteStateDict(stateDict, header))
	require.NoError(t, w.Commit())
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.kiln")

	stateDict := map[string]*tensor.RawTensor{
		"output.weight": makeTensor(t, tensor.Shape{10, 128}, 0.5),
		"output.bias":   makeTensor(t, tensor.Shape{10}, -1),
	}
	header := Header{
		ModelType: "Classifier",
		Architecture: &ArchitectureMeta{
			InputSize:   128,
			OutputSize:  10,
			DropoutRate: 0.2,
		},
		Checkpoint: &CheckpointMeta{Epoch: 3, Step: 1200, Loss: 0.42},
	}

	writeCheckpoint(t, path, stateDict, header)

	r, err := NewReader(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	got := r.Header()
	assert.Equal(t, FormatVersion, got.FormatVersion)
	assert.Equal(t, "Classifier", got.ModelType)
	require.NotNil(t, got.Architecture)
	assert.Equal(t, 128, got.Architecture.InputSize)
	assert.Equal(t, 10, got.Architecture.OutputSize)
	assert.InDelta(t, 0.2, got.Architecture.DropoutRate, 1e-9)
	require.NotNil(t, got.Checkpoint)
	assert.Equal(t, 3, got.Checkpoint.Epoch)
	assert.Equal(t, int64(1200), got.Checkpoint.Step)

	loaded, err := r.ReadStateDict(tensor.CPU)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	for name, raw := range stateDict {
		require.Contains(t, loaded, name)
		assert.Equal(t, raw.Shape(), loaded[name].Shape())
		assert.Equal(t, raw.AsFloat32(), loaded[name].AsFloat32())
	}
}

func TestTensorOrderIsSorted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.kiln")
	stateDict := map[string]*tensor.RawTensor{
		"b": makeTensor(t, tensor.Shape{2}, 0),
		"a": makeTensor(t, tensor.Shape{2}, 0),
		"c": makeTensor(t, tensor.Shape{2}, 0),
	}
	writeCheckpoint(t, path, stateDict, Header{})

	r, err := NewReader(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	assert.Equal(t, []string{"a", "b", "c"}, r.TensorNames())
}

func TestMissingFileIsNotFound(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "absent.kiln"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrCorruptRecord)
}

func TestMissingTensorIsNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.kiln")
	writeCheckpoint(t, path, map[string]*tensor.RawTensor{
		"weight": makeTensor(t, tensor.Shape{2, 2}, 1),
	}, Header{})

	r, err := NewReader(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	_, err = r.LoadTensor("bias", tensor.CPU)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadMagicIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.kiln")
	require.NoError(t, os.WriteFile(path, []byte("NOPE this is not a checkpoint"), 0o600))

	_, err := NewReader(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidMagic)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestTruncatedFileIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.kiln")
	writeCheckpoint(t, path, map[string]*tensor.RawTensor{
		"weight": makeTensor(t, tensor.Shape{16, 16}, 1),
	}, Header{})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-100], 0o600))

	_, err = NewReader(path)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestFlippedDataByteIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.kiln")
	writeCheckpoint(t, path, map[string]*tensor.RawTensor{
		"weight": makeTensor(t, tensor.Shape{8, 8}, 1),
	}, Header{})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = NewReader(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestSkipChecksumValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.kiln")
	writeCheckpoint(t, path, map[string]*tensor.RawTensor{
		"weight": makeTensor(t, tensor.Shape{8, 8}, 1),
	}, Header{})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o600))

	r, err := NewReaderWithOptions(path, ReaderOptions{SkipChecksumValidation: true})
	require.NoError(t, err)
	_ = r.Close()
}

func TestUnsupportedVersionIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.kiln")
	writeCheckpoint(t, path, map[string]*tensor.RawTensor{
		"weight": makeTensor(t, tensor.Shape{2}, 1),
	}, Header{})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[4] = 99 // version field
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = NewReader(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestGarbledHeaderJSONIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.kiln")
	writeCheckpoint(t, path, map[string]*tensor.RawTensor{
		"weight": makeTensor(t, tensor.Shape{2}, 1),
	}, Header{})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[FixedHeaderSize] = '}' // first byte of the JSON header
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = NewReader(path)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestCommitIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.kiln")

	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteStateDict(map[string]*tensor.RawTensor{
		"weight": makeTensor(t, tensor.Shape{4}, 1),
	}, Header{}))

	// Nothing at the final path until Commit.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, w.Commit())
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestCloseWithoutCommitDiscards(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.kiln")

	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteStateDict(map[string]*tensor.RawTensor{
		"weight": makeTensor(t, tensor.Shape{4}, 1),
	}, Header{}))
	require.NoError(t, w.Close())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file should be removed")
}

func TestCommitOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.kiln")

	writeCheckpoint(t, path, map[string]*tensor.RawTensor{
		"weight": makeTensor(t, tensor.Shape{2}, 1),
	}, Header{ModelType: "old"})
	writeCheckpoint(t, path, map[string]*tensor.RawTensor{
		"weight": makeTensor(t, tensor.Shape{2}, 5),
	}, Header{ModelType: "new"})

	r, err := NewReader(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	assert.Equal(t, "new", r.Header().ModelType)

	raw, err := r.LoadTensor("weight", tensor.CPU)
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 6}, raw.AsFloat32())
}

func TestOptimizerFlagTracksOptimizerTensors(t *testing.T) {
	dir := t.TempDir()

	// Checkpoint metadata alone must not claim optimizer state.
	plain := filepath.Join(dir, "plain.kiln")
	writeCheckpoint(t, plain, map[string]*tensor.RawTensor{
		"output.weight": makeTensor(t, tensor.Shape{2, 2}, 1),
	}, Header{Checkpoint: &CheckpointMeta{Epoch: 1}})

	r, err := NewReader(plain)
	require.NoError(t, err)
	assert.False(t, r.HasOptimizerState())
	require.NoError(t, r.Close())

	withOpt := filepath.Join(dir, "opt.kiln")
	writeCheckpoint(t, withOpt, map[string]*tensor.RawTensor{
		"output.weight":                      makeTensor(t, tensor.Shape{2, 2}, 1),
		OptimizerTensorPrefix + "velocity.0": makeTensor(t, tensor.Shape{2, 2}, 0),
	}, Header{Checkpoint: &CheckpointMeta{Epoch: 1, OptimizerType: "SGD"}})

	r, err = NewReader(withOpt)
	require.NoError(t, err)
	assert.True(t, r.HasOptimizerState())
	require.NoError(t, r.Close())
}
