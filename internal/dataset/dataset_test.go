package dataset

import (
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiln-ml/kiln/internal/backend/cpu"
	"github.com/kiln-ml/kiln/internal/tensor"
)

// writeIDXFixtures writes tiny IDX image and label files for the train split.
func writeIDXFixtures(t *testing.T, dir string, numSamples, rows, cols int) {
	t.Helper()

	imagePath := filepath.Join(dir, trainImagesFile)
	f, err := os.Create(imagePath)
	require.NoError(t, err)
	require.NoError(t, binary.Write(f, binary.BigEndian, uint32(idxImagesMagic)))
	require.NoError(t, binary.Write(f, binary.BigEndian, uint32(numSamples)))
	require.NoError(t, binary.Write(f, binary.BigEndian, uint32(rows)))
	require.NoError(t, binary.Write(f, binary.BigEndian, uint32(cols)))
	for i := 0; i < numSamples; i++ {
		pixels := make([]byte, rows*cols)
		for j := range pixels {
			pixels[j] = byte((i + j) % 256)
		}
		_, err = f.Write(pixels)
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	labelPath := filepath.Join(dir, trainLabelsFile)
	f, err = os.Create(labelPath)
	require.NoError(t, err)
	require.NoError(t, binary.Write(f, binary.BigEndian, uint32(idxLabelsMagic)))
	require.NoError(t, binary.Write(f, binary.BigEndian, uint32(numSamples)))
	for i := 0; i < numSamples; i++ {
		_, err = f.Write([]byte{byte(i % 10)})
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())
}

func TestLoadMNIST(t *testing.T) {
	dir := t.TempDir()
	writeIDXFixtures(t, dir, 20, 28, 28)

	d, err := LoadMNIST(dir, true, 0)
	require.NoError(t, err)

	assert.Equal(t, 20, d.NumSamples())
	assert.Equal(t, 784, d.Features)
	assert.Equal(t, int64(3), d.Labels[3])

	// Pixels normalized to [0, 1].
	for _, v := range d.Images[0] {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
	assert.InDelta(t, 1.0/255.0, float64(d.Images[0][1]), 1e-6)
}

func TestLoadMNISTMaxSamples(t *testing.T) {
	dir := t.TempDir()
	writeIDXFixtures(t, dir, 20, 4, 4)

	d, err := LoadMNIST(dir, true, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, d.NumSamples())
}

func TestLoadMNISTMissingFiles(t *testing.T) {
	_, err := LoadMNIST(t.TempDir(), true, 0)
	assert.Error(t, err)
}

func TestReadIDXBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad")
	require.NoError(t, os.WriteFile(path, []byte{0, 0, 0, 42, 0, 0, 0, 0}, 0o600))

	_, err := ReadIDXImages(path)
	assert.Error(t, err)
	_, err = ReadIDXLabels(path)
	assert.Error(t, err)
}

func TestSplit(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	d := Synthetic(100, 16, 4, rng)

	train, val := d.Split(0.2)
	assert.Equal(t, 80, train.NumSamples())
	assert.Equal(t, 20, val.NumSamples())
	assert.Equal(t, d.Features, train.Features)
	assert.Equal(t, d.Classes, val.Classes)
}

func TestBatches(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(1))
	d := Synthetic(10, 8, 2, rng)

	batches, err := Batches(d, 4, nil, backend)
	require.NoError(t, err)
	require.Len(t, batches, 3)

	assert.Equal(t, tensor.Shape{4, 8}, batches[0].Images.Shape())
	assert.Equal(t, tensor.Shape{4}, batches[0].Labels.Shape())
	assert.Equal(t, 4, batches[0].Size)
	// Last batch holds the remainder.
	assert.Equal(t, 2, batches[2].Size)

	// Unshuffled order preserves labels.
	assert.Equal(t, d.Labels[:4], batches[0].Labels.Data())
}

func TestBatchesShuffled(t *testing.T) {
	backend := cpu.New()
	d := Synthetic(64, 4, 2, rand.New(rand.NewSource(1)))

	a, err := Batches(d, 64, rand.New(rand.NewSource(2)), backend)
	require.NoError(t, err)
	b, err := Batches(d, 64, rand.New(rand.NewSource(3)), backend)
	require.NoError(t, err)

	assert.NotEqual(t, a[0].Labels.Data(), b[0].Labels.Data(), "different seeds should give different orders")
}

func TestBatchesInvalidSize(t *testing.T) {
	backend := cpu.New()
	d := Synthetic(4, 4, 2, rand.New(rand.NewSource(1)))

	_, err := Batches(d, 0, nil, backend)
	assert.Error(t, err)
}

func TestSyntheticIsSeparable(t *testing.T) {
	d := Synthetic(12, 12, 3, rand.New(rand.NewSource(7)))

	for i, img := range d.Images {
		class := int(d.Labels[i])
		block := 12 / 3
		// The class block is bright, the rest dim.
		assert.Greater(t, img[class*block], float32(0.5))
		other := (class*block + 2*block) % 12
		assert.Less(t, img[other], float32(0.5))
	}
}
