package dataset

import (
	"fmt"
	"math/rand"

	"github.com/kiln-ml/kiln/internal/tensor"
)

// Batch is one mini-batch ready for the model: images as a 2D float32
// tensor and labels as int64 class indices.
type Batch[B tensor.Backend] struct {
	Images *tensor.Tensor[float32, B] // [size, features]
	Labels *tensor.Tensor[int64, B]   // [size]
	Size   int
}

// Batches slices the dataset into mini-batches. With a non-nil rng the
// sample order is shuffled first; pass nil for deterministic order.
// The last batch may be smaller when the data does not divide evenly.
func Batches[B tensor.Backend](d *Dataset, batchSize int, rng *rand.Rand, backend B) ([]*Batch[B], error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	numSamples := d.NumSamples()
	if numSamples != len(d.Labels) {
		return nil, fmt.Errorf("images and labels length mismatch: %d vs %d", numSamples, len(d.Labels))
	}

	indices := make([]int, numSamples)
	for i := range indices {
		indices[i] = i
	}
	if rng != nil {
		rng.Shuffle(numSamples, func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	numBatches := (numSamples + batchSize - 1) / batchSize
	batches := make([]*Batch[B], 0, numBatches)

	for start := 0; start < numSamples; start += batchSize {
		end := start + batchSize
		if end > numSamples {
			end = numSamples
		}
		size := end - start

		imagesRaw, err := tensor.NewRaw(tensor.Shape{size, d.Features}, tensor.Float32, backend.Device())
		if err != nil {
			return nil, fmt.Errorf("failed to create images tensor: %w", err)
		}
		labelsRaw, err := tensor.NewRaw(tensor.Shape{size}, tensor.Int64, backend.Device())
		if err != nil {
			return nil, fmt.Errorf("failed to create labels tensor: %w", err)
		}

		imagesData := imagesRaw.AsFloat32()
		labelsData := labelsRaw.AsInt64()
		for row := 0; row < size; row++ {
			idx := indices[start+row]
			copy(imagesData[row*d.Features:(row+1)*d.Features], d.Images[idx])
			labelsData[row] = d.Labels[idx]
		}

		batches = append(batches, &Batch[B]{
			Images: tensor.New[float32, B](imagesRaw, backend),
			Labels: tensor.New[int64, B](labelsRaw, backend),
			Size:   size,
		})
	}

	return batches, nil
}
