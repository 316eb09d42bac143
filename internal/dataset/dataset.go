// Package dataset loads and batches labeled image data for training.
//
// It reads the official MNIST IDX binary files, normalizes pixels to
// [0, 1], and slices the result into shuffled mini-batch tensors.
package dataset

import (
	"fmt"
	"math/rand"
	"path/filepath"
)

// MNIST file names as distributed at yann.lecun.com/exdb/mnist.
const (
	trainImagesFile = "train-images-idx3-ubyte"
	trainLabelsFile = "train-labels-idx1-ubyte"
	testImagesFile  = "t10k-images-idx3-ubyte"
	testLabelsFile  = "t10k-labels-idx1-ubyte"
)

// Dataset holds flattened images and their class labels.
type Dataset struct {
	Images   [][]float32 // [numSamples][features], pixels in [0, 1]
	Labels   []int64     // [numSamples], class indices
	Features int         // pixels per image
	Classes  int         // number of distinct classes
}

// LoadMNIST loads the train or test split from a directory holding the
// official IDX files. maxSamples limits the load; 0 loads everything.
func LoadMNIST(dataDir string, train bool, maxSamples int) (*Dataset, error) {
	imageFile, labelFile := testImagesFile, testLabelsFile
	if train {
		imageFile, labelFile = trainImagesFile, trainLabelsFile
	}

	imagesRaw, err := ReadIDXImages(filepath.Join(dataDir, imageFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load images: %w", err)
	}
	labelsRaw, err := ReadIDXLabels(filepath.Join(dataDir, labelFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}
	if len(imagesRaw) != len(labelsRaw) {
		return nil, fmt.Errorf("image count (%d) != label count (%d)", len(imagesRaw), len(labelsRaw))
	}

	numSamples := len(imagesRaw)
	if maxSamples > 0 && numSamples > maxSamples {
		numSamples = maxSamples
	}
	features := 0
	if numSamples > 0 {
		features = len(imagesRaw[0])
	}

	images := make([][]float32, numSamples)
	labels := make([]int64, numSamples)
	for i := 0; i < numSamples; i++ {
		images[i] = make([]float32, features)
		for j, p := range imagesRaw[i] {
			images[i][j] = float32(p) / 255.0
		}
		labels[i] = int64(labelsRaw[i])
	}

	return &Dataset{
		Images:   images,
		Labels:   labels,
		Features: features,
		Classes:  10,
	}, nil
}

// NumSamples returns the number of samples.
func (d *Dataset) NumSamples() int {
	return len(d.Images)
}

// Split partitions the dataset into train and validation sets.
// validationRatio is the fraction held out, e.g. 0.2 for 20%.
func (d *Dataset) Split(validationRatio float64) (*Dataset, *Dataset) {
	splitIdx := int(float64(d.NumSamples()) * (1.0 - validationRatio))

	train := &Dataset{
		Images:   d.Images[:splitIdx],
		Labels:   d.Labels[:splitIdx],
		Features: d.Features,
		Classes:  d.Classes,
	}
	validation := &Dataset{
		Images:   d.Images[splitIdx:],
		Labels:   d.Labels[splitIdx:],
		Features: d.Features,
		Classes:  d.Classes,
	}
	return train, validation
}

// Synthetic generates a separable toy dataset for tests and smoke runs:
// each sample's class determines which block of features lights up, with
// uniform noise elsewhere.
func Synthetic(numSamples, features, classes int, rng *rand.Rand) *Dataset {
	images := make([][]float32, numSamples)
	labels := make([]int64, numSamples)

	block := features / classes
	if block == 0 {
		block = 1
	}

	for i := 0; i < numSamples; i++ {
		class := i % classes
		labels[i] = int64(class)

		images[i] = make([]float32, features)
		for j := range images[i] {
			images[i][j] = rng.Float32() * 0.1
		}
		start := class * block
		for j := start; j < start+block && j < features; j++ {
			images[i][j] = 0.8 + rng.Float32()*0.2
		}
	}

	return &Dataset{
		Images:   images,
		Labels:   labels,
		Features: features,
		Classes:  classes,
	}
}
