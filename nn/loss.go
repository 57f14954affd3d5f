package nn

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// CrossEntropyResult holds the outcome of SoftmaxCrossEntropy for one batch
type CrossEntropyResult struct {
	Loss  float64   // mean loss over the batch
	Grad  []float32 // dLoss/dLogits, [batchSize * numClasses]
	Preds []int     // arg-max class per sample
}

// SoftmaxCrossEntropy computes the mean cross-entropy of softmax(logits) against
// integer class labels, the gradient with respect to the logits, and the
// arg-max predictions. logits is [len(labels) * numClasses].
func SoftmaxCrossEntropy(logits []float32, labels []int, numClasses int) (*CrossEntropyResult, error) {
	batchSize := len(labels)
	if batchSize == 0 {
		return nil, ErrBatchSize
	}
	if len(logits) != batchSize*numClasses {
		return nil, &ShapeError{Layer: -1, Expected: batchSize * numClasses, Got: len(logits)}
	}

	res := &CrossEntropyResult{
		Grad:  make([]float32, len(logits)),
		Preds: make([]int, batchSize),
	}
	scale := 1.0 / float32(batchSize)

	var total float64
	for b := 0; b < batchSize; b++ {
		label := labels[b]
		if label < 0 || label >= numClasses {
			return nil, errors.Errorf("label %d at sample %d out of range [0, %d)", label, b, numClasses)
		}

		row := logits[b*numClasses : (b+1)*numClasses]
		res.Preds[b] = ArgMax(row)

		// log-sum-exp with the max subtracted for stability
		maxVal := row[res.Preds[b]]
		var sum float32
		for _, v := range row {
			sum += math32.Exp(v - maxVal)
		}
		logSum := math32.Log(sum) + maxVal

		total += float64(logSum - row[label])

		for j, v := range row {
			p := math32.Exp(v - logSum)
			if j == label {
				p -= 1
			}
			res.Grad[b*numClasses+j] = p * scale
		}
	}

	res.Loss = total / float64(batchSize)
	return res, nil
}
