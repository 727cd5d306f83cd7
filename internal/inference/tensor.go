// internal/inference/tensor.go
package inference

import "fmt"

// Tensor is a dense float32 buffer in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// NewTensor checks that data matches shape.
func NewTensor(shape []int64, data []float32) (Tensor, error) {
	n := elementCount(shape)
	if n < 0 {
		return Tensor{}, fmt.Errorf("invalid tensor shape %v", shape)
	}
	if int64(len(data)) != n {
		return Tensor{}, fmt.Errorf("tensor data has wrong size: got %d, expected %d for shape %v", len(data), n, shape)
	}
	return Tensor{Shape: shape, Data: data}, nil
}

// Len returns the number of elements implied by the shape.
func (t Tensor) Len() int64 {
	return elementCount(t.Shape)
}

func elementCount(shape []int64) int64 {
	if len(shape) == 0 {
		return -1
	}
	n := int64(1)
	for _, d := range shape {
		if d < 0 {
			return -1
		}
		n *= d
	}
	return n
}
