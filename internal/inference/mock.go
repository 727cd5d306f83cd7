// internal/inference/mock.go
package inference

import (
	"fmt"
	"sync"
)

// MockInputName is the input name exposed by MockEngine
const MockInputName = "input"

// OutputFunc computes the mock output for one input tensor
type OutputFunc func(in Tensor) (Tensor, error)

// MockEngine is a deterministic Engine for tests and for running the service
// without the ONNX shared library. By default it returns the first channel of
// the input, shifted back to [0,1], as a [1,1,H,W] mask.
type MockEngine struct {
	mu        sync.Mutex
	width     int
	height    int
	output    OutputFunc
	errMsg    string
	callCount int
	closed    bool
}

// NewMock creates a MockEngine with a 1024x1024 input size
func NewMock() *MockEngine {
	return NewMockWithSize(1024, 1024)
}

// NewMockWithSize creates a MockEngine with the given input size
func NewMockWithSize(width, height int) *MockEngine {
	return &MockEngine{
		width:  width,
		height: height,
		output: FirstChannelMask,
	}
}

// NewMockWithOutput creates a MockEngine whose outputs are computed by fn
func NewMockWithOutput(width, height int, fn OutputFunc) *MockEngine {
	m := NewMockWithSize(width, height)
	m.output = fn
	return m
}

// FirstChannelMask turns a [1,C,H,W] input into a [1,1,H,W] mask holding the
// first channel plus 0.5.
func FirstChannelMask(in Tensor) (Tensor, error) {
	if len(in.Shape) != 4 {
		return Tensor{}, fmt.Errorf("expected 4D input, got shape %v", in.Shape)
	}
	h, w := in.Shape[2], in.Shape[3]
	plane := make([]float32, h*w)
	for i := range plane {
		plane[i] = in.Data[i] + 0.5
	}
	return NewTensor([]int64{1, 1, h, w}, plane)
}

// ConstantMask returns an OutputFunc producing a uniform [1,1,H,W] mask
func ConstantMask(v float32) OutputFunc {
	return func(in Tensor) (Tensor, error) {
		if len(in.Shape) != 4 {
			return Tensor{}, fmt.Errorf("expected 4D input, got shape %v", in.Shape)
		}
		h, w := in.Shape[2], in.Shape[3]
		plane := make([]float32, h*w)
		for i := range plane {
			plane[i] = v
		}
		return NewTensor([]int64{1, 1, h, w}, plane)
	}
}

// InputName returns MockInputName
func (m *MockEngine) InputName() string {
	return MockInputName
}

// InputSize returns the configured input size
func (m *MockEngine) InputSize() (int, int) {
	return m.width, m.height
}

// Run validates the input and returns the configured output.
func (m *MockEngine) Run(inputs map[string]Tensor) ([]Tensor, error) {
	m.mu.Lock()
	m.callCount++
	errMsg, closed, fn := m.errMsg, m.closed, m.output
	m.mu.Unlock()

	if closed {
		return nil, ErrNotLoaded
	}
	if errMsg != "" {
		return nil, fmt.Errorf("%w: %s", ErrRun, errMsg)
	}

	in, ok := inputs[MockInputName]
	if !ok {
		return nil, fmt.Errorf("%w: missing input %q", ErrRun, MockInputName)
	}
	if in.Len() != int64(len(in.Data)) {
		return nil, fmt.Errorf("%w: input has wrong size: got %d, expected %d", ErrRun, len(in.Data), in.Len())
	}

	out, err := fn(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRun, err)
	}
	return []Tensor{out}, nil
}

// Describe reports the mock as a loaded model
func (m *MockEngine) Describe() ModelInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ModelInfo{Status: StatusNotLoaded}
	}
	io := []TensorInfo{{Name: MockInputName, Shape: []int64{1, 3, int64(m.height), int64(m.width)}, Type: "float32"}}
	return ModelInfo{
		Status:    StatusLoaded,
		ModelPath: "mock",
		InputSize: []int{m.width, m.height},
		ModelName: "mock",
		Inputs:    io,
		Outputs:   []TensorInfo{{Name: "output", Shape: []int64{1, 1, int64(m.height), int64(m.width)}, Type: "float32"}},
	}
}

// Close marks the mock as closed; later Run calls fail with ErrNotLoaded
func (m *MockEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// CallCount returns the number of Run calls
func (m *MockEngine) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// SetError configures the mock to fail every Run call with msg
func (m *MockEngine) SetError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errMsg = msg
}

// ClearError clears any configured error
func (m *MockEngine) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errMsg = ""
}

// Ensure MockEngine implements Engine at compile time
var _ Engine = (*MockEngine)(nil)
