// internal/inference/interface.go
package inference

import "errors"

var (
	// ErrModelLoad marks failures while validating or loading a model. These are
	// startup failures and never happen per call.
	ErrModelLoad = errors.New("model load failed")

	// ErrRun marks a failed inference call.
	ErrRun = errors.New("inference failed")

	// ErrNotLoaded is returned by Run after Close or before a model was loaded.
	ErrNotLoaded = errors.New("inference session is nil")
)

// Engine is the contract the segmentation pipeline needs from a loaded model.
// Implementations must be safe for concurrent Run calls.
type Engine interface {
	// InputName is the name of the first model input.
	InputName() string

	// InputSize is the (width, height) the model expects.
	InputSize() (width, height int)

	// Run binds inputs by name and returns the model outputs in declaration order.
	Run(inputs map[string]Tensor) ([]Tensor, error)

	// Describe reports model status and IO metadata for health endpoints.
	Describe() ModelInfo

	// Close releases any resources held by the engine.
	Close() error
}

// TensorInfo describes one model input or output.
type TensorInfo struct {
	Name  string  `json:"name"`
	Shape []int64 `json:"shape"`
	Type  string  `json:"type"`
}

// ModelInfo is the introspection record returned by Engine.Describe.
type ModelInfo struct {
	Status    string       `json:"status"`
	ModelPath string       `json:"model_path,omitempty"`
	InputSize []int        `json:"input_size,omitempty"`
	ModelName string       `json:"model_name,omitempty"`
	Inputs    []TensorInfo `json:"inputs,omitempty"`
	Outputs   []TensorInfo `json:"outputs,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Model status values
const (
	StatusLoaded    = "loaded"
	StatusNotLoaded = "not_loaded"
	StatusError     = "error"
)
