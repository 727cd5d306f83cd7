// internal/inference/onnx.go
package inference

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ModelExt is the only accepted model file extension.
const ModelExt = ".onnx"

// Options tunes how a model is loaded.
type Options struct {
	// SharedLibraryPath points at the onnxruntime shared library. Empty uses the
	// platform default lookup.
	SharedLibraryPath string
	// IntraOpThreads limits ORT intra-op parallelism; 0 keeps the ORT default.
	IntraOpThreads int
}

// ONNXEngine wraps an ONNX runtime session for thread-safe inference.
// It implements the Engine interface.
type ONNXEngine struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	ownsEnv    bool
	modelPath  string
	modelName  string
	width      int
	height     int
	inputs     []TensorInfo
	outputs    []TensorInfo
	inputNames []string
}

// ValidateModelPath checks that the model file exists and has the .onnx extension.
func ValidateModelPath(modelPath string) error {
	info, err := os.Stat(modelPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: model file does not exist: %s", ErrModelLoad, modelPath)
		}
		return fmt.Errorf("%w: stat model file: %w", ErrModelLoad, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: model path is a directory: %s", ErrModelLoad, modelPath)
	}
	if !strings.EqualFold(filepath.Ext(modelPath), ModelExt) {
		return fmt.Errorf("%w: model file must be in ONNX format: %s", ErrModelLoad, modelPath)
	}
	return nil
}

// Load validates modelPath and creates a session for it. width and height are
// the model input size used by preprocessing.
func Load(modelPath string, width, height int, opts Options) (*ONNXEngine, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid model input size %dx%d", ErrModelLoad, width, height)
	}
	if err := ValidateModelPath(modelPath); err != nil {
		return nil, err
	}

	ownsEnv := false
	if !ort.IsInitialized() {
		if opts.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(opts.SharedLibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: failed to initialize ONNX environment: %w", ErrModelLoad, err)
		}
		ownsEnv = true
	}

	e, err := newSession(modelPath, width, height, opts)
	if err != nil {
		if ownsEnv {
			_ = ort.DestroyEnvironment()
		}
		return nil, err
	}
	e.ownsEnv = ownsEnv
	return e, nil
}

func newSession(modelPath string, width, height int, opts Options) (*ONNXEngine, error) {
	inputInfo, outputInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read model inputs and outputs: %w", ErrModelLoad, err)
	}
	if len(inputInfo) == 0 || len(outputInfo) == 0 {
		return nil, fmt.Errorf("%w: model must declare at least one input and one output", ErrModelLoad)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create session options: %w", ErrModelLoad, err)
	}
	defer options.Destroy()

	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("%w: failed to set optimization level: %w", ErrModelLoad, err)
	}
	if opts.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("%w: failed to set intra-op threads: %w", ErrModelLoad, err)
		}
	}

	e := &ONNXEngine{
		modelPath: modelPath,
		modelName: modelName(modelPath),
		width:     width,
		height:    height,
		inputs:    describeIO(inputInfo),
		outputs:   describeIO(outputInfo),
	}

	outputNames := make([]string, 0, len(e.outputs))
	for _, in := range e.inputs {
		e.inputNames = append(e.inputNames, in.Name)
	}
	for _, out := range e.outputs {
		outputNames = append(outputNames, out.Name)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, e.inputNames, outputNames, options)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create ONNX session: %w", ErrModelLoad, err)
	}
	e.session = session

	return e, nil
}

func describeIO(infos []ort.InputOutputInfo) []TensorInfo {
	out := make([]TensorInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, TensorInfo{
			Name:  info.Name,
			Shape: append([]int64(nil), info.Dimensions...),
			Type:  fmt.Sprintf("%v", info.DataType),
		})
	}
	return out
}

// modelName returns the graph name from the model metadata, or "Unknown".
func modelName(modelPath string) string {
	md, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		return "Unknown"
	}
	defer md.Destroy()

	name, err := md.GetGraphName()
	if err != nil || name == "" {
		return "Unknown"
	}
	return name
}

// InputName returns the first declared model input.
func (e *ONNXEngine) InputName() string {
	if len(e.inputNames) == 0 {
		return ""
	}
	return e.inputNames[0]
}

// InputSize returns the configured model input (width, height).
func (e *ONNXEngine) InputSize() (int, int) {
	return e.width, e.height
}

// Run executes the model. Each call allocates its own ORT tensors and copies the
// outputs into Go memory before releasing them. Calls are serialized.
func (e *ONNXEngine) Run(inputs map[string]Tensor) ([]Tensor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil, ErrNotLoaded
	}

	inputValues := make([]ort.Value, 0, len(e.inputNames))
	defer func() {
		for _, v := range inputValues {
			v.Destroy()
		}
	}()

	for _, name := range e.inputNames {
		t, ok := inputs[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing input %q", ErrRun, name)
		}
		v, err := ort.NewTensor(ort.NewShape(t.Shape...), t.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create input tensor %q: %w", ErrRun, name, err)
		}
		inputValues = append(inputValues, v)
	}

	// nil outputs are allocated by onnxruntime with the shapes the graph produces
	outputValues := make([]ort.Value, len(e.outputs))
	defer func() {
		for _, v := range outputValues {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	if err := e.session.Run(inputValues, outputValues); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRun, err)
	}

	results := make([]Tensor, 0, len(outputValues))
	for i, v := range outputValues {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("%w: output %q is not a float32 tensor", ErrRun, e.outputs[i].Name)
		}
		data := t.GetData()
		results = append(results, Tensor{
			Shape: append([]int64(nil), t.GetShape()...),
			Data:  append([]float32(nil), data...),
		})
	}

	return results, nil
}

// Describe reports model status and IO metadata.
func (e *ONNXEngine) Describe() ModelInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return ModelInfo{Status: StatusNotLoaded, ModelPath: e.modelPath}
	}

	return ModelInfo{
		Status:    StatusLoaded,
		ModelPath: e.modelPath,
		InputSize: []int{e.width, e.height},
		ModelName: e.modelName,
		Inputs:    e.inputs,
		Outputs:   e.outputs,
	}
}

// Close releases the ONNX session resources
func (e *ONNXEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		err := e.session.Destroy()
		e.session = nil
		if err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
	}

	if e.ownsEnv {
		e.ownsEnv = false
		return ort.DestroyEnvironment()
	}
	return nil
}

// Ensure ONNXEngine implements Engine at compile time
var _ Engine = (*ONNXEngine)(nil)
