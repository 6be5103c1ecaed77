package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"neuroinfer/internal/tensor"
)

var envMu sync.Mutex

// ONNXModel runs a model file through ONNX Runtime. Input and output names
// are discovered from the file; only the first output is returned.
type ONNXModel struct {
	session *ort.DynamicAdvancedSession
	input   string
	output  string
	outputs int
}

// OpenONNX initializes the runtime environment on first use and creates
// a session for the model at path. libPath may be empty to let the
// runtime search its default locations.
func OpenONNX(path, libPath string) (*ONNXModel, error) {
	if path == "" {
		return nil, errors.New("no model path configured")
	}
	if err := initEnvironment(libPath); err != nil {
		return nil, err
	}

	ins, outs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("inspect model %s: %w", path, err)
	}
	if len(ins) == 0 || len(outs) == 0 {
		return nil, fmt.Errorf("model %s declares %d inputs and %d outputs", path, len(ins), len(outs))
	}
	outNames := make([]string, len(outs))
	for i, o := range outs {
		outNames[i] = o.Name
	}

	sess, err := ort.NewDynamicAdvancedSession(path, []string{ins[0].Name}, outNames, nil)
	if err != nil {
		return nil, fmt.Errorf("create session for %s: %w", path, err)
	}
	return &ONNXModel{
		session: sess,
		input:   ins[0].Name,
		output:  outNames[0],
		outputs: len(outNames),
	}, nil
}

func initEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	return nil
}

// Run feeds input to the model. The runtime call itself is not
// interruptible; ctx is only checked before it starts.
func (m *ONNXModel) Run(ctx context.Context, input *tensor.Tensor[float32]) (*tensor.Tensor[float64], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dims := make([]int64, len(input.Shape))
	for i, d := range input.Shape {
		dims[i] = int64(d)
	}
	in, err := ort.NewTensor(ort.NewShape(dims...), input.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: build input %q: %v", ErrInference, m.input, err)
	}
	defer in.Destroy()

	outs := make([]ort.Value, m.outputs)
	if err := m.session.Run([]ort.Value{in}, outs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	defer func() {
		for _, o := range outs {
			if o != nil {
				o.Destroy()
			}
		}
	}()
	return toFloat64(outs[0])
}

func toFloat64(v ort.Value) (*tensor.Tensor[float64], error) {
	if v == nil {
		return nil, fmt.Errorf("%w: model produced no output", ErrInference)
	}
	shape := v.GetShape()
	dims := make([]int, len(shape))
	for i, d := range shape {
		dims[i] = int(d)
	}
	var data []float64
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		data = convert(t.GetData())
	case *ort.Tensor[float64]:
		data = append([]float64(nil), t.GetData()...)
	case *ort.Tensor[int64]:
		data = convert(t.GetData())
	case *ort.Tensor[int32]:
		data = convert(t.GetData())
	default:
		return nil, fmt.Errorf("%w: unsupported output type %T", ErrInference, v)
	}
	out, err := tensor.New(dims, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	return out, nil
}

func convert[T float32 | int64 | int32](src []T) []float64 {
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = float64(v)
	}
	return out
}

func (m *ONNXModel) Close() error {
	return m.session.Destroy()
}

// ShutdownRuntime releases the process-wide ONNX Runtime environment.
func ShutdownRuntime() error {
	envMu.Lock()
	defer envMu.Unlock()
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}
