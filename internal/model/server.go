package model

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

// Devices accepted by NewServer.
const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

// Classifier produces a probability vector from preprocessed input data.
type Classifier interface {
	Classify(inputData []float32) ([]float32, error)
}

// ServerOptions configures the ONNX runtime session.
type ServerOptions struct {
	ModelPath   string
	LibraryPath string
	Device      string
	Metadata    Metadata
}

// Server runs the classifier graph through onnxruntime. The input and output
// tensors are shared, so Classify holds mu for the whole copy, run and read.
type Server struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	Device       string
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func NewServer(opts ServerOptions) (*Server, error) {
	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	s, err := newServer(opts)
	if err != nil && (opts.Device == DeviceAuto || opts.Device == "") {
		// The CUDA provider can attach cleanly and still fail at session creation.
		log.Warn().Err(err).Msg("session creation failed, retrying on CPU")
		opts.Device = DeviceCPU
		s, err = newServer(opts)
	}
	if err != nil {
		ort.DestroyEnvironment()
		return nil, err
	}
	return s, nil
}

func newServer(opts ServerOptions) (*Server, error) {
	metadata := opts.Metadata

	inputShape := ort.NewShape(metadata.InputShape...)
	outputShape := ort.NewShape(metadata.OutputShape...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	options, device, err := sessionOptions(opts.Device)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		options)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Server{
		session:      session,
		Metadata:     metadata,
		Device:       device,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// sessionOptions resolves the requested device to execution providers.
// "auto" falls back to the CPU provider when CUDA cannot be attached.
func sessionOptions(device string) (*ort.SessionOptions, string, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session options: %w", err)
	}

	switch device {
	case DeviceCPU:
		return options, DeviceCPU, nil
	case DeviceCUDA, DeviceAuto, "":
		if err := appendCUDA(options); err != nil {
			if device == DeviceCUDA {
				options.Destroy()
				return nil, "", fmt.Errorf("CUDA requested but unavailable: %w", err)
			}
			log.Warn().Err(err).Msg("CUDA unavailable, using CPU")
			return options, DeviceCPU, nil
		}
		return options, DeviceCUDA, nil
	default:
		options.Destroy()
		return nil, "", fmt.Errorf("unknown device %q", device)
	}
}

func appendCUDA(options *ort.SessionOptions) error {
	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cudaOptions.Destroy()

	return options.AppendExecutionProviderCUDA(cudaOptions)
}

// Classify runs one forward pass and returns a fresh probability vector.
func (s *Server) Classify(inputData []float32) ([]float32, error) {
	if len(inputData) != s.Metadata.InputSize() {
		return nil, fmt.Errorf("expected %d input values, got %d", s.Metadata.InputSize(), len(inputData))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.inputTensor.GetData(), inputData)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	outputData := s.outputTensor.GetData()
	if s.Metadata.Output == OutputLogits {
		return Softmax(outputData), nil
	}
	return append([]float32(nil), outputData...), nil
}

func (s *Server) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}
