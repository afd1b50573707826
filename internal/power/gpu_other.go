//go:build !linux || !cgo || nonvml

package power

// OpenGPU always fails on platforms without NVML support.
// GPU power is then reported as 0 W.
func OpenGPU() (GPUSource, error) {
	return nil, ErrNoGPU
}
