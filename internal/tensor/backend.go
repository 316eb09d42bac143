package tensor

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations and must
// never modify their input tensors in place: every operation allocates a
// fresh result, which keeps recorded computation graphs valid.
//
// Implementations:
//   - cpu.Backend: pure Go kernels with BLAS-backed matrix multiplication
//   - autodiff.Backend: decorator adding gradient tracking to any backend
type Backend interface {
	// Element-wise binary operations (with broadcasting)
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Matrix operations
	MatMul(a, b *RawTensor) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// Scalar operations (element-wise with scalar)
	MulScalar(x *RawTensor, scalar float64) *RawTensor
	AddScalar(x *RawTensor, scalar float64) *RawTensor

	// Math operations (element-wise)
	Exp(x *RawTensor) *RawTensor
	Log(x *RawTensor) *RawTensor

	// Softmax along the last dimension
	Softmax(x *RawTensor) *RawTensor

	// Reduction operations
	Sum(x *RawTensor) *RawTensor        // total sum (shape [1] result)
	Argmax(x *RawTensor) *RawTensor     // row-wise argmax of a 2D tensor, int64 [rows]

	// Metadata
	Name() string
	Device() Device
}
