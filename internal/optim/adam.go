package optim

import (
	"math"

	"github.com/born-ml/sparseconv/internal/nn"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²
//	m_hat = m_t / (1 - beta1^t)
//	v_hat = v_t / (1 - beta2^t)
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)
//
// Moments are kept in float64 regardless of T.
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam[T tensor.Float] struct {
	params []*nn.Parameter[T]
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64
	t      int                            // Timestep for bias correction
	m      map[*nn.Parameter[T]][]float64 // First moment estimates
	v      map[*nn.Parameter[T]][]float64 // Second moment estimates
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float64    // Learning rate (default: 0.001)
	Betas [2]float64 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float64    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer. Zero config fields take the
// defaults LR 0.001, betas (0.9, 0.999) and eps 1e-8.
func NewAdam[T tensor.Float](params []*nn.Parameter[T], config AdamConfig) *Adam[T] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &Adam[T]{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      make(map[*nn.Parameter[T]][]float64),
		v:      make(map[*nn.Parameter[T]][]float64),
	}
}

// Step performs a single optimization step using Adam algorithm.
func (a *Adam[T]) Step() {
	a.t++
	biasCorrection1 := 1 - math.Pow(a.beta1, float64(a.t))
	biasCorrection2 := 1 - math.Pow(a.beta2, float64(a.t))

	for _, param := range a.params {
		value, grad := param.Value(), param.Grad()
		m, ok := a.m[param]
		if !ok {
			m = make([]float64, len(value))
			a.m[param] = m
		}
		v, ok := a.v[param]
		if !ok {
			v = make([]float64, len(value))
			a.v[param] = v
		}

		for i := range value {
			g := float64(grad[i])
			m[i] = a.beta1*m[i] + (1-a.beta1)*g
			v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
			mHat := m[i] / biasCorrection1
			vHat := v[i] / biasCorrection2
			value[i] -= T(a.lr * mHat / (math.Sqrt(vHat) + a.eps))
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam[T]) ZeroGrad() {
	for _, param := range a.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (a *Adam[T]) GetLR() float64 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam[T]) SetLR(lr float64) {
	a.lr = lr
}

// GetTimestep returns the current timestep.
func (a *Adam[T]) GetTimestep() int {
	return a.t
}
