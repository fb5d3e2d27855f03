package optim

import (
	"github.com/born-ml/sparseconv/internal/nn"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Example:
//
//	optimizer := optim.NewSGD(model.Parameters(), optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
type SGD[T tensor.Float] struct {
	params     []*nn.Parameter[T]
	lr         float64
	momentum   float64
	velocities map[*nn.Parameter[T]][]T
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float64 // Learning rate (default: 0.01)
	Momentum float64 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
func NewSGD[T tensor.Float](params []*nn.Parameter[T], config SGDConfig) *SGD[T] {
	if config.LR == 0 {
		config.LR = 0.01
	}

	return &SGD[T]{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[*nn.Parameter[T]][]T),
	}
}

// Step performs a single optimization step.
func (s *SGD[T]) Step() {
	lr := T(s.lr)
	for _, param := range s.params {
		value, grad := param.Value(), param.Grad()
		if s.momentum == 0 {
			for i, g := range grad {
				value[i] -= lr * g
			}
			continue
		}

		velocity, ok := s.velocities[param]
		if !ok {
			velocity = make([]T, len(value))
			s.velocities[param] = velocity
		}
		momentum := T(s.momentum)
		for i, g := range grad {
			velocity[i] = momentum*velocity[i] + g
			value[i] -= lr * velocity[i]
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD[T]) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (s *SGD[T]) GetLR() float64 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD[T]) SetLR(lr float64) {
	s.lr = lr
}
