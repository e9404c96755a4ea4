package nn

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	ErrActivationExists    = errors.New("activation already registered")
	ErrActivationNotFound  = errors.New("activation not found")
	ErrActivationUnbounded = errors.New("activation range must be finite")
)

type ActivationFunc func(x float64) float64

// ActivationSpec registers a saturating activation. Outputs are clamped to
// [Min, Max] by the evaluator, so a misbehaving function cannot leak runaway
// values into the simulation.
type ActivationSpec struct {
	Name string
	Func ActivationFunc
	Min  float64
	Max  float64
}

type registeredActivation struct {
	fn       ActivationFunc
	min, max float64
}

var activationRegistry = struct {
	mu sync.RWMutex
	m  map[string]registeredActivation
}{
	m: make(map[string]registeredActivation),
}

func init() {
	initializeBuiltInActivations()
}

func initializeBuiltInActivations() {
	MustRegisterActivation(ActivationSpec{Name: "tanh", Func: math.Tanh, Min: -1, Max: 1})
	MustRegisterActivation(ActivationSpec{Name: "sigmoid", Func: func(x float64) float64 {
		return 1.0 / (1.0 + math.Exp(-x))
	}, Min: 0, Max: 1})
	MustRegisterActivation(ActivationSpec{Name: "clamped", Func: func(x float64) float64 {
		return Sat(x, 1, -1)
	}, Min: -1, Max: 1})
	MustRegisterActivation(ActivationSpec{Name: "relu6", Func: func(x float64) float64 {
		return Sat(x, 6, 0)
	}, Min: 0, Max: 6})
	MustRegisterActivation(ActivationSpec{Name: "gaussian", Func: func(x float64) float64 {
		return math.Exp(-x * x / 2)
	}, Min: 0, Max: 1})
}

func MustRegisterActivation(spec ActivationSpec) {
	if err := RegisterActivation(spec); err != nil {
		panic(err)
	}
}

func RegisterActivation(spec ActivationSpec) error {
	if spec.Name == "" {
		return errors.New("activation name is required")
	}
	if spec.Func == nil {
		return errors.New("activation function is required")
	}
	if !isFinite(spec.Min) || !isFinite(spec.Max) || spec.Min > spec.Max {
		return fmt.Errorf("%w: %s [%v, %v]", ErrActivationUnbounded, spec.Name, spec.Min, spec.Max)
	}

	activationRegistry.mu.Lock()
	defer activationRegistry.mu.Unlock()

	if _, exists := activationRegistry.m[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrActivationExists, spec.Name)
	}
	activationRegistry.m[spec.Name] = registeredActivation{fn: spec.Func, min: spec.Min, max: spec.Max}
	return nil
}

// GetActivation returns the registered function wrapped with its output clamp.
func GetActivation(name string) (ActivationFunc, error) {
	activationRegistry.mu.RLock()
	entry, ok := activationRegistry.m[name]
	activationRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActivationNotFound, name)
	}
	return func(x float64) float64 {
		y := entry.fn(x)
		if math.IsNaN(y) {
			return 0
		}
		return Sat(y, entry.max, entry.min)
	}, nil
}

func ListActivations() []string {
	activationRegistry.mu.RLock()
	defer activationRegistry.mu.RUnlock()

	names := make([]string, 0, len(activationRegistry.m))
	for name := range activationRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetActivationRegistryForTests() {
	activationRegistry.mu.Lock()
	activationRegistry.m = make(map[string]registeredActivation)
	activationRegistry.mu.Unlock()
	initializeBuiltInActivations()
}
