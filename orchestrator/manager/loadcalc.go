package manager

// LoadCalculator yields the connection count of every ramp step, in order.
type LoadCalculator interface {
	Plan() []int
}

// NewStepFunctionLoadCalculator ramps linearly: 1, 1+step, 1+2*step, ... while the value
// stays <= maxConnections. The last step may stop short of maxConnections. A step of 0
// runs a single step at maxConnections.
func NewStepFunctionLoadCalculator(maxConnections int, step int) LoadCalculator {
	return &StepFunctionLoadCalculator{maxConnections: maxConnections, stepSize: step}
}

// NewExponentialLoadCalculator doubles from 1 and always ends on maxConnections.
func NewExponentialLoadCalculator(maxConnections int) LoadCalculator {
	return &ExponentialFunctionLoadCalculator{maxConnections: maxConnections, factor: 2}
}

type StepFunctionLoadCalculator struct {
	maxConnections int
	stepSize       int
}

func (s *StepFunctionLoadCalculator) Plan() []int {
	if s.maxConnections <= 0 {
		return nil
	}
	if s.stepSize <= 0 {
		return []int{s.maxConnections}
	}
	plan := make([]int, 0, (s.maxConnections-1)/s.stepSize+1)
	for connections := 1; connections <= s.maxConnections; connections += s.stepSize {
		plan = append(plan, connections)
	}
	return plan
}

type ExponentialFunctionLoadCalculator struct {
	maxConnections int
	factor         int
}

func (e *ExponentialFunctionLoadCalculator) Plan() []int {
	if e.maxConnections <= 0 {
		return nil
	}
	plan := make([]int, 0, 16)
	for connections := 1; connections < e.maxConnections; connections *= e.factor {
		plan = append(plan, connections)
	}
	return append(plan, e.maxConnections)
}
