package specs

// Specification is a composable predicate over domain values. Implementations
// are pure so they can run inside the matching engine without a context.
type Specification[T any] interface {
	IsSatisfiedBy(v T) bool
	And(other Specification[T]) Specification[T]
	Or(other Specification[T]) Specification[T]
	Not() Specification[T]
}

type specFunc[T any] func(v T) bool

func (f specFunc[T]) IsSatisfiedBy(v T) bool { return f(v) }

func (f specFunc[T]) And(other Specification[T]) Specification[T] {
	return specFunc[T](func(v T) bool {
		return f(v) && other.IsSatisfiedBy(v)
	})
}

func (f specFunc[T]) Or(other Specification[T]) Specification[T] {
	return specFunc[T](func(v T) bool {
		return f(v) || other.IsSatisfiedBy(v)
	})
}

func (f specFunc[T]) Not() Specification[T] {
	return specFunc[T](func(v T) bool { return !f(v) })
}

// New constructs a Specification from a predicate.
func New[T any](fn func(v T) bool) Specification[T] { return specFunc[T](fn) }

// Filter keeps the values that satisfy s, preserving order.
func Filter[T any](s Specification[T], values []T) []T {
	out := make([]T, 0, len(values))
	for _, v := range values {
		if s.IsSatisfiedBy(v) {
			out = append(out, v)
		}
	}
	return out
}
