package container

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// Container wires singletons by type. Providers receive the container and
// resolve their own dependencies, so wiring stays type-checked.
//
// Closers registered with OnClose run in reverse order on Close, which lets
// main tear down in the opposite order of construction.
type Container struct {
	mu        sync.Mutex
	prov      map[reflect.Type]func(*Container) (any, error)
	instances map[reflect.Type]any
	building  map[reflect.Type]bool
	closers   []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

var ErrNoProvider = errors.New("container: no provider")

func New() *Container {
	return &Container{
		prov:      make(map[reflect.Type]func(*Container) (any, error)),
		instances: make(map[reflect.Type]any),
		building:  make(map[reflect.Type]bool),
	}
}

func typeOf[T any]() reflect.Type { return reflect.TypeOf((*T)(nil)).Elem() }

// Provide registers the constructor for T. Registering T twice is an error.
func Provide[T any](c *Container, ctor func(*Container) (T, error)) error {
	t := typeOf[T]()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.prov[t]; exists {
		return fmt.Errorf("container: provider already exists for %v", t)
	}
	c.prov[t] = func(c *Container) (any, error) { return ctor(c) }
	return nil
}

// Resolve builds T on first use and returns the cached instance afterwards.
func Resolve[T any](c *Container) (T, error) {
	var zero T
	t := typeOf[T]()

	c.mu.Lock()
	if v, ok := c.instances[t]; ok {
		c.mu.Unlock()
		out, _ := v.(T)
		return out, nil
	}
	ctor, ok := c.prov[t]
	if !ok {
		c.mu.Unlock()
		return zero, fmt.Errorf("%w for %v", ErrNoProvider, t)
	}
	if c.building[t] {
		c.mu.Unlock()
		return zero, fmt.Errorf("container: cyclic dependency for %v", t)
	}
	c.building[t] = true
	c.mu.Unlock()

	// Constructors resolve their own deps, so the lock is not held here.
	v, err := ctor(c)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.building, t)
	if err != nil {
		return zero, fmt.Errorf("container: build %v: %w", t, err)
	}
	c.instances[t] = v
	out, _ := v.(T)
	return out, nil
}

// MustResolve panics when T cannot be built. Meant for main.
func MustResolve[T any](c *Container) T {
	v, err := Resolve[T](c)
	if err != nil {
		panic(err)
	}
	return v
}

// OnClose registers fn to run on Close.
func (c *Container) OnClose(name string, fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, namedCloser{name: name, fn: fn})
}

// Close runs closers last-registered first and joins their errors.
func (c *Container) Close() error {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", closers[i].name, err))
		}
	}
	return errors.Join(errs...)
}
