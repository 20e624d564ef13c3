package container

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pool struct{ size int }

type registry struct{ p *pool }

type greeter interface{ Greet() string }

type english struct{}

func (english) Greet() string { return "hello" }

func TestResolveBuildsOnce(t *testing.T) {
	c := New()
	built := 0
	require.NoError(t, Provide(c, func(*Container) (*pool, error) {
		built++
		return &pool{size: 4}, nil
	}))
	require.NoError(t, Provide(c, func(c *Container) (*registry, error) {
		p, err := Resolve[*pool](c)
		return &registry{p: p}, err
	}))

	r, err := Resolve[*registry](c)
	require.NoError(t, err)
	p := MustResolve[*pool](c)
	assert.Same(t, p, r.p)
	assert.Equal(t, 1, built)
}

func TestResolveInterface(t *testing.T) {
	c := New()
	require.NoError(t, Provide(c, func(*Container) (greeter, error) { return english{}, nil }))
	g, err := Resolve[greeter](c)
	require.NoError(t, err)
	assert.Equal(t, "hello", g.Greet())
}

func TestResolveErrors(t *testing.T) {
	c := New()
	_, err := Resolve[*pool](c)
	assert.ErrorIs(t, err, ErrNoProvider)

	require.NoError(t, Provide(c, func(*Container) (*pool, error) { return nil, errors.New("no memory") }))
	assert.Error(t, Provide(c, func(*Container) (*pool, error) { return &pool{}, nil }))
	_, err = Resolve[*pool](c)
	assert.ErrorContains(t, err, "no memory")

	require.NoError(t, Provide(c, func(c *Container) (*registry, error) {
		_, err := Resolve[*registry](c)
		return nil, err
	}))
	_, err = Resolve[*registry](c)
	assert.ErrorContains(t, err, "cyclic dependency")
}

func TestCloseRunsInReverse(t *testing.T) {
	c := New()
	var order []string
	c.OnClose("db", func() error { order = append(order, "db"); return nil })
	c.OnClose("server", func() error { order = append(order, "server"); return errors.New("busy") })

	err := c.Close()
	assert.ErrorContains(t, err, "server: busy")
	assert.Equal(t, []string{"server", "db"}, order)
	assert.NoError(t, c.Close())
}
