package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"agentarena/internal/types"
	"agentarena/internal/unit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constRunner(t *testing.T, name string, m types.Metrics) unit.Runner {
	t.Helper()
	r, err := unit.NewRunner(name, func(context.Context, types.Context) (types.Metrics, error) {
		return m, nil
	})
	require.NoError(t, err)
	return r
}

func TestRegister_DuplicateKeepsFirst(t *testing.T) {
	reg := New()
	first := constRunner(t, "A", types.Metrics{"v": 1})
	second := constRunner(t, "A", types.Metrics{"v": 2})

	require.NoError(t, reg.Register(first))

	err := reg.Register(second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateName))
	var dup *DuplicateNameError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "A", dup.Name)

	got, err := reg.Get("A")
	require.NoError(t, err)
	assert.Same(t, first, got)
	assert.Equal(t, 1, reg.Len())
}

func TestGet_NotFound(t *testing.T) {
	reg := New()
	_, err := reg.Get("ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "ghost")
}

func TestRegister_RejectsNilAndBlank(t *testing.T) {
	reg := New()
	assert.True(t, errors.Is(reg.Register(nil), unit.ErrInvalidName))
	assert.Equal(t, 0, reg.Len())
}

func TestMustRegister_PanicsOnDuplicate(t *testing.T) {
	reg := New()
	a := constRunner(t, "A", nil)
	assert.NotPanics(t, func() { reg.MustRegister(a) })
	assert.Panics(t, func() { reg.MustRegister(constRunner(t, "A", nil)) })
}

func TestNamesAndEntries(t *testing.T) {
	reg := New()
	g, err := unit.NewGenerator("adv", func(_ context.Context, seed types.Context) (types.Context, error) {
		return seed.Clone(), nil
	})
	require.NoError(t, err)
	reg.MustRegister(constRunner(t, "zeta", nil), g, constRunner(t, "alpha", nil))

	assert.Equal(t, []string{"adv", "alpha", "zeta"}, reg.Names())
	assert.Equal(t, []Entry{
		{Name: "adv", Kind: unit.KindGenerator},
		{Name: "alpha", Kind: unit.KindRunner},
		{Name: "zeta", Kind: unit.KindRunner},
	}, reg.Entries())
}

func TestConcurrentReads(t *testing.T) {
	reg := New()
	for i := 0; i < 10; i++ {
		reg.MustRegister(constRunner(t, fmt.Sprintf("u%d", i), nil))
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.Get(fmt.Sprintf("u%d", i%10))
			assert.NoError(t, err)
			_ = reg.Names()
		}(i)
	}
	wg.Wait()
}
