package kernel

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadMemoizesThunkExecution(t *testing.T) {
	k := NewKernel()
	calls := 0
	c := k.NewCell("c", func() (any, error) {
		calls++
		return 42, nil
	}, nil)

	for i := 0; i < 5; i++ {
		v, err := c.Read()
		require.NoError(t, err)
		require.Equal(t, 42, v)
	}
	require.Equal(t, 1, calls)
}

func TestDependencyClosureInvalidation(t *testing.T) {
	k := NewKernel()
	base := k.NewCell("base", func() (any, error) { return 1, nil }, nil)
	derivedCalls := 0
	derived := k.NewCell("derived", func() (any, error) {
		derivedCalls++
		v, err := base.Read()
		if err != nil {
			return nil, err
		}
		return v.(int) * 2, nil
	}, nil)

	v, err := derived.Read()
	require.NoError(t, err)
	require.Equal(t, 2, v)
	require.Equal(t, 1, derivedCalls)

	base.Invalidate()

	v, err = derived.Read()
	require.NoError(t, err)
	require.Equal(t, 2, v)
	require.Equal(t, 2, derivedCalls, "invalidating a dependency must force dependents to recompute")
}

func TestNoStaleReadsThroughTransitiveChain(t *testing.T) {
	k := NewKernel()
	root := k.NewCell("root", func() (any, error) { return 1, nil }, nil)
	mid := k.NewCell("mid", func() (any, error) {
		v, _ := root.Read()
		return v.(int) + 1, nil
	}, nil)
	leafCalls := 0
	leaf := k.NewCell("leaf", func() (any, error) {
		leafCalls++
		v, _ := mid.Read()
		return v.(int) + 1, nil
	}, nil)

	v, _ := leaf.Read()
	require.Equal(t, 3, v)
	require.Equal(t, 1, leafCalls)

	root.Invalidate()

	v, _ = leaf.Read()
	require.Equal(t, 3, v)
	require.Equal(t, 2, leafCalls, "a transitive dependent must recompute after its ancestor is invalidated")
}

func TestErrorsAreMemoizedAndReraised(t *testing.T) {
	k := NewKernel()
	sentinel := errors.New("boom")
	calls := 0
	c := k.NewCell("c", func() (any, error) {
		calls++
		return nil, sentinel
	}, nil)

	_, err1 := c.Read()
	_, err2 := c.Read()
	require.ErrorIs(t, err1, sentinel)
	require.ErrorIs(t, err2, sentinel)
	require.Equal(t, 1, calls)
}

func TestCycleDetected(t *testing.T) {
	k := NewKernel()
	var a, b *Cell
	a = k.NewCell("a", func() (any, error) { return b.Read() }, nil)
	b = k.NewCell("b", func() (any, error) { return a.Read() }, nil)

	_, err := a.Read()
	require.ErrorIs(t, err, ErrCycle)
}

type fakeTrigger struct {
	armCount    int
	disarmCount int
	callback    func()
}

func (f *fakeTrigger) Arm(cb func()) error {
	f.armCount++
	f.callback = cb
	return nil
}

func (f *fakeTrigger) Disarm() {
	f.disarmCount++
}

func TestTriggerArmsOnFirstReadAndFiresInvalidation(t *testing.T) {
	k := NewKernel()
	trig := &fakeTrigger{}
	value := 1
	c := k.NewCell("c", func() (any, error) { return value, nil }, trig)

	v, _ := c.Read()
	require.Equal(t, 1, v)
	require.Equal(t, 1, trig.armCount)

	value = 2
	trig.callback() // simulate external event firing on another goroutine
	k.DrainPending()

	v, _ = c.Read()
	require.Equal(t, 2, v)
	require.Equal(t, 2, trig.armCount, "re-evaluation after invalidation re-arms the trigger")
}

func TestScopeDisarmsEveryWatchedTriggerOnExit(t *testing.T) {
	k := NewKernel()
	trig := &fakeTrigger{}

	scope, err := k.EnterScope()
	require.NoError(t, err)

	c := k.NewCell("c", func() (any, error) { return 1, nil }, trig)
	_, _ = c.Read()
	require.Equal(t, 1, trig.armCount)
	require.Equal(t, 0, trig.disarmCount)

	scope.End()
	require.Equal(t, 1, trig.disarmCount)
	require.True(t, c.IsEmpty())
}

func TestScopeIsNonReentrant(t *testing.T) {
	k := NewKernel()
	_, err := k.EnterScope()
	require.NoError(t, err)

	_, err = k.EnterScope()
	require.ErrorIs(t, err, ErrScopeActive)
}

func TestDependentsAreHeldWeakly(t *testing.T) {
	k := NewKernel()
	base := k.NewCell("base", func() (any, error) { return 1, nil }, nil)

	newDependentAndDrop := func() {
		dependent := k.NewCell("dependent", func() (any, error) {
			v, _ := base.Read()
			return v, nil
		}, nil)
		_, _ = dependent.Read()
		require.Len(t, base.dependents, 1)
	}
	newDependentAndDrop()

	runtime.GC()
	runtime.GC()

	for wp := range base.dependents {
		require.Nil(t, wp.Value(), "base must not keep an unreferenced dependent alive")
	}
}
