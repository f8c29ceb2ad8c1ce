package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func noop(context.Context) error { return nil }

func TestNew_LinearChainLevels(t *testing.T) {
	g, err := New([]Task{
		{Name: "fetch_users", Run: noop},
		{Name: "fetch_products", DependsOn: []string{"fetch_users"}, Run: noop},
		{Name: "transform_products", DependsOn: []string{"fetch_products"}, Run: noop},
	})
	require.NoError(t, err)
	require.Equal(t, [][]string{{"fetch_users"}, {"fetch_products"}, {"transform_products"}}, g.Levels())
	require.Equal(t, 3, g.Len())
}

func TestNew_FanInLevels(t *testing.T) {
	g, err := New([]Task{
		{Name: "load", DependsOn: []string{"transform"}, Run: noop},
		{Name: "transform", DependsOn: []string{"a", "b", "c"}, Run: noop},
		{Name: "a", Run: noop},
		{Name: "b", Run: noop},
		{Name: "c", Run: noop},
	})
	require.NoError(t, err)
	require.Equal(t, [][]string{{"a", "b", "c"}, {"transform"}, {"load"}}, g.Levels())
	require.Equal(t, []string{"a", "b", "c", "transform", "load"}, g.Order())
}

func TestNew_AfterEdgesOrderLevels(t *testing.T) {
	g, err := New([]Task{
		{Name: "fetch_users", Run: noop},
		{Name: "fetch_products", After: []string{"fetch_users"}, Run: noop},
		{Name: "transform_products", DependsOn: []string{"fetch_products"}, After: []string{"fetch_users"}, Run: noop},
	})
	require.NoError(t, err)
	require.Equal(t, [][]string{{"fetch_users"}, {"fetch_products"}, {"transform_products"}}, g.Levels())
}

func TestNew_RejectsCycleThroughAfter(t *testing.T) {
	_, err := New([]Task{
		{Name: "a", After: []string{"b"}, Run: noop},
		{Name: "b", DependsOn: []string{"a"}, Run: noop},
	})
	require.ErrorIs(t, err, ErrCycle)
}

func TestNew_RejectsInvalidGraphs(t *testing.T) {
	cases := map[string][]Task{
		"empty name":    {{Name: "", Run: noop}},
		"duplicate":     {{Name: "a", Run: noop}, {Name: "a", Run: noop}},
		"unknown dep":   {{Name: "a", DependsOn: []string{"missing"}, Run: noop}},
		"self loop":     {{Name: "a", DependsOn: []string{"a"}, Run: noop}},
		"unknown after": {{Name: "a", After: []string{"missing"}, Run: noop}},
		"self after":    {{Name: "a", After: []string{"a"}, Run: noop}},
		"missing func":  {{Name: "a"}},
	}
	for name, tasks := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(tasks)
			require.ErrorIs(t, err, ErrInvalidGraph)
		})
	}
}

func TestNew_RejectsCycle(t *testing.T) {
	_, err := New([]Task{
		{Name: "root", Run: noop},
		{Name: "a", DependsOn: []string{"root", "c"}, Run: noop},
		{Name: "b", DependsOn: []string{"a"}, Run: noop},
		{Name: "c", DependsOn: []string{"b"}, Run: noop},
	})
	require.ErrorIs(t, err, ErrCycle)
	require.Contains(t, err.Error(), "a, b, c")
}
