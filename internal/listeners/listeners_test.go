package listeners

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetKeepsRegistrationOrder(t *testing.T) {
	t.Parallel()

	var set Set[string]
	set.Add("a")
	sub := set.Add("b")
	set.Add("c")

	require.Equal(t, []string{"a", "b", "c"}, set.Snapshot())

	sub.Unsubscribe()
	sub.Unsubscribe()
	require.Equal(t, []string{"a", "c"}, set.Snapshot())
	require.Equal(t, 2, set.Len())
}

func TestSetClear(t *testing.T) {
	t.Parallel()

	var set Set[int]
	first := set.Add(1)
	set.Add(2)
	set.Clear()

	require.Empty(t, set.Snapshot())
	require.NotPanics(t, first.Unsubscribe)
}

func TestNilSetIsInert(t *testing.T) {
	t.Parallel()

	var set *Set[int]
	require.NotPanics(t, func() {
		set.Add(1).Unsubscribe()
		set.Clear()
	})
	require.Zero(t, set.Len())
	require.Nil(t, set.Snapshot())
}
