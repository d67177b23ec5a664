package port

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

type textSpec struct{ name string }

func (s textSpec) Summary() string { return s.name }

type textObject struct {
	value    string
	released []any
}

func (o *textObject) Summary() string { return o.value }

func (o *textObject) Release(owner any) { o.released = append(o.released, owner) }

type countSpec struct{}

func (countSpec) Summary() string { return "count" }

type countObject struct{ n int }

func (o countObject) Summary() string { return "count" }

var (
	textType  = TypeOf[textSpec, *textObject]()
	countType = TypeOf[countSpec, countObject]()
)

type event struct {
	kind string
	port int
}

type recordingOwner struct {
	events []event
	onSpec func(int)
}

func (o *recordingOwner) InSpecChanged(id int) {
	o.events = append(o.events, event{"spec", id})
	if o.onSpec != nil {
		o.onSpec(id)
	}
}

func (o *recordingOwner) InObjectChanged(id int) {
	o.events = append(o.events, event{"object", id})
}

func TestTypeOfIsInterned(t *testing.T) {
	t.Parallel()

	require.Same(t, textType, TypeOf[textSpec, *textObject]())
	require.NotSame(t, textType, countType)
	require.Equal(t, "*port.textObject", textType.String())
}

func TestTypeAcceptsAssignableTypes(t *testing.T) {
	t.Parallel()

	require.True(t, textType.Accepts(textType))
	require.False(t, textType.Accepts(countType))
	require.True(t, Any.Accepts(textType))
	require.False(t, textType.Accepts(Any))
	require.False(t, textType.Accepts(nil))
}

func TestDefaultPortNames(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Inport 2", NewInPort(2, textType, nil).Name())
	out := NewOutPort(0, textType, nil)
	require.Equal(t, "Outport 0", out.Name())
	out.SetName("Filtered")
	require.Equal(t, "Filtered", out.Name())
}

func TestConnectRejectsIncompatibleTypes(t *testing.T) {
	t.Parallel()

	in := NewInPort(0, textType, nil)
	err := in.Connect(NewOutPort(0, countType, nil))
	require.ErrorIs(t, err, nferrors.ErrIllegalConnection)
	require.False(t, in.IsConnected())

	_, err = in.Object()
	require.ErrorIs(t, err, nferrors.ErrIllegalState)
	_, ok := in.Spec()
	require.False(t, ok)
}

func TestConnectReplacesPreviousSource(t *testing.T) {
	t.Parallel()

	first := NewOutPort(0, textType, nil)
	second := NewOutPort(0, textType, nil)
	in := NewInPort(0, textType, nil)

	require.NoError(t, in.Connect(first))
	require.NoError(t, in.Connect(first))
	require.Len(t, first.Targets(), 1)

	require.NoError(t, in.Connect(second))
	require.Same(t, second, in.Source())
	require.Empty(t, first.Targets())
	require.Equal(t, []*InPort{in}, second.Targets())
}

type countingOwner struct{ specs atomic.Int64 }

func (o *countingOwner) InSpecChanged(int) { o.specs.Add(1) }

func (o *countingOwner) InObjectChanged(int) {}

func TestConcurrentConnectKeepsOneSource(t *testing.T) {
	t.Parallel()

	for range 200 {
		owner := &countingOwner{}
		in := NewInPort(0, textType, owner)
		a := NewOutPort(0, textType, nil)
		b := NewOutPort(1, textType, nil)

		var wg sync.WaitGroup
		for _, out := range []*OutPort{a, b} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 50 {
					_ = in.Connect(out)
				}
			}()
		}
		wg.Wait()

		current, stale := a, b
		if in.Source() == b {
			current, stale = b, a
		}
		require.Equal(t, []*InPort{in}, current.Targets())
		require.Empty(t, stale.Targets())

		require.NoError(t, stale.SetSpec(textSpec{name: "stale"}))
		require.Zero(t, owner.specs.Load())
		require.NoError(t, current.SetSpec(textSpec{name: "live"}))
		require.EqualValues(t, 1, owner.specs.Load())
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	t.Parallel()

	out := NewOutPort(0, textType, nil)
	require.NoError(t, out.SetSpec(textSpec{name: "cols"}))
	in := NewInPort(0, textType, nil)
	require.NoError(t, in.Connect(out))

	spec, ok := in.Spec()
	require.True(t, ok)
	require.Equal(t, textSpec{name: "cols"}, spec)

	in.Disconnect()
	in.Disconnect()
	require.False(t, in.IsConnected())
	require.Empty(t, out.Targets())
	_, ok = in.Spec()
	require.False(t, ok)
}

func TestSetSpecPushesDepthFirst(t *testing.T) {
	t.Parallel()

	var order []string
	upstream := NewOutPort(0, textType, nil)
	middleOut := NewOutPort(0, textType, nil)

	downstream := &recordingOwner{}
	middle := &recordingOwner{onSpec: func(int) {
		order = append(order, "middle")
		require.NoError(t, middleOut.SetSpec(textSpec{name: "derived"}))
	}}
	sibling := &recordingOwner{onSpec: func(int) { order = append(order, "sibling") }}
	downstream.onSpec = func(int) { order = append(order, "downstream") }

	require.NoError(t, NewInPort(0, textType, middle).Connect(upstream))
	require.NoError(t, NewInPort(1, textType, sibling).Connect(upstream))
	require.NoError(t, NewInPort(0, textType, downstream).Connect(middleOut))

	require.NoError(t, upstream.SetSpec(textSpec{name: "source"}))
	require.Equal(t, []string{"middle", "downstream", "sibling"}, order)
	require.Equal(t, []event{{"spec", 1}}, sibling.events)
}

func TestSetSpecRejectsWrongType(t *testing.T) {
	t.Parallel()

	out := NewOutPort(0, textType, nil)
	require.ErrorIs(t, out.SetSpec(countSpec{}), nferrors.ErrIllegalState)
	require.Nil(t, out.Spec())
}

func TestSetObjectNotifiesOnceAndReleasesOld(t *testing.T) {
	t.Parallel()

	nodeOwner := struct{ name string }{"producer"}
	out := NewOutPort(0, textType, nodeOwner)
	owner := &recordingOwner{}
	in := NewInPort(3, textType, owner)
	require.NoError(t, in.Connect(out))

	var observed []Object
	out.Observe(func(o Object) { observed = append(observed, o) })

	first := &textObject{value: "a"}
	second := &textObject{value: "b"}

	require.NoError(t, out.SetObject(first))
	require.NoError(t, out.SetObject(first))
	require.Equal(t, []event{{"object", 3}}, owner.events)

	require.NoError(t, out.SetObject(second))
	require.Equal(t, []any{nodeOwner}, first.released)
	require.Empty(t, second.released)
	require.Len(t, owner.events, 2)
	require.Equal(t, []Object{first, second}, observed)

	got, err := in.Object()
	require.NoError(t, err)
	require.Same(t, second, got)
}

func TestSetObjectWithValueObjects(t *testing.T) {
	t.Parallel()

	out := NewOutPort(0, countType, nil)
	owner := &recordingOwner{}
	require.NoError(t, NewInPort(0, countType, owner).Connect(out))

	require.NoError(t, out.SetObject(countObject{n: 1}))
	require.NoError(t, out.SetObject(countObject{n: 1}))
	require.NoError(t, out.SetObject(countObject{n: 2}))
	require.Len(t, owner.events, 2)
}

func TestShowObjectGatesReadsWithoutNotifying(t *testing.T) {
	t.Parallel()

	out := NewOutPort(0, textType, nil)
	owner := &recordingOwner{}
	in := NewInPort(0, textType, owner)
	require.NoError(t, in.Connect(out))
	require.NoError(t, out.SetObject(&textObject{value: "x"}))
	require.True(t, out.IsObjectVisible())

	out.ShowObject(false)
	require.False(t, out.IsObjectVisible())
	got, err := in.Object()
	require.NoError(t, err)
	require.Nil(t, got)

	out.ShowObject(true)
	got, err = in.Object()
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, owner.events, 1)
}

func TestAnyInPortAcceptsTypedOutput(t *testing.T) {
	t.Parallel()

	out := NewOutPort(0, textType, nil)
	in := NewInPort(0, Any, nil)
	require.NoError(t, in.Connect(out))
	require.NoError(t, out.SetObject(&textObject{value: "v"}))

	got, err := in.Object()
	require.NoError(t, err)
	require.Equal(t, "v", got.Summary())
}
