package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qos-sim/qos-sim/sim"
)

// member registers with the registry at start and optionally queries it.
type member struct {
	sim.BaseEntity
	registryID int
	query      bool
	got        []int
}

func (m *member) Start() {
	m.SendNow(m.registryID, sim.TagRegisterResource, nil)
	if m.query {
		m.SendNow(m.registryID, sim.TagResourceList, nil)
	}
}

func (m *member) ProcessEvent(ev *sim.Event) {
	if ev.Tag() == sim.TagResourceList {
		m.got = ev.Data().([]int)
	}
}

func TestRegistry_ListsRegisteredResources(t *testing.T) {
	// GIVEN a registry and three members, the last of which queries
	s := sim.NewSimulation()
	reg := New("registry")
	regID, err := s.Register(reg)
	require.NoError(t, err)

	var members []*member
	for i, name := range []string{"dc-a", "dc-b", "broker"} {
		m := &member{BaseEntity: sim.NewBaseEntity(name), registryID: regID, query: i == 2}
		_, err := s.Register(m)
		require.NoError(t, err)
		members = append(members, m)
	}

	// WHEN the simulation runs
	_, err = s.Run(context.Background())
	require.NoError(t, err)

	// THEN the query sees every registration sent before it
	assert.Equal(t, []int{1, 2, 3}, reg.Resources())
	assert.Equal(t, []int{1, 2, 3}, members[2].got)
}

func TestRegistry_DuplicateRegistrationIgnored(t *testing.T) {
	s := sim.NewSimulation()
	reg := New("registry")
	regID, err := s.Register(reg)
	require.NoError(t, err)
	m := &member{BaseEntity: sim.NewBaseEntity("dc"), registryID: regID}
	_, err = s.Register(m)
	require.NoError(t, err)
	m2 := &twice{member: member{BaseEntity: sim.NewBaseEntity("dc-twice"), registryID: regID}}
	_, err = s.Register(m2)
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, reg.Resources())
}

type twice struct{ member }

func (m *twice) Start() {
	m.SendNow(m.registryID, sim.TagRegisterResource, nil)
	m.SendNow(m.registryID, sim.TagRegisterResource, nil)
}

func TestRegistry_FinishesOnEndOfSimulation(t *testing.T) {
	s := sim.NewSimulation()
	reg := New("registry")
	regID, err := s.Register(reg)
	require.NoError(t, err)
	ender := &endSender{BaseEntity: sim.NewBaseEntity("ender"), target: regID}
	_, err = s.Register(ender)
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sim.StateFinished, reg.State())
}

type endSender struct {
	sim.BaseEntity
	target int
}

func (e *endSender) Start() {
	e.Schedule(e.target, 3, sim.TagEndOfSimulation, nil)
}

func (e *endSender) ProcessEvent(*sim.Event) {}

func TestRegistry_StateRoundTrip(t *testing.T) {
	reg := New("registry")
	reg.resources = []int{1, 2}
	st := reg.SnapshotState()

	reg.resources = append(reg.resources, 3)
	require.NoError(t, reg.RestoreState(st))
	assert.Equal(t, []int{1, 2}, reg.Resources())

	assert.Error(t, reg.RestoreState("not a list"))
}
