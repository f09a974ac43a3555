package component

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/callgraph/internal/convert"
	"github.com/rendis/callgraph/pkg/schema"
)

type stubComponent struct {
	*Base
}

func (s *stubComponent) Start(context.Context, Env, string) (Outcome, error) {
	return Completed("End"), nil
}

func newStub(map[string]any) (Component, error) {
	return &stubComponent{Base: NewBase(Descriptor{
		Kind:    "stub",
		Inputs:  []Port{{Name: "In", Type: convert.Int, Default: 7}},
		Outputs: []Port{{Name: "Out", Type: convert.String}},
		Results: []string{"End"},
	})}, nil
}

func TestDescriptorPorts(t *testing.T) {
	d := Descriptor{
		Inputs:               []Port{{Name: "A", Type: convert.Int}},
		Outputs:              []Port{{Name: "B", Type: convert.Bool}},
		Results:              []string{"End"},
		AdditionalStartPorts: []string{"Cancel"},
	}

	p, ok := d.Input("A")
	require.True(t, ok)
	assert.Equal(t, convert.Int, p.Type)
	_, ok = d.Input("B")
	assert.False(t, ok)
	_, ok = d.Output("B")
	assert.True(t, ok)

	assert.True(t, d.HasResult("End"))
	assert.True(t, d.HasStartPort(DefaultStartPort))
	assert.True(t, d.HasStartPort("Cancel"))
	assert.True(t, d.IsControlPort("Cancel"))
	assert.False(t, d.IsControlPort(DefaultStartPort))
	assert.Equal(t, 1, d.StartLimit())

	d.IsOperator = true
	assert.False(t, d.HasStartPort(DefaultStartPort))
}

func TestBaseSeedsDefaults(t *testing.T) {
	c, err := newStub(nil)
	require.NoError(t, err)

	assert.Equal(t, 7, c.Value("In"))
	assert.Equal(t, "", c.Value("Out"))
}

func TestBasePublishNotifies(t *testing.T) {
	b := NewBase(Descriptor{Outputs: []Port{{Name: "Out", Type: convert.Int}}})
	var changed []string
	b.OnPropertyChanged(func(name string) { changed = append(changed, name) })

	b.SetValue("Out", 1)
	b.Publish("Out", 2)

	assert.Equal(t, []string{"Out"}, changed)
	assert.Equal(t, 2, b.Int("Out"))
}

func TestBaseTypedAccessors(t *testing.T) {
	b := NewBase(Descriptor{Inputs: []Port{{Name: "D", Type: convert.Duration}}})
	b.SetValue("D", "250ms")
	assert.Equal(t, 250*time.Millisecond, b.Duration("D"))
	b.SetValue("D", "true")
	assert.True(t, b.Bool("D"))
	assert.Equal(t, "true", b.Text("D"))
}

func TestRegistry_RegisterAndNew(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("stub", "A stub", newStub))
	assert.True(t, reg.Has("stub"))
	assert.Equal(t, 1, reg.Count())

	c, err := reg.New("stub", nil)
	require.NoError(t, err)
	assert.Equal(t, "stub", c.Descriptor().Kind)

	infos := reg.List()
	require.Len(t, infos, 1)
	assert.Equal(t, "A stub", infos[0].Description)
}

func TestRegistry_Duplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("stub", "", newStub))

	err := reg.Register("stub", "", newStub)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeConflict))
}

func TestRegistry_Unknown(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.New("missing", nil)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeComponentUnavailable))
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("bad config")
	require.NoError(t, reg.Register("broken", "", func(map[string]any) (Component, error) {
		return nil, boom
	}))

	_, err := reg.New("broken", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestDecodeConfig(t *testing.T) {
	var cfg struct {
		Interval time.Duration `json:"interval"`
		Count    int           `json:"count"`
		Name     string        `json:"name"`
	}
	err := DecodeConfig(map[string]any{"interval": "2s", "count": "3", "name": "x"}, &cfg)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Interval)
	assert.Equal(t, 3, cfg.Count)
	assert.Equal(t, "x", cfg.Name)
}
