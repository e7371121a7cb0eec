package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_ValueScan(t *testing.T) {
	v, err := Metadata{"moved": 3}.Value()
	require.NoError(t, err)
	assert.Equal(t, `{"moved":3}`, v)

	empty, err := Metadata(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", empty)

	var m Metadata
	require.NoError(t, m.Scan([]byte(`{"fallback":"r-2"}`)))
	assert.Equal(t, "r-2", m["fallback"])

	require.NoError(t, m.Scan(nil))
	assert.Nil(t, m)

	assert.Error(t, m.Scan(12))
}

func TestEvent_Spec(t *testing.T) {
	e := &Event{}
	spec := e.Spec()
	assert.True(t, spec.IsTenantScoped())
	assert.Len(t, e.Values(), len(spec.Columns))
	assert.Len(t, e.Pointers(), len(spec.Columns))
}
