package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResource(t *testing.T) {
	r := NewResource("会議室A", "本社ビル 3F", 8)

	require.NoError(t, r.Validate())
	assert.Equal(t, "会議室A", r.Name)
	assert.Equal(t, 8, r.Capacity)
	assert.True(t, r.IsActive)
}

func TestResource_Validate(t *testing.T) {
	tests := []struct {
		name        string
		resName     string
		capacity    int
		errExpected error
	}{
		{"リソース名未指定", "", 8, ErrResourceNameRequired},
		{"収容人数が0", "会議室A", 0, ErrInvalidCapacity},
		{"収容人数が負数", "会議室A", -1, ErrInvalidCapacity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResource(tt.resName, "", tt.capacity)
			assert.ErrorIs(t, r.Validate(), tt.errExpected)
		})
	}
}
