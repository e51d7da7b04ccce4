package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Email    string `json:"email" validate:"required"`
	Username string `json:"username" validate:"required,min=2,max=20"`
	Purpose  string `json:"purpose" validate:"omitempty,oneof=register delete"`
}

func TestStruct_OK(t *testing.T) {
	require.NoError(t, Struct(&sample{Email: "a@qq.com", Username: "火车迷"}))
}

func TestStruct_Messages(t *testing.T) {
	err := Struct(&sample{Username: "x", Purpose: "other"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Email is required")
	assert.Contains(t, err.Error(), "Username must be at least 2 characters long")
	assert.Contains(t, err.Error(), "Purpose must be one of [register delete]")
}

func TestStruct_RuneLengthCountsCharacters(t *testing.T) {
	// min and max count characters, not bytes.
	long := ""
	for i := 0; i < 21; i++ {
		long += "车"
	}
	err := Struct(&sample{Email: "a", Username: long})
	require.Error(t, err)
	assert.Equal(t, "Username must be at most 20 characters long", err.Error())
	assert.NoError(t, Struct(&sample{Email: "a", Username: "车车"}))
}
