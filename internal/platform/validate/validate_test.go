// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/historyatlas/internal/platform/apperr"
	"github.com/taibuivan/historyatlas/internal/platform/validate"
)

/*
TestValidator_Required tests the mandatory field validation logic.
*/
func TestValidator_Required(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		hasError bool
	}{
		{"valid_string", "The Life of Ada Lovelace", false},
		{"empty_string", "", true},
		{"whitespace_only", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &validate.Validator{}
			v.Required("name", tt.value)

			if tt.hasError {
				ae := apperr.As(v.Err())
				require.NotNil(t, ae)
				assert.Equal(t, "VALIDATION_ERROR", ae.Code)
				assert.Equal(t, "name", ae.Details[0].Field)
			} else {
				assert.False(t, v.HasErrors())
				assert.Nil(t, v.Err())
			}
		})
	}
}

/*
TestValidator_UUID accepts canonical UUIDs only.
*/
func TestValidator_UUID(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		isValid bool
	}{
		{"canonical", "0b0f8c1a-7b39-4c1e-9f43-5b2d1c3e4f50", true},
		{"braced", "{0b0f8c1a-7b39-4c1e-9f43-5b2d1c3e4f50}", false},
		{"garbage", "person-x", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &validate.Validator{}
			v.UUID("story_id", tt.value)
			assert.Equal(t, !tt.isValid, v.HasErrors())
		})
	}
}

/*
TestValidator_Coordinates bounds latitude and longitude.
*/
func TestValidator_Coordinates(t *testing.T) {
	v := &validate.Validator{}
	assert.NoError(t, v.Latitude("lat", 51.5).Longitude("lon", -0.12).Err())

	v = &validate.Validator{}
	err := v.Latitude("lat", 91).Longitude("lon", 181).Err()
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Len(t, ae.Details, 2)
}

/*
TestValidator_Chain_Failure tests error accumulation in the chain.
*/
func TestValidator_Chain_Failure(t *testing.T) {
	v := &validate.Validator{}

	err := v.
		Required("story_id", "").
		Range("size", 0, 1, 100).
		OneOf("direction", "sideways", "next", "prev").
		UUIDs("ids", []string{"0b0f8c1a-7b39-4c1e-9f43-5b2d1c3e4f50", "bad", "worse"}).
		Err()

	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)

	assert.Len(t, ae.Details, 4)
	assert.Equal(t, "ids[1]", ae.Details[3].Field)
}
