// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package convert_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/historyatlas/pkg/convert"
)

/*
TestToIntD separates absent from malformed input.
*/
func TestToIntD(t *testing.T) {
	v, ok := convert.ToIntD("", 10)
	assert.Equal(t, 10, v)
	assert.True(t, ok)

	v, ok = convert.ToIntD(" 25 ", 10)
	assert.Equal(t, 25, v)
	assert.True(t, ok)

	_, ok = convert.ToIntD("ten", 10)
	assert.False(t, ok)
}

/*
TestToFloat64 parses coordinates.
*/
func TestToFloat64(t *testing.T) {
	v, ok := convert.ToFloat64("-33.86")
	assert.True(t, ok)
	assert.InDelta(t, -33.86, v, 1e-9)

	_, ok = convert.ToFloat64("")
	assert.False(t, ok)
	_, ok = convert.ToFloat64("north")
	assert.False(t, ok)
}
