// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/historyatlas/pkg/query"
)

/*
TestValues merges repeated and comma separated forms.
*/
func TestValues(t *testing.T) {
	assert.Nil(t, query.Values(nil))
	assert.Equal(t, []string{"a", "b", "c"}, query.Values([]string{"a, b", "b", " c ,"}))
	assert.Nil(t, query.StringSlice(""))
}
