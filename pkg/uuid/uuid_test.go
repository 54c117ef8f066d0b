// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package uuid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/historyatlas/pkg/uuid"
)

/*
TestNew checks that generated ids are version 7 and increase over time.
*/
func TestNew(t *testing.T) {
	first, second := uuid.New(), uuid.New()

	assert.EqualValues(t, 7, first.Version())
	assert.NotEqual(t, first, second)
	assert.LessOrEqual(t, first.String()[:8], second.String()[:8])
}
