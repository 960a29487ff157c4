package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable_AlignsColumns(t *testing.T) {
	table := NewTable("group", "last good")
	table.Row("small", "1000")
	table.Rowf("%s\t%d", "much-larger", 25)
	assert.Equal(t, "group        last good\nsmall        1000\nmuch-larger  25\n", table.String())
}

func TestTable_Empty(t *testing.T) {
	assert.Equal(t, "", NewTable().String())
}
