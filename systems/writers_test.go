package systems

import (
	"testing"

	"github.com/automoto/framesync/shared/netconfig"
	"github.com/stretchr/testify/assert"
)

func TestWriterTable(t *testing.T) {
	table := NewWriterTable()
	table.Set(1, netconfig.AuthorityMaster, 0)
	table.Set(2, netconfig.AuthorityOwner, 3)
	table.Set(3, netconfig.AuthorityAuto, 0)

	assert.False(t, table.MayWrite(3, 1), "peers never write master entities")
	assert.True(t, table.MayWrite(3, 2))
	assert.False(t, table.MayWrite(4, 2))
	assert.False(t, table.MayWrite(3, 3), "unowned auto entities belong to the master")
	assert.False(t, table.MayWrite(3, 9))

	table.Set(1, netconfig.AuthorityOwner, 4)
	assert.True(t, table.MayWrite(4, 1))

	table.Delete(2)
	assert.False(t, table.MayWrite(3, 2))
}
