package docstoretest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/storagepeer/internal/content"
)

func TestRepo_ChangesBeforeDrainStayInOrder(t *testing.T) {
	repo := New()
	doc := repo.Create(content.Map{"v": content.Int(0)})
	repo.Drain()

	var got []content.Value
	repo.Open(doc).Subscribe(func(v content.Value) { got = append(got, v.(content.Map)["v"]) })
	repo.Change(doc, func(m content.Map) { m["v"] = content.Int(1) })
	repo.Change(doc, func(m content.Map) { m["v"] = content.Int(2) })
	repo.Drain()

	assert.Equal(t, []content.Value{content.Int(0), content.Int(1), content.Int(2)}, got)
}

func TestRepo_UnchangedPutIsRedelivered(t *testing.T) {
	repo := New()
	doc := repo.Create(content.Map{"v": content.Int(0)})

	calls := 0
	repo.Open(doc).Subscribe(func(content.Value) { calls++ })
	repo.Change(doc, func(content.Map) {})
	repo.Drain()

	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, repo.OpenCount(doc))
}
