package sqlfrag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdate_Set(t *testing.T) {
	c := newTestComposer(t)
	q := c.Update("Contact").
		Set(map[string]any{"name": "Ann", "email": "ann@example.com"}).
		Where(c.IDEquals(3))

	st := mustBuild(t, q)
	assert.Equal(t, "UPDATE \"Contact\" SET \"email\" = $email, \"name\" = $name\n WHERE \"id\" = $id", st.SQL)
	assert.Equal(t, Params{"name": "Ann", "email": "ann@example.com", "id": 3}, st.Params)
	assert.Equal(t, ShapeRows, st.Shape)
	assert.True(t, q.HasSet())
}

func TestUpdate_SetFragment(t *testing.T) {
	c := newTestComposer(t, MySQL())
	q := c.Update("Order").
		Set(func(r ...Ref) Fragment { return Expr("{} = {} + {}", r[0].Col("total"), r[0].Col("total"), 5) }).
		Where(Ops{"equals": map[string]any{"contactId": 9}})

	st := mustBuild(t, q)
	assert.Equal(t, "UPDATE `Order` SET `total` = `total` + $_1\n WHERE `contactId` = $contactId", st.SQL)
	assert.Equal(t, Params{"_1": 5, "contactId": 9}, st.Params)
}

func TestUpdate_Guards(t *testing.T) {
	c := newTestComposer(t)

	_, err := c.Update("Contact").Set(map[string]any{"name": "x"}).Build()
	assert.ErrorIs(t, err, ErrMissingWhereClause)

	st, err := c.Update("Contact").Set(map[string]any{"name": "x"}).AllRows().Build()
	require.NoError(t, err)
	assert.Equal(t, "UPDATE \"Contact\" SET \"name\" = $name", st.SQL)

	_, err = c.Update("Contact").Where("1 = 1").Build()
	assert.ErrorIs(t, err, ErrInvalidFragment)

	_, err = c.Update("Contact").Set(map[string]any{"nope": 1}).AllRows().Build()
	assert.ErrorIs(t, err, ErrUnresolvedColumn)

	q := c.Update("Contact").Set(map[string]any{"name": "x"}).Set(nil).AllRows()
	assert.False(t, q.HasSet())
	assert.Contains(t, q.String(), "!ERROR")
}

func TestDelete(t *testing.T) {
	c := newTestComposer(t)

	st := mustBuild(t, c.DeleteFrom("Contact").Where(c.IDEquals(1)).Or(Ops{"isNull": []string{"email"}}))
	assert.Equal(t, "DELETE FROM \"Contact\"\n WHERE \"id\" = $id\n    OR \"email\" IS NULL", st.SQL)
	assert.Equal(t, Params{"id": 1}, st.Params)

	_, err := c.DeleteFrom("Contact").Build()
	assert.ErrorIs(t, err, ErrMissingWhereClause)

	st = mustBuild(t, c.DeleteFrom("Contact").AllRows())
	assert.Equal(t, "DELETE FROM \"Contact\"", st.SQL)

	st = mustBuild(t, c.DeleteFrom(&Order{}).Where("total < 0"))
	assert.Equal(t, "DELETE FROM \"Order\"\n WHERE total < 0", st.SQL)
}
