package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/iamcore/pkg/domain"
)

func TestAssemble(t *testing.T) {
	instance := Column{Table: "orgs", Name: "instance_id"}

	t.Run("AlwaysScopesToInstance", func(t *testing.T) {
		tail, args, err := assemble(instance, "inst-1", SearchRequest{})
		require.NoError(t, err)
		assert.Equal(t, " WHERE orgs.instance_id = ? LIMIT ?", tail)
		assert.Equal(t, []any{"inst-1", uint64(100)}, args)
	})

	t.Run("FiltersSortingAndPaging", func(t *testing.T) {
		tail, args, err := assemble(instance, "inst-1",
			SearchRequest{Offset: 20, Limit: 10, SortingColumn: OrgColumnName, Asc: true},
			TextContains(OrgColumnName, "acme"),
			NumberEquals(OrgColumnState, int64(domain.OrgStateActive)),
		)
		require.NoError(t, err)
		assert.Equal(t,
			` WHERE orgs.instance_id = ? AND LOWER(orgs.name) LIKE LOWER(?) ESCAPE '\' AND orgs.state = ? ORDER BY orgs.name LIMIT ? OFFSET ?`,
			tail)
		assert.Equal(t, []any{"inst-1", "%acme%", int64(1), uint64(10), uint64(20)}, args)
	})

	t.Run("LimitAboveMaxRejected", func(t *testing.T) {
		_, _, err := assemble(instance, "inst-1", SearchRequest{Limit: 1001})
		require.Error(t, err)
		assert.True(t, domain.IsInvalidArgument(err))
	})

	t.Run("LikeWildcardsAreEscaped", func(t *testing.T) {
		tail, args, err := assemble(instance, "inst-1", SearchRequest{},
			TextStartsWith(OrgColumnName, "50%_off"))
		require.NoError(t, err)
		assert.Contains(t, tail, "LIKE LOWER(?)")
		assert.Equal(t, `50\%\_off%`, args[1])
	})

	t.Run("BooleanCombinators", func(t *testing.T) {
		var b strings.Builder
		var args []any
		Or(
			TextEquals(OrgColumnName, "Acme"),
			Not(NumberGreater(OrgColumnState, 1)),
		).appendTo(&b, &args)
		assert.Equal(t, "(orgs.name = ? OR NOT (orgs.state > ?))", b.String())
		assert.Equal(t, []any{"Acme", int64(1)}, args)
	})

	t.Run("EmptyInListMatchesNothing", func(t *testing.T) {
		var b strings.Builder
		var args []any
		InList(OrgColumnID).appendTo(&b, &args)
		assert.Equal(t, "1 = 0", b.String())
		assert.Empty(t, args)
	})
}
