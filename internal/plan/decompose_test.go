package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedplan/internal/expr"
)

func splitPlan(t *testing.T) *Plan {
	t.Helper()
	return mustAdd(t, newPlan(t, "fake"), Split{Name: "country", Expr: parse(t, "$country"), DataName: "rows"})
}

func TestDecomposeBareAggregate(t *testing.T) {
	a := Apply{Name: "revenue", Expr: parse(t, "$main.sum($price)")}
	out, err := splitPlan(t).Decompose(a)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, a.Equal(out[0]))
}

func TestDecomposeDifference(t *testing.T) {
	out, err := splitPlan(t).Decompose(Apply{Name: "r", Expr: parse(t, "$main.sum($price) - $main.sum($cost)")})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "_sd_0", out[0].Name)
	assert.Equal(t, "$main.sum($price)", out[0].Expr.String())
	assert.Equal(t, "_sd_1", out[1].Name)
	assert.Equal(t, "$main.sum($cost)", out[1].Expr.String())
	assert.Equal(t, "r", out[2].Name)
	assert.Equal(t, "($_sd_0 - $_sd_1)", out[2].Expr.String())
	assert.Equal(t, expr.TypeNumber, out[2].Expr.Type())
}

func TestDecomposeNeverReusesTheApplyName(t *testing.T) {
	out, err := splitPlan(t).Decompose(Apply{Name: "_sd_0", Expr: parse(t, "$main.sum($price) - $main.sum($cost)")})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "_sd_1", out[0].Name)
	assert.Equal(t, "_sd_2", out[1].Name)
	assert.Equal(t, "_sd_0", out[2].Name)
	assert.Equal(t, "($_sd_1 - $_sd_2)", out[2].Expr.String())
}

func TestDecomposeReusesExistingApplies(t *testing.T) {
	p := mustAdd(t, splitPlan(t), Apply{Name: "revenue", Expr: parse(t, "$main.sum($price)")})

	out, err := p.Decompose(Apply{Name: "r", Expr: parse(t, "$main.sum($price) - $main.sum($cost)")})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "_sd_0", out[0].Name)
	assert.Equal(t, "$main.sum($cost)", out[0].Expr.String())
	assert.Equal(t, "($revenue - $_sd_0)", out[1].Expr.String())

	// Adding the same compound apply twice requests no new primitive.
	p = mustAdd(t, p, Apply{Name: "r", Expr: parse(t, "$main.sum($price) - $main.sum($cost)")})
	before := len(p.Applies())
	p = mustAdd(t, p, Apply{Name: "r2", Expr: parse(t, "$main.sum($price) - $main.sum($cost)")})
	assert.Len(t, p.Applies(), before+1)
}

func TestDecomposeDeduplicatesWithinOneExpression(t *testing.T) {
	out, err := splitPlan(t).Decompose(Apply{Name: "r", Expr: parse(t, "$main.sum($price) / $main.sum($price)")})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "($_sd_0 / $_sd_0)", out[1].Expr.String())
}

func TestDecomposeWithoutAggregates(t *testing.T) {
	p := mustAdd(t, splitPlan(t), Apply{Name: "revenue", Expr: parse(t, "$main.sum($price)")})
	out, err := p.Decompose(Apply{Name: "doubled", Expr: parse(t, "$revenue * 2")})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "($revenue * 2)", out[0].Expr.String())
}

func TestAddCompoundApply(t *testing.T) {
	p := mustAdd(t, splitPlan(t), Apply{Name: "margin", Expr: parse(t, "$main.sum($price) - $main.sum($cost)")})

	assert.Equal(t, []string{"country", "_sd_0", "_sd_1", "margin"}, p.Attributes().Names())
	for _, a := range p.Attributes()[1:] {
		assert.Equal(t, expr.TypeNumber, a.Type)
	}
}

func TestTempName(t *testing.T) {
	p, err := New(Spec{Engine: "fake", Attributes: Attributes{{Name: "_sd_0", Type: expr.TypeNumber}}})
	require.NoError(t, err)

	name, err := p.TempName()
	require.NoError(t, err)
	assert.Equal(t, "_sd_1", name)

	name, err = p.TempName("_sd_1", "_sd_2")
	require.NoError(t, err)
	assert.Equal(t, "_sd_3", name)
}

func TestTempNameExhausted(t *testing.T) {
	p, err := New(Spec{Engine: "fake", Attributes: Attributes{{Name: "_sd_0", Type: expr.TypeNumber}}}, WithTempNameLimit(2))
	require.NoError(t, err)

	_, err = p.TempName("_sd_1")
	assert.ErrorIs(t, err, ErrNamesExhausted)
	assert.False(t, IsRejection(err))

	split := mustAdd(t, p, Split{Name: "k", Expr: expr.NewRef("x", expr.TypeString)})
	split = split.WithAttributes(Attributes{{Name: "k"}, {Name: "_sd_0"}, {Name: "_sd_1"}})
	_, err = split.Add(Apply{Name: "r", Expr: parse(t, "$main.sum($price) + $main.sum($cost)")})
	assert.ErrorIs(t, err, ErrNamesExhausted)
}
