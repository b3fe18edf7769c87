package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
)

func TestAmountPolicy_Default(t *testing.T) {
	p, err := NewAmountPolicy(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultRules, p.Rules())

	ctx := context.Background()
	payees := []contracts.Identity{"a", "b"}

	require.NoError(t, p.CheckBatch(ctx, payees, []int64{1, 500}))

	err = p.CheckBatch(ctx, payees, []int64{1, 0})
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "line 1")

	require.ErrorIs(t, p.CheckBatch(ctx, payees, []int64{-5, 1}), ErrRejected)
}

func TestAmountPolicy_CustomRules(t *testing.T) {
	p, err := NewAmountPolicy([]Rule{
		{Name: "cap", Expr: "amount <= 1000"},
		{Name: "no-self", Expr: `payee != "treasury"`},
		{Expr: "batch_size <= 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, "rule-2", p.Rules()[2].Name)

	ctx := context.Background()
	require.NoError(t, p.CheckBatch(ctx, []contracts.Identity{"a"}, []int64{1000}))

	err = p.CheckBatch(ctx, []contracts.Identity{"a"}, []int64{1001})
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), `"cap"`)

	err = p.CheckBatch(ctx, []contracts.Identity{"treasury"}, []int64{1})
	assert.Contains(t, err.Error(), `"no-self"`)

	err = p.CheckBatch(ctx, []contracts.Identity{"a", "b", "c", "d"}, []int64{1, 1, 1, 1})
	require.ErrorIs(t, err, ErrRejected)
}

func TestAmountPolicy_BadRules(t *testing.T) {
	_, err := NewAmountPolicy([]Rule{{Name: "broken", Expr: "amount >"}})
	require.Error(t, err)

	_, err = NewAmountPolicy([]Rule{{Name: "unknown-var", Expr: "fee > 0"}})
	require.Error(t, err)

	p, err := NewAmountPolicy([]Rule{{Name: "not-bool", Expr: "amount + 1"}})
	require.NoError(t, err)
	err = p.CheckBatch(context.Background(), []contracts.Identity{"a"}, []int64{1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
}
