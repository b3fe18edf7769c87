package contracts

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProposal_CloneIsDeep(t *testing.T) {
	now := time.Now()
	p := &Proposal{
		ID:         1,
		Payees:     []Identity{"a", "b"},
		Amounts:    []int64{100, 200},
		Approvers:  []Identity{"x"},
		ExecutedAt: &now,
	}

	c := p.Clone()
	c.Payees[0] = "mutated"
	c.Amounts[1] = 0
	c.Approvers = append(c.Approvers, "y")
	*c.ExecutedAt = now.Add(time.Hour)

	assert.Equal(t, Identity("a"), p.Payees[0])
	assert.Equal(t, int64(200), p.Amounts[1])
	assert.Len(t, p.Approvers, 1)
	assert.True(t, p.ExecutedAt.Equal(now))
}

func TestProposal_Totals(t *testing.T) {
	p := &Proposal{Amounts: []int64{100, 200, 300}, Disbursed: 1}
	total, err := p.Total()
	require.NoError(t, err)
	require.Equal(t, int64(600), total)
	remaining, err := p.Remaining()
	require.NoError(t, err)
	require.Equal(t, int64(500), remaining)
	require.Equal(t, ProposalOpen, p.Status())

	p.Executed = true
	require.Equal(t, ProposalExecuted, p.Status())
}

func TestSumAmounts_Overflow(t *testing.T) {
	_, err := SumAmounts([]int64{math.MaxInt64, 1})
	require.ErrorIs(t, err, ErrAmountOverflow)

	sum, err := SumAmounts([]int64{math.MaxInt64 - 1, 1})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), sum)

	_, err = SumAmounts([]int64{5, -1})
	require.Error(t, err)

	p := &Proposal{Amounts: []int64{math.MaxInt64, math.MaxInt64 - 10, 10}, Disbursed: 1}
	_, err = p.Total()
	require.ErrorIs(t, err, ErrAmountOverflow)
	remaining, err := p.Remaining()
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), remaining)
}

func TestProposal_HasApprover(t *testing.T) {
	p := &Proposal{Approvers: []Identity{"alice", "bob"}}
	assert.True(t, p.HasApprover("bob"))
	assert.False(t, p.HasApprover("carol"))
	assert.Nil(t, (*Proposal)(nil).Clone())
}
