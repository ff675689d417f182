package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"CollectionVote/internal/apperr"
	"CollectionVote/internal/interfaces"
	"CollectionVote/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, err)
	require.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", got)

	for _, bad := range []string{
		"",
		"0x",
		"0x123",
		"5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaeg",
		"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed00",
		"0X5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		" 0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed\n",
	} {
		_, err := NormalizeAddress(bad)
		require.ErrorIs(t, err, apperr.ErrInvalidAddressFormat, bad)
	}
}

func TestSubmitStoresProviderMetadata(t *testing.T) {
	env := newTestEnv(t)
	p := env.bootstrap(t)
	env.provider.err = nil
	env.provider.meta = &interfaces.CollectionMetadata{
		Name:        "Pudgy Penguins",
		Thumbnail:   "https://img.example/pudgy.png",
		Description: "penguins",
		FloorPrice:  decimal.RequireFromString("11.25"),
		Volume24h:   decimal.RequireFromString("340.5"),
		TotalItems:  8888,
		Raw:         json.RawMessage(`{"name":"Pudgy Penguins"}`),
	}

	s, err := env.registry.Submit(context.Background(), address(7), "alice")
	require.NoError(t, err)
	require.Equal(t, p.ID, s.PeriodID)
	require.Zero(t, s.VoteCount)

	stored := env.submission(t, s.ID)
	require.Equal(t, "Pudgy Penguins", stored.Name)
	require.Equal(t, "alice", stored.SubmitterID)
	require.EqualValues(t, 8888, stored.TotalItems)
	require.True(t, stored.FloorPrice.Equal(decimal.RequireFromString("11.25")))
	require.True(t, stored.Volume24h.Equal(decimal.RequireFromString("340.5")))
	require.JSONEq(t, `{"name":"Pudgy Penguins"}`, string(stored.RawMetadata))
	require.EqualValues(t, 1, env.provider.calls.Load())
}

func TestSubmitFallsBackWhenProviderFails(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrap(t)

	s, err := env.registry.Submit(context.Background(), address(1), "alice")
	require.NoError(t, err)
	require.Equal(t, "Collection 0x000000", s.Name)
	require.Equal(t, "https://via.placeholder.com/200?text=0x00", s.Thumbnail)
	require.Equal(t, "NFT Collection", s.Description)
	require.True(t, s.FloorPrice.IsZero())
	require.Zero(t, s.TotalItems)
}

func TestSubmitDuplicateKeepsFirstRecord(t *testing.T) {
	env := newTestEnv(t)
	p := env.bootstrap(t)
	addr := "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"

	first, err := env.registry.Submit(context.Background(), addr, "alice")
	require.NoError(t, err)

	_, err = env.registry.Submit(context.Background(), "0x"+strings.ToUpper(addr[2:]), "bob")
	require.ErrorIs(t, err, apperr.ErrDuplicateSubmission)

	var subs []model.Submission
	require.NoError(t, env.db.Where("period_id = ?", p.ID).Find(&subs).Error)
	require.Len(t, subs, 1)
	require.Equal(t, first.ID, subs[0].ID)
	require.Equal(t, "alice", subs[0].SubmitterID)
	require.Equal(t, first.Name, subs[0].Name)
}

func TestSubmitRequiresSubmissionPhase(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.registry.Submit(context.Background(), address(1), "alice")
	require.ErrorIs(t, err, apperr.ErrNoActivePeriod)

	env.bootstrap(t)
	env.advance(t)

	_, err = env.registry.Submit(context.Background(), address(1), "alice")
	require.ErrorIs(t, err, apperr.ErrWrongPhase)
	var wp *apperr.WrongPhaseError
	require.ErrorAs(t, err, &wp)
	require.Equal(t, "submission", wp.Expected)
	require.Equal(t, "voting", wp.Actual)
}

func TestSubmitRejectsBadAddressWithoutFetching(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrap(t)

	_, err := env.registry.Submit(context.Background(), "not-an-address", "alice")
	require.ErrorIs(t, err, apperr.ErrInvalidAddressFormat)
	require.Zero(t, env.provider.calls.Load())
}

func TestListOrdersByVotesThenSubmissionTime(t *testing.T) {
	env := newTestEnv(t)
	p, subs := env.votingPeriod(t, 3)
	env.toggle(t, "alice", subs[2].ID, p.ID)

	list, err := env.registry.List(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, p.ID, list.Period.ID)
	require.Len(t, list.Submissions, 3)
	require.Equal(t, subs[2].ID, list.Submissions[0].ID)
	require.Equal(t, subs[0].ID, list.Submissions[1].ID)
	require.Equal(t, subs[1].ID, list.Submissions[2].ID)
}

func TestListWithoutPeriod(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.registry.List(context.Background(), 0)
	require.ErrorIs(t, err, apperr.ErrNoActivePeriod)
}
