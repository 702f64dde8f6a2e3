package delivery

import (
	"testing"
	"time"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
	"github.com/stretchr/testify/require"
)

func newTokenBrokerFixture(lockToIP bool) (*TokenBroker, *stor.InMemoryDownloadTokenStor) {
	tokens := stor.NewInMemoryDownloadTokenStor()
	accounts := stor.NewInMemoryAccountStor(
		[]*model.Account{{ID: 1, TierID: 11}},
		[]model.AccountTier{
			{ID: 10, Name: "free", Level: 1, DefaultFree: true, MaxDownloadThreads: 1, MaxDownloadSpeed: 51200},
			{ID: 11, Name: "paid", Level: 5, MaxDownloadThreads: 4, MaxDownloadSpeed: 0},
		},
	)

	return NewTokenBroker(tokens, accounts, lockToIP), tokens
}

func TestTokenBroker_IssueAndResolve(t *testing.T) {
	broker, _ := newTokenBrokerFixture(false)
	file := &model.File{ID: 5, Size: 100}
	identity := Identity{AccountID: 1, TierID: 11, LoggedIn: true}

	tokenStr, err := broker.Issue(file, identity, "10.0.0.1", TokenOverrides{})
	require.NoError(t, err)
	require.Len(t, tokenStr, 64)

	token, resolved, err := broker.Resolve(file, tokenStr, "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, 1, resolved.AccountID)
	require.True(t, resolved.LoggedIn)

	// Tier ceilings flowed into the token.
	policy := PolicyFor(token)
	require.Equal(t, int64(0), policy.SpeedLimit)
	require.Equal(t, 4, policy.MaxThreads)
	require.True(t, policy.Attachment)
	require.True(t, policy.ProcessHooks)
}

func TestTokenBroker_Overrides(t *testing.T) {
	broker, _ := newTokenBrokerFixture(false)
	file := &model.File{ID: 5, Size: 100}

	speed := int64(1024)
	threads := 2
	inline := false

	tokenStr, err := broker.Issue(file, Anonymous, "10.0.0.1", TokenOverrides{
		SpeedLimit: &speed,
		MaxThreads: &threads,
		Attachment: &inline,
	})
	require.NoError(t, err)

	token, resolved, err := broker.Resolve(file, tokenStr, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, resolved.LoggedIn)

	policy := PolicyFor(token)
	require.Equal(t, int64(1024), policy.SpeedLimit)
	require.Equal(t, 2, policy.MaxThreads)
	require.False(t, policy.Attachment)
	require.True(t, policy.ProcessHooks)
}

func TestTokenBroker_IssueForMedia(t *testing.T) {
	broker, _ := newTokenBrokerFixture(false)
	file := &model.File{ID: 5, Size: 100}

	tokenStr, err := broker.IssueForMedia(file, Anonymous, "10.0.0.1")
	require.NoError(t, err)

	token, _, err := broker.Resolve(file, tokenStr, "10.0.0.1")
	require.NoError(t, err)

	policy := PolicyFor(token)
	require.Equal(t, int64(0), policy.SpeedLimit)
	require.Equal(t, mediaMaxThreads, policy.MaxThreads)
	require.False(t, policy.Attachment)
	require.False(t, policy.ProcessHooks)
}

func TestTokenBroker_ResolveFailures(t *testing.T) {
	file := &model.File{ID: 5, Size: 100}

	t.Run("unknown token", func(t *testing.T) {
		broker, _ := newTokenBrokerFixture(false)

		_, _, err := broker.Resolve(file, "nope", "10.0.0.1")
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("wrong file", func(t *testing.T) {
		broker, _ := newTokenBrokerFixture(false)

		tokenStr, err := broker.Issue(file, Anonymous, "10.0.0.1", TokenOverrides{})
		require.NoError(t, err)

		otherFile := &model.File{ID: 6, Size: 100}
		_, _, err = broker.Resolve(otherFile, tokenStr, "10.0.0.1")
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("ip mismatch when locked", func(t *testing.T) {
		broker, _ := newTokenBrokerFixture(true)

		tokenStr, err := broker.Issue(file, Anonymous, "10.0.0.1", TokenOverrides{})
		require.NoError(t, err)

		_, _, err = broker.Resolve(file, tokenStr, "10.0.0.9")
		require.ErrorIs(t, err, ErrTokenInvalid)

		_, _, err = broker.Resolve(file, tokenStr, "10.0.0.1")
		require.NoError(t, err)
	})

	t.Run("expired token is rejected and removed", func(t *testing.T) {
		broker, tokens := newTokenBrokerFixture(false)

		tokenStr, err := broker.Issue(file, Anonymous, "10.0.0.1", TokenOverrides{})
		require.NoError(t, err)

		stored, err := tokens.GetToken(file.ID, tokenStr)
		require.NoError(t, err)
		stored.ExpiresAt = time.Now().Add(-time.Minute)

		_, _, err = broker.Resolve(file, tokenStr, "10.0.0.1")
		require.ErrorIs(t, err, ErrTokenExpired)

		// The dead row is gone; a retry reports invalid, not expired.
		_, _, err = broker.Resolve(file, tokenStr, "10.0.0.1")
		require.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func TestTokenBroker_PurgeExpired(t *testing.T) {
	broker, tokens := newTokenBrokerFixture(false)
	file := &model.File{ID: 5, Size: 100}

	keepStr, err := broker.Issue(file, Anonymous, "10.0.0.1", TokenOverrides{})
	require.NoError(t, err)

	dropStr, err := broker.Issue(file, Anonymous, "10.0.0.1", TokenOverrides{})
	require.NoError(t, err)

	dropped, err := tokens.GetToken(file.ID, dropStr)
	require.NoError(t, err)
	dropped.ExpiresAt = time.Now().Add(-time.Minute)

	broker.PurgeExpired()

	_, err = tokens.GetToken(file.ID, keepStr)
	require.NoError(t, err)

	exists, err := tokens.TokenExists(file.ID, dropStr)
	require.NoError(t, err)
	require.False(t, exists)
}
