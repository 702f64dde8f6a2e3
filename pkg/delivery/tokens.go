package delivery

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
	"github.com/hashicorp/go-uuid"
	"github.com/pkg/errors"
)

// TokenTTL is how long an issued download token stays valid.
const TokenTTL = 24 * time.Hour

// mediaMaxThreads is the thread ceiling on media/internal tokens, high
// enough for segmented players but still bounded.
const mediaMaxThreads = 10

// TokenOverrides carries optional per-token policy overrides. Nil fields
// fall back to the issuing account's tier defaults.
type TokenOverrides struct {
	SpeedLimit   *int64
	MaxThreads   *int
	Attachment   *bool
	ProcessHooks *bool
}

// TokenBroker issues and resolves single-purpose direct-download tokens,
// decoupling a download from an interactive session.
type TokenBroker struct {
	tokens   stor.DownloadTokenStor
	accounts stor.AccountStor

	// lockToIP requires the resolving address to match the issuing one.
	lockToIP bool
}

func NewTokenBroker(tokens stor.DownloadTokenStor, accounts stor.AccountStor, lockToIP bool) *TokenBroker {
	return &TokenBroker{tokens: tokens, accounts: accounts, lockToIP: lockToIP}
}

// Issue creates a token for file bound to the given identity. Overrides
// not supplied are filled from the identity's tier ceilings.
func (b *TokenBroker) Issue(file *model.File, identity Identity, ipAddress string, overrides TokenOverrides) (string, error) {
	speed, threads := b.tierCeilings(identity)
	attachment := true
	processHooks := true

	if overrides.SpeedLimit != nil {
		speed = *overrides.SpeedLimit
	}
	if overrides.MaxThreads != nil {
		threads = *overrides.MaxThreads
	}
	if overrides.Attachment != nil {
		attachment = *overrides.Attachment
	}
	if overrides.ProcessHooks != nil {
		processHooks = *overrides.ProcessHooks
	}

	tokenStr, err := b.uniqueTokenFor(file.ID)
	if err != nil {
		return "", err
	}

	var accountID *int
	if identity.LoggedIn {
		id := identity.AccountID
		accountID = &id
	}

	now := time.Now()
	token := &model.DownloadToken{
		Token:         tokenStr,
		AccountID:     accountID,
		IPAddress:     ipAddress,
		FileID:        file.ID,
		DownloadSpeed: speed,
		MaxThreads:    threads,
		Attachment:    attachment,
		ProcessHooks:  processHooks,
		CreatedAt:     now,
		ExpiresAt:     now.Add(TokenTTL),
	}

	if _, err := b.tokens.CreateToken(token); err != nil {
		return "", errors.Wrap(err, "persisting download token")
	}

	return tokenStr, nil
}

// IssueForMedia creates an unrestricted token for internal fetches and
// media streaming: no speed cap, a high thread ceiling, inline transfer,
// and no post-processing hooks.
func (b *TokenBroker) IssueForMedia(file *model.File, identity Identity, ipAddress string) (string, error) {
	var (
		noSpeed int64 = 0
		threads       = mediaMaxThreads
		inline        = false
		noHooks       = false
	)

	return b.Issue(file, identity, ipAddress, TokenOverrides{
		SpeedLimit:   &noSpeed,
		MaxThreads:   &threads,
		Attachment:   &inline,
		ProcessHooks: &noHooks,
	})
}

// Resolve validates (fileID, token) and returns the token row plus the
// identity it is bound to. When IP locking is on the requester address
// must also match.
func (b *TokenBroker) Resolve(file *model.File, tokenStr, ipAddress string) (*model.DownloadToken, Identity, error) {
	var (
		token *model.DownloadToken
		err   error
	)

	if b.lockToIP {
		token, err = b.tokens.GetTokenForIP(file.ID, tokenStr, ipAddress)
	} else {
		token, err = b.tokens.GetToken(file.ID, tokenStr)
	}
	if err != nil {
		return nil, Anonymous, errors.Wrapf(ErrTokenInvalid, "file %d", file.ID)
	}

	if token.Expired(time.Now()) {
		// Single purpose: an expired token is dead weight, drop it now.
		if err := b.tokens.DeleteToken(token); err != nil {
			log.WithError(err).Errorf("failed deleting expired token %d", token.ID)
		}
		return nil, Anonymous, errors.Wrapf(ErrTokenExpired, "file %d", file.ID)
	}

	identity := Anonymous
	if token.AccountID != nil {
		account, err := b.accounts.GetAccountByID(*token.AccountID)
		if err != nil {
			return nil, Anonymous, errors.Wrapf(ErrTokenInvalid, "token account %d: %s", *token.AccountID, err)
		}
		identity = Identity{AccountID: account.ID, TierID: account.TierID, LoggedIn: true}
	}

	return token, identity, nil
}

// PolicyFor builds the effective policy a resolved token dictates.
func PolicyFor(token *model.DownloadToken) Policy {
	return Policy{
		SpeedLimit:   token.DownloadSpeed,
		MaxThreads:   token.MaxThreads,
		Attachment:   token.Attachment,
		ProcessHooks: token.ProcessHooks,
	}
}

// PurgeExpired removes dead token rows. Runs opportunistically ahead of
// transfers and on the queue daemon's schedule.
func (b *TokenBroker) PurgeExpired() {
	if err := b.tokens.DeleteExpired(time.Now()); err != nil {
		log.WithError(err).Error("expired token purge failed")
	}
}

// uniqueTokenFor derives an unguessable token and retries until it does
// not collide with an existing row for the file.
func (b *TokenBroker) uniqueTokenFor(fileID int) (string, error) {
	for {
		salt, err := uuid.GenerateRandomBytes(16)
		if err != nil {
			return "", errors.Wrap(err, "generating token salt")
		}

		sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%d:%x", fileID, time.Now().UnixNano(), salt)))
		tokenStr := fmt.Sprintf("%x", sum)

		exists, err := b.tokens.TokenExists(fileID, tokenStr)
		if err != nil {
			return "", errors.Wrap(err, "checking token collision")
		}
		if !exists {
			return tokenStr, nil
		}
	}
}

func (b *TokenBroker) tierCeilings(identity Identity) (speed int64, threads int) {
	if !identity.LoggedIn {
		return 0, 0
	}

	tier, err := b.accounts.GetTierByID(identity.TierID)
	if err != nil {
		log.WithError(err).Errorf("no tier %d for account %d, using unlimited ceilings", identity.TierID, identity.AccountID)
		return 0, 0
	}

	return tier.MaxDownloadSpeed, tier.MaxDownloadThreads
}
