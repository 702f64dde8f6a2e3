package delivery

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
	"github.com/hashicorp/go-uuid"
)

// TransferState is the terminal state of a download attempt that did not
// fail outright.
type TransferState int

const (
	// StateCompleted means the engine itself delivered the bytes (or the
	// one-byte probe response).
	StateCompleted TransferState = iota

	// StateHandedOff means delivery was delegated to the reverse proxy or
	// the kernel. No further code in this process observes completion.
	StateHandedOff

	// StateShortCircuited means a pre-delivery hook substituted delivery.
	StateShortCircuited
)

// ResponseSink is the outbound channel for one download. The webapi layer
// adapts the HTTP response to it; tests drive it with a recorder.
type ResponseSink interface {
	// Write sends body bytes to the client. Implementations should flush
	// eagerly so throttled transfers trickle instead of bursting.
	Write(p []byte) (int, error)

	// SetHeader must be called before WriteStatus.
	SetHeader(key, value string)

	WriteStatus(status int)
}

// Request describes one download attempt.
type Request struct {
	File        *model.File
	RangeHeader string
	IPAddress   string

	// Token switches resolution from session identity to the token
	// broker when non-empty.
	Token string

	// Session is the authenticated caller, ignored in token mode.
	Session Identity

	// Attachment and RunHooks are the session-mode defaults; in token
	// mode the token's own flags win.
	Attachment bool
	RunHooks   bool

	// ForceAccounting meters the transfer even for self-downloads.
	ForceAccounting bool
}

// Result reports what a finished (or handed-off) download did.
type Result struct {
	State      TransferState
	Range      ByteRange
	BytesSent  int64
	Downgraded bool
}

type EngineOpts struct {
	Files      stor.FileStor
	Accounts   stor.AccountStor
	Stats      stor.StatStor
	Resolver   *StorageResolver
	Admission  *AdmissionController
	Tracker    *TransferTracker
	Broker     *TokenBroker
	Accountant *BandwidthAccountant
	Hooks      *Hooks

	// Origin is the site origin allowed by the CORS headers.
	Origin string
}

// Engine runs the full delivery pipeline: policy resolution, admission,
// backend resolution, range negotiation, streaming or hand-off, and
// post-transfer accounting.
type Engine struct {
	files      stor.FileStor
	accounts   stor.AccountStor
	stats      stor.StatStor
	resolver   *StorageResolver
	admission  *AdmissionController
	tracker    *TransferTracker
	broker     *TokenBroker
	accountant *BandwidthAccountant
	hooks      *Hooks
	streamer   *Streamer
	origin     string
}

func NewEngine(opts EngineOpts) *Engine {
	hooks := opts.Hooks
	if hooks == nil {
		hooks = NewHooks()
	}

	return &Engine{
		files:      opts.Files,
		accounts:   opts.Accounts,
		stats:      opts.Stats,
		resolver:   opts.Resolver,
		admission:  opts.Admission,
		tracker:    opts.Tracker,
		broker:     opts.Broker,
		accountant: opts.Accountant,
		hooks:      hooks,
		streamer:   NewStreamer(),
		origin:     opts.Origin,
	}
}

func (e *Engine) Hooks() *Hooks {
	return e.hooks
}

// Download delivers req.File to sink. Typed errors (ErrAdmissionDenied,
// ErrBackendUnavailable, ErrTokenInvalid, ErrTokenExpired, ErrTransferIO)
// tell the caller what response to produce; the result carries the
// terminal state otherwise.
func (e *Engine) Download(ctx context.Context, req Request, sink ResponseSink) (*Result, error) {
	file := req.File

	identity := req.Session
	policy := e.sessionPolicy(identity)
	attachment := req.Attachment
	runHooks := req.RunHooks

	if req.Token != "" {
		token, tokenIdentity, err := e.broker.Resolve(file, req.Token, req.IPAddress)
		if err != nil {
			return nil, err
		}
		identity = tokenIdentity
		policy = PolicyFor(token)
		attachment = token.Attachment
		runHooks = runHooks && token.ProcessHooks
	}

	// Reap stale ledger rows and dead tokens so admission counts are
	// honest before we enforce them.
	e.tracker.Sweep()
	e.broker.PurgeExpired()

	if err := e.admission.Admit(req.IPAddress, policy.MaxThreads); err != nil {
		return nil, err
	}

	server, err := e.resolver.Resolve(file.ServerID)
	if err != nil {
		return nil, err
	}

	rng := NegotiateRange(req.RangeHeader, file.Size)
	tier := e.tierFor(identity)

	e.writeCommonHeaders(sink, file, attachment)

	// Capability probe: one byte, no ledger row, no accounting, and the
	// streaming engine never runs.
	if rng.IsProbe() {
		sink.SetHeader("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, file.Size))
		sink.SetHeader("Content-Length", "1")
		sink.WriteStatus(http.StatusPartialContent)
		_, _ = sink.Write([]byte("1"))
		return &Result{State: StateCompleted, Range: rng, BytesSent: 1}, nil
	}

	handle := e.tracker.Open(file, req.IPAddress, rng)
	planned := plannedBytes(file.Size, rng)

	if runHooks {
		hookReq := &HookRequest{
			File:      *file,
			Range:     rng,
			IPAddress: req.IPAddress,
			AccountID: identity.AccountID,
			Policy:    policy,
			Token:     req.Token,
		}
		if sc := e.hooks.RunPreDelivery(ctx, hookReq); sc != nil {
			writeShortCircuit(sink, sc)
			handle.Finish(model.TransferFinished)
			return &Result{State: StateShortCircuited, Range: rng, BytesSent: int64(len(sc.Body))}, nil
		}
	}

	// Accelerated transports get first refusal. Accounting, statistics
	// and post hooks must settle before the hand-off because nothing in
	// this process runs after it.
	if server.IsLocal() && attachment {
		if res := e.tryHandOff(ctx, req, file, server, rng, identity, tier, policy, planned, runHooks, sink); res != nil {
			// The ledger row is deliberately left open: the timeout sweep
			// reclaims it, mirroring that we can no longer track progress.
			return res, nil
		}
	}

	return e.streamManually(ctx, req, file, server, rng, identity, tier, policy, planned, attachment, runHooks, handle, sink)
}

// sessionPolicy derives the policy for session (non-token) requests from
// the account tier. Anonymous callers get no ceilings here; the deploy
// fronts them with its own guest limits via issued tokens.
func (e *Engine) sessionPolicy(identity Identity) Policy {
	policy := Policy{Attachment: true, ProcessHooks: true}
	if !identity.LoggedIn {
		return policy
	}

	tier, err := e.accounts.GetTierByID(identity.TierID)
	if err != nil {
		log.WithError(err).Errorf("no tier %d for account %d", identity.TierID, identity.AccountID)
		return policy
	}

	policy.SpeedLimit = tier.MaxDownloadSpeed
	policy.MaxThreads = tier.MaxDownloadThreads

	return policy
}

func (e *Engine) tierFor(identity Identity) *model.AccountTier {
	if !identity.LoggedIn {
		return nil
	}

	tier, err := e.accounts.GetTierByID(identity.TierID)
	if err != nil {
		return nil
	}

	return tier
}

func (e *Engine) writeCommonHeaders(sink ResponseSink, file *model.File, attachment bool) {
	sink.SetHeader("Expires", "0")
	sink.SetHeader("Cache-Control", "must-revalidate, post-check=0, pre-check=0")
	sink.SetHeader("Pragma", "public")
	sink.SetHeader("Content-Type", file.MimeType)
	sink.SetHeader("Accept-Ranges", "bytes")

	if attachment {
		sink.SetHeader("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.FilenameForDisposition()))
		sink.SetHeader("Content-Description", "File Transfer")
	}

	origin := e.origin
	if origin == "" {
		origin = "*"
	}
	sink.SetHeader("Access-Control-Allow-Origin", origin)
	sink.SetHeader("Access-Control-Allow-Headers", "Content-Type, Content-Range, Content-Disposition, Content-Description")
	sink.SetHeader("Access-Control-Allow-Credentials", "true")
}

// tryHandOff attempts the two accelerated transports. Returns nil when
// neither is eligible and manual streaming should proceed.
func (e *Engine) tryHandOff(ctx context.Context, req Request, file *model.File, server *model.StorageServer,
	rng ByteRange, identity Identity, tier *model.AccountTier, policy Policy, planned int64,
	runHooks bool, sink ResponseSink) *Result {

	fullPath := file.PathOnServer(server.DocRoot, server.StoragePath)

	switch {
	case server.ProxyRedirect:
		downgraded := e.settle(ctx, req, file, rng, identity, tier, planned, StateHandedOff, runHooks)

		relative := fullPath
		if server.DocRoot != "/" && server.DocRoot != "" {
			relative = strings.TrimPrefix(relative, server.DocRoot)
		}

		log.WithField("path", relative).Info("handing transfer to reverse proxy internal redirect")

		if policy.SpeedLimit > 0 {
			sink.SetHeader("X-Accel-Limit-Rate", strconv.FormatInt(policy.SpeedLimit, 10))
		}
		sink.SetHeader("X-Accel-Redirect", relative)
		sink.WriteStatus(http.StatusOK)

		return &Result{State: StateHandedOff, Range: rng, Downgraded: downgraded}

	case server.Sendfile && policy.SpeedLimit == 0:
		// sendfile cannot throttle, so it is only eligible unthrottled.
		downgraded := e.settle(ctx, req, file, rng, identity, tier, planned, StateHandedOff, runHooks)

		log.WithField("path", fullPath).Info("handing transfer to kernel sendfile")

		etag, _ := uuid.GenerateUUID()
		sink.SetHeader("X-Sendfile", fullPath)
		sink.SetHeader("Etag", fmt.Sprintf("%q", etag))
		sink.WriteStatus(http.StatusOK)

		return &Result{State: StateHandedOff, Range: rng, Downgraded: downgraded}
	}

	return nil
}

func (e *Engine) streamManually(ctx context.Context, req Request, file *model.File, server *model.StorageServer,
	rng ByteRange, identity Identity, tier *model.AccountTier, policy Policy, planned int64,
	attachment, runHooks bool, handle *LedgerHandle, sink ResponseSink) (*Result, error) {

	backend, err := BackendFor(server)
	if err != nil {
		handle.Finish(model.TransferErrored)
		return nil, err
	}

	path := file.PathOnServer(server.DocRoot, server.StoragePath)
	if !server.IsLocal() {
		path = file.PathOnServer("", server.StoragePath)
	}

	src, err := backend.Open(ctx, path, rng.Start)
	if err != nil {
		handle.Finish(model.TransferErrored)
		return nil, err
	}
	defer func() {
		_ = src.Close()
	}()

	if rng.Partial(file.Size) {
		sink.SetHeader("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, file.Size))
		sink.SetHeader("Content-Length", strconv.FormatInt(rng.Length(), 10))
		sink.WriteStatus(http.StatusPartialContent)
	} else {
		// The 200 branch always answers with the whole file, including
		// for zero-start bounded ranges, so the declared length and the
		// streamed window stay in agreement.
		rng = ByteRange{Start: 0, End: file.Size - 1}
		sink.SetHeader("Content-Length", strconv.FormatInt(file.Size, 10))
		// Some download managers expect the full range spelled out even
		// on a 200.
		sink.SetHeader("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, file.Size))
		sink.WriteStatus(http.StatusOK)
	}

	written, streamErr := e.streamer.Stream(ctx, src, rng, sink, policy.SpeedLimit, handle)

	// Accounting settles even after a broken pipe; the bytes left the
	// backend and the planned window is what we meter.
	downgraded := e.settle(ctx, req, file, rng, identity, tier, planned, StateCompleted, runHooks)

	if streamErr != nil {
		handle.Finish(model.TransferErrored)
		return &Result{State: StateCompleted, Range: rng, BytesSent: written, Downgraded: downgraded}, streamErr
	}

	handle.Finish(model.TransferFinished)

	return &Result{State: StateCompleted, Range: rng, BytesSent: written, Downgraded: downgraded}, nil
}

// settle runs the post-transfer bookkeeping: bandwidth debit, statistics
// and post hooks. Failures are logged, never propagated; the bytes are
// already on the wire.
func (e *Engine) settle(ctx context.Context, req Request, file *model.File, rng ByteRange,
	identity Identity, tier *model.AccountTier, planned int64, state TransferState, runHooks bool) bool {

	downgraded, err := e.accountant.Settle(identity.AccountID, tier, file, planned, req.ForceAccounting)
	if err != nil {
		log.WithError(err).Errorf("bandwidth settle failed for file %d", file.ID)
	}

	e.recordStats(file, req.IPAddress, identity, tier)

	if runHooks {
		tierLevel := 0
		if tier != nil {
			tierLevel = tier.Level
		}
		e.hooks.RunPostCompletion(ctx, &Completion{
			File:      *file,
			State:     state,
			Range:     rng,
			BytesSent: planned,
			IPAddress: req.IPAddress,
			AccountID: identity.AccountID,
			TierLevel: tierLevel,
			Token:     req.Token,
		})
	}

	return downgraded
}

// recordStats logs the download for reporting unless it was the owner or
// an administrator pulling their own content.
func (e *Engine) recordStats(file *model.File, ipAddress string, identity Identity, tier *model.AccountTier) {
	if file.OwnedBy(identity.AccountID) {
		return
	}
	if tier != nil && tier.IsAdmin() {
		return
	}

	var accountID *int
	if identity.LoggedIn {
		id := identity.AccountID
		accountID = &id
	}

	if _, err := e.stats.RecordDownload(file.ID, ipAddress, accountID); err != nil {
		log.WithError(err).Errorf("failed recording stat for file %d", file.ID)
		return
	}

	if err := e.files.SetLastAccessed(file); err != nil {
		log.WithError(err).Errorf("failed stamping last access for file %d", file.ID)
	}
	if err := e.files.SyncVisits(file); err != nil {
		log.WithError(err).Errorf("failed syncing visits for file %d", file.ID)
	}
}

// plannedBytes is the size metered against the downloader's quota: the
// requested window for partial requests, the whole file otherwise.
func plannedBytes(size int64, rng ByteRange) int64 {
	planned := size
	if rng.Partial(size) {
		planned = rng.Length()
	}
	if planned < 0 {
		planned = 0
	}

	return planned
}

func writeShortCircuit(sink ResponseSink, sc *ShortCircuit) {
	for k, v := range sc.Header {
		sink.SetHeader(k, v)
	}

	status := sc.Status
	if status == 0 {
		status = http.StatusOK
	}
	sink.WriteStatus(status)
	_, _ = sink.Write(sc.Body)
}
