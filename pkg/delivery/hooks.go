package delivery

import (
	"context"

	"github.com/apex/log"
	"github.com/filehaven/filehaven/pkg/fhdb/model"
)

// ShortCircuit is a complete response produced by a pre-delivery hook in
// place of the streaming engine, e.g. a plugin serving bytes from its own
// cache tier.
type ShortCircuit struct {
	Status int
	Header map[string]string
	Body   []byte
}

// HookRequest is what pre-delivery hooks see. Fields are copies; hooks
// influence delivery only by returning a ShortCircuit.
type HookRequest struct {
	File      model.File
	Range     ByteRange
	IPAddress string
	AccountID int
	Policy    Policy
	Token     string
}

// Completion is the immutable record handed to post-completion hooks.
type Completion struct {
	File      model.File
	State     TransferState
	Range     ByteRange
	BytesSent int64
	IPAddress string
	AccountID int
	TierLevel int
	Token     string
}

// PreDeliveryHook may substitute delivery entirely. Returning a non-nil
// ShortCircuit stops the engine; returning (nil, nil) passes through.
type PreDeliveryHook func(ctx context.Context, req *HookRequest) (*ShortCircuit, error)

// PostCompletionHook observes a settled transfer, for statistics and
// cleanup. Hook failures never fail the transfer.
type PostCompletionHook func(ctx context.Context, c *Completion)

// Hooks is the in-process extension point registry.
type Hooks struct {
	pre  []PreDeliveryHook
	post []PostCompletionHook
}

func NewHooks() *Hooks {
	return &Hooks{}
}

func (h *Hooks) RegisterPreDelivery(hook PreDeliveryHook) {
	h.pre = append(h.pre, hook)
}

func (h *Hooks) RegisterPostCompletion(hook PostCompletionHook) {
	h.post = append(h.post, hook)
}

// RunPreDelivery runs pre hooks in registration order and returns the
// first short circuit, if any. A hook error is logged and skipped; a
// misbehaving plugin shouldn't take down delivery.
func (h *Hooks) RunPreDelivery(ctx context.Context, req *HookRequest) *ShortCircuit {
	for _, hook := range h.pre {
		sc, err := hook(ctx, req)
		if err != nil {
			log.WithError(err).Errorf("pre-delivery hook failed for file %d", req.File.ID)
			continue
		}
		if sc != nil {
			return sc
		}
	}

	return nil
}

func (h *Hooks) RunPostCompletion(ctx context.Context, c *Completion) {
	for _, hook := range h.post {
		hook(ctx, c)
	}
}
