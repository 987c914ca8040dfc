package runtime

import (
	"context"

	"github.com/Itangalo/scenario-lab-sub001/pkg/cache"
	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
	"github.com/Itangalo/scenario-lab-sub001/pkg/ports"
)

// invoke performs one billed model call on behalf of an actor (empty actor
// means system-level). The response cache is consulted first; hits produce a
// zero-cost ledger record flagged as cached, misses go through the retrying
// transport and are priced fail-closed before being cached.
func (o *Orchestrator) invoke(ctx context.Context, runID string, actor string, turn int, phase domain.PhaseName, model, prompt string) (ports.ModelReply, error) {
	key := cache.Fingerprint(model, prompt)

	if o.cache != nil {
		if entry, ok := o.cache.Get(key, o.bypassCache); ok {
			o.ledger.RecordCached(actor, turn, phase, model)
			o.publish(domain.NewEvent(domain.EventCacheHit, runID, turn, phase, o.clock()).
				WithPayload("actor", actor).
				WithPayload("model", model).
				WithPayload("saved_usd", entry.CostUSD))
			return ports.ModelReply{
				Text:         entry.Value,
				InputTokens:  entry.InputTokens,
				OutputTokens: entry.OutputTokens,
			}, nil
		}
	}

	reply, err := callWithRetry(ctx, o.retry, o.logger, func(ctx context.Context) (ports.ModelReply, error) {
		callCtx := ctx
		if o.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, o.callTimeout)
			defer cancel()
		}
		return o.client.Call(callCtx, model, prompt)
	})
	if err != nil {
		return ports.ModelReply{}, err
	}

	rec, err := o.ledger.Record(actor, turn, phase, model, reply.InputTokens, reply.OutputTokens)
	if err != nil {
		// Unknown model pricing fails closed: the call result is discarded
		// rather than recorded at zero cost.
		return ports.ModelReply{}, err
	}

	if o.cache != nil {
		o.cache.Put(key, cache.Entry{
			Value:        reply.Text,
			Model:        model,
			InputTokens:  reply.InputTokens,
			OutputTokens: reply.OutputTokens,
			CostUSD:      rec.CostUSD,
		})
	}
	return reply, nil
}
