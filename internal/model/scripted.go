package model

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync/atomic"

	"github.com/Itangalo/scenario-lab-sub001/pkg/ports"
)

// ScriptedClient produces deterministic synthetic replies without calling any
// external service. Used by dry runs and cost estimation: the reply text is a
// pure function of the prompt, so repeated runs and cache fingerprints line
// up exactly.
type ScriptedClient struct {
	calls atomic.Int64
}

// NewScriptedClient returns a deterministic offline client.
func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{}
}

// Call returns a synthetic reply derived from the prompt hash. Token counts
// approximate real usage so dry runs exercise the ledger with plausible
// numbers.
func (c *ScriptedClient) Call(ctx context.Context, model, prompt string) (ports.ModelReply, error) {
	if err := ctx.Err(); err != nil {
		return ports.ModelReply{}, err
	}
	c.calls.Add(1)

	h := fnv.New32a()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	seed := h.Sum32()

	text := fmt.Sprintf(
		"Scripted reply %08x.\nACTION: hold position and observe (variant %d)\n",
		seed, seed%7,
	)
	return ports.ModelReply{
		Text:         text,
		InputTokens:  len(prompt) / 4,
		OutputTokens: len(text) / 4,
	}, nil
}

// Calls reports how many invocations the client has served.
func (c *ScriptedClient) Calls() int64 {
	return c.calls.Load()
}
