package llm

import (
	"context"

	"github.com/joseph-ayodele/regbench/constants"
)

// Request is a single prompt sent to the oracle.
type Request struct {
	Prompt   string
	Model    string          // optional per-stage override; empty means client default
	JSONMode bool            // ask the provider for a JSON object response
	Purpose  constants.Stage // which pipeline stage is asking (logs and metrics)
}

// Oracle is the language-model boundary every stage depends on.
// Implementations must be safe for concurrent use.
type Oracle interface {
	Ask(ctx context.Context, req Request) (string, error)
}

// OracleFunc adapts a plain function to Oracle.
type OracleFunc func(ctx context.Context, req Request) (string, error)

func (f OracleFunc) Ask(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
