/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package agenttrace records model exchanges.

An Exchange is a single request/response round trip with a language model:
the operation that issued it, the attempt number, the prompts, the response
and the token usage. Each exchange opens an OpenTelemetry span and, when
completed, is handed to the Tracer carried by the context.

# Usage

	ctx = agenttrace.WithTracer(ctx, agenttrace.ByCode(func(e *agenttrace.Exchange) {
		log.Printf("exchange %s took %v", e.ID, e.Duration())
	}))

	ctx, ex := agenttrace.Start(ctx, "get_fix", "gpt-4", attempt, system, user)
	resp, err := model.Complete(ctx, req)
	if err == nil {
		ex.RecordTokenUsage(resp.PromptTokens, resp.CompletionTokens)
	}
	ex.Complete(resp.Text, err)

Without a tracer in the context, completed exchanges are logged at debug level
through clog.
*/
package agenttrace
