package model

import (
	"context"
	"errors"
)

// ErrNoResponse is returned by Collect when a model closed its channels
// without a final response or error.
var ErrNoResponse = errors.New("model returned no final response")

// Collect drains a Generate call and returns the final response. Partial
// text chunks are passed to onDelta (may be nil) in arrival order.
func Collect(ctx context.Context, respCh <-chan Response, errCh <-chan error, onDelta func(Response)) (Response, error) {
	var (
		final    Response
		gotFinal bool
	)

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				if onDelta != nil {
					onDelta(resp)
				}
				continue
			}
			final = resp
			gotFinal = true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}

	if !gotFinal {
		return Response{}, ErrNoResponse
	}

	return final, nil
}

// GenerateSync runs a generation to completion.
func GenerateSync(ctx context.Context, m Model, req Request, onDelta func(Response)) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)
	return Collect(ctx, respCh, errCh, onDelta)
}
