package main

import (
	"context"
	"errors"
	"log/slog"

	"peer-rpc/rpc"
)

// Arith is the interface peerd serves. Callers compile against the same
// interface so both sides agree on method ids.
type Arith interface {
	Add(a, b int) int
	Multiply(a, b int) int
	Divide(a, b float64) (float64, error)
	// Ping calls Whoami back on the caller, if the caller serves it.
	Ping(ctx context.Context) (string, error)
}

// Caller is served by the calling side of peerd.
type Caller interface {
	Whoami() string
}

var errDivideByZero = errors.New("divide by zero")

type arith struct {
	logger *slog.Logger
}

func (a *arith) Add(x, y int) int      { return x + y }
func (a *arith) Multiply(x, y int) int { return x * y }

func (a *arith) Divide(x, y float64) (float64, error) {
	if y == 0 {
		return 0, errDivideByZero
	}
	return x / y, nil
}

// Ping issues a nested call back to the peer that called it. The reply to
// Whoami is handled by the same loop that is running Ping, so Ping cannot
// wait for it and answers before it arrives.
func (a *arith) Ping(ctx context.Context) (string, error) {
	conn, ok := rpc.FromContext(ctx)
	if !ok || conn.Remote() == nil {
		return "pong", nil
	}
	call, err := rpc.NewCall[string](conn, "Whoami")
	if err != nil {
		return "", err
	}
	call.Async(func(r rpc.Result[string]) {
		if r.Err != nil {
			a.logger.Warn("whoami failed", "conn", conn.ID(), "error", r.Err)
			return
		}
		a.logger.Info("caller identified", "conn", conn.ID(), "name", r.Value)
	})
	return "pong from " + conn.ID(), nil
}

type caller struct{ name string }

func (c caller) Whoami() string { return c.name }
