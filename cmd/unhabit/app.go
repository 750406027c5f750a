package main

import (
	"context"
	"fmt"
	"os"

	"unhabit/internal/invoker"
	"unhabit/internal/llm"
	"unhabit/internal/logging"
	"unhabit/internal/pipeline"
	"unhabit/internal/session"
)

// newClient builds the provider client. Tests replace it.
var newClient = llm.NewClientFromConfig

// app holds the wired components for commands that call a model.
type app struct {
	client   *llm.TracingClient
	pipeline *pipeline.Pipeline
	close    func() error
}

func newApp(ctx context.Context) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := newClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	closer := func() error { return nil }
	opts := []llm.TracingOption{llm.WithTracingLogger(logging.For(logger, logging.CategoryAPI))}
	if cfg.Tracing.TraceFile != "" {
		f, err := os.OpenFile(cfg.Tracing.TraceFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace file: %w", err)
		}
		opts = append(opts, llm.WithTraceStore(llm.NewJSONLTraceStore(f)))
		closer = f.Close
	}
	client := llm.NewTracingClient(base, opts...)

	p := pipeline.FromConfig(client, cfg, logging.For(logger, logging.CategoryPipeline),
		pipeline.WithInvokerOptions(invoker.WithLogger(logging.For(logger, logging.CategoryInvoker))))

	return &app{client: client, pipeline: p, close: closer}, nil
}

// newSession starts a session and attributes traces to it.
func (a *app) newSession() (*session.Session, error) {
	s, err := session.New(a.pipeline,
		session.WithLogger(logging.For(logger, logging.CategorySession)),
		session.WithRescreen(cfg.Pipeline.RescreenChat))
	if err != nil {
		return nil, err
	}
	a.client.SetSessionID(s.ID())
	return s, nil
}
