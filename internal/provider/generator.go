package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/pdfrag-go/internal/logging"
)

// ChatGenerator adapts an eino chat model to the [Generator] interface.
// Every call is sent as a single user message at the configured temperature
// and bounded by a per-call timeout.
type ChatGenerator struct {
	// model is the underlying eino chat model.
	model model.BaseChatModel
	// temperature is passed as a call option unless omitTemperature is set.
	temperature float32
	// omitTemperature skips the temperature option for models that reject it.
	omitTemperature bool
	// timeout bounds each Generate call; zero disables the bound.
	timeout time.Duration
	// name identifies the backend in logs.
	name string
}

// NewChatGenerator wraps m using the tuning in cfg. cfg may be nil, in which
// case temperature 0 and the default timeout are used.
func NewChatGenerator(m model.BaseChatModel, cfg *Config) *ChatGenerator {
	g := &ChatGenerator{
		model:   m,
		timeout: defaultTimeout,
		name:    "custom",
	}
	if cfg != nil {
		g.temperature = cfg.Tuning.Temperature
		if cfg.Tuning.Timeout > 0 {
			g.timeout = cfg.Tuning.Timeout
		}
		g.name = string(cfg.Backend)
		g.omitTemperature = cfg.Backend == BackendAzure && isAzureReasoningModel(cfg.AzureOpenAI.Deployment)
	}
	return g
}

// Generate implements [Generator]. Failures are returned as [*CallError].
func (g *ChatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var opts []model.Option
	if !g.omitTemperature {
		opts = append(opts, model.WithTemperature(g.temperature))
	}

	start := time.Now()
	msg, err := g.model.Generate(callCtx, []*schema.Message{schema.UserMessage(prompt)}, opts...)
	if err != nil {
		// Parent cancellation is fatal; our own per-call timeout is transient.
		kind := Classify(err)
		if ctx.Err() != nil {
			kind = KindFatal
			err = errors.Join(err, ctx.Err())
		} else if errors.Is(err, context.DeadlineExceeded) {
			kind = KindTransient
		}
		logging.FromContext(ctx).Debug("provider: generate failed",
			"backend", g.name,
			"kind", kind.String(),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return "", &CallError{Kind: kind, Err: err}
	}
	if msg == nil {
		return "", &CallError{Kind: KindTransient, Err: fmt.Errorf("empty response from %s", g.name)}
	}
	return msg.Content, nil
}
