package middleware

import (
	"context"
	"time"

	"github.com/leofalp/chatflow/internal/utils"
	"github.com/leofalp/chatflow/providers/ai"
	"github.com/leofalp/chatflow/providers/observability"
)

// LogLevel controls how much of each call [Logging] reports.
type LogLevel int

const (
	// LogLevelMinimal reports model, duration and token counts.
	LogLevelMinimal LogLevel = iota

	// LogLevelStandard adds the message count and finish reason.
	LogLevelStandard

	// LogLevelVerbose adds the last request message and the response text,
	// truncated. It logs user content; keep it out of production.
	LogLevelVerbose
)

const truncateLen = 500

// Logging reports every call through observer: a debug entry before the
// call and an info or error entry after it. A nil observer falls back to
// the one carried by the request context, if any.
func Logging(observer observability.Provider, level LogLevel) Middleware {
	return func(next SendFunc) SendFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			obs := observer
			if obs == nil {
				obs = observability.ObserverFromContext(ctx)
			}
			if obs == nil {
				return next(ctx, request)
			}

			obs.Debug(ctx, "llm send", requestAttrs(request, level)...)

			started := time.Now()
			response, err := next(ctx, request)
			elapsed := time.Since(started)

			if err != nil {
				obs.Error(ctx, "llm send failed",
					observability.String(observability.AttrLLMModel, request.Model),
					observability.Duration(observability.AttrDuration, elapsed),
					observability.Error(err),
				)
				obs.Counter(observability.MetricLLMRequestFailures).Add(ctx, 1)
				return nil, err
			}

			obs.Info(ctx, "llm send completed", responseAttrs(response, elapsed, level)...)
			obs.Histogram(observability.MetricLLMRequestDuration).Record(ctx, elapsed.Seconds())
			if response.Usage != nil {
				obs.Counter(observability.MetricLLMTokens).Add(ctx, int64(response.Usage.TotalTokens))
			}
			return response, nil
		}
	}
}

func requestAttrs(request ai.ChatRequest, level LogLevel) []observability.Attribute {
	attrs := []observability.Attribute{
		observability.String(observability.AttrLLMModel, request.Model),
	}
	if level >= LogLevelStandard {
		attrs = append(attrs,
			observability.Int("llm.messages", len(request.Messages)),
			observability.Int("llm.tools", len(request.Tools)),
		)
	}
	if level >= LogLevelVerbose && len(request.Messages) > 0 {
		last := request.Messages[len(request.Messages)-1]
		attrs = append(attrs,
			observability.String("llm.last_message.role", string(last.Role)),
			observability.String("llm.last_message.content", utils.TruncateString(last.Content, truncateLen)),
		)
	}
	return attrs
}

func responseAttrs(response *ai.ChatResponse, elapsed time.Duration, level LogLevel) []observability.Attribute {
	attrs := []observability.Attribute{
		observability.String(observability.AttrLLMModel, response.Model),
		observability.Duration(observability.AttrDuration, elapsed),
	}
	if response.Usage != nil {
		attrs = append(attrs, observability.Int(observability.AttrLLMTokensTotal, response.Usage.TotalTokens))
	}
	if level >= LogLevelStandard && len(response.Choices) > 0 && response.Choices[0].FinishReason != "" {
		attrs = append(attrs, observability.String(observability.AttrLLMFinishReason, response.Choices[0].FinishReason))
	}
	if level >= LogLevelVerbose {
		if content := response.Content(); content != "" {
			attrs = append(attrs, observability.String("llm.response.content", utils.TruncateString(content, truncateLen)))
		}
	}
	return attrs
}
