// Package agent wraps the language model behind the five calls the triage
// flow makes: classify, extract, ask, brief and revise.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"basegraph.app/concierge/common/llm"
	"basegraph.app/concierge/common/logger"
	"basegraph.app/concierge/internal/model"
)

const (
	MaxFollowUps = 3

	degradedConfidence = 0.5
	degradedReasoning  = "fallback: model reply unusable"
)

// Gateway is the model-facing surface of the triage flow. Transport errors are
// returned; malformed replies degrade to safe defaults and are logged.
type Gateway interface {
	ClassifyCategory(ctx context.Context, title, body string, categories []string) (Classification, error)
	ExtractFields(ctx context.Context, body, comments string, required []string) (model.Fields, error)
	GenerateFollowUps(ctx context.Context, body, category string, missing, asked []string) ([]FollowUp, error)
	GenerateBrief(ctx context.Context, in BriefInput) (Brief, error)
	ReviseBrief(ctx context.Context, in RevisionInput) (Brief, error)
}

type LLMGateway struct {
	llm llm.Client
}

func NewGateway(client llm.Client) *LLMGateway {
	return &LLMGateway{llm: client}
}

func (g *LLMGateway) ClassifyCategory(ctx context.Context, title, body string, categories []string) (Classification, error) {
	if len(categories) == 0 {
		return Classification{}, nil
	}

	content, err := g.chat(ctx, llm.Request{
		SystemPrompt: classifySystemPrompt,
		UserPrompt:   buildClassifyPrompt(title, body, categories),
		SchemaName:   "category_classification",
		Schema:       classificationSchema(categories),
	})
	if err != nil {
		return Classification{}, fmt.Errorf("classify category: %w", err)
	}

	res := Parse[Classification](content, "category", "confidence", "reasoning")
	logDegraded(ctx, "classify", res)

	if res.Status != StatusFailed {
		for _, c := range categories {
			if strings.EqualFold(c, strings.TrimSpace(res.Value.Category)) {
				res.Value.Category = c
				return res.Value, nil
			}
		}
		slog.WarnContext(ctx, "llm classified into unknown category",
			"category", res.Value.Category,
			"configured", categories)
	}

	return Classification{
		Category:   categories[0],
		Confidence: degradedConfidence,
		Reasoning:  degradedReasoning,
	}, nil
}

func (g *LLMGateway) ExtractFields(ctx context.Context, body, comments string, required []string) (model.Fields, error) {
	fields := model.Fields{}
	if len(required) == 0 {
		return fields, nil
	}

	content, err := g.chat(ctx, llm.Request{
		SystemPrompt: extractSystemPrompt,
		UserPrompt:   buildExtractPrompt(body, comments, required),
		SchemaName:   "case_packet",
		Schema:       extractionSchema(required),
	})
	if err != nil {
		return nil, fmt.Errorf("extract fields: %w", err)
	}

	res := Parse[map[string]any](content)
	logDegraded(ctx, "extract", res)
	if res.Status == StatusFailed {
		return fields, nil
	}

	for _, name := range required {
		v, ok := lookupFold(res.Value, name)
		if !ok {
			continue
		}
		if s := strings.TrimSpace(stringify(v)); s != "" {
			fields.Set(name, s)
		}
	}
	return fields, nil
}

func (g *LLMGateway) GenerateFollowUps(ctx context.Context, body, category string, missing, asked []string) ([]FollowUp, error) {
	if len(missing) == 0 {
		return nil, nil
	}

	content, err := g.chat(ctx, llm.Request{
		SystemPrompt: followUpSystemPrompt,
		UserPrompt:   buildFollowUpPrompt(body, category, missing, asked),
		SchemaName:   "follow_up_questions",
		Schema:       followUpsSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("generate follow-ups: %w", err)
	}

	res := Parse[followUpsResponse](content, "questions")
	logDegraded(ctx, "follow_ups", res)

	questions := make([]FollowUp, 0, MaxFollowUps)
	for _, q := range res.Value.Questions {
		if strings.TrimSpace(q.Question) == "" {
			continue
		}
		questions = append(questions, q)
		if len(questions) == MaxFollowUps {
			break
		}
	}
	return questions, nil
}

func (g *LLMGateway) GenerateBrief(ctx context.Context, in BriefInput) (Brief, error) {
	content, err := g.chat(ctx, llm.Request{
		SystemPrompt: briefSystemPrompt,
		UserPrompt:   buildBriefPrompt(in),
		SchemaName:   "engineer_brief",
		Schema:       briefSchema,
	})
	if err != nil {
		return Brief{}, fmt.Errorf("generate brief: %w", err)
	}

	res := Parse[Brief](content, "summary", "next_steps")
	logDegraded(ctx, "brief", res)
	if res.Status == StatusFailed {
		return fallbackBrief(res.Violations), nil
	}
	return res.Value, nil
}

func (g *LLMGateway) ReviseBrief(ctx context.Context, in RevisionInput) (Brief, error) {
	content, err := g.chat(ctx, llm.Request{
		SystemPrompt: reviseSystemPrompt,
		UserPrompt:   buildRevisePrompt(in),
		SchemaName:   "engineer_brief",
		Schema:       briefSchema,
	})
	if err != nil {
		return Brief{}, fmt.Errorf("revise brief: %w", err)
	}

	res := Parse[Brief](content, "summary", "next_steps")
	logDegraded(ctx, "revise", res)
	if res.Status == StatusFailed {
		return Brief{}, nil
	}
	return res.Value, nil
}

func (g *LLMGateway) chat(ctx context.Context, req llm.Request) (string, error) {
	req.Temperature = llm.Temp(0)
	resp, err := g.llm.Chat(ctx, req)
	if err != nil {
		return "", err
	}

	slog.DebugContext(ctx, "llm reply received",
		"schema", req.SchemaName,
		"model", g.llm.Model(),
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens)
	return resp.Content, nil
}

func fallbackBrief(violations []string) Brief {
	return Brief{
		Summary:     "Error processing issue data - please check the response format",
		Symptoms:    []string{"JSON parsing error"},
		KeyEvidence: violations,
		NextSteps:   []string{"Please review the issue details and resubmit"},
	}
}

func logDegraded[T any](ctx context.Context, stage string, res ParseResult[T]) {
	if res.Status == StatusOk {
		if res.Repaired {
			slog.DebugContext(ctx, "llm response repaired", "stage", stage)
		}
		return
	}
	slog.WarnContext(ctx, "llm response degraded",
		"stage", stage,
		"status", res.Status,
		"repaired", res.Repaired,
		"violations", res.Violations,
		"raw", logger.Truncate(res.Raw, 500))
}

func lookupFold(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
