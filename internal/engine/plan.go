package engine

import (
	"context"
	"strings"

	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

// Plan is the normalized target of one dispatch. Exactly one of Tokens
// (ModeTokens) or Topic (ModeTopic) is populated.
type Plan struct {
	Mode   dispatch.Mode
	Tokens []string
	Topic  string

	// UserIDs keeps the caller's original identifiers for the audit entry
	// when the plan was resolved from the directory.
	UserIDs []string
}

// PlanBuilder turns the three possible recipient sources into a Plan.
//
// Precedence is total: explicit tokens, then topic, then user ids. A
// source counts as supplied when it is non-empty, so a request with an
// empty tokens array and a topic is a topic dispatch.
type PlanBuilder struct {
	resolver *Resolver
}

func NewPlanBuilder(resolver *Resolver) *PlanBuilder {
	return &PlanBuilder{resolver: resolver}
}

func (b *PlanBuilder) Build(ctx context.Context, req *dispatch.SendRequest) (Plan, error) {
	switch {
	case req.HasTokens():
		return Plan{Mode: dispatch.ModeTokens, Tokens: normalizeTokens(req.Tokens)}, nil

	case req.HasTopic():
		return Plan{Mode: dispatch.ModeTopic, Topic: strings.TrimSpace(req.Topic)}, nil

	case req.HasUserIDs():
		resolved, err := b.resolver.Resolve(ctx, req.UserIDs)
		if err != nil {
			return Plan{}, err
		}
		tokens := make([]string, 0, len(resolved))
		for _, r := range resolved {
			tokens = append(tokens, r.Token)
		}
		return Plan{
			Mode:    dispatch.ModeTokens,
			Tokens:  dedupeTokens(tokens),
			UserIDs: req.UserIDs,
		}, nil

	default:
		return Plan{}, newError(KindInvalidRequest, nil, "one of tokens, topic or userIds is required")
	}
}

// normalizeTokens keeps the non-empty string entries of raw, deduplicated
// in first-seen order.
func normalizeTokens(raw []any) []string {
	tokens := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			tokens = append(tokens, s)
		}
	}
	return dedupeTokens(tokens)
}

// dedupeTokens drops empty and repeated tokens, preserving first-seen order.
// Applying it to its own output returns the same slice contents.
func dedupeTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
