package engine

import (
	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

// tally is the folded view of a tokens-mode send.
type tally struct {
	result *dispatch.Result
	// dead holds the distinct permanently invalid tokens in the order seen.
	dead []string
	// failures counts every failed token by error code, beyond the sample.
	failures map[string]int
}

// aggregate folds per-batch outcomes into a tokens-mode result.
func aggregate(plan Plan, batches []BatchOutcome, sampleSize int) tally {
	result := &dispatch.Result{
		Mode:            dispatch.ModeTokens,
		TotalRecipients: len(plan.Tokens),
		MessageIDs:      []string{},
		FailedTokens:    []dispatch.FailedToken{},
	}

	var dead []string
	failures := make(map[string]int)
	seenDead := make(map[string]struct{})
	for _, batch := range batches {
		for _, o := range batch.Outcomes {
			if o.Success {
				result.SuccessCount++
				result.MessageIDs = append(result.MessageIDs, o.MessageID)
				continue
			}

			result.FailureCount++
			code := o.ErrorCode
			if code == "" {
				code = dispatch.ErrorCodeUnknown
			}
			failures[code]++
			if len(result.FailedTokens) < sampleSize {
				msg := o.Error
				if msg == "" {
					msg = "Unknown error"
				}
				result.FailedTokens = append(result.FailedTokens, dispatch.FailedToken{
					Token:     o.Token,
					ErrorCode: code,
					Error:     msg,
				})
			}
			if dispatch.IsPermanentTokenError(code) {
				if _, ok := seenDead[o.Token]; !ok {
					seenDead[o.Token] = struct{}{}
					dead = append(dead, o.Token)
				}
			}
		}
	}
	return tally{result: result, dead: dead, failures: failures}
}
