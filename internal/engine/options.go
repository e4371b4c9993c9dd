package engine

import (
	"fmt"
	"time"
)

// MaxMulticastTokens is the per-call recipient ceiling of FCM multicast.
const MaxMulticastTokens = 500

// CleanupMode selects when invalid tokens are pruned from the directory.
type CleanupMode string

const (
	// CleanupAsync hands cleanup to the background worker after the
	// result is built. The caller does not wait for it.
	CleanupAsync CleanupMode = "async"
	// CleanupSync prunes tokens before the result is returned.
	CleanupSync CleanupMode = "sync"
	// CleanupDisabled never prunes tokens.
	CleanupDisabled CleanupMode = "disabled"
)

// ParseCleanupMode validates a configured cleanup mode. Empty means async.
func ParseCleanupMode(s string) (CleanupMode, error) {
	switch CleanupMode(s) {
	case "":
		return CleanupAsync, nil
	case CleanupAsync, CleanupSync, CleanupDisabled:
		return CleanupMode(s), nil
	default:
		return "", fmt.Errorf("unknown cleanup mode %q", s)
	}
}

// Options tunes the engine. Zero values are replaced by defaults.
type Options struct {
	BatchSize          int
	BatchConcurrency   int
	LookupChunkSize    int
	LookupConcurrency  int
	FailureSampleSize  int
	CleanupLookupLimit int
	CleanupMode        CleanupMode
	DispatchTimeout    time.Duration

	AndroidChannelID string
	ClickAction      string
}

func DefaultOptions() Options {
	return Options{
		BatchSize:          MaxMulticastTokens,
		BatchConcurrency:   1,
		LookupChunkSize:    100,
		LookupConcurrency:  1,
		FailureSampleSize:  10,
		CleanupLookupLimit: 5,
		CleanupMode:        CleanupAsync,
		AndroidChannelID:   "high_importance_channel",
		ClickAction:        "FLUTTER_NOTIFICATION_CLICK",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BatchSize <= 0 || o.BatchSize > MaxMulticastTokens {
		o.BatchSize = d.BatchSize
	}
	if o.BatchConcurrency <= 0 {
		o.BatchConcurrency = d.BatchConcurrency
	}
	if o.LookupChunkSize <= 0 {
		o.LookupChunkSize = d.LookupChunkSize
	}
	if o.LookupConcurrency <= 0 {
		o.LookupConcurrency = d.LookupConcurrency
	}
	if o.FailureSampleSize <= 0 {
		o.FailureSampleSize = d.FailureSampleSize
	}
	if o.CleanupLookupLimit <= 0 {
		o.CleanupLookupLimit = d.CleanupLookupLimit
	}
	if o.CleanupMode == "" {
		o.CleanupMode = d.CleanupMode
	}
	if o.AndroidChannelID == "" {
		o.AndroidChannelID = d.AndroidChannelID
	}
	if o.ClickAction == "" {
		o.ClickAction = d.ClickAction
	}
	return o
}
