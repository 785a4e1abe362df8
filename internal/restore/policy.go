// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package restore

import (
	"fmt"
	"strings"
)

// UnrecognizedAction decides what happens to bundle members that match no rule.
type UnrecognizedAction string

const (
	// UnrecognizedSkip records the member as skipped and carries on.
	UnrecognizedSkip UnrecognizedAction = "skip"

	// UnrecognizedFail rejects the whole bundle before any member is restored.
	UnrecognizedFail UnrecognizedAction = "fail"
)

// FailureAction decides what happens after a recognized member fails.
type FailureAction string

const (
	// FailureAbort stops at the first failure; later members are not attempted.
	FailureAbort FailureAction = "abort"

	// FailureContinue restores the remaining members and fails the bundle at the end.
	FailureContinue FailureAction = "continue"
)

// PartialBundlePolicy governs bundles with unrecognized or failing members.
type PartialBundlePolicy struct {
	OnUnrecognized  UnrecognizedAction
	OnMemberFailure FailureAction
}

// DefaultBundlePolicy skips unrecognized members and fails fast on the first
// recognized member that fails.
var DefaultBundlePolicy = PartialBundlePolicy{
	OnUnrecognized:  UnrecognizedSkip,
	OnMemberFailure: FailureAbort,
}

// String returns the policy name, e.g. "skip-unrecognized, fail-fast-on-recognized-failure".
func (p PartialBundlePolicy) String() string {
	unrecognized := "skip-unrecognized"
	if p.OnUnrecognized == UnrecognizedFail {
		unrecognized = "fail-on-unrecognized"
	}
	failure := "fail-fast-on-recognized-failure"
	if p.OnMemberFailure == FailureContinue {
		failure = "continue-on-recognized-failure"
	}
	return unrecognized + ", " + failure
}

// ParseBundlePolicy builds a policy from configuration values.
// Empty values fall back to the default.
func ParseBundlePolicy(onUnrecognized, onMemberFailure string) (PartialBundlePolicy, error) {
	p := DefaultBundlePolicy

	switch UnrecognizedAction(strings.ToLower(strings.TrimSpace(onUnrecognized))) {
	case "":
	case UnrecognizedSkip:
		p.OnUnrecognized = UnrecognizedSkip
	case UnrecognizedFail:
		p.OnUnrecognized = UnrecognizedFail
	default:
		return p, fmt.Errorf("unknown unrecognized-member action %q (want skip or fail)", onUnrecognized)
	}

	switch FailureAction(strings.ToLower(strings.TrimSpace(onMemberFailure))) {
	case "":
	case FailureAbort:
		p.OnMemberFailure = FailureAbort
	case FailureContinue:
		p.OnMemberFailure = FailureContinue
	default:
		return p, fmt.Errorf("unknown member-failure action %q (want abort or continue)", onMemberFailure)
	}

	return p, nil
}
