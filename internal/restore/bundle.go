// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package restore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tomtom215/backhaul/internal/logging"
	"github.com/tomtom215/backhaul/internal/metrics"
)

// ScratchSuffix is appended to a staged bundle path to form its extraction directory.
const ScratchSuffix = "_extracted"

// Member name markers.
const (
	markerDatabase = "database_backup"
	markerSettings = "settings_backup"
	markerMetrics  = "stats_backup"
)

// MemberStatus is the outcome of one bundle member.
type MemberStatus string

const (
	MemberProcessed    MemberStatus = "processed"
	MemberSkipped      MemberStatus = "skipped"
	MemberFailed       MemberStatus = "failed"
	MemberNotAttempted MemberStatus = "not_attempted"
)

// MemberResult reports what happened to one top-level bundle member.
type MemberResult struct {
	Name   string       `json:"name"`
	Kind   Kind         `json:"kind,omitempty"`
	Status MemberStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// BundleReport lists every top-level member of a bundle in name order.
type BundleReport struct {
	Policy  string         `json:"policy"`
	Members []MemberResult `json:"members"`
}

// Count returns the number of members with the given status.
func (r *BundleReport) Count(status MemberStatus) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, m := range r.Members {
		if m.Status == status {
			n++
		}
	}
	return n
}

// Summary renders the report counts for log lines and messages.
func (r *BundleReport) Summary() string {
	return fmt.Sprintf("%d processed, %d skipped, %d failed, %d not attempted",
		r.Count(MemberProcessed), r.Count(MemberSkipped), r.Count(MemberFailed), r.Count(MemberNotAttempted))
}

// MatchMember applies the bundle member rules in order; the first match wins.
func MatchMember(name string) (Kind, bool) {
	switch {
	case strings.Contains(name, markerDatabase) && strings.HasSuffix(name, SuffixDatabase):
		return KindDatabase, true
	case strings.Contains(name, markerSettings) && strings.HasSuffix(name, SuffixSettings):
		return KindSettings, true
	case strings.Contains(name, markerMetrics) && strings.HasSuffix(name, SuffixMetrics):
		return KindMetrics, true
	default:
		return "", false
	}
}

// ScratchDir returns the extraction directory used for a staged bundle.
func ScratchDir(stagedPath string) string {
	return stagedPath + ScratchSuffix
}

// BundleExtractor unpacks full bundles and restores their recognized members.
type BundleExtractor struct {
	restorers Restorers
	policy    PartialBundlePolicy
	limits    ExtractLimits
}

// NewBundleExtractor creates an extractor that dispatches members to restorers.
func NewBundleExtractor(restorers Restorers, policy PartialBundlePolicy, limits ExtractLimits) *BundleExtractor {
	return &BundleExtractor{
		restorers: restorers,
		policy:    policy,
		limits:    limits.withDefaults(),
	}
}

// Policy returns the policy the extractor applies.
func (b *BundleExtractor) Policy() PartialBundlePolicy {
	return b.policy
}

// Extract unpacks stagedPath into its scratch directory and restores each
// recognized member. The scratch directory is removed on every return path.
//
// The returned report is non-nil whenever the member list could be read,
// including on failure.
func (b *BundleExtractor) Extract(ctx context.Context, stagedPath string) (*BundleReport, error) {
	scratch := ScratchDir(stagedPath)
	log := logging.Ctx(ctx).With().
		Str("bundle", filepath.Base(stagedPath)).
		Str("policy", b.policy.String()).
		Logger()

	if err := os.RemoveAll(scratch); err != nil {
		return nil, &RestoreError{Subsystem: KindFull, Cause: fmt.Errorf("remove stale scratch directory: %w", err)}
	}
	if err := os.MkdirAll(scratch, 0o750); err != nil {
		return nil, &RestoreError{Subsystem: KindFull, Cause: fmt.Errorf("create scratch directory: %w", err)}
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Warn().Err(err).Str("scratch", scratch).Msg("Failed to remove scratch directory")
		}
	}()

	if err := extractArchive(ctx, stagedPath, scratch, b.limits); err != nil {
		return nil, &RestoreError{Subsystem: KindFull, Cause: fmt.Errorf("extract bundle: %w", err)}
	}

	names, err := topLevelFiles(scratch)
	if err != nil {
		return nil, &RestoreError{Subsystem: KindFull, Cause: fmt.Errorf("list bundle members: %w", err)}
	}

	report := b.plan(names)
	defer recordMembers(report)

	if err := b.checkUnrecognized(report); err != nil {
		log.Warn().Err(err).Msg("Bundle rejected before restore")
		return report, err
	}

	if report.Count(MemberNotAttempted) == 0 {
		log.Warn().Int("members", len(report.Members)).Msg("Bundle contains no recognized members")
	}

	err = b.execute(ctx, scratch, report)

	event := log.Info()
	if err != nil {
		event = log.Error().Err(err)
	}
	event.Str("summary", report.Summary()).Msg("Bundle restore finished")

	return report, err
}

// plan classifies every member. Recognized members start as not_attempted.
func (b *BundleExtractor) plan(names []string) *BundleReport {
	report := &BundleReport{
		Policy:  b.policy.String(),
		Members: make([]MemberResult, 0, len(names)),
	}
	for _, name := range names {
		kind, ok := MatchMember(name)
		if !ok {
			report.Members = append(report.Members, MemberResult{Name: name, Status: MemberSkipped})
			continue
		}
		report.Members = append(report.Members, MemberResult{Name: name, Kind: kind, Status: MemberNotAttempted})
	}
	return report
}

// checkUnrecognized enforces OnUnrecognized=fail before anything is restored.
func (b *BundleExtractor) checkUnrecognized(report *BundleReport) error {
	if b.policy.OnUnrecognized != UnrecognizedFail {
		return nil
	}
	for i := range report.Members {
		m := &report.Members[i]
		if m.Kind != "" {
			continue
		}
		m.Status = MemberFailed
		m.Error = ErrUnrecognizedMember.Error()
		return &RestoreError{Subsystem: KindFull, Member: m.Name, Cause: ErrUnrecognizedMember}
	}
	return nil
}

// execute restores recognized members in order, honoring OnMemberFailure.
func (b *BundleExtractor) execute(ctx context.Context, scratch string, report *BundleReport) error {
	var firstErr error

	for i := range report.Members {
		m := &report.Members[i]
		if m.Status != MemberNotAttempted {
			continue
		}
		if err := ctx.Err(); err != nil {
			return &RestoreError{Subsystem: KindFull, Member: m.Name, Cause: err}
		}

		err := b.restorers.run(ctx, m.Kind, filepath.Join(scratch, m.Name), m.Name)
		if err == nil {
			m.Status = MemberProcessed
			continue
		}

		m.Status = MemberFailed
		m.Error = err.Error()
		if b.policy.OnMemberFailure == FailureAbort {
			return err
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func recordMembers(report *BundleReport) {
	for _, m := range report.Members {
		metrics.RecordBundleMember(string(m.Kind), string(m.Status))
	}
}
