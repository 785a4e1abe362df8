// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package restore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/backhaul/internal/events"
	"github.com/tomtom215/backhaul/internal/logging"
	"github.com/tomtom215/backhaul/internal/metrics"
)

// RestoreOutcome is the result of one orchestration run.
type RestoreOutcome struct {
	Success   bool          `json:"success"`
	Message   string        `json:"message"`
	FileName  string        `json:"fileName"`
	Kind      Kind          `json:"kind,omitempty"`
	RestoreID string        `json:"restoreId,omitempty"`
	Report    *BundleReport `json:"report,omitempty"`
	RemoteID  string        `json:"remoteId,omitempty"`
}

// Mirror pushes restored artifacts to the cloud folder.
type Mirror interface {
	IsInitialized() bool
	SyncBackupToDrive(ctx context.Context, localPath, name string) (string, error)
}

// Publisher publishes restore lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// Options configures an Orchestrator.
type Options struct {
	Restorers Restorers
	Policy    PartialBundlePolicy
	Limits    ExtractLimits

	// CleanupOnSuccess removes the staged artifact after a successful restore.
	CleanupOnSuccess bool

	// Mirror is optional. MirrorEnabled is consulted on every restore; nil means enabled.
	Mirror        Mirror
	MirrorEnabled func() bool

	// Publisher is optional.
	Publisher Publisher
}

// Orchestrator stages uploaded artifacts, classifies them and dispatches them
// to the bundle extractor or a single restorer.
type Orchestrator struct {
	stager        *Stager
	bundles       *BundleExtractor
	restorers     Restorers
	cleanup       bool
	mirror        Mirror
	mirrorEnabled func() bool
	publisher     Publisher
}

// NewOrchestrator creates an orchestrator staging into stager.
func NewOrchestrator(stager *Stager, opts Options) *Orchestrator {
	policy := opts.Policy
	if policy.OnUnrecognized == "" || policy.OnMemberFailure == "" {
		policy = DefaultBundlePolicy
	}
	return &Orchestrator{
		stager:        stager,
		bundles:       NewBundleExtractor(opts.Restorers, policy, opts.Limits),
		restorers:     opts.Restorers,
		cleanup:       opts.CleanupOnSuccess,
		mirror:        opts.Mirror,
		mirrorEnabled: opts.MirrorEnabled,
		publisher:     opts.Publisher,
	}
}

// Stager returns the orchestrator's staging area.
func (o *Orchestrator) Stager() *Stager {
	return o.stager
}

// Restore stages r under a unique name derived from originalFilename and
// restores it.
//
// Errors: ErrInvalidFilename, ErrStagingUnavailable and ErrUnsupportedFormat
// before any restorer runs; *RestoreError when a restorer fails, in which
// case the staged artifact is kept and the outcome carries the bundle report.
func (o *Orchestrator) Restore(ctx context.Context, r io.Reader, originalFilename string) (*RestoreOutcome, error) {
	restoreID := uuid.NewString()
	ctx = logging.ContextWithRestoreID(ctx, restoreID)
	log := logging.Ctx(ctx)
	start := time.Now()

	original, err := SanitizeFilename(originalFilename)
	if err != nil {
		return nil, err
	}

	if err := o.stager.EnsureDir(); err != nil {
		log.Error().Err(err).Str("staging_dir", o.stager.Dir()).Msg("Staging directory unavailable")
		return nil, err
	}

	name := o.stager.StagedName(original)
	path, written, err := o.stager.Write(name, r)
	if err != nil {
		log.Error().Err(err).Str("file", name).Msg("Failed to stage artifact")
		return nil, err
	}
	metrics.RecordStagedBytes(written)

	kind, err := Classify(name)
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			log.Warn().Err(rmErr).Str("file", name).Msg("Failed to remove unsupported artifact")
		}
		metrics.RecordRestore("unsupported", time.Since(start), err)
		return nil, err
	}

	log.Info().
		Str("file", name).
		Str("kind", string(kind)).
		Int64("bytes", written).
		Msg("Artifact staged")

	outcome := &RestoreOutcome{FileName: name, Kind: kind, RestoreID: restoreID}

	if kind == KindFull {
		outcome.Report, err = o.bundles.Extract(ctx, path)
	} else {
		err = o.restorers.run(ctx, kind, path, "")
	}

	elapsed := time.Since(start)
	metrics.RecordRestore(string(kind), elapsed, err)

	if err != nil {
		outcome.Message = failureMessage(kind, outcome.Report, err)
		log.Error().Err(err).
			Str("file", name).
			Str("kind", string(kind)).
			Dur("duration", elapsed).
			Msg("Restore failed; staged artifact kept for inspection")
		o.publish(ctx, events.TopicRestoreFailed, outcome, err, elapsed)
		return outcome, err
	}

	outcome.Success = true
	outcome.Message = successMessage(kind, outcome.Report)
	outcome.RemoteID = o.mirrorArtifact(ctx, path, name)

	if o.cleanup {
		if err := o.stager.Remove(path); err != nil {
			log.Warn().Err(err).Str("file", name).Msg("Failed to remove staged artifact")
		}
	}

	log.Info().
		Str("file", name).
		Str("kind", string(kind)).
		Dur("duration", elapsed).
		Msg("Restore completed")
	o.publish(ctx, events.TopicRestoreCompleted, outcome, nil, elapsed)

	return outcome, nil
}

// mirrorArtifact pushes a restored artifact to the cloud folder when enabled.
// Failures are logged and never fail the restore.
func (o *Orchestrator) mirrorArtifact(ctx context.Context, path, name string) string {
	if o.mirror == nil || !o.mirror.IsInitialized() {
		return ""
	}
	if o.mirrorEnabled != nil && !o.mirrorEnabled() {
		return ""
	}

	id, err := o.mirror.SyncBackupToDrive(ctx, path, name)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("file", name).Msg("Cloud mirror of restored artifact failed")
		return ""
	}
	return id
}

func (o *Orchestrator) publish(ctx context.Context, topic string, outcome *RestoreOutcome, restoreErr error, elapsed time.Duration) {
	if o.publisher == nil {
		return
	}

	payload := events.RestorePayload{
		RestoreID:    outcome.RestoreID,
		FileName:     outcome.FileName,
		Kind:         string(outcome.Kind),
		Success:      outcome.Success,
		Message:      outcome.Message,
		Processed:    outcome.Report.Count(MemberProcessed),
		Skipped:      outcome.Report.Count(MemberSkipped),
		Failed:       outcome.Report.Count(MemberFailed),
		NotAttempted: outcome.Report.Count(MemberNotAttempted),
		DurationMS:   elapsed.Milliseconds(),
		RemoteID:     outcome.RemoteID,
	}
	var re *RestoreError
	if errors.As(restoreErr, &re) {
		payload.Subsystem = string(re.Subsystem)
		payload.Member = re.Member
	}
	if restoreErr != nil {
		payload.Error = restoreErr.Error()
	}

	if err := o.publisher.Publish(ctx, topic, payload); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("topic", topic).Msg("Failed to publish restore event")
	}
}

func successMessage(kind Kind, report *BundleReport) string {
	if kind == KindFull {
		return "Backup bundle restored: " + report.Summary()
	}
	return fmt.Sprintf("Backup restored successfully (%s)", kind)
}

func failureMessage(kind Kind, report *BundleReport, err error) string {
	if kind == KindFull && report != nil {
		return fmt.Sprintf("Backup bundle restore failed (%s): %v", report.Summary(), err)
	}
	return fmt.Sprintf("Backup restore failed: %v", err)
}
