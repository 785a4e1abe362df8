// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package restore

import (
	"fmt"
	"strings"
)

// Kind identifies what an artifact contains.
type Kind string

const (
	// KindFull is a gzip-compressed tar bundle of database, settings and metrics members.
	KindFull Kind = "full"

	// KindDatabase is a SQL dump replayed by the relational engine's client.
	KindDatabase Kind = "database"

	// KindSettings is a JSON key-value settings snapshot.
	KindSettings Kind = "settings"

	// KindMetrics is a CSV metrics snapshot.
	KindMetrics Kind = "metrics"
)

// Recognized filename suffixes.
const (
	SuffixFull     = ".tar.gz"
	SuffixDatabase = ".sql"
	SuffixSettings = ".json"
	SuffixMetrics  = ".csv"
)

// ProbeOrder is the fixed order in which staged artifacts are looked up by
// base name. Full bundles win over single-kind artifacts.
var ProbeOrder = []Kind{KindFull, KindDatabase, KindSettings, KindMetrics}

// Classify returns the kind of the named artifact.
//
// The check is a case-sensitive match on the literal trailing suffix.
// ".tar.gz" is tested first and as a whole: "x.gz" and "x.tgz" are unsupported.
func Classify(filename string) (Kind, error) {
	switch {
	case strings.HasSuffix(filename, SuffixFull):
		return KindFull, nil
	case strings.HasSuffix(filename, SuffixDatabase):
		return KindDatabase, nil
	case strings.HasSuffix(filename, SuffixSettings):
		return KindSettings, nil
	case strings.HasSuffix(filename, SuffixMetrics):
		return KindMetrics, nil
	default:
		return "", fmt.Errorf("%w: %q (expected %s, %s, %s or %s)",
			ErrUnsupportedFormat, filename, SuffixFull, SuffixDatabase, SuffixSettings, SuffixMetrics)
	}
}

// Suffix returns the filename suffix for the kind.
func (k Kind) Suffix() string {
	switch k {
	case KindFull:
		return SuffixFull
	case KindDatabase:
		return SuffixDatabase
	case KindSettings:
		return SuffixSettings
	case KindMetrics:
		return SuffixMetrics
	default:
		return ""
	}
}

// ContentType returns the MIME type served for artifacts of this kind.
func (k Kind) ContentType() string {
	switch k {
	case KindFull:
		return "application/gzip"
	case KindDatabase:
		return "application/sql"
	case KindSettings:
		return "application/json"
	case KindMetrics:
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
