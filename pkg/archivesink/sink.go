// Package archivesink delivers exported frames as separate files, as a zip
// built in memory, as a zip streamed to a download while it is built, or
// through the platform share facility.
package archivesink

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/user/framegrab/pkg/pipeline"
)

// Kind selects a sink strategy.
type Kind string

const (
	KindLink      Kind = "link"
	KindZip       Kind = "zip"
	KindZipStream Kind = "zipstream"
	KindShare     Kind = "share"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindLink, KindZip, KindZipStream, KindShare:
		return k, nil
	case "zipblob":
		return KindZip, nil
	default:
		return "", fmt.Errorf("unknown archive kind %q (want link, zip, zipstream or share)", s)
	}
}

// ResolveKind applies the streaming preference: a zip is streamed when
// streaming is enabled, otherwise built in memory.
func ResolveKind(k Kind, streaming bool) Kind {
	if k == KindZip && streaming {
		return KindZipStream
	}
	return k
}

// Stats describes what a sink has done so far.
type Stats struct {
	Entries   int
	Conflicts int
	Bytes     int64
	// Location is where the output ended up, when known.
	Location string
}

// Sink receives the entries of one export job. Exactly one sink exists per
// job and AddEntry calls are serialized by the caller.
type Sink interface {
	ID() string
	Kind() Kind
	// AddEntry stores one entry. A duplicate name yields a
	// *pipeline.ArchiveEntryConflict; the entry is dropped and the sink
	// stays usable.
	AddEntry(ctx context.Context, entry pipeline.ArchiveEntry) error
	// Finalize completes the output. outputName is used by sinks that
	// produce a single file and were not given a name when opened.
	Finalize(ctx context.Context, outputName string) error
	// Abort releases resources of a sink that will not be finalized.
	Abort()
	Stats() Stats
}

// BaseName strips the extension from a source file name.
func BaseName(name string) string {
	base := filepath.Base(name)
	if ext := filepath.Ext(base); ext != "" && ext != base {
		return strings.TrimSuffix(base, ext)
	}
	return base
}

// IntervalArchiveName names the archive of an interval export.
func IntervalArchiveName(base string, start, end time.Duration) string {
	return fmt.Sprintf("%s [%.2f-%.2f].zip", base, start.Seconds(), end.Seconds())
}

// QueueArchiveName names the archive of a queue export.
func QueueArchiveName(base string, at time.Time) string {
	return fmt.Sprintf("%s - Queue [%d].zip", base, at.UnixMilli())
}

// DefaultArchiveName is used when no better name is known.
func DefaultArchiveName(at time.Time) string {
	return fmt.Sprintf("framegrab-%d.zip", at.UnixMilli())
}
