package integration

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/davidahmann/archiveprep/core/schema"
	schemasession "github.com/davidahmann/archiveprep/core/schema/v1/session"
	"github.com/davidahmann/archiveprep/core/schema/validate"
	"github.com/davidahmann/archiveprep/core/session"
	"github.com/davidahmann/archiveprep/internal/testutil"
)

// Concurrent launches share one unlocked record. Whichever write lands last
// wins, but the record on disk is always one complete, valid record.
func TestConcurrentLaunchesLeaveOneValidRecord(t *testing.T) {
	cacheDir := t.TempDir()
	const workers = 8
	now := time.Date(2026, time.February, 6, 12, 0, 0, 0, time.UTC)

	sessionIDs := map[string]string{}
	detectors := make([]*session.Detector, 0, workers)
	for i := 0; i < workers; i++ {
		detector, err := session.New(session.Options{
			CacheDir: cacheDir,
			Identity: session.StaticIdentity{
				User:      fmt.Sprintf("user-%d", i),
				Workspace: "materials",
				Host:      "pod-1",
			},
			Now:             func() time.Time { return now },
			PID:             1000 + i,
			ProducerVersion: "0.0.0-test",
		})
		if err != nil {
			t.Fatalf("new detector: %v", err)
		}
		detectors = append(detectors, detector)
		sessionIDs[detector.SessionID()] = fmt.Sprintf("https://archive.materialscloud.org/records/r%d/files/data.aiida", i)
	}
	if len(sessionIDs) != workers {
		t.Fatalf("expected distinct session ids, got %d", len(sessionIDs))
	}

	var group sync.WaitGroup
	group.Add(workers)
	for i, detector := range detectors {
		go func() {
			defer group.Done()
			outcome, err := detector.Run(sessionIDs[detector.SessionID()])
			if err != nil {
				t.Errorf("worker %d run: %v", i, err)
				return
			}
			switch outcome.Classification {
			case session.NewSession, session.SessionConflict:
			default:
				t.Errorf("worker %d: unexpected classification %s", i, outcome.Classification)
			}
		}()
	}
	group.Wait()

	raw := testutil.MustReadFile(t, filepath.Join(cacheDir, session.RecordFile))
	if err := validate.ValidateJSON(schema.SessionRecord, raw); err != nil {
		t.Fatalf("record on disk is invalid: %v\n%s", err, testutil.FormatJSON(raw))
	}
	var record schemasession.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	wantURL, ok := sessionIDs[record.SessionID]
	if !ok {
		t.Fatalf("record belongs to an unknown session: %s", record.SessionID)
	}
	if record.ArchiveURL != wantURL {
		t.Fatalf("record mixes sessions: id=%s url=%s", record.SessionID, record.ArchiveURL)
	}
}
