package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/valter-silva-au/trackforge/pkg/models"
)

func (s *fileTrackStore) jsonLogPath(trackID string) string {
	return filepath.Join(s.trackingDir(trackID), "verification_log.jsonl")
}

func (s *fileTrackStore) markdownLogPath(trackID string) string {
	return filepath.Join(s.trackingDir(trackID), "verification_log.md")
}

// appendResults appends results to both logs in call order. Each log is
// rewritten through atomicWriteFile so a crash never leaves a torn entry.
// The JSONL log is written first; it is the one ReadVerificationLog trusts.
func (s *fileTrackStore) appendResults(trackID string, results []models.VerificationResult) error {
	jsonPath := s.jsonLogPath(trackID)
	existing, err := readFileIfExists(jsonPath)
	if err != nil {
		return fmt.Errorf("reading verification log: %w", err)
	}
	buf := bytes.NewBuffer(existing)
	for _, r := range results {
		line, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshaling verification result: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := atomicWriteFile(jsonPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing verification log: %w", err)
	}

	mdPath := s.markdownLogPath(trackID)
	md, err := readFileIfExists(mdPath)
	if err != nil {
		return fmt.Errorf("reading verification audit trail: %w", err)
	}
	if len(md) == 0 {
		md = []byte(fmt.Sprintf("# Verification log: %s\n", trackID))
	}
	mdBuf := bytes.NewBuffer(md)
	for _, r := range results {
		mdBuf.WriteString(formatResultMarkdown(r))
	}
	if err := atomicWriteFile(mdPath, mdBuf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing verification audit trail: %w", err)
	}
	return nil
}

func readFileIfExists(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil && os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// readResults decodes a JSONL verification log, skipping malformed lines.
func readResults(path string) ([]models.VerificationResult, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening verification log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []models.VerificationResult
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r models.VerificationResult
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning verification log: %w", err)
	}
	return out, nil
}

// formatResultMarkdown renders one human-readable audit entry.
func formatResultMarkdown(r models.VerificationResult) string {
	var b strings.Builder

	outcome := "FAILED"
	switch {
	case r.Override:
		outcome = "OVERRIDE"
	case r.Passed:
		outcome = "PASSED"
	}
	fmt.Fprintf(&b, "\n## %s %s %s\n\n", r.Timestamp.UTC().Format(time.RFC3339), r.TaskID, outcome)
	if r.ID != "" {
		fmt.Fprintf(&b, "- id: %s\n", r.ID)
	}

	names := make([]string, 0, len(r.Checks))
	for name := range r.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		mark := "fail"
		if r.Checks[name] {
			mark = "ok"
		}
		fmt.Fprintf(&b, "- check %s: %s\n", name, mark)
	}
	for _, g := range r.Gaps {
		fmt.Fprintf(&b, "- gap: %s\n", g)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "- warning: %s\n", w)
	}
	if r.Override {
		b.WriteString("- override: true\n")
		if r.Reason != "" {
			fmt.Fprintf(&b, "- reason: %s\n", r.Reason)
		}
	}
	return b.String()
}
