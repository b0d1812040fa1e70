package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/pmezard/go-difflib/difflib"

	"lifesignal/internal/entity"
	"lifesignal/internal/goals"
	"lifesignal/internal/signals"
)

const SchemaVersion = 1

// Report is the dashboard view of the snapshot at one instant.
type Report struct {
	SchemaVersion int                  `json:"schema_version"`
	AsOf          string               `json:"as_of"`
	Date          string               `json:"date"`
	Timezone      string               `json:"timezone"`
	Global        signals.Global       `json:"global"`
	Areas         []signals.AreaStatus `json:"areas"`
	Goals         []goals.Progress     `json:"goals"`
	// Errors holds failures that did not stop the report. Keys are area ids,
	// "goal:<id>" or the path of a skipped entity file.
	Errors map[string]string `json:"errors,omitempty"`
}

// Build classifies every area, aggregates the global score and evaluates
// every goal as of now.
func Build(ctx context.Context, src entity.Source, now time.Time, loc *time.Location) (*Report, error) {
	if loc == nil {
		loc = time.Local
	}
	statuses, areaErrs, err := signals.ClassifyAll(ctx, src, now)
	if err != nil {
		return nil, fmt.Errorf("classify areas: %w", err)
	}
	progress, goalsErr := goals.EvaluateAll(ctx, src)

	r := &Report{
		SchemaVersion: SchemaVersion,
		AsOf:          now.In(loc).Format(time.RFC3339),
		Date:          civil.DateOf(now.In(loc)).String(),
		Timezone:      loc.String(),
		Global:        signals.AggregateStatuses(statuses),
		Areas:         statuses,
		Goals:         progress,
	}
	if r.Areas == nil {
		r.Areas = []signals.AreaStatus{}
	}
	if r.Goals == nil {
		r.Goals = []goals.Progress{}
	}
	if pr, ok := src.(entity.ProblemReporter); ok {
		for _, p := range pr.Problems() {
			msg := p.Message
			if p.Field != "" {
				msg = p.Field + ": " + msg
			}
			if prev, ok := r.Errors[p.File]; ok {
				msg = prev + "; " + msg
			}
			r.addError(p.File, msg)
		}
	}
	for id, aerr := range areaErrs {
		r.addError(id, aerr.Error())
	}
	if goalsErr != nil {
		r.addError("goals", goalsErr.Error())
	}
	for _, p := range progress {
		if p.Error != "" {
			r.addError("goal:"+p.GoalID, p.Error)
		}
	}
	return r, nil
}

func (r *Report) addError(key, msg string) {
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[key] = msg
}

// PathForDate returns <dir>/YYYY-MM-DD.json.
func PathForDate(dir string, day civil.Date) string {
	return filepath.Join(dir, day.String()+".json")
}

// Write stores r under dir, named by its date, replacing any report for the
// same day. It returns the written path.
func Write(dir string, r *Report) (string, error) {
	if r == nil {
		return "", fmt.Errorf("report is nil")
	}
	day, err := civil.ParseDate(r.Date)
	if err != nil {
		return "", fmt.Errorf("report date: %w", err)
	}
	r.SchemaVersion = SchemaVersion

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure reports dir: %w", err)
	}
	path := PathForDate(dir, day)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write temp report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("rename report: %w", err)
	}
	return path, nil
}

// Load reads a saved report.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r Report
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}
	if r.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("unsupported report schema_version %d", r.SchemaVersion)
	}
	if r.Date == "" {
		return nil, fmt.Errorf("report missing date")
	}
	return &r, nil
}

// LatestPath returns the newest saved report in dir.
func LatestPath(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read reports dir: %w", err)
	}
	var candidates []string
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".json") {
			continue
		}
		// YYYY-MM-DD.json sorts chronologically.
		if _, err := civil.ParseDate(strings.TrimSuffix(ent.Name(), ".json")); err != nil {
			continue
		}
		candidates = append(candidates, filepath.Join(dir, ent.Name()))
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no reports found in %s", dir)
	}
	sort.Strings(candidates)
	return candidates[len(candidates)-1], nil
}

// Lines renders the report as one status line per global score, area and
// goal. The output is stable for diffing.
func Lines(r *Report) []string {
	lines := []string{fmt.Sprintf("global: %d (%s)", r.Global.Score, r.Global.Label)}
	areas := append([]signals.AreaStatus(nil), r.Areas...)
	sort.Slice(areas, func(i, j int) bool { return areas[i].AreaID < areas[j].AreaID })
	for _, a := range areas {
		lines = append(lines, fmt.Sprintf("area %s: %s (%s)", a.AreaID, a.Status, a.Reason))
	}
	errIDs := make([]string, 0, len(r.Errors))
	for id := range r.Errors {
		errIDs = append(errIDs, id)
	}
	sort.Strings(errIDs)
	for _, id := range errIDs {
		lines = append(lines, fmt.Sprintf("area %s: error (%s)", id, r.Errors[id]))
	}
	gs := append([]goals.Progress(nil), r.Goals...)
	sort.Slice(gs, func(i, j int) bool { return gs[i].GoalID < gs[j].GoalID })
	for _, g := range gs {
		lines = append(lines, fmt.Sprintf("goal %s: %s %.0f%%", g.GoalID, g.Status, g.Percent))
	}
	return lines
}

// Diff renders a unified diff of the status lines of two reports. Equal
// reports produce an empty string.
func Diff(a, b *Report) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        withNewlines(Lines(a)),
		B:        withNewlines(Lines(b)),
		FromFile: filepath.Join("reports", a.Date+".json"),
		ToFile:   filepath.Join("reports", b.Date+".json"),
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("diff reports: %w", err)
	}
	return text, nil
}

func withNewlines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}
