// Package report renders group and stage reports into the state
// directory's reports/ folder.
//
// Each report is a markdown document with YAML front matter. The body is
// rendered from the work records; a Narrator, when configured, adds a
// prose summary on top. A narrator failure never fails the report.
package report

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/atlas/internal/baseline"
	"github.com/steveyegge/atlas/internal/schema"
)

const reportsDir = "reports"

// maxFilesListed caps the file list in a report body.
const maxFilesListed = 50

// Kind distinguishes group reports from stage reports.
type Kind string

const (
	KindGroup Kind = "group"
	KindStage Kind = "stage"
)

// Input is everything a report is rendered from.
type Input struct {
	Kind   Kind
	ID     string
	Stage  string
	Status string

	// Expected lists the participants of a group report.
	Expected []string
	Records  []*schema.WorkRecord

	// Groups lists the groups of a stage report.
	Groups []*schema.GroupState

	Blockers    []string
	BlockReason string
	Health      *schema.HealthScore
	GeneratedAt time.Time
}

// Files returns the distinct files touched by the input's records, sorted.
func (in *Input) Files() []string {
	seen := make(map[string]struct{})
	for _, r := range in.Records {
		for _, f := range r.Files {
			seen[f] = struct{}{}
		}
	}
	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// FrontMatter is the YAML header of a report.
type FrontMatter struct {
	Kind         Kind      `yaml:"kind"`
	ID           string    `yaml:"id"`
	Stage        string    `yaml:"stage,omitempty"`
	Status       string    `yaml:"status"`
	GeneratedAt  time.Time `yaml:"generated_at"`
	Participants []string  `yaml:"participants,omitempty"`
	Groups       []string  `yaml:"groups,omitempty"`
	Files        int       `yaml:"files"`
	Health       float64   `yaml:"health,omitempty"`
	Narrated     bool      `yaml:"narrated"`
}

// Narrator produces a prose summary for a report.
type Narrator interface {
	Narrate(ctx context.Context, in *Input) (string, error)
}

// Writer renders reports to disk.
type Writer struct {
	dir      string
	narrator Narrator
	timeout  time.Duration
	logger   *log.Logger
}

// NewWriter creates a Writer under stateDir. narrator may be nil. A positive
// timeout bounds how long Write waits for the narrator before falling back
// to the template.
func NewWriter(stateDir string, narrator Narrator, timeout time.Duration, logger *log.Logger) *Writer {
	if logger == nil {
		logger = log.New(os.Stderr, "[report] ", log.LstdFlags)
	}
	return &Writer{
		dir:      filepath.Join(stateDir, reportsDir),
		narrator: narrator,
		timeout:  timeout,
		logger:   logger,
	}
}

// Dir returns the reports directory.
func (w *Writer) Dir() string { return w.dir }

// Write renders in and stores it as reports/<kind>-<id>.md, replacing any
// earlier report for the same id. It returns the path written.
func (w *Writer) Write(ctx context.Context, in *Input) (string, error) {
	if in.ID == "" {
		return "", fmt.Errorf("report id is required")
	}
	if in.GeneratedAt.IsZero() {
		in.GeneratedAt = time.Now().UTC()
	}

	narrative := ""
	if w.narrator != nil {
		text, err := w.narrate(ctx, in)
		if err != nil {
			w.logger.Printf("Warning: narrative for %s %s unavailable, using template: %v", in.Kind, in.ID, err)
		} else {
			narrative = strings.TrimSpace(text)
		}
	}

	data, err := Render(in, narrative)
	if err != nil {
		return "", err
	}
	path := filepath.Join(w.dir, fmt.Sprintf("%s-%s.md", in.Kind, fileStem(in.ID)))
	if err := schema.WriteFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

type narration struct {
	text string
	err  error
}

// narrate runs the narrator under the writer's timeout. It returns when the
// deadline passes even if the narrator ignores its context.
func (w *Writer) narrate(ctx context.Context, in *Input) (string, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	done := make(chan narration, 1)
	go func() {
		text, err := w.narrator.Narrate(ctx, in)
		done <- narration{text: text, err: err}
	}()

	select {
	case n := <-done:
		return n.text, n.err
	case <-ctx.Done():
		return "", fmt.Errorf("narrator gave up: %w", ctx.Err())
	}
}

// Render returns the markdown document for in. An empty narrative leaves
// the summary section out.
func Render(in *Input, narrative string) ([]byte, error) {
	files := in.Files()
	fm := FrontMatter{
		Kind:        in.Kind,
		ID:          in.ID,
		Stage:       in.Stage,
		Status:      in.Status,
		GeneratedAt: in.GeneratedAt,
		Files:       len(files),
		Narrated:    narrative != "",
	}
	if in.Health != nil {
		fm.Health = in.Health.Score
	}
	switch in.Kind {
	case KindGroup:
		fm.Participants = in.Expected
	case KindStage:
		for _, g := range in.Groups {
			fm.Groups = append(fm.Groups, g.ID)
		}
	}
	header, err := yaml.Marshal(&fm)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n\n")

	title := "Group"
	if in.Kind == KindStage {
		title = "Stage"
	}
	fmt.Fprintf(&buf, "# %s %s\n\n", title, in.ID)
	fmt.Fprintf(&buf, "**Status:** %s\n", in.Status)
	if in.Stage != "" && in.Kind == KindGroup {
		fmt.Fprintf(&buf, "**Stage:** %s\n", in.Stage)
	}
	buf.WriteString("\n")

	if narrative != "" {
		buf.WriteString("## Summary\n")
		buf.WriteString(narrative)
		buf.WriteString("\n\n")
	}

	if in.Kind == KindGroup {
		writeParticipants(&buf, in)
	} else {
		writeGroups(&buf, in)
	}

	if len(in.Blockers) > 0 || in.BlockReason != "" {
		buf.WriteString("## Blockers\n")
		for _, b := range in.Blockers {
			fmt.Fprintf(&buf, "- %s\n", b)
		}
		if in.BlockReason != "" {
			fmt.Fprintf(&buf, "\n%s\n", in.BlockReason)
		}
		buf.WriteString("\n")
	}

	if len(files) > 0 {
		buf.WriteString("## Files Touched\n")
		limit := len(files)
		if limit > maxFilesListed {
			limit = maxFilesListed
		}
		for _, f := range files[:limit] {
			fmt.Fprintf(&buf, "- %s\n", f)
		}
		if len(files) > maxFilesListed {
			fmt.Fprintf(&buf, "- ... and %d more files\n", len(files)-maxFilesListed)
		}
		buf.WriteString("\n")
	}

	if in.Health != nil {
		buf.WriteString("## Index Health\n")
		fmt.Fprintf(&buf, "Score %.1f (freshness %.2f, coverage %.2f, interfaces %.2f, %d alerts)\n",
			in.Health.Score, in.Health.Freshness, in.Health.Coverage, in.Health.InterfaceHealth, in.Health.Alerts)
	}

	return buf.Bytes(), nil
}

func writeParticipants(buf *bytes.Buffer, in *Input) {
	byParticipant := make(map[string]*schema.WorkRecord, len(in.Records))
	for _, r := range in.Records {
		byParticipant[r.Participant] = r
	}
	buf.WriteString("## Participants\n")
	for _, p := range in.Expected {
		r, ok := byParticipant[p]
		if !ok {
			fmt.Fprintf(buf, "- [ ] %s\n", p)
			continue
		}
		line := fmt.Sprintf("- [x] %s (%d files)", p, len(r.Files))
		if r.Summary != "" {
			line += ": " + r.Summary
		}
		if r.Degraded != "" {
			line += " _(file list unavailable: " + r.Degraded + ")_"
		}
		buf.WriteString(line + "\n")
	}
	buf.WriteString("\n")
}

func writeGroups(buf *bytes.Buffer, in *Input) {
	buf.WriteString("## Groups\n")
	for _, g := range in.Groups {
		mark := " "
		if g.Status == schema.GroupCompleted {
			mark = "x"
		}
		fmt.Fprintf(buf, "- [%s] %s: %d/%d participants\n", mark, g.ID, len(g.Completed), len(g.Expected))
	}
	buf.WriteString("\n")
}

func fileStem(id string) string {
	return baseline.FileName(id)
}
