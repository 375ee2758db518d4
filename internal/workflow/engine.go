// Package workflow turns queued automation events into workflow state
// transitions and index builds.
//
// # Overview
//
// The Engine is the queue's only handler. Because the queue runs one event
// at a time, the Engine is the single writer of workflow.json, baselines,
// work records, session counters and the index, and needs no locks.
//
// # Cascade
//
//	work-unit-complete → group-complete → stage-complete
//
// A completion appends to its group; when every expected participant has
// exactly one completion the group is completed and group-complete is
// enqueued. group-complete writes a report and, when every group of the
// stage is completed, enqueues stage-complete. stage-complete closes the
// stage unless a group is incomplete or the stage has blockers.
//
// Completion signals are idempotent: a completion is only processed while
// the participant has a baseline, and processing deletes it.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/steveyegge/atlas/internal/baseline"
	"github.com/steveyegge/atlas/internal/cache"
	"github.com/steveyegge/atlas/internal/indexer"
	"github.com/steveyegge/atlas/internal/queue"
	"github.com/steveyegge/atlas/internal/report"
	"github.com/steveyegge/atlas/internal/schema"
	"github.com/steveyegge/atlas/internal/store"
	"github.com/steveyegge/atlas/internal/vcs"
)

var timeNow = time.Now

// Enqueuer accepts follow-up events.
type Enqueuer interface {
	Enqueue(ev queue.Event) (uint64, error)
}

// Reporter persists group and stage reports.
type Reporter interface {
	Write(ctx context.Context, in *report.Input) (string, error)
}

// Options configures an Engine. Root, StateDir, Indexer, Cache and Queue are
// required; the stores default to their locations under StateDir.
type Options struct {
	Root     string
	StateDir string
	Toggles  schema.AutomationToggles

	Indexer indexer.Indexer
	Cache   *cache.Cache
	Queue   Enqueuer

	Pending   *store.PendingQueue
	Baselines *baseline.Store
	Work      *baseline.WorkLog
	Sessions  *baseline.Sessions
	SessionID string

	// VCS may be nil; completions then carry only the paths they report.
	VCS      vcs.VCS
	Reporter Reporter

	// Shutdown is invoked once when session-end is handled.
	Shutdown func()

	Logger *log.Logger
}

// Engine handles queue events.
type Engine struct {
	root      string
	statePath string
	state     *schema.WorkflowState
	session   *schema.SessionState

	indexer   indexer.Indexer
	cache     *cache.Cache
	queue     Enqueuer
	pending   *store.PendingQueue
	baselines *baseline.Store
	work      *baseline.WorkLog
	sessions  *baseline.Sessions
	vcs       vcs.VCS
	reporter  Reporter

	shutdown     func()
	shutdownOnce sync.Once
	logger       *log.Logger
}

var _ queue.Handler = (*Engine)(nil)

// New loads the workflow state and session and returns an Engine.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Root == "":
		return nil, fmt.Errorf("workflow: root is required")
	case opts.StateDir == "":
		return nil, fmt.Errorf("workflow: state dir is required")
	case opts.Indexer == nil:
		return nil, fmt.Errorf("workflow: indexer is required")
	case opts.Cache == nil:
		return nil, fmt.Errorf("workflow: cache is required")
	case opts.Queue == nil:
		return nil, fmt.Errorf("workflow: queue is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[workflow] ", log.LstdFlags)
	}
	if opts.Pending == nil {
		opts.Pending = store.New(opts.StateDir, logger).Pending()
	}
	if opts.Baselines == nil {
		opts.Baselines = baseline.NewStore(opts.StateDir, logger)
	}
	if opts.Work == nil {
		opts.Work = baseline.NewWorkLog(opts.StateDir)
	}
	if opts.Sessions == nil {
		opts.Sessions = baseline.NewSessions(opts.StateDir, logger)
	}
	if opts.SessionID == "" {
		opts.SessionID = baseline.NewSessionID()
	}

	session, err := opts.Sessions.Load(opts.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	statePath := filepath.Join(opts.StateDir, StateFile)
	return &Engine{
		root:      opts.Root,
		statePath: statePath,
		state:     LoadState(statePath, opts.Toggles, logger),
		session:   session,
		indexer:   opts.Indexer,
		cache:     opts.Cache,
		queue:     opts.Queue,
		pending:   opts.Pending,
		baselines: opts.Baselines,
		work:      opts.Work,
		sessions:  opts.Sessions,
		vcs:       opts.VCS,
		reporter:  opts.Reporter,
		shutdown:  opts.Shutdown,
		logger:    logger,
	}, nil
}

// SessionID returns the id of the session the engine counts into.
func (e *Engine) SessionID() string { return e.session.ID }

// Handle implements queue.Handler.
func (e *Engine) Handle(ctx context.Context, ev *queue.Event) (string, error) {
	if ev.Session != "" && ev.Session != e.session.ID {
		e.logger.Printf("Ignoring %s from stale session %s", ev.Type, ev.Session)
		return fmt.Sprintf("stale %s from session %s ignored", ev.Type, ev.Session), nil
	}

	var (
		detail string
		err    error
	)
	switch ev.Type {
	case queue.WorkUnitStart:
		detail, err = e.workUnitStart(ctx, ev)
	case queue.WorkUnitComplete:
		detail, err = e.workUnitComplete(ctx, ev)
	case queue.GroupComplete:
		detail, err = e.groupComplete(ctx, ev)
	case queue.StageComplete:
		detail, err = e.stageComplete(ctx, ev)
	case queue.SourceChanged:
		detail, err = e.sourceChanged(ctx, ev)
	case queue.FullRebuild:
		detail, err = e.fullRebuild(ctx)
	case queue.GroupRegister:
		detail, err = e.groupRegister(ev)
	case queue.StageStart:
		detail, err = e.stageStart(ev)
	case queue.StageBlock:
		detail, err = e.stageBlock(ev)
	case queue.SessionActivity:
		detail = e.sessionActivity(ev)
	case queue.CacheFlush:
		// Maintenance, not session activity.
		return e.cacheFlush()
	case queue.SessionEnd:
		// Counted before the shutdown callback runs.
		e.session.EventsProcessed++
		e.saveSession()
		return e.sessionEnd(), nil
	default:
		err = fmt.Errorf("unknown event type %q", ev.Type)
	}

	e.session.EventsProcessed++
	e.saveSession()
	return detail, err
}

func (e *Engine) saveSession() {
	if err := e.sessions.Save(e.session); err != nil {
		e.logger.Printf("Warning: failed to save session %s: %v", e.session.ID, err)
	}
}

func (e *Engine) saveState() error {
	if err := SaveState(e.statePath, e.state); err != nil {
		return fmt.Errorf("failed to save workflow state: %w", err)
	}
	return nil
}

func (e *Engine) enqueue(ev queue.Event) {
	if _, err := e.queue.Enqueue(ev); err != nil {
		e.logger.Printf("Warning: dropped follow-up %s: %v", ev.Type, err)
	}
}

// revision returns the current VCS revision, or a degradation reason.
func (e *Engine) revision(ctx context.Context) (string, string) {
	if e.vcs == nil {
		return "", "no version control"
	}
	rev, err := e.vcs.CurrentRevision(ctx)
	if err != nil {
		return "", e.degrade(err)
	}
	return rev, ""
}

// changedSince returns project-relative paths changed since rev, or a
// degradation reason.
func (e *Engine) changedSince(ctx context.Context, rev string) ([]string, string) {
	if e.vcs == nil {
		return nil, "no version control"
	}
	if rev == "" {
		return nil, "baseline has no fingerprint"
	}
	paths, err := e.vcs.ChangedPathsSince(ctx, rev)
	if err != nil {
		return nil, e.degrade(err)
	}
	repoRoot, err := e.vcs.RepoRoot()
	if err != nil {
		return nil, e.degrade(err)
	}
	return vcs.RelativeTo(paths, repoRoot, e.root), ""
}

func (e *Engine) degrade(err error) string {
	if vcs.IsFatal(err) {
		e.logger.Printf("Warning: version control unavailable for this session: %v", err)
		e.vcs = nil
	} else {
		e.logger.Printf("Warning: version control lookup failed: %v", err)
	}
	return err.Error()
}

func (e *Engine) workUnitStart(ctx context.Context, ev *queue.Event) (string, error) {
	if ev.Participant == "" {
		return "", fmt.Errorf("work-unit-start requires a participant")
	}
	fingerprint, degraded := e.revision(ctx)

	group := ev.Group
	if group == "" {
		if g := e.state.GroupFor(ev.Participant, ""); g != nil {
			group = g.ID
		}
	}
	b := &schema.Baseline{
		Participant: ev.Participant,
		Fingerprint: fingerprint,
		StartedAt:   timeNow().UTC(),
		Group:       group,
		Session:     ev.Session,
	}
	if err := e.baselines.Start(b); err != nil {
		return "", err
	}

	detail := fmt.Sprintf("baseline for %s at %s", ev.Participant, orNone(fingerprint))
	if degraded != "" {
		detail += " (" + degraded + ")"
	}
	return detail, nil
}

func (e *Engine) workUnitComplete(ctx context.Context, ev *queue.Event) (string, error) {
	if ev.Participant == "" {
		return "", fmt.Errorf("work-unit-complete requires a participant")
	}
	b, err := e.baselines.Get(ev.Participant)
	if errors.Is(err, baseline.ErrNotFound) {
		e.logger.Printf("Ignoring completion for %s: no baseline, already processed", ev.Participant)
		return fmt.Sprintf("duplicate completion for %s ignored", ev.Participant), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read baseline for %s: %w", ev.Participant, err)
	}

	now := timeNow().UTC()
	files, degraded := e.changedSince(ctx, b.Fingerprint)
	to, _ := e.revision(ctx)
	rec := &schema.WorkRecord{
		Participant:  ev.Participant,
		Group:        firstNonEmpty(ev.Group, b.Group),
		Session:      firstNonEmpty(ev.Session, b.Session),
		StartedAt:    b.StartedAt,
		CompletedAt:  now,
		FromRevision: b.Fingerprint,
		ToRevision:   to,
		Files:        vcs.MergePaths(files, ev.Paths),
		Summary:      ev.Summary,
		Annotations:  ev.Annotations,
		Degraded:     degraded,
	}

	g := e.state.GroupFor(ev.Participant, rec.Group)
	if g != nil {
		rec.Group = g.ID
		rec.Stage = g.Stage
	}

	name, err := e.work.Save(rec)
	if err != nil {
		return "", fmt.Errorf("failed to save work record: %w", err)
	}
	staged, err := e.stageAnnotations(ev.Participant, ev.Annotations, now)
	if err != nil {
		e.discardRecord(name)
		return "", err
	}

	var prev schema.GroupState
	if g != nil {
		prev = *g
	}
	groupDetail, groupDone := e.recordCompletion(g, ev.Participant, name, now)
	if err := e.saveState(); err != nil {
		if g != nil {
			*g = prev
		}
		e.discardRecord(name)
		return "", err
	}
	if groupDone {
		e.enqueue(queue.Event{Type: queue.GroupComplete, Group: g.ID, Stage: g.Stage})
	}
	if err := e.baselines.Delete(ev.Participant); err != nil {
		return "", err
	}
	e.session.WorkCompleted++

	if e.state.Automation.IndexOnComplete && (len(rec.Files) > 0 || staged > 0) {
		e.enqueue(queue.Event{Type: queue.SourceChanged, Paths: rec.Files, Participant: ev.Participant})
	}

	detail := fmt.Sprintf("%s completed %d files; %s", ev.Participant, len(rec.Files), groupDetail)
	if degraded != "" {
		detail += " (file list degraded: " + degraded + ")"
	}
	return detail, nil
}

// stageAnnotations appends a completion's annotations to the pending queue
// so the next build folds them in with work precedence.
func (e *Engine) stageAnnotations(participant string, anns map[string]schema.SemanticAnnotation, now time.Time) (int, error) {
	paths := make([]string, 0, len(anns))
	for p := range anns {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	staged := 0
	for _, p := range paths {
		a := anns[p]
		if a.IsZero() {
			continue
		}
		entry := &schema.PendingAnnotation{
			Timestamp:   now,
			Path:        p,
			Description: a.Description,
			Pattern:     a.Pattern,
			Tag:         a.Tag,
			Source:      schema.SourceWorkPrefix + participant,
		}
		if err := e.pending.Append(entry); err != nil {
			return staged, fmt.Errorf("failed to stage annotation for %s: %w", p, err)
		}
		staged++
	}
	return staged, nil
}

// discardRecord removes a work record whose completion was not committed.
// The baseline is kept, so a redelivered completion writes a fresh record.
func (e *Engine) discardRecord(name string) {
	if err := e.work.Delete(name); err != nil {
		e.logger.Printf("Warning: failed to remove work record %s: %v", name, err)
	}
}

// recordCompletion appends participant to g at most once and advances its
// status. It reports whether the group just completed.
func (e *Engine) recordCompletion(g *schema.GroupState, participant, record string, now time.Time) (string, bool) {
	switch {
	case g == nil:
		return "no open group", false
	case !g.Expects(participant):
		e.logger.Printf("Warning: group %s does not expect %s", g.ID, participant)
		return fmt.Sprintf("%s not expected by group %s", participant, g.ID), false
	case g.Status == schema.GroupCompleted:
		return fmt.Sprintf("group %s already completed", g.ID), false
	case g.HasCompleted(participant):
		return fmt.Sprintf("%s already recorded in group %s", participant, g.ID), false
	}

	g.Completed = append(g.Completed, schema.CompletedWork{
		Participant: participant,
		Record:      record,
		CompletedAt: now,
	})
	if g.AllDone() {
		g.Status = schema.GroupCompleted
		g.CompletedAt = &now
		return fmt.Sprintf("group %s completed", g.ID), true
	}
	g.Status = schema.GroupInProgress
	return fmt.Sprintf("group %s in progress (%d/%d)", g.ID, len(g.Completed), len(g.Expected)), false
}

func (e *Engine) groupComplete(ctx context.Context, ev *queue.Event) (string, error) {
	g := e.state.Groups[ev.Group]
	if g == nil {
		return "", fmt.Errorf("unknown group %q", ev.Group)
	}
	if g.Status != schema.GroupCompleted {
		return "", fmt.Errorf("group %s is %s, not completed", g.ID, g.Status)
	}

	var notes []string
	var reportErr error
	if e.state.Automation.GroupReports && e.reporter != nil && !g.ReportGenerated {
		path, err := e.reporter.Write(ctx, e.groupInput(g))
		if err != nil {
			reportErr = fmt.Errorf("group report for %s failed: %w", g.ID, err)
		} else {
			g.ReportGenerated = true
			if err := e.saveState(); err != nil {
				return "", err
			}
			notes = append(notes, "report "+filepath.Base(path))
		}
	}

	if g.Stage != "" && e.state.StageDone(g.Stage) && !e.state.StageCompleted(g.Stage) {
		e.enqueue(queue.Event{Type: queue.StageComplete, Stage: g.Stage})
		notes = append(notes, "stage "+g.Stage+" ready")
	}

	detail := "group " + g.ID + " completed"
	if len(notes) > 0 {
		detail += "; " + strings.Join(notes, "; ")
	}
	return detail, reportErr
}

func (e *Engine) groupInput(g *schema.GroupState) *report.Input {
	names := make([]string, 0, len(g.Completed))
	for _, c := range g.Completed {
		if c.Record != "" {
			names = append(names, c.Record)
		}
	}
	return &report.Input{
		Kind:        report.KindGroup,
		ID:          g.ID,
		Stage:       g.Stage,
		Status:      g.Status,
		Expected:    g.Expected,
		Records:     e.work.LoadAll(names),
		Health:      e.health(),
		GeneratedAt: timeNow().UTC(),
	}
}

func (e *Engine) health() *schema.HealthScore {
	sum := e.cache.Summary()
	if sum == nil {
		return nil
	}
	h := sum.Health
	return &h
}

func (e *Engine) stageComplete(ctx context.Context, ev *queue.Event) (string, error) {
	cur := e.state.CurrentStage
	stage := ev.Stage
	if stage == "" && cur != nil {
		stage = cur.ID
	}
	if stage == "" {
		return "", fmt.Errorf("stage-complete without a stage")
	}
	if e.state.StageCompleted(stage) {
		return fmt.Sprintf("stage %s already completed", stage), nil
	}
	if cur != nil && cur.ID != stage {
		cur = nil
	}

	groups := e.state.StageGroups(stage)
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	var incomplete []string
	for _, g := range groups {
		if g.Status != schema.GroupCompleted {
			incomplete = append(incomplete, g.ID)
		}
	}
	var blockers []string
	if cur != nil {
		blockers = cur.Blockers
	}

	reason := ""
	switch {
	case len(groups) == 0:
		reason = "no groups registered"
	case len(incomplete) > 0:
		reason = fmt.Sprintf("%d group(s) incomplete: %s", len(incomplete), strings.Join(incomplete, ", "))
	case len(blockers) > 0:
		reason = "blocked by: " + strings.Join(blockers, ", ")
	}

	var reportErr error
	if e.state.Automation.StageReports && e.reporter != nil {
		status := schema.GroupCompleted
		if reason != "" {
			status = "blocked"
		}
		in := &report.Input{
			Kind:        report.KindStage,
			ID:          stage,
			Status:      status,
			Groups:      groups,
			Blockers:    blockers,
			BlockReason: reason,
			Health:      e.health(),
			GeneratedAt: timeNow().UTC(),
		}
		for _, g := range groups {
			in.Records = append(in.Records, e.groupInput(g).Records...)
		}
		if _, err := e.reporter.Write(ctx, in); err != nil {
			reportErr = fmt.Errorf("stage report for %s failed: %w", stage, err)
		}
	}

	if reason != "" {
		if cur != nil {
			cur.BlockReason = reason
			if err := e.saveState(); err != nil {
				return "", err
			}
		}
		e.logger.Printf("Stage %s not completed: %s", stage, reason)
		return fmt.Sprintf("stage %s not completed: %s", stage, reason), reportErr
	}

	e.state.CompletedStages = append(e.state.CompletedStages, stage)
	if cur != nil {
		e.state.CurrentStage = nil
	}
	if err := e.saveState(); err != nil {
		return "", err
	}
	e.logger.Printf("Stage %s completed", stage)
	return fmt.Sprintf("stage %s completed", stage), reportErr
}

func (e *Engine) sourceChanged(ctx context.Context, ev *queue.Event) (string, error) {
	paths := vcs.MergePaths(ev.Paths, e.cache.DrainDirty())
	res, err := e.indexer.Update(ctx, paths)
	if err != nil {
		e.cache.UpdateFiles(paths)
		return "", fmt.Errorf("incremental update failed: %w", err)
	}
	e.cache.Refresh(res)
	return describe(res), nil
}

func (e *Engine) fullRebuild(ctx context.Context) (string, error) {
	dirty := e.cache.DrainDirty()
	res, err := e.indexer.Rebuild(ctx)
	if err != nil {
		e.cache.UpdateFiles(dirty)
		return "", fmt.Errorf("full rebuild failed: %w", err)
	}
	e.cache.Refresh(res)
	return describe(res), nil
}

// cacheFlush persists modules the cache changed since the last flush. It
// runs on the consumer so it never races a build writing the same modules.
func (e *Engine) cacheFlush() (string, error) {
	n, err := e.cache.Flush()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("flushed %d module(s)", n), nil
}

func describe(res *indexer.Result) string {
	if res.NoOp {
		return "index unchanged"
	}
	kind := "updated"
	if res.Full {
		kind = "rebuilt"
	}
	return fmt.Sprintf("index %s: %d indexed, %d removed, %d skipped, %d annotations",
		kind, len(res.Touched), len(res.Removed), len(res.Skipped), res.Annotations)
}

func (e *Engine) groupRegister(ev *queue.Event) (string, error) {
	if ev.Group == "" {
		return "", fmt.Errorf("group-register requires a group id")
	}
	expected := unique(ev.Expected)
	if len(expected) == 0 {
		return "", fmt.Errorf("group %s has no expected participants", ev.Group)
	}
	stage := ev.Stage
	if stage == "" && e.state.CurrentStage != nil {
		stage = e.state.CurrentStage.ID
	}
	if stage != "" && e.state.StageCompleted(stage) {
		return "", fmt.Errorf("stage %s is already completed", stage)
	}

	if g, ok := e.state.Groups[ev.Group]; ok {
		if g.Status == schema.GroupCompleted {
			return "", fmt.Errorf("group %s is already completed", g.ID)
		}
		added := 0
		for _, p := range expected {
			if !g.Expects(p) {
				g.Expected = append(g.Expected, p)
				added++
			}
		}
		if g.Stage == "" {
			g.Stage = stage
		}
		if err := e.saveState(); err != nil {
			return "", err
		}
		return fmt.Sprintf("group %s updated (+%d participants)", g.ID, added), nil
	}

	g := &schema.GroupState{
		ID:           ev.Group,
		Status:       schema.GroupPending,
		Stage:        stage,
		Expected:     expected,
		RegisteredAt: timeNow().UTC(),
	}
	if err := g.Validate(); err != nil {
		return "", err
	}
	e.state.Groups[g.ID] = g
	if err := e.saveState(); err != nil {
		return "", err
	}
	return fmt.Sprintf("group %s registered with %d participants", g.ID, len(expected)), nil
}

func (e *Engine) stageStart(ev *queue.Event) (string, error) {
	if ev.Stage == "" {
		return "", fmt.Errorf("stage-start requires a stage id")
	}
	if e.state.StageCompleted(ev.Stage) {
		return "", fmt.Errorf("stage %s is already completed", ev.Stage)
	}
	if cur := e.state.CurrentStage; cur != nil {
		if cur.ID == ev.Stage {
			if ev.Name != "" {
				cur.Name = ev.Name
			}
			return fmt.Sprintf("stage %s already current", ev.Stage), e.saveState()
		}
		e.logger.Printf("Warning: stage %s replaces open stage %s", ev.Stage, cur.ID)
	}
	e.state.CurrentStage = &schema.StageDescriptor{
		ID:        ev.Stage,
		Name:      ev.Name,
		StartedAt: timeNow().UTC(),
	}
	if err := e.saveState(); err != nil {
		return "", err
	}
	return fmt.Sprintf("stage %s started", ev.Stage), nil
}

func (e *Engine) stageBlock(ev *queue.Event) (string, error) {
	cur := e.state.CurrentStage
	if cur == nil {
		return "", fmt.Errorf("no current stage")
	}
	if ev.Stage != "" && ev.Stage != cur.ID {
		return "", fmt.Errorf("stage %s is not the current stage (%s)", ev.Stage, cur.ID)
	}
	cur.Blockers = unique(ev.Blockers)
	cur.BlockReason = ev.Reason
	if err := e.saveState(); err != nil {
		return "", err
	}
	if len(cur.Blockers) > 0 {
		return fmt.Sprintf("stage %s blocked by %d", cur.ID, len(cur.Blockers)), nil
	}
	if e.state.StageDone(cur.ID) {
		e.enqueue(queue.Event{Type: queue.StageComplete, Stage: cur.ID})
	}
	return fmt.Sprintf("stage %s unblocked", cur.ID), nil
}

func (e *Engine) sessionActivity(ev *queue.Event) string {
	e.session.RecordToolUse(ev.Tool, ev.Failed, ev.TokensIn, ev.TokensOut)
	status := "ok"
	if ev.Failed {
		status = "failed"
	}
	return fmt.Sprintf("%s %s", orNone(ev.Tool), status)
}

func (e *Engine) sessionEnd() string {
	if e.shutdown == nil {
		return "session ended"
	}
	e.shutdownOnce.Do(e.shutdown)
	return "shutdown requested"
}

// unique returns the non-empty values of in, sorted and de-duplicated.
func unique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
