package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minios-linux/lokat/batch"
	"github.com/minios-linux/lokat/catalog"
	"github.com/minios-linux/lokat/coalesce"
	"github.com/minios-linux/lokat/config"
	"github.com/minios-linux/lokat/translate"
	"github.com/minios-linux/lokat/usage"
)

// DefaultWriteWindow is how long edits to one cell are coalesced.
const DefaultWriteWindow = 300 * time.Millisecond

// Cell addresses one value in the catalog.
type Cell struct {
	Key  string
	Lang string
}

// Session is one open project. Execute is safe for concurrent use; commands
// run one at a time.
type Session struct {
	Store  *catalog.Store
	Runner *batch.Runner
	Config *config.File
	Usage  *usage.Report
	// UsagePath, when set, receives the usage report after each batch.
	UsagePath string
	Writes    *coalesce.Writer[Cell, string]
	Logger    *zap.Logger
	// Emit receives every response as it happens, including progress
	// during long runs.
	Emit func(Response)

	mu    sync.Mutex
	state State
	out   []Response
}

// New wires a session around store and runner. The runner's store, usage
// report and callbacks are taken over by the session.
func New(store *catalog.Store, runner *batch.Runner, cfg *config.File, report *usage.Report) *Session {
	if cfg == nil {
		cfg = config.Default()
	}
	if report == nil {
		report = usage.New()
	}

	s := &Session{
		Store:  store,
		Runner: runner,
		Config: cfg,
		Usage:  report,
		Logger: store.Logger,
	}
	s.Writes = coalesce.New(DefaultWriteWindow, func(c Cell, v string) error {
		return store.WriteCell(c.Lang, c.Key, v)
	})
	s.Writes.OnError = func(c Cell, err error) {
		s.logger().Warn("deferred write failed", zap.String("key", c.Key), zap.String("lang", c.Lang), zap.Error(err))
	}

	runner.Store = store
	runner.Usage = report
	runner.OnProgress = func(done, total int) {
		s.emit(Response{Type: RespProgress, Done: done, Total: total})
	}
	runner.OnUsage = func(_ usage.Usage, _ string, r *usage.Report) {
		s.emit(Response{Type: RespUsage, Usage: r})
	}

	model := cfg.Model
	if model == "" {
		if p, ok := translate.LookupProvider(cfg.Provider); ok {
			model = p.Model
		}
	}
	s.state = State{
		SourcePreference: cfg.SourceLang,
		Active:           cfg.Languages,
		Model:            model,
	}
	store.SourceLanguage = cfg.SourceLang
	return s
}

func (s *Session) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// State returns a snapshot of the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Catalog returns the current catalog, or nil before the first load.
func (s *Session) Catalog() *catalog.Catalog {
	return s.State().Catalog
}

// Execute dispatches cmd, performs its effects and returns every response
// produced along the way. Errors are reported as RespError responses.
func (s *Session) Execute(ctx context.Context, cmd Command) []Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.out = nil
	next, effects := Dispatch(s.state, cmd)
	s.state = next
	s.logger().Debug("command", zap.Stringer("type", cmd.Type), zap.Int("effects", len(effects)))

	for _, eff := range effects {
		s.apply(ctx, eff)
	}
	out := s.out
	s.out = nil
	return out
}

// Close writes pending edits.
func (s *Session) Close() error {
	return s.Writes.Close()
}

func (s *Session) emit(r Response) {
	s.out = append(s.out, r)
	if s.Emit != nil {
		s.Emit(r)
	}
}

func (s *Session) emitErr(err error) {
	s.emit(Response{Type: RespError, Err: err})
}

// ---------------------------------------------------------------------------
// Effects
// ---------------------------------------------------------------------------

func (s *Session) apply(ctx context.Context, eff Effect) {
	switch eff.Type {
	case EffRespond:
		s.emit(eff.Response)

	case EffFlush:
		if err := s.Writes.Flush(); err != nil {
			s.emitErr(fmt.Errorf("writing pending edits: %w", err))
		}

	case EffWrite:
		if err := s.Writes.Put(Cell{Key: eff.Key, Lang: eff.Language}, eff.Value); err != nil {
			s.emitErr(err)
		}

	case EffLoad:
		s.Store.SourceLanguage = s.state.SourcePreference
		cat, err := s.Store.Load()
		if err != nil {
			s.emitErr(err)
			return
		}
		s.state = Loaded(s.state, cat)
		s.emit(Response{Type: RespCatalog, Catalog: cat})
		if !cat.Status.OK() {
			s.emit(Response{Type: RespStatus, Message: cat.Status.Message})
		}

	case EffAddKey:
		existed, err := s.Store.AddKey(eff.Key, eff.Language, eff.Value)
		switch {
		case err != nil:
			s.emitErr(err)
		case existed:
			s.emitErr(fmt.Errorf("%w: %s", batch.ErrDuplicateKey, eff.Key))
		}

	case EffAddLanguage:
		created, err := s.Store.AddLanguageFile(eff.Language)
		if err != nil {
			s.emitErr(err)
			return
		}
		if !created {
			s.emit(Response{Type: RespStatus, Message: fmt.Sprintf("Language %s already exists.", eff.Language)})
		}

	case EffSaveConfig:
		s.Config.SourceLang = s.state.SourcePreference
		if s.Store.Root == "" {
			return
		}
		if err := s.Config.Save(s.Store.Root); err != nil {
			s.emitErr(err)
		}

	case EffRunJobs:
		sum, err := s.Runner.RunAll(ctx, eff.Jobs)
		s.finishRun(sum, err)

	case EffTranslateKey:
		text, sum, err := s.Runner.TranslateKey(ctx, s.state.Catalog, eff.Key, s.state.Active, s.state.Source(), eff.Language)
		if text != "" {
			s.emit(Response{Type: RespValue, Key: eff.Key, Language: eff.Language, Value: text})
		}
		s.finishRun(sum, err)

	case EffAddKeyAndTranslate:
		sum, err := s.Runner.AddKeyAndTranslate(ctx, s.Store, eff.Key, eff.Value, s.state.ActiveLanguages(), s.state.Source())
		s.finishRun(sum, err)
	}
}

func (s *Session) finishRun(sum batch.Summary, err error) {
	if s.UsagePath != "" && sum.Succeeded > 0 {
		if serr := s.Usage.Save(s.UsagePath); serr != nil {
			s.logger().Warn("saving usage report", zap.Error(serr))
		}
	}
	s.emit(Response{
		Type:    RespStatus,
		Summary: sum,
		Message: fmt.Sprintf("Translated %d of %d (%d failed, %d skipped).", sum.Succeeded, sum.Total, sum.Failed, sum.Skipped),
	})
	if err != nil {
		s.emitErr(err)
	}
}
