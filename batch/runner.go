package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minios-linux/lokat/catalog"
	"github.com/minios-linux/lokat/estimate"
	"github.com/minios-linux/lokat/langmeta"
	"github.com/minios-linux/lokat/lockfile"
	"github.com/minios-linux/lokat/translate"
	"github.com/minios-linux/lokat/usage"
)

var (
	// ErrTranslationFailed matches every *JobError.
	ErrTranslationFailed = errors.New("translation failed")
	// ErrDuplicateKey is returned when adding a key the source file already has.
	ErrDuplicateKey = errors.New("key already exists")
	// ErrEmptyTranslation is reported when the provider answer is blank
	// after normalization.
	ErrEmptyTranslation = errors.New("provider returned an empty translation")
)

// DefaultDelay is the pause between jobs when none is configured.
const DefaultDelay = 500 * time.Millisecond

// Policy decides what a run does after a failed job.
type Policy int

const (
	// PolicyAbort stops at the first failure. Earlier writes stay.
	PolicyAbort Policy = iota
	// PolicySkip records the failure and continues with the next job.
	PolicySkip
)

// JobError reports a failed job and its position in the run.
type JobError struct {
	Index int
	Job   Job
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %d (%s -> %s): %v", e.Index+1, e.Job.Key, e.Job.TargetLang, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTranslationFailed) true for every job error.
func (e *JobError) Is(target error) bool { return target == ErrTranslationFailed }

// Translator is the provider side of a run.
type Translator interface {
	Translate(ctx context.Context, req translate.Request) (translate.Result, error)
}

// CellWriter persists one translated value.
type CellWriter interface {
	WriteCell(lang, key, value string) error
}

// Summary describes a finished (or stopped) run.
type Summary struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	// Skipped counts jobs never attempted.
	Skipped int
	States  []JobState
	// Usage is the sum over successful calls in this run.
	Usage usage.Usage
}

// Runner executes translation jobs strictly one after another.
type Runner struct {
	Translator Translator
	Store      CellWriter
	// Usage accumulates provider usage across runs. Optional.
	Usage *usage.Report
	// Lock records the source text of each translation. Optional.
	Lock *lockfile.LockFile
	// Delay is the pause between jobs. Zero means DefaultDelay; negative
	// disables the pause.
	Delay  time.Duration
	Policy Policy
	Logger *zap.Logger

	// OnProgress is called after each attempted job.
	OnProgress func(done, total int)
	// OnUsage is called after usage has been folded into Usage.
	OnUsage func(u usage.Usage, lang string, report *usage.Report)
	// OnJob is called whenever a job changes state.
	OnJob func(index int, job Job, state JobState)
	// Now returns the time stamped on usage folds.
	Now func() time.Time
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) delay() time.Duration {
	if r.Delay == 0 {
		return DefaultDelay
	}
	if r.Delay < 0 {
		return 0
	}
	return r.Delay
}

func (r *Runner) setState(s *Summary, i int, job Job, state JobState) {
	s.States[i] = state
	if r.OnJob != nil {
		r.OnJob(i, job, state)
	}
}

// ---------------------------------------------------------------------------
// Single job
// ---------------------------------------------------------------------------

// RunSingle translates one job and writes the result. On failure the
// catalog is left untouched and a *JobError is returned.
func (r *Runner) RunSingle(ctx context.Context, job Job) (string, error) {
	text, _, err := r.run(ctx, job)
	if err != nil {
		return "", &JobError{Index: 0, Job: job, Err: err}
	}
	return text, nil
}

func (r *Runner) run(ctx context.Context, job Job) (string, usage.Usage, error) {
	if err := ctx.Err(); err != nil {
		return "", usage.Usage{}, err
	}
	if r.Translator == nil || r.Store == nil {
		return "", usage.Usage{}, errors.New("runner is not configured")
	}

	req := translate.Request{
		Text:       job.SourceText,
		Key:        job.Key,
		SourceLang: job.SourceLang,
		SourceName: langmeta.DisplayName(job.SourceLang),
		TargetLang: job.TargetLang,
		TargetName: langmeta.DisplayName(job.TargetLang),
	}

	res, err := r.Translator.Translate(ctx, req)
	if err != nil {
		return "", usage.Usage{}, err
	}
	r.foldUsage(res.Usage, job.TargetLang)

	text := translate.CleanOutput(res.Text)
	if catalog.IsBlank(text) {
		return "", res.Usage, ErrEmptyTranslation
	}

	if err := r.Store.WriteCell(job.TargetLang, job.Key, text); err != nil {
		return "", res.Usage, fmt.Errorf("writing %s: %w", job.TargetLang, err)
	}

	if r.Lock != nil {
		r.Lock.Record(job.TargetLang, job.Key, job.SourceText)
		if err := r.Lock.Save(); err != nil {
			r.logger().Warn("saving lock file", zap.Error(err))
		}
	}
	return text, res.Usage, nil
}

func (r *Runner) foldUsage(u usage.Usage, lang string) {
	if r.Usage != nil {
		r.Usage.Add(u, lang, r.now())
	}
	if r.OnUsage != nil {
		r.OnUsage(u, lang, r.Usage)
	}
}

// ---------------------------------------------------------------------------
// Sequential run
// ---------------------------------------------------------------------------

// RunAll processes jobs in order, never more than one at a time. With
// PolicyAbort the first failure ends the run and is returned as a
// *JobError; with PolicySkip all failures are joined. A cancelled context
// stops the run before the next job starts.
func (r *Runner) RunAll(ctx context.Context, jobs []Job) (Summary, error) {
	return r.runJobs(ctx, jobs, nil)
}

func (r *Runner) runJobs(ctx context.Context, jobs []Job, onSuccess func(job Job, text string)) (Summary, error) {
	s := Summary{
		RunID:  uuid.NewString(),
		Total:  len(jobs),
		States: make([]JobState, len(jobs)),
	}
	log := r.logger().With(zap.String("run", s.RunID))
	log.Info("starting batch", zap.Int("jobs", len(jobs)))

	var failures []error
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			s.Skipped = len(jobs) - i
			log.Info("batch cancelled", zap.Int("done", i))
			return s, err
		}

		r.setState(&s, i, job, JobInFlight)
		text, u, err := r.run(ctx, job)
		s.Usage = addUsage(s.Usage, u)

		if err != nil {
			r.setState(&s, i, job, JobFailed)
			s.Failed++
			log.Warn("job failed", zap.Int("index", i), zap.String("key", job.Key),
				zap.String("lang", job.TargetLang), zap.Error(err))
			r.progress(i+1, len(jobs))

			jerr := &JobError{Index: i, Job: job, Err: err}
			if r.Policy == PolicyAbort {
				s.Skipped = len(jobs) - i - 1
				return s, jerr
			}
			failures = append(failures, jerr)
		} else {
			r.setState(&s, i, job, JobSucceeded)
			s.Succeeded++
			if onSuccess != nil {
				onSuccess(job, text)
			}
			log.Debug("job done", zap.String("key", job.Key), zap.String("lang", job.TargetLang))
			r.progress(i+1, len(jobs))
		}

		if i < len(jobs)-1 {
			if err := sleep(ctx, r.delay()); err != nil {
				s.Skipped = len(jobs) - i - 1
				return s, err
			}
		}
	}

	log.Info("batch finished", zap.Int("succeeded", s.Succeeded), zap.Int("failed", s.Failed))
	return s, errors.Join(failures...)
}

func (r *Runner) progress(done, total int) {
	if r.OnProgress != nil {
		r.OnProgress(done, total)
	}
}

func addUsage(a, b usage.Usage) usage.Usage {
	a.PromptTokens += b.PromptTokens
	a.CompletionTokens += b.CompletionTokens
	a.TotalTokens += b.Total()
	if b.Model != "" {
		a.Model = b.Model
	}
	return a
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ---------------------------------------------------------------------------
// Key modes
// ---------------------------------------------------------------------------

// TranslateKey translates one key into every active language where it is
// missing. When openLang is among them, its translated text is returned
// so an open editor can show it without reloading.
func (r *Runner) TranslateKey(ctx context.Context, cat *catalog.Catalog, key string, active []string, source, openLang string) (string, Summary, error) {
	jobs := CollectKeyJobs(cat, key, active, source)
	return r.runKey(ctx, jobs, openLang)
}

func (r *Runner) runKey(ctx context.Context, jobs []Job, openLang string) (string, Summary, error) {
	var openText string
	s, err := r.runJobs(ctx, jobs, func(job Job, text string) {
		if openLang != "" && job.TargetLang == openLang {
			openText = text
		}
	})
	return openText, s, err
}

// KeyAdder is the part of the catalog store AddKeyAndTranslate needs.
type KeyAdder interface {
	AddKey(key, sourceLang, sourceValue string) (existed bool, err error)
	Load() (*catalog.Catalog, error)
}

// AddKeyAndTranslate adds key with value in the source language and then
// translates it into every other active language where it is still blank.
// Translations a language file already held are kept.
func (r *Runner) AddKeyAndTranslate(ctx context.Context, store KeyAdder, key, value string, active []string, source string) (Summary, error) {
	existed, err := store.AddKey(key, source, value)
	if err != nil {
		return Summary{}, fmt.Errorf("adding key %q: %w", key, err)
	}
	if existed {
		return Summary{}, fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	if catalog.IsBlank(value) {
		return Summary{RunID: uuid.NewString()}, nil
	}

	cat, err := store.Load()
	if err != nil {
		return Summary{}, fmt.Errorf("reloading catalog: %w", err)
	}
	_, s, err := r.runKey(ctx, CollectKeyJobs(cat, key, active, source), "")
	return s, err
}

// ---------------------------------------------------------------------------
// Estimation
// ---------------------------------------------------------------------------

// Estimate returns a pre-flight token and cost estimate for jobs, counting
// the prompt each job would be sent with.
func Estimate(jobs []Job, model string) estimate.Summary {
	sources := make([]string, len(jobs))
	overhead := 0
	for i, job := range jobs {
		sources[i] = job.SourceText
		system, user := translate.BuildPrompt(translate.Request{
			Key:        job.Key,
			SourceLang: job.SourceLang,
			TargetLang: job.TargetLang,
		})
		overhead += estimate.Tokens(system) + estimate.Tokens(user)
	}
	if len(jobs) > 0 {
		overhead /= len(jobs)
	}
	return estimate.Preflight(sources, overhead, model)
}
