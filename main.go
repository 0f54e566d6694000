// lokat is the Localization Catalog toolkit: JSON translation catalogs with AI translation.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/manifoldco/promptui"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/minios-linux/lokat/batch"
	"github.com/minios-linux/lokat/catalog"
	"github.com/minios-linux/lokat/config"
	"github.com/minios-linux/lokat/estimate"
	"github.com/minios-linux/lokat/i18n"
	"github.com/minios-linux/lokat/langmeta"
	"github.com/minios-linux/lokat/lockfile"
	"github.com/minios-linux/lokat/session"
	"github.com/minios-linux/lokat/settings"
	"github.com/minios-linux/lokat/translate"
	"github.com/minios-linux/lokat/usage"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	blue   = color.New(color.FgBlue).SprintFunc()
	cyan   = color.New(color.Bold, color.FgCyan).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.Bold, color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, blue("[INFO]")+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, green("[OK]")+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, yellow("[WARN]")+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, red("[ERROR]")+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir string
	verbose bool
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lokat",
		Short: "Localization Catalog toolkit: JSON translation catalogs with AI translation",
		Long: `lokat — Localization Catalog toolkit.

Manages a translation catalog stored as one nested JSON file per language
(locales/en.json, locales/de.json, ...) and fills missing values with AI
translation, one value at a time.

Commands:
  status      Show the catalog and per-language statistics
  init        Create .lokat.yaml and a starter catalog
  add-key     Add a key to every language file
  add-lang    Add an empty language file
  set         Set one value
  translate   Translate missing values using AI
  estimate    Estimate tokens and cost of a translation run
  usage       Show accumulated token usage
  auth        Manage provider API keys

AI Providers:
  openai         OpenAI — API key
  anthropic      Anthropic — API key
  google         Google AI (Gemini) — API key
  groq           Groq — API key
  ollama         Ollama local server
  custom-openai  Custom OpenAI-compatible endpoint`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newStatusCmd(),
		newInitCmd(),
		newAddKeyCmd(),
		newAddLangCmd(),
		newSetCmd(),
		newTranslateCmd(),
		newEstimateCmd(),
		newUsageCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Project
// ---------------------------------------------------------------------------

type project struct {
	root   string
	cfg    *config.File
	hasCfg bool
	store  *catalog.Store
	log    *zap.Logger
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// openProject finds the project root, reads .lokat.yaml and the project's
// .env file, and prepares a catalog store.
func openProject() (*project, error) {
	root, err := config.FindRoot(rootDir)
	if err != nil {
		return nil, err
	}
	cfg, exists, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logWarning("Ignoring .env: %v", err)
	}

	log := newLogger()
	return &project{
		root:   root,
		cfg:    cfg,
		hasCfg: exists,
		log:    log,
		store: &catalog.Store{
			Root:           root,
			Dir:            cfg.TranslationsDir,
			FolderName:     cfg.FolderName,
			SourceLanguage: cfg.SourceLang,
			Logger:         log,
		},
	}, nil
}

// loadCatalog loads the catalog and turns a non-OK status into an error.
func (p *project) loadCatalog() (*catalog.Catalog, error) {
	cat, err := p.store.Load()
	if err != nil {
		return nil, err
	}
	if !cat.Status.OK() {
		return nil, fmt.Errorf("%s\n\n  Run 'lokat init' to create a catalog", cat.Status.Message)
	}
	return cat, nil
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("lokat version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// status (read-only: project info + translation stats)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the catalog and per-language statistics",
		Long: `Show the resolved translations directory, the source language and
per-language translation progress. Does not modify any files.

With --watch the statistics are printed again whenever a language file
changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject()
			if err != nil {
				return err
			}
			if err := showStatus(p); err != nil {
				return err
			}
			if !watch {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			logInfo("%s", i18n.T("Watching for changes (Ctrl+C to stop)..."))
			return p.store.Watch(ctx, func(ev fsnotify.Event) {
				logInfo("%s changed", filepath.Base(ev.Name))
				if err := showStatus(p); err != nil {
					logError("%v", err)
				}
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Print statistics again when language files change")
	return cmd
}

func showStatus(p *project) error {
	cat, err := p.store.Load()
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n%s\n", blue("Project"))
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "  Root:        %s\n", p.root)
	if p.hasCfg {
		fmt.Fprintf(os.Stderr, "  Config:      %s\n", config.FileName)
	} else {
		fmt.Fprintf(os.Stderr, "  Config:      none (defaults)\n")
	}
	dir := cat.Dir
	if dir == "" {
		dir = "-"
	}
	fmt.Fprintf(os.Stderr, "  %s: %s\n", i18n.T("Translations directory"), dir)
	fmt.Fprintf(os.Stderr, "  %s: %s\n", i18n.T("Source language"), cat.SourceLanguage)
	model := p.cfg.Model
	if model == "" {
		if prov, ok := translate.LookupProvider(p.cfg.Provider); ok {
			model = prov.Model
		}
	}
	fmt.Fprintf(os.Stderr, "  Provider:    %s (%s)\n", p.cfg.Provider, model)
	fmt.Fprintln(os.Stderr)

	if !cat.Status.OK() {
		logWarning("%s", cat.Status.Message)
		logInfo("Run 'lokat init' to create a catalog.")
		return nil
	}

	printStatsTable(cat)

	lock, err := lockfile.Load(p.root)
	if err != nil {
		logWarning("%v", err)
		return nil
	}
	if langs, _ := lock.Stats(); langs > 0 {
		logInfo("Lock file: %s", lock.Summary())
	}
	if stale := batch.CollectStaleJobs(cat, p.cfg.Languages, cat.SourceLanguage, lock); len(stale) > 0 {
		logWarning("%d translations are older than their source text. Run 'lokat translate --stale'.", len(stale))
	}
	return nil
}

func printStatsTable(cat *catalog.Catalog) {
	width := langColumnWidth(cat.LanguageCodes())
	if width < len(i18n.T("Language")) {
		width = len(i18n.T("Language"))
	}

	fmt.Fprintf(os.Stderr, "%s %-*s %-12s %-12s\n", "  ", width, i18n.T("Language"), i18n.T("Translated"), i18n.T("Untranslated"))
	fmt.Fprintln(os.Stderr, strings.Repeat("─", width+60))

	for _, l := range cat.Languages {
		total, translated, untranslated := cat.Stats(l.Code)
		percent := 100
		if total > 0 {
			percent = translated * 100 / total
		}
		name := l.DisplayName
		if l.Code == cat.SourceLanguage {
			name += " " + cyan("(source)")
		}
		fmt.Fprintf(os.Stderr, "%s %-12d %-12d %s  %s\n",
			langCell(l.Code, width), translated, untranslated, progressBar(percent, 20), name)
	}

	fmt.Fprintln(os.Stderr, strings.Repeat("─", width+60))
	fmt.Fprintf(os.Stderr, i18n.N("%d key", "%d keys", len(cat.Keys))+"\n\n", len(cat.Keys))
}

// progressBar renders a colored bar for percent (clamped to 0..100).
func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	paint := red
	switch {
	case percent >= 100:
		paint = green
	case percent >= 50:
		paint = yellow
	}
	return paint(bar) + fmt.Sprintf(" %3d%%", percent)
}

func langColumnWidth(codes []string) int {
	w := 0
	for _, c := range codes {
		if len(c) > w {
			w = len(c)
		}
	}
	return w
}

// langCell is a flag followed by the code padded to width.
func langCell(code string, width int) string {
	flag := langmeta.Resolve(code).Flag
	if flag == "" {
		flag = "  "
	}
	return fmt.Sprintf("%s %-*s", flag, width, code)
}

// ---------------------------------------------------------------------------
// init
// ---------------------------------------------------------------------------

func newInitCmd() *cobra.Command {
	var (
		source string
		dir    string
		langs  []string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create .lokat.yaml and a starter catalog",
		Long: `Write .lokat.yaml (unless it exists) and make sure the translations
directory exists. An empty directory is seeded with a small source
language file; existing language files are never touched.

Examples:
  lokat init
  lokat init --source en --dir src/locales --lang de,fr,ja`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject()
			if err != nil {
				return err
			}

			changed := false
			if source != "" {
				p.cfg.SourceLang = source
				p.store.SourceLanguage = source
				changed = true
			}
			if dir != "" {
				p.cfg.TranslationsDir = dir
				p.store.Dir = dir
				changed = true
			}
			if len(langs) > 0 {
				p.cfg.Languages = langs
				changed = true
			}
			if !p.hasCfg || changed {
				if err := p.cfg.Save(p.root); err != nil {
					return err
				}
				logSuccess("Wrote %s", filepath.Join(p.root, config.FileName))
			}

			created, err := p.store.EnsureDirectory()
			if err != nil {
				return err
			}
			seeded, err := p.store.Seed(p.cfg.SourceLang)
			if err != nil {
				return err
			}
			if seeded {
				logSuccess("Created %s with starter keys", filepath.Join(created, p.cfg.SourceLang+".json"))
			} else {
				logInfo("%s already has language files", created)
			}

			for _, l := range langs {
				if l == p.cfg.SourceLang {
					continue
				}
				ok, err := p.store.AddLanguageFile(l)
				if err != nil {
					return err
				}
				if ok {
					logSuccess("Created %s.json", l)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Source language (default: en)")
	cmd.Flags().StringVar(&dir, "dir", "", "Translations directory, relative to the project root")
	cmd.Flags().StringSliceVar(&langs, "lang", nil, "Active languages (comma-separated)")
	return cmd
}

// ---------------------------------------------------------------------------
// add-key / add-lang / set
// ---------------------------------------------------------------------------

func newAddKeyCmd() *cobra.Command {
	var (
		doTranslate bool
		pf          providerFlags
	)

	cmd := &cobra.Command{
		Use:   "add-key KEY [VALUE]",
		Short: "Add a key to every language file",
		Long: `Add KEY to every language file. The source language receives VALUE,
all other languages an empty string. Files that already hold the key are
left untouched.

With --translate the new key is translated into every active language
right away.

Examples:
  lokat add-key menu.open "Open"
  lokat add-key menu.save "Save" --translate --provider groq`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := ""
			if len(args) > 1 {
				value = args[1]
			}

			p, err := openProject()
			if err != nil {
				return err
			}

			if doTranslate {
				return addKeyAndTranslate(cmd.Context(), p, pf, key, value)
			}

			source := p.cfg.SourceLang
			if cat, err := p.store.Load(); err == nil && cat.SourceLanguage != "" {
				source = cat.SourceLanguage
			}
			existed, err := p.store.AddKey(key, source, value)
			if err != nil {
				return err
			}
			if existed {
				return fmt.Errorf("%w: %s", batch.ErrDuplicateKey, key)
			}
			logSuccess("Added %s", key)
			return nil
		},
	}

	cmd.Flags().BoolVar(&doTranslate, "translate", false, "Translate the new key into every active language")
	addProviderFlags(cmd, &pf)
	return cmd
}

func addKeyAndTranslate(ctx context.Context, p *project, pf providerFlags, key, value string) error {
	sess, _, err := newTranslateSession(p, pf, false)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if err := reportResponses(sess.Execute(ctx, session.Command{Type: session.CmdLoad})); err != nil {
		return err
	}
	rs := sess.Execute(ctx, session.Command{Type: session.CmdAddKeyAndTranslate, Key: key, Value: value})
	if err := reportResponses(rs); err != nil {
		return err
	}
	logSuccess("Added %s", key)
	return nil
}

func newAddLangCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-lang CODE...",
		Short: "Add an empty language file",
		Long: `Create an empty <code>.json for each language code. Existing files are
left untouched.

Examples:
  lokat add-lang de
  lokat add-lang pt-BR zh-TW`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject()
			if err != nil {
				return err
			}
			var existing []string
			if cat, err := p.store.Load(); err == nil {
				existing = cat.LanguageCodes()
			}

			for _, code := range args {
				if other := sameBaseLanguage(existing, code); other != "" {
					logWarning("%s and %s are variants of the same language", code, other)
				}
				created, err := p.store.AddLanguageFile(code)
				if err != nil {
					return err
				}
				if created {
					logSuccess("Created %s.json (%s)", code, langmeta.DisplayName(code))
					existing = append(existing, code)
				} else {
					logInfo("%s.json already exists", code)
				}
			}
			return nil
		},
	}
}

// sameBaseLanguage returns an existing code that normalizes like code.
func sameBaseLanguage(existing []string, code string) string {
	base := langmeta.Normalize(code)
	for _, c := range existing {
		if c != code && langmeta.Normalize(c) == base {
			return c
		}
	}
	return ""
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY LANG VALUE",
		Short: "Set one value",
		Long: `Set the value of KEY in language LANG. The key and the language must
already exist in the catalog.

Example:
  lokat set menu.open de "Öffnen"`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject()
			if err != nil {
				return err
			}
			sess := session.New(p.store, &batch.Runner{Logger: p.log}, p.cfg, nil)

			ctx := cmd.Context()
			if err := reportResponses(sess.Execute(ctx, session.Command{Type: session.CmdLoad})); err != nil {
				return err
			}
			rs := sess.Execute(ctx, session.Command{
				Type:     session.CmdUpdateValue,
				Key:      args[0],
				Language: args[1],
				Value:    args[2],
			})
			if err := reportResponses(rs); err != nil {
				return err
			}
			if err := sess.Close(); err != nil {
				return err
			}
			logSuccess("%s [%s] = %q", args[0], args[1], args[2])
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// translate
// ---------------------------------------------------------------------------

// providerFlags are shared by every command that talks to a provider.
type providerFlags struct {
	provider   string
	apiKey     string
	model      string
	baseURL    string
	proxy      string
	timeout    time.Duration
	maxRetries int
}

func addProviderFlags(cmd *cobra.Command, pf *providerFlags) {
	cmd.Flags().StringVar(&pf.provider, "provider", "", "AI provider: openai, anthropic, google, groq, ollama, custom-openai")
	cmd.Flags().StringVar(&pf.model, "model", "", "Model name (default: provider default)")
	cmd.Flags().StringVar(&pf.apiKey, "api-key", "", "API key (or "+settings.EnvAPIKey+" env var)")
	cmd.Flags().StringVar(&pf.baseURL, "base-url", "", "Custom API base URL")
	cmd.Flags().StringVar(&pf.proxy, "proxy", "", "HTTP/HTTPS proxy URL")
	cmd.Flags().DurationVar(&pf.timeout, "timeout", 0, "Request timeout (0 = provider default)")
	cmd.Flags().IntVar(&pf.maxRetries, "max-retries", 0, "Maximum retries on rate limits and server errors (0 = config)")

	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var out []string
		for _, p := range allProviders {
			out = append(out, p.id+"\t"+p.desc)
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	})
}

func newTranslateCmd() *cobra.Command {
	var (
		pf        providerFlags
		langs     []string
		key       string
		keepGoing bool
		yes       bool
		stale     bool
		dryRun    bool
		delay     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate missing values using AI",
		Long: `Translate every missing value of the active languages, one value at a
time with a pause between requests. Shows a token and cost estimate
first and asks for confirmation unless --yes is given.

The run stops at the first failed value; values translated before it
stay written. Use --keep-going to skip failures instead.

Examples:
  # Translate all missing values with the configured provider
  lokat translate

  # Only German and French, using Groq
  lokat translate --provider groq --lang de,fr

  # One key into every language where it is missing
  lokat translate --key menu.open

  # Re-translate values whose source text changed since they were translated
  lokat translate --stale

  # Show what would be translated
  lokat translate --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd.Context(), translateArgs{
				pf: pf, langs: langs, key: key, keepGoing: keepGoing,
				yes: yes, stale: stale, dryRun: dryRun, delay: delay,
			})
		},
	}

	addProviderFlags(cmd, &pf)
	cmd.Flags().StringSliceVar(&langs, "lang", nil, "Languages to translate (comma-separated, default: config or all)")
	cmd.Flags().StringVar(&key, "key", "", "Translate only this key")
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "Skip failed values instead of stopping")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	cmd.Flags().BoolVar(&stale, "stale", false, "Re-translate values whose source text changed")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be translated without calling AI")
	cmd.Flags().DurationVar(&delay, "request-delay", 0, "Pause between requests (0 = config)")
	return cmd
}

type translateArgs struct {
	pf        providerFlags
	langs     []string
	key       string
	keepGoing bool
	yes       bool
	stale     bool
	dryRun    bool
	delay     time.Duration
}

func runTranslate(ctx context.Context, a translateArgs) error {
	p, err := openProject()
	if err != nil {
		return err
	}
	if len(a.langs) > 0 {
		p.cfg.Languages = a.langs
	}
	if a.delay > 0 {
		p.cfg.RequestDelay = config.Duration(a.delay)
	}

	sess, lock, err := newTranslateSession(p, a.pf, a.keepGoing)
	if err != nil && !a.dryRun {
		return err
	}
	if sess == nil {
		return err
	}
	defer sess.Close()

	if err := reportResponses(sess.Execute(ctx, session.Command{Type: session.CmdLoad})); err != nil {
		return err
	}
	cat := sess.Catalog()
	if !cat.Status.OK() {
		return errors.New(cat.Status.Message)
	}

	state := sess.State()
	var jobs []batch.Job
	switch {
	case a.stale:
		jobs = batch.CollectStaleJobs(cat, state.Active, state.Source(), lock)
	case a.key != "":
		if !cat.HasKey(a.key) {
			return fmt.Errorf("%w: %s", session.ErrUnknownKey, a.key)
		}
		jobs = batch.CollectKeyJobs(cat, a.key, state.Active, state.Source())
	default:
		jobs = batch.CollectJobs(cat, state.Active, state.Source())
	}
	if len(jobs) == 0 {
		logInfo("%s", i18n.T("Nothing to translate."))
		return nil
	}

	printEstimate(batch.Estimate(jobs, state.Model))
	if a.dryRun {
		for _, j := range jobs {
			fmt.Fprintf(os.Stderr, "  %-6s %s\n", j.TargetLang, j.Key)
		}
		return nil
	}
	if !a.yes && !confirm(i18n.T("Continue?")) {
		logInfo("%s", i18n.T("Cancelled."))
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	bar := newProgressBar(len(jobs))
	sess.Emit = func(r session.Response) {
		if r.Type == session.RespProgress {
			_ = bar.Set(r.Done)
		}
	}

	var cmd session.Command
	switch {
	case a.stale:
		cmd = session.Command{Type: session.CmdRunJobs, Jobs: jobs}
	case a.key != "":
		cmd = session.Command{Type: session.CmdTranslateKey, Key: a.key}
	default:
		cmd = session.Command{Type: session.CmdTranslateAll}
	}
	rs := sess.Execute(ctx, cmd)
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	runErr := reportResponses(rs)
	if sum, ok := lastSummary(rs); ok && sum.Usage.Total() > 0 {
		logInfo("Tokens used: %d (%s), run %s", sum.Usage.Total(), sum.Usage.Model, sum.RunID)
	}
	return runErr
}

// newTranslateSession resolves the provider and wires a session with a
// runner, the project lock file and the user's usage report. With a
// provider error the session is still returned for dry runs.
func newTranslateSession(p *project, pf providerFlags, keepGoing bool) (*session.Session, *lockfile.LockFile, error) {
	prov, err := resolveProvider(p.cfg, pf)
	if err != nil {
		return nil, nil, err
	}
	p.cfg.Model = prov.Model
	provErr := prov.Validate()
	if provErr != nil {
		provErr = providerHint(prov, provErr)
	}

	if pf.maxRetries > 0 {
		p.cfg.MaxRetries = pf.maxRetries
	}
	client := translate.NewClient(prov)
	client.MaxRetries = p.cfg.MaxRetries
	client.Logger = p.log

	lock, err := lockfile.Load(p.root)
	if err != nil {
		logWarning("%v", err)
		lock = lockfile.New(p.root)
	}

	runner := &batch.Runner{
		Translator: client,
		Lock:       lock,
		Delay:      p.cfg.Delay(),
		Logger:     p.log,
	}
	if keepGoing {
		runner.Policy = batch.PolicySkip
	}

	report, path := loadUsage()
	sess := session.New(p.store, runner, p.cfg, report)
	sess.UsagePath = path
	return sess, lock, provErr
}

func resolveProvider(cfg *config.File, pf providerFlags) (translate.Provider, error) {
	id := cfg.Provider
	if pf.provider != "" {
		id = pf.provider
	}
	prov, ok := translate.LookupProvider(strings.ToLower(id))
	if !ok {
		ids := make([]string, len(allProviders))
		for i, p := range allProviders {
			ids[i] = p.id
		}
		return prov, fmt.Errorf("unknown provider %q (available: %s)", id, strings.Join(ids, ", "))
	}

	pick := func(flag, file string) string {
		if flag != "" {
			return flag
		}
		return file
	}
	if m := pick(pf.model, cfg.Model); m != "" {
		prov.Model = m
	}
	if u := pick(pf.baseURL, cfg.BaseURL); u != "" {
		prov.BaseURL = u
	} else if c := settings.Get(prov.ID); c != nil && c.BaseURL != "" {
		prov.BaseURL = c.BaseURL
	}
	if x := pick(pf.proxy, cfg.Proxy); x != "" {
		prov.Proxy = x
	}
	if pf.timeout > 0 {
		prov.Timeout = pf.timeout
	} else if t := cfg.RequestTimeout(); t > 0 {
		prov.Timeout = t
	}
	prov.APIKey = settings.ResolveAPIKey(pf.apiKey, prov.ID)
	return prov, nil
}

func providerHint(prov translate.Provider, err error) error {
	if errors.Is(err, translate.ErrMissingAPIKey) {
		return fmt.Errorf("%w\n\n"+
			"Option 1: Store your API key:\n"+
			"  lokat auth login --provider %s\n\n"+
			"Option 2: Pass key directly:\n"+
			"  --api-key YOUR_KEY or export %s=YOUR_KEY", err, prov.ID, settings.EnvAPIKey)
	}
	if prov.ID == translate.ProviderCustomOpenAI {
		return fmt.Errorf("%w\n\n"+
			"Configure the endpoint:\n"+
			"  lokat auth login --provider custom-openai\n"+
			"or pass --base-url https://api.example.com/v1", err)
	}
	return err
}

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", i18n.T("Translating"))),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

func confirm(label string) bool {
	prompt := promptui.Prompt{Label: label, IsConfirm: true}
	_, err := prompt.Run()
	return err == nil
}

// reportResponses prints status messages and joins error responses.
func reportResponses(rs []session.Response) error {
	var errs []error
	for _, r := range rs {
		switch r.Type {
		case session.RespStatus:
			if r.Message != "" {
				logInfo("%s", i18n.T(r.Message))
			}
		case session.RespError:
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

func lastSummary(rs []session.Response) (batch.Summary, bool) {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i].Type == session.RespStatus && rs[i].Summary.Total > 0 {
			return rs[i].Summary, true
		}
	}
	return batch.Summary{}, false
}

// ---------------------------------------------------------------------------
// estimate
// ---------------------------------------------------------------------------

func newEstimateCmd() *cobra.Command {
	var (
		key   string
		model string
		langs []string
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate tokens and cost of a translation run",
		Long: `Count the missing values and estimate the tokens and cost of
translating them. No request is sent. The cost is "unknown" for models
without a known price.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject()
			if err != nil {
				return err
			}
			if model != "" {
				p.cfg.Model = model
			}
			if len(langs) > 0 {
				p.cfg.Languages = langs
			}

			sess := session.New(p.store, &batch.Runner{Logger: p.log}, p.cfg, nil)
			ctx := cmd.Context()
			if err := reportResponses(sess.Execute(ctx, session.Command{Type: session.CmdLoad})); err != nil {
				return err
			}
			if cat := sess.Catalog(); !cat.Status.OK() {
				return errors.New(cat.Status.Message)
			}
			for _, r := range sess.Execute(ctx, session.Command{Type: session.CmdEstimate, Key: key}) {
				switch r.Type {
				case session.RespEstimate:
					printEstimate(r.Estimate)
				case session.RespError:
					return r.Err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Estimate only this key")
	cmd.Flags().StringVar(&model, "model", "", "Model to price (default: config or provider default)")
	cmd.Flags().StringSliceVar(&langs, "lang", nil, "Languages to include (comma-separated)")
	return cmd
}

func printEstimate(est estimate.Summary) {
	fmt.Fprintf(os.Stderr, "\n%s\n", blue(i18n.T("Estimated cost")))
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "  "+i18n.N("%d job", "%d jobs", est.Jobs)+"\n", est.Jobs)
	fmt.Fprintf(os.Stderr, "  Tokens:  ~%d prompt + ~%d completion = ~%d\n",
		est.PromptTokens, est.CompletionTokens, est.TotalTokens())
	fmt.Fprintf(os.Stderr, "  Model:   %s\n", est.Model)
	fmt.Fprintf(os.Stderr, "  Cost:    %s\n\n", formatCost(est))
}

func formatCost(est estimate.Summary) string {
	if !est.CostKnown {
		return i18n.T("unknown")
	}
	return fmt.Sprintf("$%.4f", est.Cost)
}

// ---------------------------------------------------------------------------
// usage
// ---------------------------------------------------------------------------

func loadUsage() (*usage.Report, string) {
	path, err := settings.UsagePath()
	if err != nil {
		logWarning("Usage will not be saved: %v", err)
		return usage.New(), ""
	}
	report, err := usage.Load(path)
	if err != nil {
		logWarning("Starting a new usage report: %v", err)
		return usage.New(), path
	}
	return report, path
}

func newUsageCmd() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show accumulated token usage",
		Long: `Show the tokens used by all translation runs, per model and per
language. --reset clears the report.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := settings.UsagePath()
			if err != nil {
				return err
			}
			if reset {
				if err := usage.New().Save(path); err != nil {
					return err
				}
				logSuccess("Usage report cleared")
				return nil
			}

			report, err := usage.Load(path)
			if err != nil {
				return err
			}
			printUsage(report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Clear the usage report")
	return cmd
}

func printUsage(r *usage.Report) {
	fmt.Fprintf(os.Stderr, "\n%s\n", blue("Token Usage"))
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "  Requests:    %d\n", r.Requests)
	fmt.Fprintf(os.Stderr, "  Total:       %d (prompt %d, completion %d)\n", r.TotalTokens, r.PromptTokens, r.CompletionTokens)
	if r.LastUpdated != nil {
		fmt.Fprintf(os.Stderr, "  Updated:     %s\n", r.LastUpdated.Local().Format(time.DateTime))
	}

	if len(r.PerModel) > 0 {
		fmt.Fprintf(os.Stderr, "\n  %s\n", yellow("Per model"))
		models := make([]string, 0, len(r.PerModel))
		for m := range r.PerModel {
			models = append(models, m)
		}
		sort.Strings(models)
		for _, m := range models {
			fmt.Fprintf(os.Stderr, "  %-28s %d\n", m, r.PerModel[m])
		}
	}

	if len(r.PerLanguage) > 0 {
		fmt.Fprintf(os.Stderr, "\n  %s\n", yellow("Per language"))
		langs := make([]string, 0, len(r.PerLanguage))
		for l := range r.PerLanguage {
			langs = append(langs, l)
		}
		langmeta.Sort(langs)
		for _, l := range langs {
			fmt.Fprintf(os.Stderr, "  %-28s %d\n", l, r.PerLanguage[l])
		}
	}
	fmt.Fprintln(os.Stderr)
}
