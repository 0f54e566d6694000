package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/minios-linux/lokat/batch"
	"github.com/minios-linux/lokat/catalog"
	"github.com/minios-linux/lokat/coalesce"
	"github.com/minios-linux/lokat/config"
	"github.com/minios-linux/lokat/translate"
	"github.com/minios-linux/lokat/usage"
)

type mockTranslator struct {
	mock.Mock
}

func (m *mockTranslator) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	args := m.Called(req.Key, req.TargetLang)
	return args.Get(0).(translate.Result), args.Error(1)
}

func reply(text string, total int) translate.Result {
	return translate.Result{Text: text, Usage: usage.Usage{PromptTokens: total - 2, CompletionTokens: 2, TotalTokens: total, Model: "test-model"}}
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, "locales", name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func newSession(t *testing.T, files map[string]string) (*Session, *mockTranslator) {
	t.Helper()
	root := writeFiles(t, files)
	tr := &mockTranslator{}
	runner := &batch.Runner{Translator: tr, Delay: -1}
	s := New(&catalog.Store{Root: root}, runner, config.Default(), usage.New())
	s.Writes = coalesce.New(time.Hour, func(c Cell, v string) error {
		return s.Store.WriteCell(c.Lang, c.Key, v)
	})
	t.Cleanup(func() { _ = s.Close() })
	return s, tr
}

func types(rs []Response) []ResponseType {
	out := make([]ResponseType, len(rs))
	for i, r := range rs {
		out[i] = r.Type
	}
	return out
}

func findErr(rs []Response) error {
	for _, r := range rs {
		if r.Type == RespError {
			return r.Err
		}
	}
	return nil
}

func loadedState(t *testing.T, files map[string]string) State {
	t.Helper()
	root := writeFiles(t, files)
	cat, err := (&catalog.Store{Root: root, SourceLanguage: "en"}).Load()
	require.NoError(t, err)
	return State{Catalog: cat, SourcePreference: "en", Model: "gpt-4o-mini"}
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

func TestDispatch_UpdateValueLeavesStateUntouched(t *testing.T) {
	state := loadedState(t, map[string]string{
		"en.json": `{"a": "Hello"}`,
		"de.json": `{}`,
	})

	next, effects := Dispatch(state, Command{Type: CmdUpdateValue, Key: "a", Language: "de", Value: "Hallo"})

	assert.Equal(t, "", state.Catalog.Value("a", "de"))
	assert.Equal(t, "Hallo", next.Catalog.Value("a", "de"))
	require.Len(t, effects, 2)
	assert.Equal(t, Effect{Type: EffWrite, Key: "a", Language: "de", Value: "Hallo"}, effects[0])
	assert.Equal(t, RespValue, effects[1].Response.Type)
}

func TestDispatch_Errors(t *testing.T) {
	state := loadedState(t, map[string]string{"en.json": `{"a": "Hello"}`})

	cases := []struct {
		name  string
		state State
		cmd   Command
		want  error
	}{
		{"no catalog", State{}, Command{Type: CmdSetSource, Language: "en"}, ErrNoCatalog},
		{"unknown key", state, Command{Type: CmdUpdateValue, Key: "zz", Language: "en"}, ErrUnknownKey},
		{"unknown language", state, Command{Type: CmdUpdateValue, Key: "a", Language: "fr"}, ErrUnknownLanguage},
		{"unknown source", state, Command{Type: CmdSetSource, Language: "fr"}, ErrUnknownLanguage},
		{"duplicate key", state, Command{Type: CmdAddKey, Key: "a"}, batch.ErrDuplicateKey},
		{"empty key", state, Command{Type: CmdAddKeyAndTranslate}, ErrInvalidCommand},
		{"unknown command", state, Command{Type: CommandType(99)}, ErrInvalidCommand},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, effects := Dispatch(tc.state, tc.cmd)
			require.Len(t, effects, 1)
			assert.Equal(t, RespError, effects[0].Response.Type)
			assert.ErrorIs(t, effects[0].Response.Err, tc.want)
		})
	}
}

func TestDispatch_TranslateAllCollectsJobs(t *testing.T) {
	state := loadedState(t, map[string]string{
		"en.json": `{"a": "Hello", "b": "World"}`,
		"ru.json": `{}`,
		"de.json": `{"a": "Hallo"}`,
	})

	_, effects := Dispatch(state, Command{Type: CmdTranslateAll})
	require.Len(t, effects, 3)
	assert.Equal(t, EffFlush, effects[0].Type)
	assert.Equal(t, EffRunJobs, effects[1].Type)
	assert.Equal(t, EffLoad, effects[2].Type)

	var got [][2]string
	for _, j := range effects[1].Jobs {
		got = append(got, [2]string{j.Key, j.TargetLang})
	}
	assert.Equal(t, [][2]string{{"a", "ru"}, {"b", "ru"}, {"b", "de"}}, got)
}

func TestDispatch_NothingToTranslate(t *testing.T) {
	state := loadedState(t, map[string]string{
		"en.json": `{"a": "Hello"}`,
		"de.json": `{"a": "Hallo"}`,
	})

	_, effects := Dispatch(state, Command{Type: CmdTranslateAll})
	require.Len(t, effects, 1)
	assert.Equal(t, RespStatus, effects[0].Response.Type)
	assert.Equal(t, "Nothing to translate.", effects[0].Response.Message)
}

func TestDispatch_Estimate(t *testing.T) {
	state := loadedState(t, map[string]string{
		"en.json": `{"a": "Hello", "b": "World"}`,
		"de.json": `{}`,
	})

	_, effects := Dispatch(state, Command{Type: CmdEstimate})
	require.Len(t, effects, 1)
	est := effects[0].Response.Estimate
	assert.Equal(t, 2, est.Jobs)
	assert.True(t, est.CostKnown)

	_, effects = Dispatch(state, Command{Type: CmdEstimate, Key: "a"})
	assert.Equal(t, 1, effects[0].Response.Estimate.Jobs)
}

// ---------------------------------------------------------------------------
// Execute
// ---------------------------------------------------------------------------

func TestExecute_LoadAndCoalescedEdit(t *testing.T) {
	s, _ := newSession(t, map[string]string{
		"en.json": `{"a": "Hello"}`,
		"de.json": `{}`,
	})
	ctx := context.Background()

	rs := s.Execute(ctx, Command{Type: CmdLoad})
	assert.Equal(t, []ResponseType{RespCatalog}, types(rs))
	require.NotNil(t, s.Catalog())

	s.Execute(ctx, Command{Type: CmdUpdateValue, Key: "a", Language: "de", Value: "Hal"})
	rs = s.Execute(ctx, Command{Type: CmdUpdateValue, Key: "a", Language: "de", Value: "Hallo"})
	assert.Nil(t, findErr(rs))
	assert.Equal(t, 1, s.Writes.Pending())
	assert.Equal(t, "Hallo", s.Catalog().Value("a", "de"))

	path := filepath.Join(s.Store.Root, "locales", "de.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))

	s.Execute(ctx, Command{Type: CmdFlush})
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": \"Hallo\"\n}\n", string(data))
}

func TestExecute_TranslateAll(t *testing.T) {
	s, tr := newSession(t, map[string]string{
		"en.json": `{"a": "Hello", "b": "World"}`,
		"de.json": `{"a": "Hallo"}`,
	})
	s.UsagePath = filepath.Join(t.TempDir(), "usage.json")
	tr.On("Translate", "b", "de").Return(reply("Welt", 10), nil).Once()

	var streamed []ResponseType
	s.Emit = func(r Response) { streamed = append(streamed, r.Type) }

	ctx := context.Background()
	s.Execute(ctx, Command{Type: CmdLoad})
	rs := s.Execute(ctx, Command{Type: CmdTranslateAll})

	assert.Equal(t, []ResponseType{RespUsage, RespProgress, RespStatus, RespCatalog}, types(rs))
	assert.Nil(t, findErr(rs))
	assert.Equal(t, "Welt", s.Catalog().Value("b", "de"))
	assert.Equal(t, 10, s.Usage.TotalTokens)
	assert.Equal(t, 10, s.Usage.PerLanguage["de"])
	assert.FileExists(t, s.UsagePath)
	assert.Contains(t, streamed, RespProgress)
	tr.AssertExpectations(t)
}

func TestExecute_TranslateAllStopsAtFailure(t *testing.T) {
	s, tr := newSession(t, map[string]string{
		"en.json": `{"a": "A", "b": "B", "c": "C"}`,
		"de.json": `{}`,
	})
	tr.On("Translate", "a", "de").Return(reply("Ah", 5), nil).Once()
	tr.On("Translate", "b", "de").Return(translate.Result{}, &translate.APIError{Status: 500, Body: "down"}).Once()

	ctx := context.Background()
	s.Execute(ctx, Command{Type: CmdLoad})
	rs := s.Execute(ctx, Command{Type: CmdTranslateAll})

	err := findErr(rs)
	require.Error(t, err)
	assert.ErrorIs(t, err, batch.ErrTranslationFailed)
	var jerr *batch.JobError
	require.ErrorAs(t, err, &jerr)
	assert.Equal(t, 1, jerr.Index)

	assert.Equal(t, "Ah", s.Catalog().Value("a", "de"))
	assert.Equal(t, "", s.Catalog().Value("c", "de"))
	tr.AssertNotCalled(t, "Translate", "c", "de")
}

func TestExecute_TranslateKeyReturnsOpenValue(t *testing.T) {
	s, tr := newSession(t, map[string]string{
		"en.json": `{"a": "Hello"}`,
		"de.json": `{}`,
		"fr.json": `{}`,
	})
	tr.On("Translate", "a", "fr").Return(reply("Bonjour", 4), nil).Once()
	tr.On("Translate", "a", "de").Return(reply("Hallo", 4), nil).Once()

	ctx := context.Background()
	s.Execute(ctx, Command{Type: CmdLoad})
	rs := s.Execute(ctx, Command{Type: CmdTranslateKey, Key: "a", Language: "de"})

	var value *Response
	for i := range rs {
		if rs[i].Type == RespValue {
			value = &rs[i]
		}
	}
	require.NotNil(t, value)
	assert.Equal(t, "Hallo", value.Value)
	assert.Equal(t, "Bonjour", s.Catalog().Value("a", "fr"))
}

func TestExecute_AddKeyAndTranslate(t *testing.T) {
	s, tr := newSession(t, map[string]string{
		"en.json": `{"a": "Hello"}`,
		"de.json": `{"a": "Hallo"}`,
	})
	tr.On("Translate", "bye", "de").Return(reply("Tschüss", 6), nil).Once()

	ctx := context.Background()
	s.Execute(ctx, Command{Type: CmdLoad})
	rs := s.Execute(ctx, Command{Type: CmdAddKeyAndTranslate, Key: "bye", Value: "Bye"})
	assert.Nil(t, findErr(rs))
	assert.Equal(t, "Bye", s.Catalog().Value("bye", "en"))
	assert.Equal(t, "Tschüss", s.Catalog().Value("bye", "de"))

	rs = s.Execute(ctx, Command{Type: CmdAddKeyAndTranslate, Key: "bye", Value: "Other"})
	assert.ErrorIs(t, findErr(rs), batch.ErrDuplicateKey)
	assert.Equal(t, "Bye", s.Catalog().Value("bye", "en"))
	tr.AssertExpectations(t)
}

func TestExecute_AddKeyAndLanguage(t *testing.T) {
	s, _ := newSession(t, map[string]string{"en.json": `{}`})
	ctx := context.Background()
	s.Execute(ctx, Command{Type: CmdLoad})

	s.Execute(ctx, Command{Type: CmdAddLanguage, Language: "uk"})
	rs := s.Execute(ctx, Command{Type: CmdAddKey, Key: "menu.open", Value: "Open"})
	assert.Nil(t, findErr(rs))

	cat := s.Catalog()
	assert.Equal(t, []string{"en", "uk"}, cat.LanguageCodes())
	assert.Equal(t, "Open", cat.Value("menu.open", "en"))
	assert.Equal(t, "", cat.Value("menu.open", "uk"))
}

func TestExecute_SetSourcePersists(t *testing.T) {
	s, _ := newSession(t, map[string]string{
		"en.json": `{"a": "Hello"}`,
		"de.json": `{"a": "Hallo"}`,
	})
	ctx := context.Background()
	s.Execute(ctx, Command{Type: CmdLoad})

	rs := s.Execute(ctx, Command{Type: CmdSetSource, Language: "de"})
	assert.Nil(t, findErr(rs))
	assert.Equal(t, "de", s.State().Source())

	cfg, exists, err := config.Load(s.Store.Root)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "de", cfg.SourceLang)

	s.Execute(ctx, Command{Type: CmdLoad})
	assert.Equal(t, "de", s.Catalog().SourceLanguage)
}

func TestExecute_RunJobs(t *testing.T) {
	s, tr := newSession(t, map[string]string{
		"en.json": `{"a": "Hello again"}`,
		"de.json": `{"a": "Hallo"}`,
	})
	tr.On("Translate", "a", "de").Return(reply("Hallo nochmal", 8), nil).Once()

	ctx := context.Background()
	rs := s.Execute(ctx, Command{Type: CmdRunJobs})
	assert.Equal(t, "Nothing to translate.", rs[0].Message)

	s.Execute(ctx, Command{Type: CmdLoad})
	jobs := []batch.Job{{Key: "a", SourceLang: "en", SourceText: "Hello again", TargetLang: "de"}}
	rs = s.Execute(ctx, Command{Type: CmdRunJobs, Jobs: jobs})
	assert.Nil(t, findErr(rs))
	assert.Equal(t, "Hallo nochmal", s.Catalog().Value("a", "de"))
	tr.AssertExpectations(t)
}
