package session

import (
	"errors"
	"fmt"

	"github.com/minios-linux/lokat/batch"
	"github.com/minios-linux/lokat/catalog"
)

var (
	// ErrNoCatalog is returned for commands that need a loaded catalog.
	ErrNoCatalog = errors.New("no catalog loaded")
	// ErrUnknownKey is returned when a command names a key the catalog lacks.
	ErrUnknownKey = errors.New("unknown key")
	// ErrUnknownLanguage is returned when a command names a language the catalog lacks.
	ErrUnknownLanguage = errors.New("unknown language")
	// ErrInvalidCommand is returned for malformed commands.
	ErrInvalidCommand = errors.New("invalid command")
)

func respond(r Response) Effect {
	return Effect{Type: EffRespond, Response: r}
}

func fail(err error) []Effect {
	return []Effect{respond(Response{Type: RespError, Err: err})}
}

// Dispatch maps a command to the next state and the effects that carry it
// out. It performs no I/O and never modifies state's catalog in place.
func Dispatch(state State, cmd Command) (State, []Effect) {
	switch cmd.Type {
	case CmdLoad:
		return state, []Effect{{Type: EffFlush}, {Type: EffLoad}}

	case CmdFlush:
		return state, []Effect{{Type: EffFlush}}

	case CmdUpdateValue:
		if err := requireCell(state, cmd); err != nil {
			return state, fail(err)
		}
		next := state
		next.Catalog = state.Catalog.WithValue(cmd.Key, cmd.Language, cmd.Value)
		return next, []Effect{
			{Type: EffWrite, Key: cmd.Key, Language: cmd.Language, Value: cmd.Value},
			respond(Response{Type: RespValue, Key: cmd.Key, Language: cmd.Language, Value: cmd.Value}),
		}

	case CmdAddKey:
		if cmd.Key == "" {
			return state, fail(fmt.Errorf("%w: empty key", ErrInvalidCommand))
		}
		if state.Catalog != nil && state.Catalog.HasKey(cmd.Key) {
			return state, fail(fmt.Errorf("%w: %s", batch.ErrDuplicateKey, cmd.Key))
		}
		return state, []Effect{
			{Type: EffFlush},
			{Type: EffAddKey, Key: cmd.Key, Language: state.Source(), Value: cmd.Value},
			{Type: EffLoad},
		}

	case CmdAddLanguage:
		if cmd.Language == "" {
			return state, fail(fmt.Errorf("%w: empty language code", ErrInvalidCommand))
		}
		return state, []Effect{
			{Type: EffAddLanguage, Language: cmd.Language},
			{Type: EffLoad},
		}

	case CmdSetSource:
		if state.Catalog == nil {
			return state, fail(ErrNoCatalog)
		}
		if !state.Catalog.HasLanguage(cmd.Language) {
			return state, fail(fmt.Errorf("%w: %s", ErrUnknownLanguage, cmd.Language))
		}
		next := state
		cat := *state.Catalog
		cat.SourceLanguage = cmd.Language
		next.Catalog = &cat
		next.SourcePreference = cmd.Language
		return next, []Effect{
			{Type: EffSaveConfig},
			respond(Response{Type: RespCatalog, Catalog: next.Catalog}),
		}

	case CmdTranslateAll:
		if state.Catalog == nil {
			return state, fail(ErrNoCatalog)
		}
		jobs := batch.CollectJobs(state.Catalog, state.Active, state.Source())
		if len(jobs) == 0 {
			return state, []Effect{respond(Response{Type: RespStatus, Message: "Nothing to translate."})}
		}
		return state, []Effect{
			{Type: EffFlush},
			{Type: EffRunJobs, Jobs: jobs},
			{Type: EffLoad},
		}

	case CmdRunJobs:
		if len(cmd.Jobs) == 0 {
			return state, []Effect{respond(Response{Type: RespStatus, Message: "Nothing to translate."})}
		}
		return state, []Effect{
			{Type: EffFlush},
			{Type: EffRunJobs, Jobs: cmd.Jobs},
			{Type: EffLoad},
		}

	case CmdTranslateKey:
		if state.Catalog == nil {
			return state, fail(ErrNoCatalog)
		}
		if !state.Catalog.HasKey(cmd.Key) {
			return state, fail(fmt.Errorf("%w: %s", ErrUnknownKey, cmd.Key))
		}
		return state, []Effect{
			{Type: EffFlush},
			{Type: EffTranslateKey, Key: cmd.Key, Language: cmd.Language},
			{Type: EffLoad},
		}

	case CmdAddKeyAndTranslate:
		if cmd.Key == "" {
			return state, fail(fmt.Errorf("%w: empty key", ErrInvalidCommand))
		}
		return state, []Effect{
			{Type: EffFlush},
			{Type: EffAddKeyAndTranslate, Key: cmd.Key, Value: cmd.Value},
			{Type: EffLoad},
		}

	case CmdEstimate:
		if state.Catalog == nil {
			return state, fail(ErrNoCatalog)
		}
		var jobs []batch.Job
		if cmd.Key != "" {
			jobs = batch.CollectKeyJobs(state.Catalog, cmd.Key, state.Active, state.Source())
		} else {
			jobs = batch.CollectJobs(state.Catalog, state.Active, state.Source())
		}
		return state, []Effect{respond(Response{Type: RespEstimate, Estimate: batch.Estimate(jobs, state.Model)})}
	}

	return state, fail(fmt.Errorf("%w: %s", ErrInvalidCommand, cmd.Type))
}

// Loaded returns state with a freshly loaded catalog.
func Loaded(state State, cat *catalog.Catalog) State {
	state.Catalog = cat
	return state
}

func requireCell(state State, cmd Command) error {
	if state.Catalog == nil {
		return ErrNoCatalog
	}
	if cmd.Key == "" || cmd.Language == "" {
		return fmt.Errorf("%w: key and language are required", ErrInvalidCommand)
	}
	if !state.Catalog.HasKey(cmd.Key) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, cmd.Key)
	}
	if !state.Catalog.HasLanguage(cmd.Language) {
		return fmt.Errorf("%w: %s", ErrUnknownLanguage, cmd.Language)
	}
	return nil
}
