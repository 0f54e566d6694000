// Package session owns one open project: its catalog store, configuration,
// batch runner and usage report. Callers talk to it through commands and
// receive responses; Dispatch decides what a command does and Execute
// carries it out.
package session

import (
	"github.com/minios-linux/lokat/batch"
	"github.com/minios-linux/lokat/catalog"
	"github.com/minios-linux/lokat/estimate"
	"github.com/minios-linux/lokat/usage"
)

// CommandType enumerates the requests a session accepts.
type CommandType int

const (
	CmdLoad CommandType = iota
	CmdUpdateValue
	CmdAddKey
	CmdAddLanguage
	CmdSetSource
	CmdTranslateAll
	CmdTranslateKey
	CmdAddKeyAndTranslate
	CmdEstimate
	CmdFlush
	// CmdRunJobs runs a prepared job list, such as stale translations.
	CmdRunJobs
)

var commandNames = [...]string{
	CmdLoad:               "load",
	CmdUpdateValue:        "update-value",
	CmdAddKey:             "add-key",
	CmdAddLanguage:        "add-language",
	CmdSetSource:          "set-source",
	CmdTranslateAll:       "translate-all",
	CmdTranslateKey:       "translate-key",
	CmdAddKeyAndTranslate: "add-key-and-translate",
	CmdEstimate:           "estimate",
	CmdFlush:              "flush",
	CmdRunJobs:            "run-jobs",
}

func (t CommandType) String() string {
	if int(t) < len(commandNames) {
		return commandNames[t]
	}
	return "unknown"
}

// Command is one request. Only the fields its Type needs are read.
type Command struct {
	Type     CommandType
	Key      string
	Language string
	Value    string
	Jobs     []batch.Job
}

// ResponseType enumerates what a session reports back.
type ResponseType int

const (
	RespCatalog ResponseType = iota
	RespStatus
	RespProgress
	RespUsage
	RespEstimate
	RespValue
	RespError
)

// Response is one message to the caller.
type Response struct {
	Type ResponseType

	// RespCatalog
	Catalog *catalog.Catalog
	// RespStatus
	Message string
	Summary batch.Summary
	// RespProgress
	Done, Total int
	// RespUsage
	Usage *usage.Report
	// RespEstimate
	Estimate estimate.Summary
	// RespValue
	Key, Language, Value string
	// RespError
	Err error
}

// EffectType enumerates the side effects Dispatch can request.
type EffectType int

const (
	EffRespond EffectType = iota
	EffLoad
	EffWrite
	EffFlush
	EffAddKey
	EffAddLanguage
	EffSaveConfig
	EffRunJobs
	EffTranslateKey
	EffAddKeyAndTranslate
)

// Effect is a side effect for Execute to perform.
type Effect struct {
	Type     EffectType
	Key      string
	Language string
	Value    string
	Jobs     []batch.Job
	Response Response
}

// State is everything Dispatch decides on. It is treated as a value.
type State struct {
	Catalog *catalog.Catalog
	// SourcePreference is the configured source language; the effective
	// one is Catalog.SourceLanguage once a catalog is loaded.
	SourcePreference string
	// Active languages; empty means every catalog language.
	Active []string
	// Model used for estimates.
	Model string
}

// Source returns the effective source language.
func (s State) Source() string {
	if s.Catalog != nil && s.Catalog.SourceLanguage != "" {
		return s.Catalog.SourceLanguage
	}
	return s.SourcePreference
}

// ActiveLanguages returns the active set, defaulting to every catalog language.
func (s State) ActiveLanguages() []string {
	if len(s.Active) > 0 || s.Catalog == nil {
		return s.Active
	}
	return s.Catalog.LanguageCodes()
}
