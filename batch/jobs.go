// Package batch drives missing translations through a provider one job at
// a time and writes each result back to the catalog.
package batch

import (
	"github.com/minios-linux/lokat/catalog"
	"github.com/minios-linux/lokat/langmeta"
	"github.com/minios-linux/lokat/lockfile"
)

// Job is one (key, target language) pair to translate.
type Job struct {
	Key        string
	SourceLang string
	SourceText string
	TargetLang string
}

// JobState tracks a job through a run.
type JobState int

const (
	JobPending JobState = iota
	JobInFlight
	JobSucceeded
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobInFlight:
		return "in-flight"
	case JobSucceeded:
		return "succeeded"
	case JobFailed:
		return "failed"
	}
	return "unknown"
}

// targets returns the active languages minus source, in registry order.
// An empty active set means every catalog language. Active languages without
// a file yet are kept; their values read as blank.
func targets(cat *catalog.Catalog, active []string, source string) []string {
	langs := cat.LanguageCodes()
	if len(active) > 0 {
		langs = langmeta.Dedupe(active)
	}

	out := langs[:0:0]
	for _, code := range langs {
		if code != source {
			out = append(out, code)
		}
	}
	langmeta.Sort(out)
	return out
}

// CollectJobs lists every (key, language) pair whose target value is blank
// while the source value is not. Keys follow catalog order; within a key,
// languages follow registry order.
func CollectJobs(cat *catalog.Catalog, active []string, source string) []Job {
	langs := targets(cat, active, source)
	var jobs []Job
	for _, k := range cat.Keys {
		jobs = append(jobs, keyJobs(cat, k.ID, langs, source)...)
	}
	return jobs
}

// CollectKeyJobs is CollectJobs restricted to one key.
func CollectKeyJobs(cat *catalog.Catalog, key string, active []string, source string) []Job {
	if !cat.HasKey(key) {
		return nil
	}
	return keyJobs(cat, key, targets(cat, active, source), source)
}

func keyJobs(cat *catalog.Catalog, key string, langs []string, source string) []Job {
	src := cat.Value(key, source)
	if catalog.IsBlank(src) {
		return nil
	}
	var jobs []Job
	for _, lang := range langs {
		if catalog.IsBlank(cat.Value(key, lang)) {
			jobs = append(jobs, Job{Key: key, SourceLang: source, SourceText: src, TargetLang: lang})
		}
	}
	return jobs
}

// CollectStaleJobs lists translated pairs whose recorded source text no
// longer matches the current source value.
func CollectStaleJobs(cat *catalog.Catalog, active []string, source string, lock *lockfile.LockFile) []Job {
	if lock == nil {
		return nil
	}
	langs := targets(cat, active, source)
	var jobs []Job
	for _, k := range cat.Keys {
		src := cat.Value(k.ID, source)
		if catalog.IsBlank(src) {
			continue
		}
		for _, lang := range langs {
			if catalog.IsBlank(cat.Value(k.ID, lang)) {
				continue
			}
			if lock.IsStale(lang, k.ID, src) {
				jobs = append(jobs, Job{Key: k.ID, SourceLang: source, SourceText: src, TargetLang: lang})
			}
		}
	}
	return jobs
}
