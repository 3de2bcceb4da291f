package config

import "slices"

// ConfigDiff lists the differences between two configs that can be applied
// to a running process. Anything it does not cover (model, capture platform,
// listen address) takes a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VocabularyChanged bool
	NewVocabulary     []string
	VocabFileChanged  bool
}

// Changed reports whether the diff carries any reloadable change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.VocabularyChanged || d.VocabFileChanged
}

// Diff computes the hot-reloadable differences between old and new.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Refine.Vocabulary, new.Refine.Vocabulary) {
		d.VocabularyChanged = true
		d.NewVocabulary = new.Refine.Vocabulary
	}

	// A changed vocab file path means the file must be re-read even though
	// the inline vocabulary is identical.
	if old.Refine.VocabFile != new.Refine.VocabFile {
		d.VocabFileChanged = true
	}

	return d
}
