package config

import "fmt"

// ModelSize identifies one of the published ggml whisper model builds.
type ModelSize string

const (
	ModelTiny    ModelSize = "tiny"
	ModelTinyEN  ModelSize = "tiny.en"
	ModelBase    ModelSize = "base"
	ModelBaseEN  ModelSize = "base.en"
	ModelSmall   ModelSize = "small"
	ModelSmallEN ModelSize = "small.en"
)

// DefaultModelSize is used when neither a size nor an explicit URL is
// configured.
const DefaultModelSize = ModelBaseEN

// modelBytes holds the approximate published download size of each build.
// The values feed progress reporting when the server omits Content-Length.
var modelBytes = map[ModelSize]int64{
	ModelTiny:    75 << 20,
	ModelTinyEN:  75 << 20,
	ModelBase:    142 << 20,
	ModelBaseEN:  142 << 20,
	ModelSmall:   466 << 20,
	ModelSmallEN: 466 << 20,
}

// modelLocator is the download template for published whisper.cpp builds.
const modelLocator = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-%s.bin"

// IsValid reports whether s names a published model build.
func (s ModelSize) IsValid() bool {
	_, ok := modelBytes[s]
	return ok
}

// ExpectedBytes returns the approximate download size for s, or 0 when s is
// not a published build.
func (s ModelSize) ExpectedBytes() int64 {
	return modelBytes[s]
}

// Resolve returns the model download locator and the expected transfer size.
// An explicit URL wins over the size-derived locator; the catalog size hint
// still applies so progress reporting works against servers that omit
// Content-Length.
func (m ModelConfig) Resolve() (locator string, expectedSize int64) {
	size := m.Size
	if size == "" {
		size = DefaultModelSize
	}
	expectedSize = modelBytes[size]
	if m.URL != "" {
		return m.URL, expectedSize
	}
	return fmt.Sprintf(modelLocator, size), expectedSize
}
