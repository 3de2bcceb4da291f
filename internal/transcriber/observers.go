package transcriber

// Observers carries the caller-facing event callbacks. Every field is
// optional; nil callbacks are skipped.
//
// Callbacks fire from pipeline goroutines and from inside controller
// operations. They must return promptly and must not call back into the
// [Controller], or the pipeline can deadlock waiting on itself.
type Observers struct {
	// OnTranscription receives the cumulative transcript for the active
	// recording span each time the poller drains new engine output, and once
	// more after StopRecording when the polish pass changed the text.
	OnTranscription func(text string)

	// OnProgress receives integer model transfer percentages, 0 to 100,
	// fired only when the value changes.
	OnProgress func(pct int)

	// OnStatus receives user-visible status lines such as "Recording..." and
	// "Error: <cause>".
	OnStatus func(text string)
}

func (o Observers) transcription(text string) {
	if o.OnTranscription != nil {
		o.OnTranscription(text)
	}
}

func (o Observers) progress(pct int) {
	if o.OnProgress != nil {
		o.OnProgress(pct)
	}
}

func (o Observers) status(text string) {
	if o.OnStatus != nil {
		o.OnStatus(text)
	}
}
