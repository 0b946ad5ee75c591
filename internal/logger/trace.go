package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

// The trace stream is a second, optional log that receives full prediction
// payloads (inputs, margin, attribution). It stays silent until a writer is set.
var (
	traceMu  sync.Mutex
	traceLog *log.Logger
)

func SetTraceWriter(w io.Writer) {
	traceMu.Lock()
	defer traceMu.Unlock()
	if w == nil {
		traceLog = nil
		return
	}
	traceLog = log.New(w, "", log.LstdFlags)
}

// TraceEnabled reports whether a trace writer is installed.
func TraceEnabled() bool {
	traceMu.Lock()
	defer traceMu.Unlock()
	return traceLog != nil
}

// TraceSection is one titled block of a trace entry.
type TraceSection struct {
	Title string
	Body  string
}

// Trace writes one entry tagged with kind and variant.
func Trace(kind, variant string, sections ...TraceSection) {
	traceMu.Lock()
	l := traceLog
	traceMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[PREDICT]")
	for _, tag := range []string{kind, variant} {
		if tag == "" {
			continue
		}
		b.WriteString("[")
		b.WriteString(tag)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(t)
		b.WriteString(" ---\n")
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	l.Print(b.String())
}
