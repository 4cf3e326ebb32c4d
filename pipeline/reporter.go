package pipeline

import (
	"log"
	"sort"
	"strings"
)

// Reporter is the observability sink for pipeline failures. Implementations
// must never panic or block: the pipeline calls it fire-and-forget from the
// middle of an orchestration.
type Reporter interface {
	ReportError(err error, context map[string]string)
}

// LogReporter writes reports to the standard logger.
type LogReporter struct{}

func (LogReporter) ReportError(err error, context map[string]string) {
	if err == nil {
		return
	}
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(context[k])
	}
	log.Printf("pipeline: error: %v%s", err, b.String())
}
