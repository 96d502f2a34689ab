package services_test

import (
	"log/slog"
	"time"

	"smartsolve/moderation"
	"smartsolve/observability"

	"github.com/mama165/sdk-go/logs"
)

var testLog = logs.GetLoggerFromLevel(slog.LevelDebug)

func newTestMonitoring() *observability.MonitoringManager {
	return observability.NewMonitoringManager(testLog, time.Second)
}

// upperReviewer stands in for the moderator with a visible transformation.
type upperReviewer struct {
	language string
	censored []string
}

func (r upperReviewer) Review(content string) moderation.Verdict {
	return moderation.Verdict{Content: "[" + content + "]", Language: r.language, CensoredWords: r.censored}
}
