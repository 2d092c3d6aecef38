package telemetry

import (
	"strings"
	"sync"
)

type Level string

const (
	LevelBroken  Level = "broken"
	LevelWarning Level = "warning"
	LevelDebug   Level = "debug"
	LevelCount   Level = "count"
)

type Report struct {
	Level  Level
	ID     string
	Params []any
}

// Recorder is an API that keeps every report in memory, it is meant for tests.
type Recorder struct {
	mutex   sync.Mutex
	reports []Report
}

func (r *Recorder) record(level Level, id string, params []any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reports = append(r.reports, Report{Level: level, ID: id, Params: params})
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.record(LevelBroken, id, params)
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.record(LevelWarning, id, params)
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.record(LevelDebug, msg, params)
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.record(LevelCount, id, []any{count})
}

func (r *Recorder) Reports() []Report {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make([]Report, len(r.reports))
	copy(out, r.reports)
	return out
}

// Find returns the reports of the given level whose id ends with `id`, this
// ignores any namespaces added by ScopedAPI.
func (r *Recorder) Find(level Level, id string) []Report {
	var out []Report
	for _, report := range r.Reports() {
		if report.Level == level && strings.HasSuffix(report.ID, id) {
			out = append(out, report)
		}
	}
	return out
}
