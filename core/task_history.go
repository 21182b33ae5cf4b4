package core

import (
	"reflect"
	"runtime"
	"sync"
)

const defaultHistoryCapacity = 100

type executionHistory struct {
	mu    sync.Mutex
	items []WorkExecutionRecord
	head  int
	count int
}

func newExecutionHistory(capacity int) executionHistory {
	if capacity < 1 {
		capacity = defaultHistoryCapacity
	}
	return executionHistory{items: make([]WorkExecutionRecord, capacity)}
}

func (h *executionHistory) Add(record WorkExecutionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.items) == 0 {
		return
	}

	h.items[h.head] = record
	h.head = (h.head + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
}

func (h *executionHistory) Recent(limit int) []WorkExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil
	}

	if limit <= 0 || limit > h.count {
		limit = h.count
	}

	out := make([]WorkExecutionRecord, 0, limit)
	for i := range limit {
		idx := (h.head - 1 - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx])
	}
	return out
}

func (h *executionHistory) Last() (WorkExecutionRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return WorkExecutionRecord{}, false
	}

	idx := (h.head - 1 + len(h.items)) % len(h.items)
	return h.items[idx], true
}

// newExecutionRecord snapshots a completed item.
func newExecutionRecord(item *WorkItem, queueName string) WorkExecutionRecord {
	item.mu.Lock()
	defer item.mu.Unlock()

	startedAt := item.startedAt
	if startedAt.IsZero() {
		startedAt = item.completedAt
	}
	return WorkExecutionRecord{
		ID:         item.id,
		Name:       item.name,
		Queue:      queueName,
		Priority:   item.priority,
		StartedAt:  startedAt,
		FinishedAt: item.completedAt,
		Duration:   item.completedAt.Sub(startedAt),
		Failed:     item.failure != nil,
	}
}

// resolveWorkName prefers the explicit name, then the function's symbol name.
func resolveWorkName(work Work, explicit string) string {
	if explicit != "" {
		return explicit
	}

	if work == nil {
		return "anonymous"
	}

	v := reflect.ValueOf(work)
	if v.Kind() != reflect.Func {
		return "anonymous"
	}

	pc := v.Pointer()
	if pc == 0 {
		return "anonymous"
	}

	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "anonymous"
	}

	name := fn.Name()
	if name == "" {
		return "anonymous"
	}
	return name
}
