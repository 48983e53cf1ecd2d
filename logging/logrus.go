package logging

import "github.com/sirupsen/logrus"

// LogrusHook adds executor and thread fields to entries logged WithContext.
type LogrusHook struct {
	levels []logrus.Level
}

// NewLogrusHook returns a hook firing on levels, or on every level if none are given.
func NewLogrusHook(levels ...logrus.Level) *LogrusHook {
	if len(levels) == 0 {
		levels = logrus.AllLevels
	}
	return &LogrusHook{levels: levels}
}

func (h *LogrusHook) Levels() []logrus.Level {
	return h.levels
}

func (h *LogrusHook) Fire(entry *logrus.Entry) error {
	if entry.Context == nil {
		return nil
	}
	executor, thread := bindingFields(entry.Context)
	if executor != "" {
		entry.Data[ExecutorKey] = executor
	}
	if thread != "" {
		entry.Data[ThreadKey] = thread
	}
	return nil
}
