package logging

import "github.com/rs/zerolog"

// ZerologHook adds executor and thread fields to events that carry a context
// (zerolog.Ctx / Event.Ctx).
type ZerologHook struct{}

func (ZerologHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}
	executor, thread := bindingFields(ctx)
	if executor != "" {
		e.Str(ExecutorKey, executor)
	}
	if thread != "" {
		e.Str(ThreadKey, thread)
	}
}
