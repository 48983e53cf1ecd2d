// Package logging stamps the current executor and thread onto log records.
//
// Each adapter reads core.CurrentExecutor and core.CurrentThread from the
// context attached to the record, so any task that logs with its ctx gets
// "executor" and "thread" fields without passing them explicitly.
package logging
