// Package followup re-engages customers who stopped answering.
//
// Every user message touches the chat in a [Store]. A [Scheduler] ticks on
// a cron expression and, inside the delivery window, sends the first pipeline
// message to chats silent for four hours and the second to chats silent for
// a day. Handing a chat to a human marks all of its steps as sent.
package followup
