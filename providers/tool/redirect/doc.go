// Package redirect provides the tool that hands a customer conversation over
// to a human operator: it posts a notification with the collected customer
// details, stops automatic follow-ups for the chat and answers the model with
// a closing message.
package redirect
