// Package chat orchestrates one conversation: it accepts user input,
// calls the remote answer-generation endpoint, appends both sides of
// the exchange to the session store, and reports failures as
// conversation turns and notifications instead of faults.
package chat
