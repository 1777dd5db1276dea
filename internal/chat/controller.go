// ABOUTME: Conversation controller: submit a question, append both turns
// ABOUTME: Remote failures become agent turns with plain-language explanations

package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/askdeck/askdeck/internal/backend"
	"github.com/askdeck/askdeck/internal/notify"
	"github.com/askdeck/askdeck/internal/session"
)

// ErrEmptyQuestion is returned when the submitted input is empty or
// whitespace-only. No turns are appended and no request is issued.
var ErrEmptyQuestion = errors.New("question is empty")

// emptyAnswerPlaceholder stands in when the backend returns a blank answer.
const emptyAnswerPlaceholder = "The agent returned an empty answer. Try rephrasing your question."

// Asker is what the controller needs from the backend client.
type Asker interface {
	Ask(ctx context.Context, path, question string) (*backend.Answer, error)
}

// Notifier is what the controller needs from the notification queue.
type Notifier interface {
	Publish(event notify.Event) string
}

// Controller orchestrates one conversation per Submit call.
type Controller struct {
	sessions *session.Store
	asker    Asker
	notifier Notifier
	logger   *slog.Logger
}

// New creates a controller. notifier may be nil when no notification
// surface exists (tests). Pass nil logger for default.
func New(sessions *session.Store, asker Asker, notifier Notifier, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		sessions: sessions,
		asker:    asker,
		notifier: notifier,
		logger:   logger.With("component", "chat"),
	}
}

// Result describes one completed submission.
type Result struct {
	UserTurn  session.Turn
	AgentTurn session.Turn
	Answer    *backend.Answer // nil when the request failed
	Failed    bool
}

// Submit sends one question to the agent behind askPath and appends the
// exchange to sess. The user turn is appended before the request is
// issued. The agent turn is appended when the request settles: the
// answer text on success, a plain-language explanation on failure. The
// conversation is never left without a response to the user's turn.
//
// Overlapping Submit calls are independent; turns land in completion
// order, not submission order.
func (c *Controller) Submit(ctx context.Context, sess *session.Session, askPath, questionText string) (*Result, error) {
	questionText = strings.TrimSpace(questionText)
	if questionText == "" {
		return nil, ErrEmptyQuestion
	}

	userTurn := c.sessions.Append(sess, session.RoleUser, questionText)

	answer, err := c.asker.Ask(ctx, askPath, questionText)
	if err != nil {
		message := failureMessage(err)
		agentTurn := c.sessions.Append(sess, session.RoleAgent, message)

		c.logger.Warn("question failed",
			"session_key", sess.Key(), "path", askPath, "error", err)
		if c.notifier != nil {
			c.notifier.Publish(notify.Event{
				Kind:    notify.KindError,
				Title:   "Question failed",
				Message: message,
			})
		}

		return &Result{UserTurn: userTurn, AgentTurn: agentTurn, Failed: true}, nil
	}

	text := strings.TrimSpace(answer.Answer)
	if text == "" {
		text = emptyAnswerPlaceholder
	}
	agentTurn := c.sessions.Append(sess, session.RoleAgent, text)

	c.logger.Debug("question answered",
		"session_key", sess.Key(), "path", askPath)
	return &Result{UserTurn: userTurn, AgentTurn: agentTurn, Answer: answer}, nil
}

// failureMessage maps a remote-call failure to the plain-language
// explanation shown as the agent's turn.
func failureMessage(err error) string {
	var httpErr *backend.HTTPError
	if !errors.As(err, &httpErr) {
		// Transport-level failure: connection refused, DNS, timeout.
		return "The backend service appears to be unreachable. Check that it is running and that the configured base URL is correct."
	}

	switch {
	case httpErr.StatusCode == http.StatusNotFound:
		return "The answer endpoint was not found (404). The backend may be misconfigured or this agent may not be available."
	case httpErr.StatusCode == http.StatusServiceUnavailable:
		return "The backend is temporarily unavailable (503). It may still be starting up; try again in a moment."
	case httpErr.StatusCode == http.StatusBadRequest:
		if httpErr.Detail != "" {
			return "The backend rejected the question: " + httpErr.Detail
		}
		return "The backend rejected the question as invalid (400)."
	case httpErr.StatusCode >= 500:
		return "The backend hit an internal error while generating the answer. Try again, and check the backend logs if it persists."
	default:
		return "The backend returned an unexpected response (" + httpErr.Error() + ")."
	}
}
