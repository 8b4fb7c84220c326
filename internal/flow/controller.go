// Package flow drives the quiz state machine: start, answer, back, and
// navigation transitions over a persisted per-user session.
package flow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"wellness-quiz-engine/internal/callback"
	"wellness-quiz-engine/internal/domain"
	"wellness-quiz-engine/internal/quizdef"
)

// DefaultTimeout is how long a presented question stays answerable. It is
// evaluated lazily on the next interaction; there is no background timer.
const DefaultTimeout = 15 * time.Minute

const unavailableText = "This quiz is currently unavailable. Please try again later."

// Deps wires the controller's collaborators. Definitions, Sessions, and
// Messenger are required; everything else is optional.
type Deps struct {
	Definitions *quizdef.Store
	Sessions    SessionStore
	Messenger   Messenger
	Hooks       *Registry
	Guard       InteractionGuard
	Events      EventLogger
	Tips        TipGenerator
	Images      ImageResolver
	Home        HomeFunc
	Timeout     time.Duration
}

// Controller orchestrates quiz flows. One instance serves all users; each
// incoming event is an independent unit of work and the session store is the
// synchronization boundary. Rapid duplicate taps from the same user can both
// pass the fencing check before either render lands; this race is accepted.
type Controller struct {
	defs     *quizdef.Store
	sessions SessionStore
	msgr     Messenger
	hooks    *Registry
	guard    InteractionGuard
	events   EventLogger
	tips     TipGenerator
	images   ImageResolver
	home     HomeFunc
	timeout  time.Duration
	clock    func() time.Time
}

func NewController(deps Deps) *Controller {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hooks := deps.Hooks
	if hooks == nil {
		hooks = NewRegistry()
	}
	return &Controller{
		defs:     deps.Definitions,
		sessions: deps.Sessions,
		msgr:     deps.Messenger,
		hooks:    hooks,
		guard:    deps.Guard,
		events:   deps.Events,
		tips:     deps.Tips,
		images:   deps.Images,
		home:     deps.Home,
		timeout:  timeout,
		clock:    time.Now,
	}
}

// Start begins a quiz attempt at the first question. A user inside the
// interaction guard's cooldown window gets a retry prompt and no session.
func (c *Controller) Start(ctx context.Context, userID, quizName string) error {
	if c.guard != nil {
		remaining, err := c.guard.Cooldown(ctx, userID, "quiz:"+quizName)
		if err != nil {
			log.Printf("quiz %s: interaction guard failed for %s, allowing: %v", quizName, userID, err)
		} else if remaining > 0 {
			text := fmt.Sprintf("You just started this quiz. Try again in %d seconds.",
				int(remaining.Round(time.Second).Seconds()))
			_, err := c.msgr.SendText(ctx, userID, text, nil)
			return err
		}
	}

	def, err := c.defs.Load(ctx, quizName)
	if err != nil {
		if _, sendErr := c.msgr.SendText(ctx, userID, unavailableText, nil); sendErr != nil {
			log.Printf("quiz %s: unavailable notice failed for %s: %v", quizName, userID, sendErr)
		}
		return err
	}

	if c.events != nil {
		c.events.QuizStarted(ctx, userID, quizName)
	}

	state := domain.SessionState{
		Quiz:    quizName,
		Index:   0,
		Answers: make(map[string]string),
	}
	messageID, err := c.renderQuestion(ctx, userID, def, state.Index)
	if err != nil {
		return err
	}
	state.MessageID = messageID
	state.AskedAt = c.clock()
	return c.sessions.Set(ctx, userID, state)
}

// HandleEvent routes one interactive-button tap. Tokens outside the grammar,
// stale taps, and mismatched sessions are silent no-ops: the surface has
// already acknowledged the tap and nothing else should happen.
func (c *Controller) HandleEvent(ctx context.Context, ev Event) error {
	payload := callback.Parse(ev.Token)
	if payload == nil {
		return nil
	}

	state, ok, err := c.sessions.Get(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	if payload.Kind == callback.KindNav {
		return c.navigate(ctx, ev, payload, state, ok)
	}

	// Answer path requires a live, matching, fresh session.
	if !ok || state.Quiz != payload.Quiz {
		return nil
	}
	if state.MessageID != ev.MessageID {
		return nil
	}
	if c.expired(state) {
		return c.expire(ctx, ev.UserID, state)
	}
	return c.answer(ctx, ev.UserID, payload, state)
}

func (c *Controller) expired(state domain.SessionState) bool {
	return c.clock().Sub(state.AskedAt) > c.timeout
}

// expire clears a stale session and offers a restart; the stale answer is
// never delivered.
func (c *Controller) expire(ctx context.Context, userID string, state domain.SessionState) error {
	if err := c.sessions.Clear(ctx, userID); err != nil {
		return err
	}
	c.deleteQuietly(ctx, userID, state.MessageID)

	restart, err := callback.NavToken(state.Quiz, callback.NavNext)
	if err != nil {
		return err
	}
	home, err := callback.NavToken(state.Quiz, callback.NavHome)
	if err != nil {
		return err
	}
	_, err = c.msgr.SendText(ctx, userID,
		"Looks like you took a break. Want to start over?",
		[]Button{{Label: "Start over", Data: restart}, {Label: "Back to menu", Data: home}})
	return err
}

func (c *Controller) answer(ctx context.Context, userID string, payload *callback.Payload, state domain.SessionState) error {
	def, err := c.defs.Load(ctx, state.Quiz)
	if err != nil {
		if _, sendErr := c.msgr.SendText(ctx, userID, unavailableText, nil); sendErr != nil {
			log.Printf("quiz %s: unavailable notice failed for %s: %v", state.Quiz, userID, sendErr)
		}
		return err
	}

	question, ok := def.Question(state.Index)
	if !ok || question.ID != payload.QuestionID {
		// index out of range or a token from a different step
		return nil
	}
	option, ok := question.Option(payload.OptionKey)
	if !ok {
		return nil
	}

	previousMessage := state.MessageID
	state.Score += option.Score
	state.Tags = domain.MergeTags(state.Tags, option.Tags)
	if state.Answers == nil {
		state.Answers = make(map[string]string)
	}
	state.Answers[question.ID] = option.Key
	state.Index++

	if state.Index >= len(def.Questions) {
		if err := c.finish(ctx, userID, def, state); err != nil {
			return err
		}
		c.deleteQuietly(ctx, userID, previousMessage)
		return nil
	}

	messageID, err := c.renderQuestion(ctx, userID, def, state.Index)
	if err != nil {
		return err
	}
	state.MessageID = messageID
	state.AskedAt = c.clock()
	if err := c.sessions.Set(ctx, userID, state); err != nil {
		return err
	}
	c.deleteQuietly(ctx, userID, previousMessage)
	return nil
}

// back steps to the previous question. The answer recorded for the question
// being returned to is dropped and score/tags are replayed from scratch from
// the remaining answers, which keeps them consistent without incremental
// subtraction.
func (c *Controller) back(ctx context.Context, userID string, state domain.SessionState) error {
	if state.Index <= 0 {
		return nil
	}

	def, err := c.defs.Load(ctx, state.Quiz)
	if err != nil {
		if _, sendErr := c.msgr.SendText(ctx, userID, unavailableText, nil); sendErr != nil {
			log.Printf("quiz %s: unavailable notice failed for %s: %v", state.Quiz, userID, sendErr)
		}
		return err
	}

	previousMessage := state.MessageID
	state.Index--
	if question, ok := def.Question(state.Index); ok {
		delete(state.Answers, question.ID)
	}
	state.Score, state.Tags = replay(def, state.Answers)

	messageID, err := c.renderQuestion(ctx, userID, def, state.Index)
	if err != nil {
		return err
	}
	state.MessageID = messageID
	state.AskedAt = c.clock()
	if err := c.sessions.Set(ctx, userID, state); err != nil {
		return err
	}
	c.deleteQuietly(ctx, userID, previousMessage)
	return nil
}

func (c *Controller) navigate(ctx context.Context, ev Event, payload *callback.Payload, state domain.SessionState, live bool) error {
	switch payload.Action {
	case callback.NavNext:
		// retry affordance: restart from the first question
		if live {
			if err := c.sessions.Clear(ctx, ev.UserID); err != nil {
				return err
			}
			c.deleteQuietly(ctx, ev.UserID, state.MessageID)
		}
		return c.Start(ctx, ev.UserID, payload.Quiz)

	case callback.NavPrev:
		if !live || state.Quiz != payload.Quiz || state.MessageID != ev.MessageID {
			return nil
		}
		if c.expired(state) {
			return c.expire(ctx, ev.UserID, state)
		}
		return c.back(ctx, ev.UserID, state)

	case callback.NavFinish:
		// terminal acknowledgement, nothing further rendered
		if !live {
			return nil
		}
		if err := c.sessions.Clear(ctx, ev.UserID); err != nil {
			return err
		}
		c.deleteQuietly(ctx, ev.UserID, state.MessageID)
		return nil

	case callback.NavHome:
		if live {
			if err := c.sessions.Clear(ctx, ev.UserID); err != nil {
				return err
			}
			c.deleteQuietly(ctx, ev.UserID, state.MessageID)
		}
		if c.home != nil {
			return c.home(ctx, ev.UserID)
		}
		_, err := c.msgr.SendText(ctx, ev.UserID, "Back to the main menu.", nil)
		return err
	}
	return nil
}

// finish builds the result context, consults the hook registry, renders the
// default summary unless a hook handled it, and clears the session.
func (c *Controller) finish(ctx context.Context, userID string, def *domain.QuizDefinition, state domain.SessionState) error {
	threshold, matched := def.FindThreshold(state.Score)
	if !matched {
		log.Printf("quiz %s: score %d outside all thresholds, using last", def.Name, state.Score)
	}

	chosen := make(map[string]domain.QuizOption, len(state.Answers))
	for _, question := range def.Questions {
		if key, ok := state.Answers[question.ID]; ok {
			if option, ok := question.Option(key); ok {
				chosen[question.ID] = option
			}
		}
	}

	finalTags := domain.MergeTags(append([]string(nil), state.Tags...), threshold.Tags)
	result := &domain.ResultContext{
		TotalScore: state.Score,
		Answers:    chosen,
		Tags:       finalTags,
		Threshold:  threshold,
		Summary:    summaryText(def, state.Score, threshold, finalTags),
	}

	handled := false
	if hook, ok := c.hooks.get(def.Name); ok {
		var err error
		handled, err = hook(ctx, userID, def, result)
		if err != nil {
			log.Printf("quiz %s: finish hook failed for %s: %v", def.Name, userID, err)
			handled = false
		}
	}

	if !handled {
		home, err := callback.NavToken(def.Name, callback.NavHome)
		if err != nil {
			return err
		}
		if _, err := c.msgr.SendText(ctx, userID, result.Summary, []Button{{Label: "Back to menu", Data: home}}); err != nil {
			return err
		}
	}

	// The tip rides along even when a hook handled the render; confirmed
	// current product behavior.
	if c.tips != nil {
		tip, err := c.tips.Tip(ctx, def.Name, finalTags)
		if err != nil {
			log.Printf("quiz %s: tip generator failed for %s: %v", def.Name, userID, err)
		} else if tip != "" {
			if _, err := c.msgr.SendText(ctx, userID, tip, nil); err != nil {
				log.Printf("quiz %s: tip send failed for %s: %v", def.Name, userID, err)
			}
		}
	}

	return c.sessions.Clear(ctx, userID)
}

// renderQuestion sends the question at index and returns the new message id.
// An unresolvable or unsendable image degrades to a text-only render.
func (c *Controller) renderQuestion(ctx context.Context, userID string, def *domain.QuizDefinition, index int) (string, error) {
	question, ok := def.Question(index)
	if !ok {
		return "", fmt.Errorf("quiz %s: question index %d out of range", def.Name, index)
	}

	text := fmt.Sprintf("%s\n\nQuestion %d of %d\n%s", def.Title, index+1, len(def.Questions), question.Text)

	buttons := make([]Button, 0, len(question.Options)+2)
	for _, option := range question.Options {
		token, err := callback.AnswerToken(def.Name, question.ID, option.Key)
		if err != nil {
			return "", err
		}
		buttons = append(buttons, Button{Label: option.Text, Data: token})
	}
	if index > 0 {
		token, err := callback.NavToken(def.Name, callback.NavPrev)
		if err != nil {
			return "", err
		}
		buttons = append(buttons, Button{Label: "Back", Data: token})
	}
	homeToken, err := callback.NavToken(def.Name, callback.NavHome)
	if err != nil {
		return "", err
	}
	buttons = append(buttons, Button{Label: "Exit", Data: homeToken})

	if question.Image != "" && c.images != nil {
		image, err := c.images.Resolve(ctx, question.Image)
		if err != nil {
			log.Printf("quiz %s: image %s unavailable, falling back to text: %v", def.Name, question.Image, err)
		} else {
			messageID, err := c.msgr.SendPhoto(ctx, userID, image, text, buttons)
			if err == nil {
				return messageID, nil
			}
			log.Printf("quiz %s: photo send failed, falling back to text: %v", def.Name, err)
		}
	}
	return c.msgr.SendText(ctx, userID, text, buttons)
}

func (c *Controller) deleteQuietly(ctx context.Context, userID, messageID string) {
	if messageID == "" {
		return
	}
	if err := c.msgr.DeleteMessage(ctx, userID, messageID); err != nil {
		log.Printf("delete message %s for %s: %v", messageID, userID, err)
	}
}

// replay recomputes score and tags from the recorded answers in question
// order.
func replay(def *domain.QuizDefinition, answers map[string]string) (int, []string) {
	score := 0
	var tags []string
	for _, question := range def.Questions {
		key, ok := answers[question.ID]
		if !ok {
			continue
		}
		option, ok := question.Option(key)
		if !ok {
			continue
		}
		score += option.Score
		tags = domain.MergeTags(tags, option.Tags)
	}
	return score, tags
}

func summaryText(def *domain.QuizDefinition, score int, threshold domain.QuizThreshold, tags []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: done!\n\n", def.Title)
	fmt.Fprintf(&b, "Score: %d\n", score)
	if threshold.Label != "" {
		fmt.Fprintf(&b, "Result: %s\n", threshold.Label)
	}
	if threshold.Advice != "" {
		fmt.Fprintf(&b, "\n%s\n", threshold.Advice)
	}
	if len(tags) > 0 {
		fmt.Fprintf(&b, "\nProfile: %s", strings.Join(tags, ", "))
	}
	return b.String()
}
