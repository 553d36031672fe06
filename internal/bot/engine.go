// Package bot implements the conversational engine for ClassPipe.
//
// Every inbound message runs through one ordered dispatch chain: an active
// wizard owns the turn first, then menu mode, then a greeting check, and
// finally the NLP pipeline with slot filling. The engine serializes turns per
// identity through the state manager's keyed lock, so two near-simultaneous
// messages from the same sender cannot race a state read-modify-write.
package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/dialog"
	"github.com/BTreeMap/ClassPipe/internal/filestore"
	"github.com/BTreeMap/ClassPipe/internal/grading"
	"github.com/BTreeMap/ClassPipe/internal/messaging"
	"github.com/BTreeMap/ClassPipe/internal/models"
	"github.com/BTreeMap/ClassPipe/internal/nlp"
	"github.com/BTreeMap/ClassPipe/internal/state"
	"github.com/BTreeMap/ClassPipe/internal/store"
)

// listLimit caps the numbered lists shown by the pick wizards.
const listLimit = 20

// Opts holds configuration options for the engine.
type Opts struct {
	Location *time.Location
	Clock    func() time.Time
}

// Option defines a configuration option for the engine.
type Option func(*Opts)

// WithLocation sets the timezone used for deadlines and digests.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// WithClock overrides the time source (for tests).
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// Engine is the conversational core wired to its collaborators.
type Engine struct {
	msg    messaging.Service
	bcast  *messaging.Broadcaster
	store  store.Store
	states state.Manager
	files  filestore.Storage
	grader *grading.Client
	loc    *time.Location
	now    func() time.Time
}

// NewEngine creates the engine over its collaborators.
func NewEngine(msg messaging.Service, bcast *messaging.Broadcaster, st store.Store, states state.Manager, files filestore.Storage, grader *grading.Client, opts ...Option) *Engine {
	cfg := Opts{
		Location: time.UTC,
		Clock:    time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{
		msg:    msg,
		bcast:  bcast,
		store:  st,
		states: states,
		files:  files,
		grader: grader,
		loc:    cfg.Location,
		now:    cfg.Clock,
	}
}

// Run consumes inbound messages until the context is cancelled or the
// transport closes its channel. Each message gets its own handling chain.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("Bot Run starting message loop")
	for {
		select {
		case <-ctx.Done():
			slog.Info("Bot Run stopping", "reason", ctx.Err())
			return ctx.Err()
		case resp, ok := <-e.msg.Responses():
			if !ok {
				slog.Info("Bot Run responses channel closed")
				return nil
			}
			go e.Handle(ctx, resp)
		}
	}
}

// Handle processes one inbound message end to end. A panic anywhere in the
// chain is logged and answered with a generic apology; the process keeps
// serving other identities.
func (e *Engine) Handle(ctx context.Context, resp models.Response) {
	identity := resp.From
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Bot Handle panic recovered", "identity", identity, "panic", r)
			e.send(ctx, identity, msgApology)
		}
	}()

	release := e.states.Acquire(identity)
	defer release()

	var user *models.User
	err := store.WithRetry(ctx, "GetUser", func() error {
		var lookupErr error
		user, lookupErr = e.store.GetUser(ctx, identity)
		return lookupErr
	})
	if err != nil {
		slog.Error("Bot Handle role lookup failed", "identity", identity, "error", err)
		e.send(ctx, identity, msgApology)
		return
	}
	if user == nil {
		slog.Debug("Bot Handle unregistered identity", "identity", identity)
		e.send(ctx, identity, msgUnregistered)
		return
	}

	st, _ := e.states.Get(identity)
	st.Identity = identity

	// Ordered dispatch: wizard > menu mode > greeting > classification.
	switch {
	case st.WizardActive():
		e.handleWizard(ctx, user, &st, resp)
	case st.MenuMode != models.MenuModeNone:
		e.handleMenuChoice(ctx, user, &st, resp.Body)
	case isGreeting(resp.Body):
		e.enterMenu(ctx, user)
	default:
		e.handleClassified(ctx, user, &st, resp)
	}
}

// handleClassified runs the NLP pipeline and the slot-filling dialog for a
// message no wizard or menu owns.
func (e *Engine) handleClassified(ctx context.Context, user *models.User, st *models.ConversationState, resp models.Response) {
	norm := nlp.Normalize(resp.Body)
	ents := nlp.Extract(nlp.CollapseSpaces(resp.Body), e.now())
	res := nlp.Classify(norm, ents)
	slog.Debug("Bot classified message", "identity", user.Phone, "intent", res.Intent, "confidence", res.Confidence)

	plan := dialog.Resolve(st, res, ents, resp.Body)
	if plan.Action == dialog.ActionAskSlot {
		e.states.Set(user.Phone, *st)
		e.send(ctx, user.Phone, plan.Prompt)
		return
	}
	e.route(ctx, user, st, plan.Intent, resp)
}

// route dispatches a resolved intent to its role handler. Role mismatches
// get the fixed forbidden reply without invoking the handler. Slot filling
// runs before this gate, so a student asking for a teacher action with a
// missing slot is prompted for the slot first and refused on the next turn.
func (e *Engine) route(ctx context.Context, user *models.User, st *models.ConversationState, intent models.Intent, resp models.Response) {
	if intent.TeacherOnly() && user.Role != models.RoleTeacher {
		e.states.Clear(user.Phone)
		e.send(ctx, user.Phone, msgForbidden)
		return
	}

	switch intent {
	case models.IntentGreeting:
		e.enterMenu(ctx, user)
	case models.IntentCreateAssignment:
		e.startCreateWizard(ctx, user, st)
	case models.IntentBroadcastAssignment:
		e.handleBroadcastIntent(ctx, user, st)
	case models.IntentExportRecap:
		e.startRecapWizard(ctx, user, st)
	case models.IntentListRoster:
		e.startRosterWizard(ctx, user, st)
	case models.IntentSubmitAssignment:
		e.startSubmitWizard(ctx, user, st)
	case models.IntentStatusHistory:
		e.startHistoryWizard(ctx, user, st)
	case models.IntentMyAssignments:
		e.states.Clear(user.Phone)
		e.sendMyAssignments(ctx, user)
	case models.IntentAssignmentDetail:
		e.handleAssignmentDetail(ctx, user, st)
	case models.IntentAskDeadline:
		e.sendDeadline(ctx, user, st.Slot(dialog.SlotCode))
	case models.IntentImageToPDF:
		e.startImageToPDFWizard(ctx, user, st)
	case models.IntentTeacherHelp:
		e.states.Clear(user.Phone)
		e.send(ctx, user.Phone, teacherHelpText)
	case models.IntentStudentHelp:
		e.states.Clear(user.Phone)
		e.send(ctx, user.Phone, studentHelpText)
	default:
		// Fallback and anything unrecognized gets the role help.
		e.states.Clear(user.Phone)
		e.send(ctx, user.Phone, helpTextFor(user.Role))
	}
}

// handleWizard dispatches to the FSM owning the conversation.
func (e *Engine) handleWizard(ctx context.Context, user *models.User, st *models.ConversationState, resp models.Response) {
	switch st.Wizard.Kind {
	case models.WizardCreate:
		e.handleCreateWizard(ctx, user, st, resp)
	case models.WizardAfterCreate:
		e.handleAfterCreate(ctx, user, st, resp.Body)
	case models.WizardBroadcast:
		e.handleBroadcastPick(ctx, user, st, resp.Body)
	case models.WizardRecap:
		e.handleRecapPick(ctx, user, st, resp.Body)
	case models.WizardRoster:
		e.handleRosterPick(ctx, user, st, resp.Body)
	case models.WizardSubmitPick:
		e.handleSubmitPick(ctx, user, st, resp.Body)
	case models.WizardAwaitFile:
		e.handleAwaitFile(ctx, user, st, resp)
	case models.WizardHistory:
		e.handleHistoryPick(ctx, user, st, resp.Body)
	case models.WizardImageToPDF:
		e.handleImageToPDF(ctx, user, st, resp)
	default:
		slog.Warn("Bot handleWizard unknown wizard kind, clearing state", "identity", user.Phone, "kind", st.Wizard.Kind)
		e.cancelWizard(ctx, user)
	}
}

// cancelWizard clears all conversation state and answers with the neutral
// menu pointer. Every wizard's "0" lands here.
func (e *Engine) cancelWizard(ctx context.Context, user *models.User) {
	e.states.Clear(user.Phone)
	e.send(ctx, user.Phone, msgCancelled)
}

// send delivers a reply, swallowing the benign transport quirk.
func (e *Engine) send(ctx context.Context, to, body string) {
	if err := e.msg.SendMessage(ctx, to, body); err != nil {
		if messaging.IsBenignSendError(err) {
			slog.Debug("Bot send hit benign transport quirk, treating as sent", "to", to)
			return
		}
		slog.Error("Bot send failed", "to", to, "error", err)
	}
}

// sendDocument delivers a document reply, swallowing the benign quirk.
func (e *Engine) sendDocument(ctx context.Context, to string, doc models.Document) {
	if err := e.msg.SendDocument(ctx, to, doc); err != nil {
		if messaging.IsBenignSendError(err) {
			return
		}
		slog.Error("Bot sendDocument failed", "to", to, "error", err)
	}
}
