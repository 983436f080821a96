// Package driver implements the Interpreter/Driver: the two-phase per-session
// state machine that advances a scenario between suspension points, and the
// block handler registry it dispatches to.
package driver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/notify"
	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/store"
	"github.com/Hom4ikTop4ik/PO-ChatBots/pkg/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const restartHint = "Сессия истекла. Отправьте /start, чтобы начать заново."

var tracer = otel.Tracer("github.com/Hom4ikTop4ik/PO-ChatBots/internal/driver")

// Notifier is the session-lifecycle fan-out hook: invoked once a session
// stops advancing, either by reaching "final" or by an unrecoverable
// "break". Implementations must not block the advance loop on slow I/O —
// *notify.Service satisfies this by dispatching in goroutines.
type Notifier interface {
	Dispatch(ctx context.Context, event notify.Event)
}

// hashUserKey gives telemetry spans a stable, non-reversible attribute for
// the user key instead of the raw identifier.
func hashUserKey(userKey string) string {
	sum := sha256.Sum256([]byte(userKey))
	return hex.EncodeToString(sum[:8])
}

// Transport is the outbound half of the Transport Adapter contract: the
// operations a handler invokes to reach the user. All three are best-effort
// — failures are logged and swallowed, never propagated to the caller.
type Transport interface {
	Send(ctx context.Context, userKey, text string) error
	AskText(ctx context.Context, userKey, prompt string) error
	AskChoice(ctx context.Context, userKey, prompt string, options []ChoiceOption) error
}

// ChoiceOption is the outbound shape for ask_choice: id and label only, the
// option's value is never sent to the platform.
type ChoiceOption struct {
	ID    string
	Label string
}

// Driver owns the scenario, the state store, the transport, and the handler
// registry, and serializes start/resume per user key.
type Driver struct {
	scenario  *models.Scenario
	store     store.Store
	transport Transport
	registry  *HandlerRegistry
	notifier  Notifier

	locks sync.Map // userKey -> *sync.Mutex
}

// New builds a Driver with the default handler registry wired in.
func New(scenario *models.Scenario, st store.Store, transport Transport) *Driver {
	d := &Driver{
		scenario:  scenario,
		store:     st,
		transport: transport,
	}
	d.registry = NewDefaultRegistry(d)
	return d
}

// WithNotifier attaches a session-lifecycle Notifier and returns the same
// Driver for chaining at construction time. A nil notifier (the default)
// disables lifecycle fan-out entirely.
func (d *Driver) WithNotifier(n Notifier) *Driver {
	d.notifier = n
	return d
}

func (d *Driver) lockFor(userKey string) *sync.Mutex {
	v, _ := d.locks.LoadOrStore(userKey, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Start constructs a fresh session (scenario defaults merged with initMeta),
// places it at the scenario's start block, and runs the advance loop.
// Issuing Start twice for the same user key resets the session rather than
// spawning a duplicate.
func (d *Driver) Start(ctx context.Context, userKey string, initMeta map[string]any) error {
	lk := d.lockFor(userKey)
	lk.Lock()
	defer lk.Unlock()
	return d.doStart(ctx, userKey, initMeta)
}

func (d *Driver) doStart(ctx context.Context, userKey string, initMeta map[string]any) error {
	now := time.Now()
	sess := &models.Session{
		UserKey:      userKey,
		CurrentBlock: d.scenario.StartBlockID,
		Variables:    d.initialVariables(initMeta),
		Step:         0,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return d.loop(ctx, sess, nil)
}

// initialVariables merges the scenario's global-variable defaults with
// platform-supplied metadata (user_id, username, first_name, ...).
func (d *Driver) initialVariables(initMeta map[string]any) map[string]any {
	vars := make(map[string]any, len(d.scenario.GlobalVariables)+len(initMeta))
	for _, gv := range d.scenario.GlobalVariables {
		vars[gv.Name] = gv.Default
	}
	for k, v := range initMeta {
		vars[k] = v
	}
	return vars
}

// Resume loads the session for userKey and dispatches input to its current
// block. An absent session is treated as a fresh start; an inactive session
// gets a restart hint and does not advance.
func (d *Driver) Resume(ctx context.Context, userKey string, input string) error {
	lk := d.lockFor(userKey)
	lk.Lock()
	defer lk.Unlock()

	sess, ok, err := d.store.Load(ctx, userKey)
	if err != nil {
		log.Error().Err(err).Str("user_key", userKey).Msg("store load failed, aborting resume")
		return err
	}
	if !ok {
		return d.doStart(ctx, userKey, map[string]any{})
	}
	if !sess.Active {
		log.Info().Err(models.ErrSessionInactive).Str("user_key", userKey).Msg("resume against inactive session, sending restart hint")
		if err := d.transport.Send(ctx, userKey, restartHint); err != nil {
			log.Warn().Err(err).Str("user_key", userKey).Msg("failed to send restart hint")
		}
		return nil
	}

	return d.loop(ctx, sess, &input)
}

// loop is the advance loop: it repeatedly invokes the current block's
// handler, applies the transition table, and stops on wait or break. input
// is consumed by only the first handler invocation (the one triggered by an
// external resume); every subsequent iteration passes nil.
func (d *Driver) loop(ctx context.Context, sess *models.Session, input *string) error {
	for {
		spanCtx, span := tracer.Start(ctx, "driver.advance")
		span.SetAttributes(
			attribute.String("user_key.hash", hashUserKey(sess.UserKey)),
			attribute.String("block.id", sess.CurrentBlock),
		)

		block := d.scenario.Block(sess.CurrentBlock)
		if block == nil {
			log.Error().Err(models.ErrBlockNotFound).Str("user_key", sess.UserKey).Str("block_id", sess.CurrentBlock).
				Msg("current block does not resolve, terminating session")
			span.SetStatus(codes.Error, "block not found")
			span.End()
			sess.Active = false
			d.notifyTerminal(ctx, sess, sess.CurrentBlock, false)
			return d.save(ctx, sess)
		}
		span.SetAttributes(attribute.String("block.type", string(block.Type)))

		handler, ok := d.registry.Resolve(block.Type)
		if !ok {
			log.Error().Err(models.ErrNoHandler).Str("user_key", sess.UserKey).Str("block_type", string(block.Type)).
				Msg("no handler registered for block type, terminating session")
			span.SetStatus(codes.Error, "no handler")
			span.End()
			sess.Active = false
			d.notifyTerminal(ctx, sess, block.ID, false)
			return d.save(ctx, sess)
		}

		result, err := handler.Execute(spanCtx, sess, block, input)
		input = nil

		if err != nil {
			log.Error().Err(err).Str("user_key", sess.UserKey).Str("block_id", block.ID).
				Msg("handler execution error, terminating session")
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			sess.Active = false
			d.notifyTerminal(ctx, sess, block.ID, false)
			return d.save(ctx, sess)
		}
		span.SetAttributes(attribute.String("result", string(result)))
		span.End()

		switch result {
		case ResultContinue:
			if len(block.Connections.Out) == 0 {
				sess.Active = false
				d.notifyTerminal(ctx, sess, block.ID, block.Type == models.BlockFinal)
				return d.save(ctx, sess)
			}
			sess.CurrentBlock = block.Connections.Out[0]
			sess.Step = 0
			if err := d.save(ctx, sess); err != nil {
				return err
			}

		case ResultManualSwitch:
			sess.Step = 0
			if err := d.save(ctx, sess); err != nil {
				return err
			}

		case ResultWait:
			return d.save(ctx, sess)

		case ResultBreak:
			sess.Active = false
			d.notifyTerminal(ctx, sess, block.ID, block.Type == models.BlockFinal)
			return d.save(ctx, sess)

		default:
			log.Error().Str("result", string(result)).Msg("unknown handler result, terminating session")
			sess.Active = false
			d.notifyTerminal(ctx, sess, block.ID, false)
			return d.save(ctx, sess)
		}
	}
}

// notifyTerminal fans out a session-lifecycle event once the session has
// stopped advancing. reachedFinal distinguishes a clean "final" completion
// from an unrecoverable "break"; a nil notifier makes this a no-op.
func (d *Driver) notifyTerminal(ctx context.Context, sess *models.Session, blockID string, reachedFinal bool) {
	if d.notifier == nil {
		return
	}
	eventType := notify.EventBreak
	if reachedFinal {
		eventType = notify.EventFinal
	}
	d.notifier.Dispatch(ctx, notify.Event{
		Type:      eventType,
		UserKey:   sess.UserKey,
		BlockID:   blockID,
		Variables: sess.Variables,
		Timestamp: time.Now(),
	})
}

func (d *Driver) save(ctx context.Context, sess *models.Session) error {
	sess.UpdatedAt = time.Now()
	if err := d.store.Save(ctx, sess.UserKey, sess); err != nil {
		log.Error().Err(err).Str("user_key", sess.UserKey).Msg("store save failed")
		return err
	}
	return nil
}

// Status reports whether userKey has an active session, for adapters that
// need to reject inbound events against driver.load per spec §4.4.
func (d *Driver) Status(ctx context.Context, userKey string) (active bool, exists bool, err error) {
	sess, ok, err := d.store.Load(ctx, userKey)
	if err != nil {
		return false, false, err
	}
	if !ok {
		return false, false, nil
	}
	return sess.Active, true, nil
}
