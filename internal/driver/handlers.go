package driver

import (
	"context"
	"sort"
	"strings"

	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/condition"
	"github.com/Hom4ikTop4ik/PO-ChatBots/pkg/models"
	"github.com/rs/zerolog/log"
)

// Result is one of the driver's four symbolic handler outcomes.
type Result string

const (
	ResultContinue     Result = "continue"
	ResultManualSwitch Result = "manual_switch"
	ResultWait         Result = "wait"
	ResultBreak        Result = "break"
)

// Handler executes one block. input is nil when invoked from the advance
// loop (no external input available) and non-nil when invoked as the first
// step of a resume. A handler is free to ignore input if its Step indicates
// it hasn't yet emitted its prompt (the stale-input edge case in spec §4.5).
type Handler interface {
	Execute(ctx context.Context, sess *models.Session, block *models.Block, input *string) (Result, error)
}

// HandlerRegistry dispatches by block type.
type HandlerRegistry struct {
	handlers map[models.BlockType]Handler
}

// NewDefaultRegistry wires every block type named in the scenario schema to
// its handler.
func NewDefaultRegistry(d *Driver) *HandlerRegistry {
	r := &HandlerRegistry{handlers: map[models.BlockType]Handler{}}
	r.Register(models.BlockStart, &StartHandler{})
	r.Register(models.BlockSendMessage, &SendMessageHandler{transport: d.transport})
	r.Register(models.BlockGetMessage, &GetMessageHandler{transport: d.transport})
	r.Register(models.BlockChoice, &ChoiceHandler{transport: d.transport})
	r.Register(models.BlockCondition, &ConditionHandler{})
	r.Register(models.BlockAPIRequest, NewAPIRequestHandler())
	r.Register(models.BlockFinal, &FinalHandler{transport: d.transport})
	return r
}

func (r *HandlerRegistry) Register(t models.BlockType, h Handler) {
	r.handlers[t] = h
}

func (r *HandlerRegistry) Resolve(t models.BlockType) (Handler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}

// ── start ────────────────────────────────────────────────────

type StartHandler struct{}

func (h *StartHandler) Execute(_ context.Context, _ *models.Session, _ *models.Block, _ *string) (Result, error) {
	return ResultContinue, nil
}

// ── sendMessage ──────────────────────────────────────────────

type SendMessageHandler struct {
	transport Transport
}

func (h *SendMessageHandler) Execute(ctx context.Context, sess *models.Session, block *models.Block, _ *string) (Result, error) {
	text := renderTemplate(block.Message, sess.Variables)
	if err := h.transport.Send(ctx, sess.UserKey, text); err != nil {
		log.Warn().Err(err).Str("user_key", sess.UserKey).Msg("send failed, continuing")
	}
	return ResultContinue, nil
}

// ── getMessage ───────────────────────────────────────────────

type GetMessageHandler struct {
	transport Transport
}

func (h *GetMessageHandler) Execute(ctx context.Context, sess *models.Session, block *models.Block, input *string) (Result, error) {
	if sess.Step == 0 {
		prompt := renderTemplate(block.Prompt, sess.Variables)
		if err := h.transport.AskText(ctx, sess.UserKey, prompt); err != nil {
			log.Warn().Err(err).Str("user_key", sess.UserKey).Msg("ask_text failed, continuing")
		}
		sess.Step = 1
		return ResultWait, nil
	}

	if input == nil {
		return ResultWait, nil
	}

	inputType := block.InputType
	if inputType == "" {
		inputType = models.VarString
	}
	value, err := coerce(*input, inputType)
	if err != nil {
		if sendErr := h.transport.Send(ctx, sess.UserKey, "Ошибка: значение должно быть типа "+string(inputType)+". Попробуйте ещё раз."); sendErr != nil {
			log.Warn().Err(sendErr).Str("user_key", sess.UserKey).Msg("send failed, continuing")
		}
		return ResultWait, nil
	}

	sess.Variables[block.Var] = value
	sess.Step = 0
	return ResultContinue, nil
}

// ── choice ───────────────────────────────────────────────────

type ChoiceHandler struct {
	transport Transport
}

func (h *ChoiceHandler) Execute(ctx context.Context, sess *models.Session, block *models.Block, input *string) (Result, error) {
	if sess.Step == 0 {
		prompt := renderTemplate(block.Prompt, sess.Variables)
		opts := make([]ChoiceOption, len(block.Options))
		for i, o := range block.Options {
			opts[i] = ChoiceOption{ID: o.ID, Label: o.Label}
		}
		if err := h.transport.AskChoice(ctx, sess.UserKey, prompt, opts); err != nil {
			log.Warn().Err(err).Str("user_key", sess.UserKey).Msg("ask_choice failed, continuing")
		}
		sess.Step = 1
		return ResultWait, nil
	}

	if input == nil {
		return ResultWait, nil
	}

	idx := -1
	for i, o := range block.Options {
		if o.ID == *input {
			idx = i
			break
		}
	}
	if idx == -1 {
		if err := h.transport.Send(ctx, sess.UserKey, "Этот вариант больше недоступен. Пожалуйста, выберите снова."); err != nil {
			log.Warn().Err(err).Str("user_key", sess.UserKey).Msg("send failed, continuing")
		}
		return ResultWait, nil
	}

	sess.Variables[block.Var] = block.Options[idx].Value
	if idx >= len(block.Connections.Out) {
		log.Error().Str("block_id", block.ID).Msg("choice option index has no matching outgoing edge")
		return ResultBreak, nil
	}
	sess.CurrentBlock = block.Connections.Out[idx]
	return ResultManualSwitch, nil
}

// ── condition ────────────────────────────────────────────────

type ConditionHandler struct{}

func (h *ConditionHandler) Execute(_ context.Context, sess *models.Session, block *models.Block, _ *string) (Result, error) {
	idx := 1
	if condition.Eval(block.Condition, sess.Variables) {
		idx = 0
	}
	if idx >= len(block.Connections.Out) {
		return ResultBreak, nil
	}
	sess.CurrentBlock = block.Connections.Out[idx]
	return ResultManualSwitch, nil
}

// ── final ────────────────────────────────────────────────────

type FinalHandler struct {
	transport Transport
}

// platformMetaNames are excluded from the final summary: they are
// adapter-supplied identity fields, not collected dialog data.
var platformMetaNames = map[string]bool{
	"user_id":    true,
	"username":   true,
	"first_name": true,
}

func (h *FinalHandler) Execute(ctx context.Context, sess *models.Session, _ *models.Block, _ *string) (Result, error) {
	names := make([]string, 0, len(sess.Variables))
	for k := range sess.Variables {
		if !platformMetaNames[k] {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Диалог завершён. Собранные данные:\n")
	for _, name := range names {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(stringify(sess.Variables[name]))
		b.WriteString("\n")
	}

	if err := h.transport.Send(ctx, sess.UserKey, b.String()); err != nil {
		log.Warn().Err(err).Str("user_key", sess.UserKey).Msg("send failed, continuing")
	}
	return ResultBreak, nil
}
