package transcript

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hola0123/z-study-chat/pkg/api"
	"github.com/hola0123/z-study-chat/pkg/chat"
	"github.com/hola0123/z-study-chat/pkg/events"
	"github.com/hola0123/z-study-chat/pkg/streaming"
)

// Service is the slice of the backend client the reducer needs. *api.Client
// satisfies it.
type Service interface {
	CompletionStream(ctx context.Context, req *api.StreamRequest) (io.ReadCloser, error)
	EditMessage(ctx context.Context, chatID string, req *api.EditMessageRequest) (*api.EditMessageResponse, error)
	EditAndCompleteStream(ctx context.Context, chatID string, req *api.EditMessageRequest) (io.ReadCloser, error)
	RegenerateStream(ctx context.Context, chatID string, req *api.RegenerateRequest) (io.ReadCloser, error)
	SwitchVersion(ctx context.Context, chatID string, req *api.SwitchVersionRequest) (*api.SwitchVersionResponse, error)
	GetConversationChats(ctx context.Context, conversationID string, opts api.PageOptions) (*api.ChatsPage, error)
}

var _ Service = (*api.Client)(nil)

const defaultMaxHistoryBytes = 4 * 1024 * 1024

// Reducer drives all transcript mutations. Local changes are optimistic
// where the backend streams a reply, and wait for the authoritative response
// everywhere else. The mutex is held only between suspension points, never
// across a network call.
type Reducer struct {
	mu    sync.Mutex
	state *Transcript
	svc   Service

	model           string
	pageSize        int
	maxHistoryBytes int

	sinks  []events.EventSink
	logger zerolog.Logger

	onConversationCreated func(conversationID string, title string)
	createdFired          bool

	// turn indices with a version-changing operation in flight
	inFlight map[int]struct{}
}

type ReducerOption func(*Reducer)

func WithModel(model string) ReducerOption {
	return func(r *Reducer) {
		r.model = model
	}
}

func WithPageSize(pageSize int) ReducerOption {
	return func(r *Reducer) {
		r.pageSize = pageSize
	}
}

func WithMaxHistoryBytes(maxHistoryBytes int) ReducerOption {
	return func(r *Reducer) {
		r.maxHistoryBytes = maxHistoryBytes
	}
}

func WithSinks(sinks ...events.EventSink) ReducerOption {
	return func(r *Reducer) {
		r.sinks = append(r.sinks, sinks...)
	}
}

func WithReducerLogger(logger zerolog.Logger) ReducerOption {
	return func(r *Reducer) {
		r.logger = logger
	}
}

// WithOnConversationCreated registers a callback fired exactly once, when
// the first completed exchange returns a conversation identity.
func WithOnConversationCreated(f func(conversationID string, title string)) ReducerOption {
	return func(r *Reducer) {
		r.onConversationCreated = f
	}
}

func NewReducer(svc Service, options ...ReducerOption) *Reducer {
	ret := &Reducer{
		state:           NewTranscript(),
		svc:             svc,
		pageSize:        20,
		maxHistoryBytes: defaultMaxHistoryBytes,
		logger:          log.Logger,
		inFlight:        map[int]struct{}{},
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// Turns returns a snapshot of the displayed turns.
func (r *Reducer) Turns() []*chat.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Snapshot()
}

func (r *Reducer) ConversationID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.ConversationID
}

func (r *Reducer) HasMore() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.HasMore
}

func (r *Reducer) StateVersion() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Version
}

// Send appends an optimistic user/assistant pair, streams the completion
// into the assistant placeholder and replaces the pair's identity atomically
// when the terminal envelope arrives. On any failure the pair is removed
// again.
func (r *Reducer) Send(ctx context.Context, content string) error {
	r.mu.Lock()
	if r.pendingTailLocked() {
		r.mu.Unlock()
		return errors.New("a completion is already in flight")
	}

	user := chat.NewTurn(chat.RoleUser, content, chat.WithModel(r.model))
	user.ConversationID = r.state.ConversationID
	placeholder := chat.NewTurn(chat.RoleAssistant, "", chat.WithModel(r.model))
	if err := r.state.Apply(MutateAppendTurns(user, placeholder)); err != nil {
		r.mu.Unlock()
		return err
	}
	userIndex := user.Index
	asstIndex := placeholder.Index

	history := r.historyLocked(userIndex)
	conversationID := r.state.ConversationID
	r.mu.Unlock()

	meta := r.metadata(conversationID)
	r.publish(ctx, events.NewStartEvent(meta))

	body, err := r.svc.CompletionStream(ctx, &api.StreamRequest{
		Model:          r.model,
		Messages:       []api.HistoryMessage{{Role: chat.RoleUser, Content: content}},
		ChatHistory:    history,
		ConversationID: conversationID,
	})
	if err != nil {
		r.truncateFrom(userIndex)
		r.publish(ctx, events.NewErrorEvent(meta, err))
		return err
	}
	defer func() {
		_ = body.Close()
	}()

	completion, final, err := r.pumpStream(ctx, body, asstIndex, meta)
	if err != nil {
		r.truncateFrom(userIndex)
		r.publishStreamFailure(ctx, meta, completion, err)
		return err
	}

	r.mu.Lock()
	if err := r.state.Apply(MutateReconcileExchange(userIndex, asstIndex, final)); err != nil {
		r.mu.Unlock()
		r.truncateFrom(userIndex)
		return err
	}
	created := r.adoptConversationLocked(final)
	meta = r.finalMetadata(meta, r.state.TurnAt(asstIndex), final)
	r.mu.Unlock()

	if created != nil {
		r.publish(ctx, events.NewConversationCreatedEvent(meta, created.ConversationID, created.Title))
		if r.onConversationCreated != nil {
			r.onConversationCreated(created.ConversationID, created.Title)
		}
	}
	r.publish(ctx, events.NewFinalEvent(meta, completion))
	return nil
}

// Edit rewrites a user turn without regenerating the reply. Nothing changes
// locally until the backend confirms the new version.
func (r *Reducer) Edit(ctx context.Context, index int, content string) error {
	r.mu.Lock()
	t := r.state.TurnAt(index)
	if t == nil || t.Role != chat.RoleUser {
		r.mu.Unlock()
		return errors.Errorf("turn %d is not an editable user turn", index)
	}
	if t.Pending() {
		r.mu.Unlock()
		return errors.Errorf("turn %d has no backend identity yet", index)
	}
	if err := r.acquireTurnLocked(index); err != nil {
		r.mu.Unlock()
		return err
	}
	chatID := t.ChatID
	conversationID := r.state.ConversationID
	r.mu.Unlock()
	defer r.releaseTurn(index)

	resp, err := r.svc.EditMessage(ctx, chatID, &api.EditMessageRequest{Content: content})
	if err != nil {
		return err
	}

	r.mu.Lock()
	newVersion := 0
	totalVersions := 0
	if resp.UpdatedChat != nil {
		_ = r.state.Apply(MutateUpdateTurnFromPayload(index, resp.UpdatedChat))
	}
	if t := r.state.TurnAt(index); t != nil {
		if bi := resp.BranchInfo; bi != nil {
			if bi.NewVersionNumber > 0 {
				t.UserVersionNumber = bi.NewVersionNumber
			}
			if bi.TotalVersions > 0 {
				t.TotalVersions = bi.TotalVersions
			}
			chat.Normalize(t)
		}
		t.MarkEdited(t.UpdatedAt)
		newVersion = chat.ResolveVersionNumber(t)
		totalVersions = t.TotalVersions
	}
	r.mu.Unlock()

	meta := r.metadata(conversationID)
	meta.ChatID = chatID
	r.publish(ctx, events.NewMessageEditedEvent(meta, chatID, newVersion, totalVersions))
	return nil
}

// EditAndComplete rewrites a user turn and streams a fresh reply. Turns
// after the edited one are dropped before the stream starts; the whole tail
// is restored if the stream fails.
func (r *Reducer) EditAndComplete(ctx context.Context, index int, content string) error {
	r.mu.Lock()
	t := r.state.TurnAt(index)
	if t == nil || t.Role != chat.RoleUser {
		r.mu.Unlock()
		return errors.Errorf("turn %d is not an editable user turn", index)
	}
	if t.Pending() {
		r.mu.Unlock()
		return errors.Errorf("turn %d has no backend identity yet", index)
	}
	if err := r.acquireTurnLocked(index); err != nil {
		r.mu.Unlock()
		return err
	}
	chatID := t.ChatID
	conversationID := r.state.ConversationID
	snapshot := r.state.Snapshot()

	placeholder := chat.NewTurn(chat.RoleAssistant, "",
		chat.WithModel(r.model),
		chat.WithLinkedUserChatID(chatID),
	)
	if err := r.state.ApplyAll(
		MutateTruncateFrom(index+1),
		MutateSetContent(index, content),
		MutateAppendTurns(placeholder),
	); err != nil {
		r.mu.Unlock()
		r.releaseTurn(index)
		return err
	}
	asstIndex := placeholder.Index
	r.mu.Unlock()
	defer r.releaseTurn(index)

	meta := r.metadata(conversationID)
	meta.ChatID = chatID
	r.publish(ctx, events.NewStartEvent(meta))

	body, err := r.svc.EditAndCompleteStream(ctx, chatID, &api.EditMessageRequest{
		Content: content,
		Model:   r.model,
	})
	if err != nil {
		r.restore(snapshot)
		r.publish(ctx, events.NewErrorEvent(meta, err))
		return err
	}
	defer func() {
		_ = body.Close()
	}()

	completion, final, err := r.pumpStream(ctx, body, asstIndex, meta)
	if err != nil {
		r.restore(snapshot)
		r.publishStreamFailure(ctx, meta, completion, err)
		return err
	}

	r.mu.Lock()
	newVersion := 0
	totalVersions := 0
	if err := r.state.Apply(MutateReconcileExchange(index, asstIndex, final)); err != nil {
		r.mu.Unlock()
		r.restore(snapshot)
		return err
	}
	if t := r.state.TurnAt(index); t != nil {
		newVersion = chat.ResolveVersionNumber(t)
		totalVersions = t.TotalVersions
	}
	meta = r.finalMetadata(meta, r.state.TurnAt(asstIndex), final)
	r.mu.Unlock()

	r.publish(ctx, events.NewMessageEditedEvent(meta, chatID, newVersion, totalVersions))
	r.publish(ctx, events.NewFinalEvent(meta, completion))
	return nil
}

// Regenerate streams a new assistant version for the reply at index. The
// prior version stays in the version history; it is restored locally when
// the stream fails.
func (r *Reducer) Regenerate(ctx context.Context, index int) error {
	r.mu.Lock()
	t := r.state.TurnAt(index)
	if t == nil || t.Role != chat.RoleAssistant {
		r.mu.Unlock()
		return errors.Errorf("turn %d is not an assistant turn", index)
	}
	if t.Pending() {
		r.mu.Unlock()
		return errors.Errorf("turn %d has no backend identity yet", index)
	}
	if err := r.acquireTurnLocked(index); err != nil {
		r.mu.Unlock()
		return err
	}
	prior := t.Clone()
	chatID := t.ChatID
	conversationID := r.state.ConversationID
	if err := r.state.Apply(MutateSetContent(index, "")); err != nil {
		r.mu.Unlock()
		r.releaseTurn(index)
		return err
	}
	r.mu.Unlock()
	defer r.releaseTurn(index)

	meta := r.metadata(conversationID)
	meta.ChatID = chatID
	r.publish(ctx, events.NewStartEvent(meta))

	body, err := r.svc.RegenerateStream(ctx, chatID, &api.RegenerateRequest{Model: r.model})
	if err != nil {
		r.replaceTurn(index, prior)
		r.publish(ctx, events.NewErrorEvent(meta, err))
		return err
	}
	defer func() {
		_ = body.Close()
	}()

	completion, final, err := r.pumpStream(ctx, body, index, meta)
	if err != nil {
		r.replaceTurn(index, prior)
		r.publishStreamFailure(ctx, meta, completion, err)
		return err
	}

	r.mu.Lock()
	userIndex := index - 1
	if err := r.state.Apply(MutateReconcileExchange(userIndex, index, final)); err != nil {
		r.mu.Unlock()
		r.replaceTurn(index, prior)
		return err
	}
	if t := r.state.TurnAt(index); t != nil && t.TotalVersions <= prior.TotalVersions {
		// backends that omit version counters in the envelope still
		// created a new version
		t.TotalVersions = prior.TotalVersions + 1
		t.AssistantVersionNumber = t.TotalVersions
		chat.Normalize(t)
	}
	meta = r.finalMetadata(meta, r.state.TurnAt(index), final)
	r.mu.Unlock()

	r.publish(ctx, events.NewFinalEvent(meta, completion))
	return nil
}

// SwitchVersion selects another version of the turn at index, either
// relatively via direction ("prev" or "next") or absolutely via
// versionNumber. Only one version-changing operation per turn may be in
// flight; the loser gets ConflictError and the transcript stays untouched.
func (r *Reducer) SwitchVersion(ctx context.Context, index int, direction string, versionNumber int) error {
	r.mu.Lock()
	if _, ok := r.inFlight[index]; ok {
		r.mu.Unlock()
		return &ConflictError{Index: index}
	}
	t := r.state.TurnAt(index)
	if t == nil {
		r.mu.Unlock()
		return errors.Errorf("no turn at index %d", index)
	}
	if t.Pending() {
		r.mu.Unlock()
		return errors.Errorf("turn %d has no backend identity yet", index)
	}
	if t.TotalVersions <= 1 {
		r.mu.Unlock()
		return nil
	}
	r.inFlight[index] = struct{}{}
	chatID := t.ChatID
	conversationID := r.state.ConversationID
	versionType := "user"
	if t.Role == chat.RoleAssistant {
		versionType = "assistant"
	}
	r.mu.Unlock()
	defer r.releaseTurn(index)

	resp, err := r.svc.SwitchVersion(ctx, chatID, &api.SwitchVersionRequest{
		Direction:     direction,
		VersionNumber: versionNumber,
		VersionType:   versionType,
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	if resp.SwitchedTo != nil {
		_ = r.state.Apply(MutateUpdateTurnFromPayload(index, resp.SwitchedTo))
	}
	for _, p := range resp.ConversationThread {
		_ = r.state.Apply(MutateUpdateFromPayload(p))
	}
	currentVersion := 0
	totalVersions := 0
	if t := r.state.TurnAt(index); t != nil {
		if vi := resp.VersionInfo; vi != nil {
			if vi.TotalVersions > 0 {
				t.TotalVersions = vi.TotalVersions
			}
			chat.Normalize(t)
		}
		currentVersion = chat.ResolveVersionNumber(t)
		totalVersions = t.TotalVersions
	}
	r.mu.Unlock()

	meta := r.metadata(conversationID)
	meta.ChatID = chatID
	r.publish(ctx, events.NewVersionSwitchedEvent(meta, chatID, versionType, currentVersion, totalVersions))
	return nil
}

// LoadConversation replaces the transcript with the newest page of the given
// conversation.
func (r *Reducer) LoadConversation(ctx context.Context, conversationID string) error {
	page, err := r.svc.GetConversationChats(ctx, conversationID, api.PageOptions{
		Limit:     r.pageSize,
		SortOrder: "desc",
	})
	if err != nil {
		return err
	}

	turns := chat.TurnsFromPayloads(reversePayloads(page.Chats), 0)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.state.Apply(MutateRestoreTurns(turns)); err != nil {
		return err
	}
	r.state.ConversationID = conversationID
	r.state.LastEvaluatedKey = page.LastEvaluatedKey
	r.state.HasMore = page.HasMore
	r.createdFired = true
	return nil
}

// LoadOlder prepends the next page of older history. Displayed turns,
// including their version state, are left untouched; rows already displayed
// are dropped.
func (r *Reducer) LoadOlder(ctx context.Context) error {
	r.mu.Lock()
	if r.state.LastEvaluatedKey == "" {
		r.state.HasMore = false
	}
	if !r.state.HasMore {
		r.mu.Unlock()
		return nil
	}
	conversationID := r.state.ConversationID
	key := r.state.LastEvaluatedKey
	r.mu.Unlock()

	page, err := r.svc.GetConversationChats(ctx, conversationID, api.PageOptions{
		Limit:            r.pageSize,
		SortOrder:        "desc",
		LastEvaluatedKey: key,
	})
	if err != nil {
		return err
	}

	older := chat.TurnsFromPayloads(reversePayloads(page.Chats), 0)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.state.Apply(MutatePrependOlder(older)); err != nil {
		return err
	}
	r.state.LastEvaluatedKey = page.LastEvaluatedKey
	r.state.HasMore = page.HasMore
	return nil
}

// pumpStream feeds the body through the SSE decoder, accumulating deltas
// onto the assistant turn at asstIndex and publishing a partial event per
// delta. It returns the accumulated completion and the terminal envelope.
func (r *Reducer) pumpStream(ctx context.Context, body io.Reader, asstIndex int, meta events.EventMetadata) (string, *streaming.Final, error) {
	completion := ""
	final, err := streaming.ReadStream(ctx, body, func(ev streaming.Event) error {
		if ev.Kind != streaming.EventKindDelta {
			return nil
		}
		r.mu.Lock()
		err_ := r.state.Apply(MutateAppendDelta(asstIndex, ev.Text))
		r.mu.Unlock()
		if err_ != nil {
			return err_
		}
		completion += ev.Text
		r.publish(ctx, events.NewPartialCompletionEvent(meta, ev.Text, completion))
		return nil
	})
	if err != nil {
		return completion, nil, err
	}
	if final == nil {
		return completion, nil, errors.New("stream ended without terminal metadata")
	}
	return completion, final, nil
}

func (r *Reducer) publishStreamFailure(ctx context.Context, meta events.EventMetadata, completion string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		r.publish(ctx, events.NewInterruptEvent(meta, completion))
		return
	}
	r.publish(ctx, events.NewErrorEvent(meta, err))
}

// historyLocked builds the prior-turn history sent with a completion
// request, dropping the oldest exchanges until the payload fits the size
// bound. At least the last exchange is always kept.
func (r *Reducer) historyLocked(upTo int) []api.HistoryMessage {
	history := make([]api.HistoryMessage, 0, upTo)
	for _, t := range r.state.Turns[:upTo] {
		if t.Content == "" {
			continue
		}
		history = append(history, api.HistoryMessage{Role: t.Role, Content: t.Content})
	}

	size := historySize(history)
	for size > r.maxHistoryBytes && len(history) > 2 {
		size -= messageSize(history[0]) + messageSize(history[1])
		history = history[2:]
	}
	return history
}

func historySize(history []api.HistoryMessage) int {
	size := 0
	for _, m := range history {
		size += messageSize(m)
	}
	return size
}

func messageSize(m api.HistoryMessage) int {
	// rough JSON overhead per entry
	return len(m.Role) + len(m.Content) + 32
}

func (r *Reducer) pendingTailLocked() bool {
	if len(r.state.Turns) == 0 {
		return false
	}
	tail := r.state.Turns[len(r.state.Turns)-1]
	return tail.Role == chat.RoleAssistant && tail.Pending()
}

// adoptConversationLocked records a newly assigned conversation identity and
// reports it when this was the first time one arrived.
func (r *Reducer) adoptConversationLocked(final *streaming.Final) *chat.Conversation {
	conv := final.Conversation
	if conv == nil || conv.ConversationID == "" {
		return nil
	}
	alreadyKnown := r.state.ConversationID != ""
	_ = r.state.Apply(MutateSetConversation(conv.ConversationID, conv.Title))
	if alreadyKnown || r.createdFired {
		return nil
	}
	r.createdFired = true
	return &chat.Conversation{ConversationID: conv.ConversationID, Title: conv.Title}
}

func (r *Reducer) metadata(conversationID string) events.EventMetadata {
	return events.EventMetadata{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Model:          r.model,
	}
}

func (r *Reducer) finalMetadata(meta events.EventMetadata, asst *chat.Turn, final *streaming.Final) events.EventMetadata {
	if final.Conversation != nil {
		meta.ConversationID = final.Conversation.ConversationID
	}
	if asst != nil {
		meta.ChatID = asst.ChatID
	}
	if u := final.Usage; u != nil {
		meta.Usage = &events.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens}
	}
	if c := final.Cost; c != nil {
		meta.Cost = &events.Cost{USD: c.USD, IDR: c.IDR}
	}
	return meta
}

func (r *Reducer) truncateFrom(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.state.Apply(MutateTruncateFrom(index)); err != nil {
		r.logger.Warn().Err(err).Int("index", index).Msg("could not roll back optimistic turns")
	}
}

func (r *Reducer) restore(snapshot []*chat.Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.state.Apply(MutateRestoreTurns(snapshot))
}

func (r *Reducer) replaceTurn(index int, turn *chat.Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.state.Apply(MutateReplaceTurn(index, turn)); err != nil {
		r.logger.Warn().Err(err).Int("index", index).Msg("could not restore turn")
	}
}

// acquireTurnLocked reserves the per-index token serializing version-changing
// operations on one turn. The caller holds the mutex.
func (r *Reducer) acquireTurnLocked(index int) error {
	if _, ok := r.inFlight[index]; ok {
		return &ConflictError{Index: index}
	}
	r.inFlight[index] = struct{}{}
	return nil
}

func (r *Reducer) releaseTurn(index int) {
	r.mu.Lock()
	delete(r.inFlight, index)
	r.mu.Unlock()
}

func (r *Reducer) publish(ctx context.Context, ev events.Event) {
	for _, sink := range r.sinks {
		if err := sink.PublishEvent(ev); err != nil {
			r.logger.Warn().Err(err).Str("event_type", string(ev.Type())).Msg("failed to publish event")
		}
	}
	events.PublishEventToContext(ctx, ev)
}

func reversePayloads(payloads []*chat.TurnPayload) []*chat.TurnPayload {
	ret := make([]*chat.TurnPayload, len(payloads))
	for i, p := range payloads {
		ret[len(payloads)-1-i] = p
	}
	return ret
}
