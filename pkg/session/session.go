// Package session implements the per-book session actor: a single-writer
// state container that drives the interview/writing state machine, mediates
// between connected viewers and the LLM backend, and persists its state
// after every mutation.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"ghostwriter/pkg/config"
	"ghostwriter/pkg/contextmgr"
	"ghostwriter/pkg/llm"
	"ghostwriter/pkg/llm/middleware/metrics"
	"ghostwriter/pkg/llm/middleware/retry"
	"ghostwriter/pkg/llm/middleware/timeout"
	"ghostwriter/pkg/logx"
	"ghostwriter/pkg/notes"
	"ghostwriter/pkg/persistence"
	"ghostwriter/pkg/proto"
)

// Transcript turn roles.
const (
	roleUser      = "user"
	roleAssistant = "assistant"
	roleTool      = "tool"
)

// Viewer is one attached client connection. Sends are best-effort; a failed
// send never fails the session.
type Viewer interface {
	ID() string
	Send(msg *proto.Msg) error
}

// Deps carries the shared collaborators a session needs.
type Deps struct {
	Cfg      *config.Config
	Store    *persistence.Store
	Client   llm.Client
	Recorder metrics.Recorder
}

type envelope struct {
	viewer Viewer
	msg    *proto.Msg
}

// Session is the durable actor for one book. All inbound messages are
// processed one at a time by the run loop; note patches and cancellation are
// the only operations applied outside it, because they are idempotent and
// safe against a mid-flight agent loop.
type Session struct {
	logger *logx.Logger
	cfg    *config.Config
	store  *persistence.Store

	interviewClient llm.Client
	writerClient    llm.Client
	expanderClient  llm.Client
	assembler       *contextmgr.Assembler

	bookID string
	userID string

	mailbox  chan envelope
	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup

	viewersMu sync.RWMutex
	viewers   map[string]Viewer

	// State below is owned by the run loop; stateMu makes it readable from
	// the direct-path handlers and snapshot builds.
	stateMu      sync.RWMutex
	phase        string
	chapterIndex int
	transcript   []proto.Turn
	draft        string
	manuscript   string
	outline      []*persistence.OutlineChapter

	notes *notes.Store

	isProcessing atomic.Bool

	cancelMu     sync.Mutex
	cancelStream context.CancelFunc
}

// New loads or creates the session for a book. The book must already exist;
// session state is created implicitly on first attach.
func New(deps Deps, bookID string) (*Session, error) {
	book, err := deps.Store.GetBookByID(bookID)
	if err != nil {
		return nil, fmt.Errorf("cannot open session: %w", err)
	}

	s := &Session{
		logger:       logx.NewLogger("session-" + bookID),
		cfg:          deps.Cfg,
		store:        deps.Store,
		bookID:       bookID,
		userID:       book.UserID,
		mailbox:      make(chan envelope, 64),
		quit:         make(chan struct{}),
		viewers:      make(map[string]Viewer),
		phase:        proto.ModeInterview,
		chapterIndex: 1,
		notes:        notes.NewStore(),
		assembler:    contextmgr.NewAssembler(deps.Cfg.LLM.Model),
	}
	s.buildClients(deps)

	snapshot, err := deps.Store.LoadSessionSnapshot(bookID)
	switch {
	case err == nil:
		s.restore(snapshot)
	case errors.Is(err, persistence.ErrSessionNotFound):
		// Fresh session, defaults above apply.
	default:
		return nil, fmt.Errorf("cannot load session state: %w", err)
	}

	if outline, err := deps.Store.GetOutline(bookID); err == nil {
		s.outline = outline
	} else {
		s.logger.Warn("failed to read outline on load: %v", err)
	}

	return s, nil
}

// buildClients wraps the base client with per-agent middleware chains. The
// interview and expander calls carry a timeout; the writer stream does not,
// because chapter generation may legitimately run long and is cancelled only
// by explicit user action.
func (s *Session) buildClients(deps Deps) {
	recorder := deps.Recorder
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	policy := retry.NewPolicy(retry.DefaultConfig, nil)

	s.interviewClient = llm.Chain(deps.Client,
		retry.Middleware(policy),
		timeout.Middleware(s.cfg.LLM.InterviewTimeout),
		metrics.Middleware(recorder, nil, s.bookID, "interview", s.logger),
	)
	s.writerClient = llm.Chain(deps.Client,
		retry.Middleware(policy),
		metrics.Middleware(recorder, nil, s.bookID, "writer", s.logger),
	)
	s.expanderClient = llm.Chain(deps.Client,
		retry.Middleware(policy),
		timeout.Middleware(s.cfg.LLM.InterviewTimeout),
		metrics.Middleware(recorder, nil, s.bookID, "expander", s.logger),
	)
}

func (s *Session) restore(snapshot *persistence.SessionSnapshot) {
	s.phase = snapshot.Phase
	if s.phase != proto.ModeInterview && s.phase != proto.ModeWriting {
		s.phase = proto.ModeInterview
	}
	s.chapterIndex = snapshot.ChapterIndex
	if s.chapterIndex < 1 {
		s.chapterIndex = 1
	}
	s.transcript = append([]proto.Turn(nil), snapshot.Transcript...)
	s.draft = snapshot.Draft
	s.manuscript = snapshot.Manuscript
	s.notes = notes.NewStoreFrom(snapshot.Notes)
}

// Start launches the run loop.
func (s *Session) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop aborts any in-flight stream, drains the run loop, and persists a
// final snapshot.
func (s *Session) Stop() {
	s.cancelActiveStream()
	s.quitOnce.Do(func() { close(s.quit) })
	s.wg.Wait()
	s.persist()
}

// BookID returns the book this session belongs to.
func (s *Session) BookID() string {
	return s.bookID
}

// Phase returns the current phase.
func (s *Session) Phase() string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.phase
}

// IsProcessing reports whether an agent loop or stream is mid-flight.
func (s *Session) IsProcessing() bool {
	return s.isProcessing.Load()
}

// Attach registers a viewer for broadcasts. The viewer still has to send
// init to receive its state resync.
func (s *Session) Attach(v Viewer) {
	s.viewersMu.Lock()
	defer s.viewersMu.Unlock()
	s.viewers[v.ID()] = v
}

// Detach removes a viewer. Missed broadcasts are recovered by the next init.
func (s *Session) Detach(v Viewer) {
	s.viewersMu.Lock()
	defer s.viewersMu.Unlock()
	delete(s.viewers, v.ID())
}

// Deliver routes one inbound client message. Note edits and cancellation are
// applied immediately even while an agent loop is in flight; free-text turns
// are dropped while busy; everything else goes through the mailbox in
// arrival order.
func (s *Session) Deliver(v Viewer, msg *proto.Msg) {
	switch msg.Type {
	case proto.MsgTypePatchNote:
		s.handlePatchNote(msg)
		return
	case proto.MsgTypeUpdateNotes:
		s.handleUpdateNotes(msg)
		return
	case proto.MsgTypeDeleteNote:
		s.handleDeleteNote(msg)
		return
	case proto.MsgTypeCancelGeneration:
		s.handleCancelGeneration()
		return
	case proto.MsgTypeMessage:
		// Checked again by the handler; this early check keeps busy-time
		// messages from queueing behind a long stream.
		if s.isProcessing.Load() || s.Phase() == proto.ModeWriting {
			s.logger.Debug("dropping user message while busy")
			return
		}
	}

	select {
	case s.mailbox <- envelope{viewer: v, msg: msg}:
	case <-s.quit:
	default:
		s.logger.Warn("mailbox full, dropping %s", msg.Type)
	}
}

func (s *Session) run() {
	defer s.wg.Done()
	for {
		select {
		case env := <-s.mailbox:
			s.handle(env)
		case <-s.quit:
			return
		}
	}
}

func (s *Session) handle(env envelope) {
	// A panic in one message's handling must not kill the actor or leave
	// the busy flag stuck.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic handling %s: %v", env.msg.Type, r)
			s.isProcessing.Store(false)
			s.broadcast(proto.LogMsg(string(logx.LevelError), s.logger.GetComponent(),
				fmt.Sprintf("recovered while handling %s", env.msg.Type)))
		}
	}()

	ctx := context.Background()

	switch env.msg.Type {
	case proto.MsgTypeInit:
		s.handleInit(env.viewer)
	case proto.MsgTypeMessage:
		content, _ := env.msg.GetString(proto.KeyContent)
		s.handleUserMessage(ctx, content)
	case proto.MsgTypeRetryChapter:
		s.handleRetryChapter(ctx)
	case proto.MsgTypeNextChapter:
		s.handleNextChapter()
	case proto.MsgTypeExpandOutline:
		instruction, _ := env.msg.GetString(proto.KeyInstruction)
		s.handleExpandOutline(ctx, instruction)
	default:
		s.sendTo(env.viewer, proto.ErrorMsg(fmt.Sprintf("unsupported message type %s", env.msg.Type)))
	}
}

// handleInit resyncs the attaching viewer to the authoritative state and, on
// a fresh chapter, emits the opening assistant turn.
func (s *Session) handleInit(v Viewer) {
	if outline, err := s.store.GetOutline(s.bookID); err == nil {
		s.stateMu.Lock()
		s.outline = outline
		s.stateMu.Unlock()
	} else {
		s.logger.Warn("failed to refresh outline: %v", err)
	}

	s.stateMu.RLock()
	frames := []*proto.Msg{
		proto.OutlineMsg(s.outlineViewsLocked()),
		proto.ModeSyncMsg(s.phase),
		proto.ChapterIndexSyncMsg(s.chapterIndex),
		s.historyMsgLocked(),
	}
	draft := s.draft
	phase := s.phase
	emptyTranscript := len(s.visibleTranscriptLocked()) == 0
	s.stateMu.RUnlock()

	frames = append(frames, proto.NotesSyncMsg(s.noteViews()))
	if draft != "" {
		frames = append(frames, proto.DraftChunkMsg(draft, true))
	}
	s.sendTo(v, frames...)

	if phase == proto.ModeInterview && emptyTranscript {
		s.greet()
	}
}

// handleUserMessage appends the user turn and runs one interview agent loop.
func (s *Session) handleUserMessage(ctx context.Context, content string) {
	if content == "" {
		return
	}
	if s.Phase() == proto.ModeWriting {
		return
	}
	if !s.isProcessing.CompareAndSwap(false, true) {
		return
	}
	defer s.isProcessing.Store(false)

	if !s.appendTurn(roleUser, content) {
		// Duplicate delivery of the same turn; nothing new to do.
		return
	}
	s.persist()
	s.runInterviewTurn(ctx)
}

// handleRetryChapter discards the current draft and regenerates it.
func (s *Session) handleRetryChapter(ctx context.Context) {
	if s.Phase() != proto.ModeWriting {
		s.broadcast(proto.ErrorMsg("nothing to retry: no chapter is being written"))
		return
	}
	if !s.isProcessing.CompareAndSwap(false, true) {
		return
	}
	defer s.isProcessing.Store(false)

	s.runWriter(ctx)
}

// handleNextChapter archives the finished draft into the manuscript,
// advances the chapter pointer, and resets the ephemeral state.
func (s *Session) handleNextChapter() {
	if s.Phase() != proto.ModeWriting {
		s.broadcast(proto.ErrorMsg("no finished draft to accept"))
		return
	}

	s.stateMu.Lock()
	index := s.chapterIndex
	draft := s.draft
	title := fmt.Sprintf("Chapter %d", index)
	if ch := s.chapterAtLocked(index); ch != nil {
		title = ch.Title
	}
	s.manuscript += draft
	s.draft = ""
	s.transcript = nil
	s.chapterIndex++
	s.phase = proto.ModeInterview
	s.notes = notes.NewStore()
	s.stateMu.Unlock()

	if err := s.store.ArchiveChapter(&persistence.ArchivedChapter{
		BookID:  s.bookID,
		Index:   index,
		Title:   title,
		Content: draft,
		Status:  persistence.ChapterStatusFinal,
	}); err != nil {
		s.logger.Error("failed to archive chapter %d: %v", index, err)
	}

	s.persist()
	s.broadcast(
		proto.ModeSyncMsg(proto.ModeInterview),
		proto.ChapterIndexSyncMsg(index+1),
		proto.NotesSyncMsg(s.noteViews()),
		s.historyMsg(),
	)
	s.greet()
}

// handleCancelGeneration aborts any in-flight stream and deterministically
// returns the session to the interview phase. Runs on the direct path so it
// is not stuck behind the stream it is trying to abort.
func (s *Session) handleCancelGeneration() {
	s.cancelActiveStream()

	s.stateMu.Lock()
	changed := s.phase != proto.ModeInterview
	s.phase = proto.ModeInterview
	s.stateMu.Unlock()

	s.persist()
	if changed {
		s.broadcast(proto.ModeSyncMsg(proto.ModeInterview))
	}
}

// Direct-path note handlers. The notes store is internally synchronized, so
// these are safe against a concurrent agent loop.

func (s *Session) handlePatchNote(msg *proto.Msg) {
	id, ok := msg.GetString(proto.KeyNoteID)
	if !ok {
		return
	}
	text, _ := msg.GetString(proto.KeyText)

	store := s.notesStore()
	if err := store.Patch(id, text); err != nil {
		if !notes.IsNotFound(err) {
			s.logger.Warn("patch_note %s failed: %v", id, err)
			return
		}
		// The viewer edited a card the server no longer has; treat it as a
		// fresh note rather than losing the edit.
		if err := store.Create(id, text); err != nil {
			s.logger.Warn("patch_note %s create fallback failed: %v", id, err)
			return
		}
	}
	s.persist()
	s.broadcast(proto.NotesSyncMsg(s.noteViews()))
}

func (s *Session) handleUpdateNotes(msg *proto.Msg) {
	var views []proto.NoteView
	if err := msg.DecodePayload(proto.KeyNotes, &views); err != nil {
		s.logger.Warn("update_notes with malformed payload: %v", err)
		return
	}

	incoming := make([]notes.Note, 0, len(views))
	for _, v := range views {
		incoming = append(incoming, notes.Note{ID: v.ID, Text: v.Text})
	}
	s.notesStore().Merge(incoming)

	s.persist()
	s.broadcast(proto.NotesSyncMsg(s.noteViews()))
}

func (s *Session) handleDeleteNote(msg *proto.Msg) {
	id, ok := msg.GetString(proto.KeyNoteID)
	if !ok {
		return
	}
	if err := s.notesStore().Delete(id); err != nil {
		s.logger.Debug("delete_note %s: %v", id, err)
		return
	}
	s.persist()
	s.broadcast(proto.NotesSyncMsg(s.noteViews()))
}

// greet synthesizes the opening assistant turn for the current chapter. Goes
// through duplicate suppression so racing init/next-chapter/expand callbacks
// cannot double-greet; on suppression the full transcript is re-sent instead
// so every viewer converges to the same state.
func (s *Session) greet() {
	s.stateMu.RLock()
	ch := s.chapterAtLocked(s.chapterIndex)
	s.stateMu.RUnlock()

	var text string
	if ch == nil {
		text = "That was the last planned chapter. Ask me to expand the outline when you are ready to map out what comes next."
	} else {
		text = fmt.Sprintf("Let's work on chapter %d, %q. The plan: %s Where would you like to begin?",
			ch.Index, ch.Title, ch.Summary)
	}

	if s.appendTurn(roleAssistant, text) {
		s.persist()
		s.broadcast(proto.ResponseMsg(text))
	} else {
		s.broadcast(s.historyMsg())
	}
}

// appendTurn appends a transcript turn unless it is identical in role and
// content to the current last turn. Returns false when suppressed.
func (s *Session) appendTurn(role, content string) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if n := len(s.transcript); n > 0 {
		last := s.transcript[n-1]
		if last.Role == role && last.Content == content {
			return false
		}
	}
	s.transcript = append(s.transcript, proto.Turn{Role: role, Content: content})
	return true
}

func (s *Session) setCancelStream(cancel context.CancelFunc) {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	s.cancelStream = cancel
}

func (s *Session) cancelActiveStream() {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.cancelStream != nil {
		s.cancelStream()
		s.cancelStream = nil
	}
}

// persist writes the full session snapshot. Called after every state-changing
// message so a process restart loses nothing.
func (s *Session) persist() {
	s.stateMu.RLock()
	snapshot := &persistence.SessionSnapshot{
		BookID:       s.bookID,
		UserID:       s.userID,
		Phase:        s.phase,
		ChapterIndex: s.chapterIndex,
		Transcript:   append([]proto.Turn(nil), s.transcript...),
		Draft:        s.draft,
		Manuscript:   s.manuscript,
		Outline:      s.outline,
		Provider:     string(s.cfg.LLM.Provider),
		Model:        s.cfg.LLM.Model,
	}
	noteStore := s.notes
	s.stateMu.RUnlock()
	snapshot.Notes = noteStore.Snapshot()

	if err := s.store.SaveSessionSnapshot(snapshot); err != nil {
		s.logger.Error("failed to persist session: %v", err)
	}
}

// broadcast fans a message out to every attached viewer. A failed send is
// dropped for that viewer only; it resyncs on its next init.
func (s *Session) broadcast(msgs ...*proto.Msg) {
	s.viewersMu.RLock()
	viewers := make([]Viewer, 0, len(s.viewers))
	for _, v := range s.viewers {
		viewers = append(viewers, v)
	}
	s.viewersMu.RUnlock()

	for _, msg := range msgs {
		for _, v := range viewers {
			if err := v.Send(msg); err != nil {
				s.logger.Debug("dropped %s to viewer %s: %v", msg.Type, v.ID(), err)
			}
		}
	}
}

func (s *Session) sendTo(v Viewer, msgs ...*proto.Msg) {
	if v == nil {
		return
	}
	for _, msg := range msgs {
		if err := v.Send(msg); err != nil {
			s.logger.Debug("dropped %s to viewer %s: %v", msg.Type, v.ID(), err)
			return
		}
	}
}

// notesStore returns the current notes store. The pointer is swapped on
// chapter advance, so direct-path handlers read it under the state lock.
func (s *Session) notesStore() *notes.Store {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.notes
}

func (s *Session) noteViews() []proto.NoteView {
	snapshot := s.notesStore().Snapshot()
	views := make([]proto.NoteView, 0, len(snapshot))
	for _, n := range snapshot {
		views = append(views, proto.NoteView{ID: n.ID, Text: n.Text})
	}
	return views
}

func (s *Session) outlineViewsLocked() []proto.ChapterView {
	views := make([]proto.ChapterView, 0, len(s.outline))
	for _, ch := range s.outline {
		views = append(views, proto.ChapterView{Index: ch.Index, Title: ch.Title, Summary: ch.Summary})
	}
	return views
}

// visibleTranscriptLocked returns the user and assistant turns; tool turns
// are internal bookkeeping and never shown to viewers.
func (s *Session) visibleTranscriptLocked() []proto.Turn {
	visible := make([]proto.Turn, 0, len(s.transcript))
	for _, turn := range s.transcript {
		if turn.Role == roleUser || turn.Role == roleAssistant {
			visible = append(visible, turn)
		}
	}
	return visible
}

func (s *Session) historyMsgLocked() *proto.Msg {
	return proto.HistoryMsg(s.visibleTranscriptLocked()).
		SetPayload(proto.KeyManuscript, s.manuscript)
}

func (s *Session) historyMsg() *proto.Msg {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.historyMsgLocked()
}

func (s *Session) chapterAtLocked(index int) *persistence.OutlineChapter {
	for _, ch := range s.outline {
		if ch.Index == index {
			return ch
		}
	}
	return nil
}
