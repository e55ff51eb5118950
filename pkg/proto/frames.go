package proto

// Turn is one transcript entry as it appears in history frames.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NoteView is the wire representation of a note in notes_sync and
// update_notes frames.
type NoteView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ChapterView is the wire representation of one planned chapter in outline
// frames.
type ChapterView struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// ErrorMsg builds a user-visible error frame.
func ErrorMsg(message string) *Msg {
	return NewMsg(MsgTypeError).SetPayload(KeyMessage, message)
}

// ResponseMsg builds a complete assistant turn frame.
func ResponseMsg(content string) *Msg {
	return NewMsg(MsgTypeResponse).
		SetPayload(KeyRole, "assistant").
		SetPayload(KeyContent, content)
}

// DraftChunkMsg builds a streaming draft fragment. reset tells viewers to
// discard any partial draft before applying the chunk.
func DraftChunkMsg(content string, reset bool) *Msg {
	msg := NewMsg(MsgTypeDraftChunk).SetPayload(KeyContent, content)
	if reset {
		msg.SetPayload(KeyReset, true)
	}
	return msg
}

// ModeSyncMsg builds a mode_sync frame.
func ModeSyncMsg(mode string) *Msg {
	return NewMsg(MsgTypeModeSync).SetPayload(KeyMode, mode)
}

// ChapterIndexSyncMsg builds a chapter_index_sync frame.
func ChapterIndexSyncMsg(index int) *Msg {
	return NewMsg(MsgTypeChapterIndexSync).SetPayload(KeyChapterIndex, index)
}

// NotesSyncMsg builds an authoritative notes_sync frame.
func NotesSyncMsg(notes []NoteView) *Msg {
	return NewMsg(MsgTypeNotesSync).SetPayload(KeyNotes, notes)
}

// OutlineMsg builds an outline frame.
func OutlineMsg(chapters []ChapterView) *Msg {
	return NewMsg(MsgTypeOutline).SetPayload(KeyChapters, chapters)
}

// HistoryMsg builds a transcript replay frame.
func HistoryMsg(turns []Turn) *Msg {
	return NewMsg(MsgTypeHistory).SetPayload(KeyTurns, turns)
}

// LogMsg builds a diagnostic log frame. Non-authoritative, UI-debug only.
func LogMsg(level, component, message string) *Msg {
	return NewMsg(MsgTypeLog).
		SetPayload(KeyLevel, level).
		SetPayload(KeyComponent, component).
		SetPayload(KeyMessage, message)
}
