package notes

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGet(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Create("birthplace", "Born in Topeka, Kansas in 1946"))

	note, ok := s.Get("birthplace")
	require.True(t, ok)
	assert.Equal(t, "Born in Topeka, Kansas in 1946", note.Text)
}

func TestCreateDuplicateFails(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Create("birthplace", "first"))
	assert.Error(t, s.Create("birthplace", "second"))
	assert.Error(t, s.Create("", "empty id"))
}

func TestAppendJoinsWithSingleSpace(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Create("war_years", "Drafted in 1966."))
	require.NoError(t, s.Append("war_years", "Stationed in Okinawa until 1969."))

	note, _ := s.Get("war_years")
	assert.Equal(t, "Drafted in 1966. Stationed in Okinawa until 1969.", note.Text)
}

func TestAppendSkipsSeparatorAfterTrailingWhitespace(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Create("war_years", "Drafted in 1968. "))
	require.NoError(t, s.Append("war_years", "Stationed in Okinawa."))

	note, _ := s.Get("war_years")
	assert.Equal(t, "Drafted in 1968. Stationed in Okinawa.", note.Text)

	require.NoError(t, s.Create("school", "First day.\n"))
	require.NoError(t, s.Append("school", "Second day."))

	note, _ = s.Get("school")
	assert.Equal(t, "First day.\nSecond day.", note.Text)
}

func TestAppendToEmptyNote(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Create("empty", ""))
	require.NoError(t, s.Append("empty", "now has text"))

	note, _ := s.Get("empty")
	assert.Equal(t, "now has text", note.Text)
}

func TestAppendMissingReturnsNotFound(t *testing.T) {
	s := NewStore()
	err := s.Append("ghost", "text")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	// Wrapped errors are still detected
	wrapped := fmt.Errorf("tool failed: %w", err)
	assert.True(t, IsNotFound(wrapped))
}

func TestPatchReplacesText(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Create("first_job", "Paper route"))
	require.NoError(t, s.Patch("first_job", "Paper route at twelve, then the mill at sixteen"))

	note, _ := s.Get("first_job")
	assert.Equal(t, "Paper route at twelve, then the mill at sixteen", note.Text)

	assert.True(t, IsNotFound(s.Patch("ghost", "x")))
}

func TestDelete(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Create("mistake", "wrong fact"))
	require.NoError(t, s.Delete("mistake"))

	_, ok := s.Get("mistake")
	assert.False(t, ok)
	assert.True(t, IsNotFound(s.Delete("mistake")))
}

func TestMergeUpdatesAndAddsButNeverDeletes(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Create("birthplace", "Topeka"))
	require.NoError(t, s.Create("war_years", "Okinawa"))

	// Client list omits war_years entirely and edits birthplace
	s.Merge([]Note{
		{ID: "birthplace", Text: "Topeka, Kansas"},
		{ID: "first_job", Text: "Paper route"},
	})

	assert.Equal(t, 3, s.Len())

	note, _ := s.Get("birthplace")
	assert.Equal(t, "Topeka, Kansas", note.Text)

	// Omitted note survives the merge
	note, ok := s.Get("war_years")
	require.True(t, ok)
	assert.Equal(t, "Okinawa", note.Text)

	note, _ = s.Get("first_job")
	assert.Equal(t, "Paper route", note.Text)
}

func TestMergeSkipsEmptyIDs(t *testing.T) {
	s := NewStore()
	s.Merge([]Note{{ID: "", Text: "orphan"}})
	assert.Equal(t, 0, s.Len())
}

func TestSnapshotPreservesCreationOrder(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Create("c", "third created first"))
	require.NoError(t, s.Create("a", "then this"))
	require.NoError(t, s.Create("b", "then this"))

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "c", snap[0].ID)
	assert.Equal(t, "a", snap[1].ID)
	assert.Equal(t, "b", snap[2].ID)

	// Patching does not change order
	require.NoError(t, s.Patch("c", "edited"))
	snap = s.Snapshot()
	assert.Equal(t, "c", snap[0].ID)
}

func TestNewStoreFromSnapshot(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Create("one", "1"))
	require.NoError(t, s.Create("two", "2"))

	restored := NewStoreFrom(s.Snapshot())
	snap := restored.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "one", snap[0].ID)
	assert.Equal(t, "two", snap[1].ID)

	// New creations sequence after restored notes
	require.NoError(t, restored.Create("three", "3"))
	snap = restored.Snapshot()
	assert.Equal(t, "three", snap[2].ID)
}

func TestRender(t *testing.T) {
	s := NewStore()
	assert.Equal(t, "(no notes yet)", s.Render())

	require.NoError(t, s.Create("birthplace", "Topeka"))
	rendered := s.Render()
	assert.Contains(t, rendered, "[birthplace] Topeka")
}

func TestConcurrentEditsDuringIteration(t *testing.T) {
	s := NewStore()
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Create(fmt.Sprintf("note_%d", i), "initial"))
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = s.Patch(fmt.Sprintf("note_%d", n), "patched")
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
			_ = s.Render()
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, s.Len())
}
