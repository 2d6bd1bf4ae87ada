package collab

import (
	"codepair/internal/model"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotOfUnknownRoom(t *testing.T) {
	s := NewStore()
	_, ok := s.Snapshot("session_x")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestMergeAndSnapshot(t *testing.T) {
	s := NewStore()
	s.MergeCode("r1", model.CodeChange{Code: "let a = 1", Language: "javascript"})
	s.MergeOutput("r1", &model.RunOutput{Success: true, Output: "1"})
	s.MergeCode("r1", model.CodeChange{Code: "let a = 2"})

	st, ok := s.Snapshot("r1")
	require.True(t, ok)
	assert.Equal(t, "let a = 2", st.Code)
	assert.Equal(t, "javascript", st.Language)
	assert.Equal(t, &model.RunOutput{Success: true, Output: "1"}, st.Output)

	_, ok = s.Snapshot("r2")
	assert.False(t, ok)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore()
	out := &model.RunOutput{Output: "a"}
	s.MergeOutput("r1", out)
	out.Output = "mutated"

	st, _ := s.Snapshot("r1")
	st.Output.Output = "also mutated"

	again, _ := s.Snapshot("r1")
	assert.Equal(t, "a", again.Output.Output)
}

func TestResetEditorKeepsLanguage(t *testing.T) {
	s := NewStore()
	s.MergeCode("r1", model.CodeChange{Code: "x", Language: "python"})
	s.MergeOutput("r1", &model.RunOutput{Output: "x"})

	st := s.ResetEditor("r1")
	assert.Equal(t, model.RoomState{Language: "python"}, st)
}

func TestEvict(t *testing.T) {
	s := NewStore()
	s.MergeCode("r1", model.CodeChange{Code: "x"})
	s.Evict("r1")
	_, ok := s.Snapshot("r1")
	assert.False(t, ok)
}

func TestConcurrentRooms(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room := fmt.Sprintf("r%d", i%4)
			for j := 0; j < 100; j++ {
				s.MergeCode(room, model.CodeChange{Code: fmt.Sprint(j), Language: "javascript"})
				s.Snapshot(room)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, s.Len())
}

func TestEvictedRoomStaysClosed(t *testing.T) {
	s := NewStore()
	s.MergeCode("r1", model.CodeChange{Code: "x"})
	s.Evict("r1")

	s.MergeCode("r1", model.CodeChange{Code: "y", Language: "go"})
	s.MergeOutput("r1", &model.RunOutput{Output: "late"})
	assert.Equal(t, model.RoomState{}, s.ResetEditor("r1"))

	assert.True(t, s.Closed("r1"))
	assert.False(t, s.Closed("r2"))
	assert.Equal(t, 0, s.Len())
}
