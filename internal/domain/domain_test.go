package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	u, err := NewUser(" ann ", "", "")
	require.NoError(t, err)
	assert.Equal(t, UserID("ann"), u.ID)
	assert.Equal(t, "ann", u.Name)

	_, err = NewUser("", "Ann", "")
	assert.ErrorIs(t, err, ErrUserIDEmpty)

	_, err = NewUser("ann", strings.Repeat("a", MaxUsernameLen+1), "")
	assert.ErrorIs(t, err, ErrUsernameTooLong)
}

func TestRoomTopology(t *testing.T) {
	assert.Equal(t, RoomID("workspace:ws1"), WorkspaceRoom("ws1"))
	assert.Equal(t, RoomID("diagram:ws1:d1"), DiagramRoom("ws1", "d1"))
	assert.Equal(t, RoomID("thread:t1"), ThreadRoom("t1"))
	assert.NotEqual(t, DiagramRoom("ws1", "d1"), DiagramRoom("ws2", "d1"))

	assert.Equal(t, RoomKindWorkspace, WorkspaceRoom("ws1").Kind())
	assert.Equal(t, RoomKindDiagram, DiagramRoom("ws1", "d1").Kind())
	assert.Equal(t, RoomKindThread, ThreadRoom("t1").Kind())
	assert.Equal(t, RoomKind(""), RoomID("lobby").Kind())
	assert.Equal(t, RoomKind(""), RoomID("other:x").Kind())
}

func TestRoles(t *testing.T) {
	assert.Equal(t, RoleViewer, NormalizeRole("guest"))
	assert.Equal(t, RoleEditor, NormalizeRole("editor"))
	assert.True(t, RoleOwner.CanEdit())
	assert.True(t, RoleEditor.CanEdit())
	assert.False(t, RoleViewer.CanEdit())
}

func TestColorForIsStable(t *testing.T) {
	c := ColorFor("ann")
	assert.Equal(t, c, ColorFor("ann"))
	assert.Contains(t, palette, c)
}

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewError(CodeForbidden, "read-only"))
	assert.Equal(t, CodeForbidden, CodeOf(err))
	assert.True(t, IsExpected(err))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.False(t, IsExpected(errors.New("boom")))
}
