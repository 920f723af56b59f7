package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTime(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestCreateUser(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "a@example.com", "alice", "hash", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	user, err := s.CreateUser(context.Background(), "a@example.com", "alice", "hash")
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "a@example.com", user.Email)
	assert.Equal(t, "hash", user.PasswordHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("missing@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "username", "password_hash", "created_at", "updated_at"}))

	_, err := s.GetUserByEmail(context.Background(), "missing@example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListProjects(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "user_id", "name", "description", "encrypted_path", "created_at", "updated_at"}).
		AddRow("p1", "u1", "Shop", "prod db", "ZW5jb2RlZA==", testTime(t), testTime(t)).
		AddRow("p2", "u1", "Analytics", "", "ZW5jb2RlZA==", testTime(t), testTime(t))
	mock.ExpectQuery("SELECT (.+) FROM projects WHERE user_id").
		WithArgs("u1").
		WillReturnRows(rows)

	projects, err := s.ListProjects(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "Shop", projects[0].Name)
	assert.Equal(t, "ZW5jb2RlZA==", projects[0].EncryptedPath)
}

func TestDeleteProject_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM projects").
		WithArgs("p-missing", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.DeleteProject(context.Background(), "p-missing", "u1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAppendChatMessage_TouchesSession(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chat_messages").
		WithArgs(sqlmock.AnyArg(), "sess-1", "user", "how many products?", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE chat_sessions SET updated_at").
		WithArgs(sqlmock.AnyArg(), "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg, err := s.AppendChatMessage(context.Background(), "sess-1", "user", "how many products?")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", msg.SessionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendChatMessage_RollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chat_messages").
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	_, err := s.AppendChatMessage(context.Background(), "sess-404", "user", "hi")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateChatSession_NullableProject(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO chat_sessions").
		WithArgs(sqlmock.AnyArg(), "u1", nil, "New chat", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	session, err := s.CreateChatSession(context.Background(), "", "u1", "", "New chat")
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Empty(t, session.ProjectID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
