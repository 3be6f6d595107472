package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/pensim/interview-server-go/internal/errors"
	"github.com/pensim/interview-server-go/internal/model"
)

func TestRegistry(t *testing.T) {
	t.Run("register assigns id and registered status", func(t *testing.T) {
		r := NewRegistry()

		p := r.Register(model.RoleInterviewee, "Lee", "", "")
		assert.Len(t, p.id, 40)
		assert.Equal(t, model.StatusRegistered, p.status)
		assert.Equal(t, 1, r.WaitingCount())
	})

	t.Run("bind moves participant to prepared", func(t *testing.T) {
		r := NewRegistry()
		p := r.Register(model.RoleInterviewee, "Lee", "", "")

		bound, err := r.Bind(p.id, &mockConn{})
		require.NoError(t, err)
		assert.Equal(t, model.StatusPrepared, bound.status)
		assert.NotNil(t, bound.conn)
	})

	t.Run("bind unknown id", func(t *testing.T) {
		r := NewRegistry()

		_, err := r.Bind("deadbeef", &mockConn{})
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})

	t.Run("release removes from waiting partition", func(t *testing.T) {
		r := NewRegistry()
		p := r.Register(model.RoleInterviewee, "Lee", "", "")

		r.Release(p.id)
		assert.Equal(t, 0, r.WaitingCount())
		assert.Nil(t, r.Get(p.id))

		// Releasing again is a no-op.
		r.Release(p.id)
	})
}

func TestRegistryTakePeer(t *testing.T) {
	t.Run("earliest prepared peer wins", func(t *testing.T) {
		r := NewRegistry()
		first := r.Register(model.RoleInterviewee, "First", "", "")
		second := r.Register(model.RoleInterviewee, "Second", "", "")
		_, err := r.Bind(first.id, &mockConn{})
		require.NoError(t, err)
		_, err = r.Bind(second.id, &mockConn{})
		require.NoError(t, err)

		peer := r.TakePeer(model.RoleInterviewee)
		require.NotNil(t, peer)
		assert.Equal(t, first.id, peer.id)
		assert.Equal(t, 1, r.WaitingCount())
	})

	t.Run("registered but never connected is skipped", func(t *testing.T) {
		r := NewRegistry()
		r.Register(model.RoleInterviewee, "Lee", "", "")

		assert.Nil(t, r.TakePeer(model.RoleInterviewee))
	})

	t.Run("role must match", func(t *testing.T) {
		r := NewRegistry()
		p := r.Register(model.RoleInterviewee, "Lee", "", "")
		_, err := r.Bind(p.id, &mockConn{})
		require.NoError(t, err)

		assert.Nil(t, r.TakePeer(model.RoleInterviewer))
		assert.NotNil(t, r.TakePeer(model.RoleInterviewee))
	})
}

func TestRegistryReleaseStale(t *testing.T) {
	t.Run("never connected past ttl", func(t *testing.T) {
		r := NewRegistry()
		p := r.Register(model.RoleInterviewee, "Lee", "", "")
		p.registeredAt = time.Now().Add(-time.Hour)

		released := r.ReleaseStale(time.Minute)
		assert.Equal(t, 1, released)
		assert.Equal(t, 0, r.WaitingCount())
	})

	t.Run("disconnected past ttl", func(t *testing.T) {
		r := NewRegistry()
		p := r.Register(model.RoleInterviewee, "Lee", "", "")
		_, err := r.Bind(p.id, &mockConn{})
		require.NoError(t, err)
		p.disconnectedAt = time.Now().Add(-time.Hour)

		released := r.ReleaseStale(time.Minute)
		assert.Equal(t, 1, released)
	})

	t.Run("fresh registrations survive", func(t *testing.T) {
		r := NewRegistry()
		r.Register(model.RoleInterviewee, "Lee", "", "")

		released := r.ReleaseStale(time.Minute)
		assert.Equal(t, 0, released)
		assert.Equal(t, 1, r.WaitingCount())
	})
}
