package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wangfenghuan/draw-backend/internal/domain/model"
)

func TestAdmissionClient_Check(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req admissionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user-7", req.Principal)
		assert.Equal(t, "room-1", req.RoomID)
		json.NewEncoder(w).Encode(admissionResponse{CanView: true, CanEdit: false})
	}))
	defer srv.Close()

	client := NewAdmissionClient(srv.URL)
	adm, err := client.Check(context.Background(), "user-7", "room-1")
	require.NoError(t, err)
	assert.True(t, adm.CanView)
	assert.False(t, adm.CanEdit)
}

func TestAdmissionClient_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewAdmissionClient(srv.URL)
	_, err := client.Check(context.Background(), "user-7", "room-1")
	require.Error(t, err)
}

func TestCachingAdmitter_ServesFromCache(t *testing.T) {
	next := &fakeAdmitter{adm: model.Admission{CanView: true, CanEdit: true}}
	admitter := NewCachingAdmitter(next, 16, time.Minute, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		adm, err := admitter.Check(ctx, "user-7", "room-1")
		require.NoError(t, err)
		assert.True(t, adm.CanEdit)
	}

	assert.Equal(t, 1, next.callCount())
}

func TestCachingAdmitter_ExpiredEntryRefetches(t *testing.T) {
	next := &fakeAdmitter{adm: model.Admission{CanView: true}}
	admitter := NewCachingAdmitter(next, 16, time.Minute, testLogger()).(*cachingAdmitter)
	ctx := context.Background()

	now := time.Now()
	admitter.now = func() time.Time { return now }

	_, err := admitter.Check(ctx, "user-7", "room-1")
	require.NoError(t, err)
	require.Equal(t, 1, next.callCount())

	// Still fresh.
	now = now.Add(30 * time.Second)
	_, err = admitter.Check(ctx, "user-7", "room-1")
	require.NoError(t, err)
	assert.Equal(t, 1, next.callCount())

	// Past the TTL: the stale decision must not be reused.
	now = now.Add(time.Minute)
	_, err = admitter.Check(ctx, "user-7", "room-1")
	require.NoError(t, err)
	assert.Equal(t, 2, next.callCount())
}

func TestCachingAdmitter_ErrorsAreNotCached(t *testing.T) {
	next := &fakeAdmitter{err: assert.AnError}
	admitter := NewCachingAdmitter(next, 16, time.Minute, testLogger())
	ctx := context.Background()

	_, err := admitter.Check(ctx, "user-7", "room-1")
	require.Error(t, err)
	_, err = admitter.Check(ctx, "user-7", "room-1")
	require.Error(t, err)

	assert.Equal(t, 2, next.callCount())
}

func TestCachingAdmitter_KeysAreScopedPerRoom(t *testing.T) {
	next := &fakeAdmitter{adm: model.Admission{CanView: true}}
	admitter := NewCachingAdmitter(next, 16, time.Minute, testLogger())
	ctx := context.Background()

	_, err := admitter.Check(ctx, "user-7", "room-1")
	require.NoError(t, err)
	_, err = admitter.Check(ctx, "user-7", "room-2")
	require.NoError(t, err)

	assert.Equal(t, 2, next.callCount())
}
