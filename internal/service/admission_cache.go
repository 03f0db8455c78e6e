package service

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/wangfenghuan/draw-backend/internal/domain/model"
)

// cachingAdmitter implements [DECORATOR_PATTERN] around the Admitter to keep
// hot capability decisions off the network. Entries carry their own expiry so
// revoked access converges within the TTL.
type cachingAdmitter struct {
	next   Admitter
	cache  *lru.Cache[string, cachedDecision]
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

type cachedDecision struct {
	adm     model.Admission
	expires time.Time
}

// NewCachingAdmitter wraps an Admitter with an LRU + TTL cache.
func NewCachingAdmitter(next Admitter, size int, ttl time.Duration, logger *slog.Logger) Admitter {
	if size <= 0 {
		size = 1024
	}
	// [MEMORY_MANAGEMENT] Pre-allocated LRU keeps only "hot" identities.
	cache, _ := lru.New[string, cachedDecision](size)
	return &cachingAdmitter{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

func (a *cachingAdmitter) Check(ctx context.Context, principal, roomID string) (model.Admission, error) {
	key := principal + "|" + roomID

	if cached, ok := a.cache.Get(key); ok && a.now().Before(cached.expires) {
		return cached.adm, nil
	}

	start := a.now()
	adm, err := a.next.Check(ctx, principal, roomID)
	if err != nil {
		a.logger.Warn("ADMISSION_CHECK_FAILED",
			"room_id", roomID,
			"err", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return adm, err
	}

	a.cache.Add(key, cachedDecision{adm: adm, expires: a.now().Add(a.ttl)})
	return adm, nil
}
