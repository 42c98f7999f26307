// Package audit records authentication activity off the request path.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/infolock/server/internal/logging"
	"github.com/infolock/server/internal/model"
	"github.com/infolock/server/internal/repo"
	"go.uber.org/zap"
)

// Client is the requester metadata captured by the HTTP layer
type Client struct {
	IP        string
	UserAgent string
}

// Event is one auditable occurrence. Principal is nil when the identity was unknown.
type Event struct {
	Principal *model.OwnerRef
	Email     string
	Action    model.ActivityAction
	Success   bool
	Client    Client
}

// Auditor writes activity entries asynchronously. Each write is bounded by
// timeout and a failure is logged, never returned.
type Auditor struct {
	repo    repo.ActivityRepo
	geo     Geolocator
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time

	wg sync.WaitGroup
}

// New creates an Auditor. geo may be nil.
func New(activityRepo repo.ActivityRepo, geo Geolocator, timeout time.Duration, log *zap.Logger) *Auditor {
	if geo == nil {
		geo = NoGeolocation{}
	}
	return &Auditor{
		repo:    activityRepo,
		geo:     geo,
		timeout: timeout,
		log:     log,
		now:     time.Now,
	}
}

// Record returns immediately; the entry is enriched and stored in the background
func (a *Auditor) Record(ev Event) {
	entry := model.ActivityEntry{
		ID:        uuid.New(),
		Principal: ev.Principal,
		Email:     ev.Email,
		Action:    ev.Action,
		IPAddress: ev.Client.IP,
		UserAgent: ev.Client.UserAgent,
		Device:    ParseDevice(ev.Client.UserAgent),
		Success:   ev.Success,
		Timestamp: a.now().UTC(),
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				a.log.Error("activity write panicked", zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		loc, err := a.geo.Lookup(entry.IPAddress)
		if err != nil {
			a.log.Debug("geolocation lookup failed", zap.Error(err))
		}
		entry.Location = loc

		if err := a.repo.Record(ctx, entry); err != nil {
			a.log.Warn("failed to record activity",
				zap.String("action", string(entry.Action)),
				logging.Identity(entry.Email),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until all pending writes finish. Called on shutdown and in tests.
func (a *Auditor) Wait() {
	a.wg.Wait()
}
