package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/infolock/server/internal/model"
	"github.com/infolock/server/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	chromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	safariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	firefoxTablet = "Mozilla/5.0 (Tablet; rv:26.0) Gecko/26.0 Firefox/26.0"
)

func TestParseDevice(t *testing.T) {
	d := ParseDevice(chromeWindows)
	assert.Equal(t, "Chrome", d.Browser)
	assert.Contains(t, d.OS, "Windows")
	assert.Equal(t, DeviceDesktop, d.DeviceType)

	assert.Equal(t, DeviceMobile, ParseDevice(safariIPhone).DeviceType)
	assert.Equal(t, DeviceTablet, ParseDevice(firefoxTablet).DeviceType)
	assert.Equal(t, model.Device{DeviceType: DeviceDesktop}, ParseDevice(""))
}

type fixedGeo struct{ loc *model.Location }

func (g fixedGeo) Lookup(string) (*model.Location, error) { return g.loc, nil }

func TestAuditor_RecordsEnrichedEntry(t *testing.T) {
	store := repo.NewMemoryActivityRepo()
	loc := &model.Location{Country: "India", City: "Pune", Latitude: 18.52, Longitude: 73.85}
	a := New(store, fixedGeo{loc: loc}, time.Second, zap.NewNop())

	ref := model.OwnerRef{Kind: model.KindUser, ID: uuid.New()}
	a.Record(Event{
		Principal: &ref,
		Email:     "jane@example.com",
		Action:    model.ActionLogin,
		Success:   true,
		Client:    Client{IP: "203.0.113.7", UserAgent: chromeWindows},
	})
	a.Wait()

	entries := store.Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, &ref, e.Principal)
	assert.Equal(t, model.ActionLogin, e.Action)
	assert.Equal(t, "203.0.113.7", e.IPAddress)
	assert.Equal(t, loc, e.Location)
	assert.Equal(t, DeviceDesktop, e.Device.DeviceType)
	assert.True(t, e.Success)
	assert.False(t, e.Timestamp.IsZero())
}

type failingRepo struct{}

func (failingRepo) Record(context.Context, model.ActivityEntry) error {
	return errors.New("store unavailable")
}

type blockingRepo struct{}

func (blockingRepo) Record(ctx context.Context, _ model.ActivityEntry) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestAuditor_FailuresAreSwallowed(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	a := New(failingRepo{}, nil, time.Second, zap.New(core))

	a.Record(Event{Email: "ghost@example.com", Action: model.ActionLogin})
	a.Wait()

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "failed to record activity", entries[0].Message)
	assert.Equal(t, "gh*st@example.com", entries[0].ContextMap()["identity"])
}

func TestAuditor_WriteIsTimeBounded(t *testing.T) {
	a := New(blockingRepo{}, nil, 200*time.Millisecond, zap.NewNop())

	start := time.Now()
	a.Record(Event{Action: model.ActionLogout})
	assert.Less(t, time.Since(start), 150*time.Millisecond, "Record must not block the caller")

	a.Wait()
	assert.Less(t, time.Since(start), time.Second)
}
