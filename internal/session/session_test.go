package session

import (
	"context"
	"os"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/mattjoyce/gpgbridge/internal/capability/mocks"
	"github.com/mattjoyce/gpgbridge/internal/events"
	"github.com/mattjoyce/gpgbridge/internal/lifecycle"
	"github.com/mattjoyce/gpgbridge/internal/log"
	"github.com/mattjoyce/gpgbridge/internal/prefs"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

func types(evs []events.Event) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type)
	}
	return out
}

func TestStartWithoutBinaryPathPublishesWarning(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	engine := mocks.NewMockCapability(ctrl)
	engine.EXPECT().SetConfigValue(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	hub := events.NewHub(10)
	s := New(engine, prefs.NewMemoryStore(nil), hub)
	defer s.Close()

	s.Start(context.Background())
	assert.Equal(t, lifecycle.Disabled, s.Lifecycle.State())

	got := types(hub.SnapshotSince(0))
	assert.Contains(t, got, events.TypeLifecycleWarning)
	assert.Contains(t, got, events.TypeLifecycleState)
	assert.Contains(t, got, events.TypePrefsChanged)
}

func TestCloseStopsObserving(t *testing.T) {
	store := prefs.NewMemoryStore(nil)
	hub := events.NewHub(10)
	s := New(nil, store, hub)
	s.Close()

	_ = store.Set(context.Background(), prefs.KeyDefaultKeyID, "1234ABCD")
	assert.Empty(t, hub.SnapshotSince(0))
}
