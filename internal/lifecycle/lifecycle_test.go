package lifecycle

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/mattjoyce/gpgbridge/internal/capability"
	"github.com/mattjoyce/gpgbridge/internal/capability/mocks"
	"github.com/mattjoyce/gpgbridge/internal/log"
	"github.com/mattjoyce/gpgbridge/internal/prefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

type recorder struct {
	warnings []string
}

func (r *recorder) Warn(msg string) { r.warnings = append(r.warnings, msg) }

var (
	accepted = capability.BoolResult{RetBool: true}
	rejected = capability.BoolResult{}
)

func TestConfigureSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	store := prefs.NewMemoryStore(map[string]string{prefs.KeyBinaryPath: "/usr/bin/gpg"})
	engine := mocks.NewMockCapability(ctrl)

	gomock.InOrder(
		engine.EXPECT().SetConfigValue(gomock.Any(), capability.DirectiveBinaryPath, "/usr/bin/gpg").Return(accepted, nil),
		engine.EXPECT().SetConfigValue(gomock.Any(), capability.DirectiveInitialized, "true").Return(accepted, nil),
	)

	var states []State
	c := New(engine, store, &recorder{}, WithClock(func() time.Time { return now }), WithStateListener(func(s State) { states = append(states, s) }))
	assert.Equal(t, Unconfigured, c.State())

	require.NoError(t, c.Configure(ctx))
	assert.Equal(t, Configured, c.State())
	assert.Equal(t, []State{Configured}, states)

	v, _, _ := store.Get(ctx, prefs.KeyInitialized)
	assert.Equal(t, "true", v)
	at, ok, err := prefs.Timestamp(ctx, store, prefs.KeyLastConfigured)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.Equal(now))
}

func TestConfigureWithoutBinaryPath(t *testing.T) {
	for _, initial := range []map[string]string{nil, {prefs.KeyBinaryPath: ""}} {
		ctrl := gomock.NewController(t)
		ctx := context.Background()
		store := prefs.NewMemoryStore(initial)
		engine := mocks.NewMockCapability(ctrl)
		engine.EXPECT().SetConfigValue(gomock.Any(), capability.DirectiveInitialized, "false").Return(accepted, nil)

		w := &recorder{}
		c := New(engine, store, w)
		err := c.Configure(ctx)
		assert.ErrorIs(t, err, ErrNoBinaryPath)
		assert.Equal(t, Disabled, c.State())
		assert.Equal(t, []string{WarnNoBinaryPath}, w.warnings)

		v, _, _ := store.Get(ctx, prefs.KeyInitialized)
		assert.Equal(t, "false", v)
		_, ok, _ := store.Get(ctx, prefs.KeyLastConfigured)
		assert.False(t, ok, "failure must not record last configured")
		ctrl.Finish()
	}
}

func TestConfigureNoCapability(t *testing.T) {
	c := New(nil, prefs.NewMemoryStore(map[string]string{prefs.KeyBinaryPath: "/usr/bin/gpg"}), nil)
	assert.ErrorIs(t, c.Configure(context.Background()), ErrNoCapability)
	assert.Equal(t, Disabled, c.State())
}

func TestConfigureRejected(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(m *mocks.MockCapability)
		wantIs error
	}{
		{
			name: "path rejected",
			setup: func(m *mocks.MockCapability) {
				m.EXPECT().SetConfigValue(gomock.Any(), capability.DirectiveBinaryPath, gomock.Any()).Return(rejected, nil)
			},
			wantIs: ErrRejected,
		},
		{
			name: "initialized rejected with error result",
			setup: func(m *mocks.MockCapability) {
				m.EXPECT().SetConfigValue(gomock.Any(), capability.DirectiveBinaryPath, gomock.Any()).Return(accepted, nil)
				failed := capability.BoolResult{RetBool: true}
				failed.Fail("Internal error")
				m.EXPECT().SetConfigValue(gomock.Any(), capability.DirectiveInitialized, "true").Return(failed, nil)
			},
			wantIs: ErrRejected,
		},
		{
			name: "capability raised",
			setup: func(m *mocks.MockCapability) {
				m.EXPECT().SetConfigValue(gomock.Any(), capability.DirectiveBinaryPath, gomock.Any()).Return(nil, errBoom)
			},
			wantIs: errBoom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			engine := mocks.NewMockCapability(ctrl)
			tt.setup(engine)

			store := prefs.NewMemoryStore(map[string]string{prefs.KeyBinaryPath: "/usr/bin/gpg"})
			c := New(engine, store, nil)
			err := c.Configure(context.Background())
			assert.ErrorIs(t, err, tt.wantIs)
			assert.Equal(t, Disabled, c.State())

			_, ok, _ := store.Get(context.Background(), prefs.KeyLastConfigured)
			assert.False(t, ok)
		})
	}
}

var errBoom = errors.New("boom")

func TestConfigureIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	engine := mocks.NewMockCapability(ctrl)
	engine.EXPECT().SetConfigValue(gomock.Any(), gomock.Any(), gomock.Any()).Return(accepted, nil).Times(4)

	c := New(engine, prefs.NewMemoryStore(map[string]string{prefs.KeyBinaryPath: "/usr/bin/gpg"}), nil)
	require.NoError(t, c.Configure(context.Background()))
	require.NoError(t, c.Configure(context.Background()))
	assert.Equal(t, Configured, c.State())
}

func TestObserveReconfiguresOnBinaryPath(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	store := prefs.NewMemoryStore(nil)
	engine := mocks.NewMockCapability(ctrl)
	engine.EXPECT().SetConfigValue(gomock.Any(), capability.DirectiveBinaryPath, "/opt/gpg").Return(accepted, nil)
	engine.EXPECT().SetConfigValue(gomock.Any(), capability.DirectiveInitialized, "true").Return(accepted, nil)

	c := New(engine, store, nil)
	stop := c.Observe(ctx)
	defer stop()

	// none of these trigger configuration
	require.NoError(t, store.Set(ctx, prefs.KeyDefaultKeyID, "1234ABCD"))
	require.NoError(t, store.Set(ctx, "colour", "blue"))
	assert.Equal(t, Unconfigured, c.State())

	require.NoError(t, store.Set(ctx, prefs.KeyBinaryPath, "/opt/gpg"))
	assert.Equal(t, Configured, c.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unconfigured", Unconfigured.String())
	assert.Equal(t, "configured", Configured.String())
	assert.Equal(t, "disabled", Disabled.String())
}
