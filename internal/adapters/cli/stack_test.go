package cli

import (
	"context"
	"testing"
	"time"

	"github.com/forge-platform/firebridge/internal/bg"
	"github.com/forge-platform/firebridge/internal/config"
	"github.com/forge-platform/firebridge/internal/core/services"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildStack_Local(t *testing.T) {
	ctx := context.Background()
	st, err := buildStack(ctx, testConfig(t), &services.NopLogger{}, stackOptions{runner: bg.Sync{}})
	require.NoError(t, err)
	defer st.Close(ctx)

	assert.NotNil(t, st.loop)
	assert.NotNil(t, st.plugin)
	assert.NotNil(t, st.launcher)
	assert.Nil(t, st.auth)
	assert.Nil(t, st.exporter)
	assert.Nil(t, st.uploader)

	ok, err := st.plugin.Invoke(ctx, "is_signed_in", nil)
	require.NoError(t, err)
	assert.Equal(t, false, ok)
}

func TestBuildStack_RemoteDryRun(t *testing.T) {
	ctx := context.Background()
	c := testConfig(t)
	c.Auth.APIKey = "key"
	c.Performance = config.PerformanceConfig{
		ProjectID:     "demo",
		MetricPrefix:  "custom.googleapis.com/firebridge",
		FlushInterval: time.Minute,
		BatchSize:     10,
		DryRun:        true,
	}

	st, err := buildStack(ctx, c, &services.NopLogger{}, stackOptions{remote: true})
	require.NoError(t, err)
	defer st.Close(ctx)

	assert.NotNil(t, st.auth)
	require.NotNil(t, st.exporter)
	assert.Nil(t, st.uploader, "no bucket configured")
}

func TestBuildStack_Overrides(t *testing.T) {
	ctx := context.Background()
	launcher := &scriptedLauncher{}
	ident := &scriptedIdentity{stub: IdentityStub{UID: "u"}}

	st, err := buildStack(ctx, testConfig(t), &services.NopLogger{}, stackOptions{
		runner:   bg.Sync{},
		identity: ident,
		launcher: launcher,
	})
	require.NoError(t, err)
	defer st.Close(ctx)

	assert.Nil(t, st.launcher)
	assert.NotNil(t, launcher.handler, "sign-in service registers for flow results")
}

func TestOpenStorageOnly(t *testing.T) {
	ctx := context.Background()
	st, err := openStorageOnly(ctx, testConfig(t), &services.NopLogger{}, true)
	require.NoError(t, err)
	defer st.Close(ctx)

	assert.Nil(t, st.plugin)
	assert.Nil(t, st.uploader)

	require.NoError(t, st.crash.RecordException(ctx, "boom"))
	reports, err := st.crash.Reports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "boom", reports[0].Message)

	sent, err := st.crash.SendUnsentReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestApplyFlagOverrides(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	var dir, level string
	cmd.Flags().StringVar(&dir, "data-dir", "", "")
	cmd.Flags().StringVar(&level, "log-level", "", "")
	require.NoError(t, cmd.Flags().Parse([]string{"--data-dir", "/tmp/fb"}))

	c := &config.Config{Core: config.CoreConfig{DataDir: "/orig", LogLevel: "info"}}
	applyFlagOverrides(cmd, c)

	assert.Equal(t, "/tmp/fb", c.Core.DataDir)
	assert.Equal(t, "info", c.Core.LogLevel)
}

func TestFormatParams(t *testing.T) {
	assert.Equal(t, "", formatParams(nil))
	assert.Equal(t, "{a=1, b=x}", formatParams(map[string]any{"b": "x", "a": 1}))
}
