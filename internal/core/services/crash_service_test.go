package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrashBreadcrumbRing(t *testing.T) {
	svc := NewCrashService(nil, nil, 3, &NopLogger{})
	for i := 0; i < 5; i++ {
		svc.Log(fmt.Sprintf("line %d", i))
	}
	assert.Equal(t, []string{"line 2", "line 3", "line 4"}, svc.Breadcrumbs())
}

func TestRecordException(t *testing.T) {
	repo := &fakeReportRepo{}
	svc := NewCrashService(repo, nil, 0, &NopLogger{})

	svc.Log("opened shop")
	svc.SetCustomKey("scene", "shop")
	svc.SetUserID("uid-9")
	require.NoError(t, svc.RecordException(context.Background(), "null item"))

	require.Len(t, repo.reports, 1)
	r := repo.reports[0]
	assert.Equal(t, "null item", r.Message)
	assert.Equal(t, []string{"opened shop"}, r.Breadcrumbs)
	assert.Equal(t, map[string]string{"scene": "shop"}, r.CustomKeys)
	assert.Equal(t, "uid-9", r.UserID)
	assert.False(t, r.Sent())

	svc.SetCustomKey("scene", "menu")
	assert.Equal(t, "shop", r.CustomKeys["scene"], "reports snapshot keys")
}

func TestSendUnsentReports(t *testing.T) {
	repo := &fakeReportRepo{}
	uploader := &fakeUploader{}
	svc := NewCrashService(repo, uploader, 0, &NopLogger{})
	ctx := context.Background()

	require.NoError(t, svc.RecordException(ctx, "a"))
	require.NoError(t, svc.RecordException(ctx, "b"))

	n, err := svc.SendUnsentReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, uploader.uploaded, 2)
	assert.True(t, repo.reports[0].Sent())

	n, err = svc.SendUnsentReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSendUnsentReportsStopsOnFailure(t *testing.T) {
	repo := &fakeReportRepo{}
	uploader := &fakeUploader{failOn: 2}
	svc := NewCrashService(repo, uploader, 0, &NopLogger{})
	ctx := context.Background()

	for _, m := range []string{"a", "b", "c"} {
		require.NoError(t, svc.RecordException(ctx, m))
	}

	n, err := svc.SendUnsentReports(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, repo.reports[0].Sent())
	assert.False(t, repo.reports[1].Sent())
}

func TestCrashWithoutCollaborators(t *testing.T) {
	svc := NewCrashService(nil, nil, 0, &NopLogger{})
	ctx := context.Background()

	assert.NoError(t, svc.RecordException(ctx, "x"))
	n, err := svc.SendUnsentReports(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = svc.Reports(ctx, 10)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestCrashWithoutUploaderKeepsReports(t *testing.T) {
	repo := &fakeReportRepo{}
	svc := NewCrashService(repo, nil, 0, &NopLogger{})
	ctx := context.Background()

	require.NoError(t, svc.RecordException(ctx, "x"))
	n, err := svc.SendUnsentReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	reports, err := svc.Reports(ctx, 0)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.False(t, reports[0].Sent())
}
