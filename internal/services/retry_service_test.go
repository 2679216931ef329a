package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/models"
)

func seedFailedResponse(t *testing.T, env *testEnv, formID string, attempts int) *models.Response {
	t.Helper()
	response := &models.Response{
		ID:               uuid.NewString(),
		FormID:           formID,
		ExternalRecordID: models.LocalRecordPrefix + uuid.NewString(),
		Status:           models.StatusFailed,
		SyncAttempts:     attempts,
		LastSyncError:    "rate limit exceeded",
	}
	require.NoError(t, response.SetAnswers([]models.Answer{
		{QuestionKey: "name", Value: "Ada", SubmittedAt: time.Now()},
	}))
	require.NoError(t, env.responses.Create(context.Background(), response))
	return response
}

func TestRetryFailedSyncsRecovers(t *testing.T) {
	env := newTestEnv(t)
	form := seedForm(t, env)
	ctx := context.Background()

	response := seedFailedResponse(t, env, form.ID, 1)
	retry := NewRetryService(env.responses, env.sync, 3, DelayPolicy{}, testLogger())

	result, err := retry.RetryFailedSyncs(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SyncedCount)
	assert.Equal(t, 0, result.ErrorCount)

	stored, err := env.responses.FindByID(ctx, response.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, stored.Status)
	assert.Equal(t, 2, stored.SyncAttempts)
	assert.True(t, stored.HasExternalRecord())
	assert.Empty(t, stored.LastSyncError)
}

func TestRetryFailedSyncsSkipsExhausted(t *testing.T) {
	env := newTestEnv(t)
	form := seedForm(t, env)
	ctx := context.Background()

	exhausted := seedFailedResponse(t, env, form.ID, 3)
	retry := NewRetryService(env.responses, env.sync, 3, DelayPolicy{}, testLogger())

	result, err := retry.RetryFailedSyncs(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, result.SyncedCount)

	stored, err := env.responses.FindByID(ctx, exhausted.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.SyncAttempts, "a capped response is left alone")
	assert.Equal(t, models.StatusFailed, stored.Status)
}

func TestRetryFailedSyncsSkipsMissingCredential(t *testing.T) {
	env := newTestEnv(t)
	form := seedForm(t, env)
	ctx := context.Background()

	response := seedFailedResponse(t, env, form.ID, 1)
	env.clients.err = errors.New("no credential on file")
	retry := NewRetryService(env.responses, env.sync, 3, DelayPolicy{}, testLogger())

	result, err := retry.RetryFailedSyncs(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, result.SyncedCount)
	assert.Equal(t, 0, result.ErrorCount)

	stored, err := env.responses.FindByID(ctx, response.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.SyncAttempts, "a skipped response keeps its attempt count")
	assert.Equal(t, models.StatusFailed, stored.Status)
}

func TestRetryFailedSyncsCountsRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)
	form := seedForm(t, env)
	ctx := context.Background()

	response := seedFailedResponse(t, env, form.ID, 1)
	env.client.createErr = errors.New("still down")
	retry := NewRetryService(env.responses, env.sync, 3, DelayPolicy{}, testLogger())

	result, err := retry.RetryFailedSyncs(ctx, 10)
	require.NoError(t, err, "push failures stay inside the sweep")
	assert.Equal(t, 1, result.ErrorCount)

	stored, err := env.responses.FindByID(ctx, response.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.SyncAttempts)
	assert.Equal(t, models.StatusFailed, stored.Status)
}
