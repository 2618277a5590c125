package services_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garethmul/newsmill/pkg/models"
	"github.com/garethmul/newsmill/pkg/services"
	"github.com/garethmul/newsmill/test/util"
)

func setupAccountService(t *testing.T) *services.AccountService {
	t.Helper()
	client := util.SetupTestDatabase(t)
	return services.NewAccountService(client)
}

func TestCreateAndGetAccount(t *testing.T) {
	svc := setupAccountService(t)
	ctx := context.Background()

	created, err := svc.CreateAccount(ctx, models.CreateAccountRequest{
		AccountID: "acct-1",
		Name:      "First",
	})
	require.NoError(t, err)
	assert.Equal(t, "acct-1", created.AccountID)

	got, err := svc.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "First", got.Name)

	_, err = svc.CreateAccount(ctx, models.CreateAccountRequest{AccountID: "acct-1", Name: "Dup"})
	assert.ErrorIs(t, err, services.ErrAlreadyExists)

	_, err = svc.GetAccount(ctx, "acct-missing")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestWithLockedSettingsSerialisesUpdates(t *testing.T) {
	svc := setupAccountService(t)
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, models.CreateAccountRequest{AccountID: "acct-1", Name: "A"})
	require.NoError(t, err)

	// Concurrent read-modify-write increments must not lose updates.
	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.WithLockedSettings(ctx, "acct-1", func(settings map[string]any) (map[string]any, error) {
				count, _ := settings["counter"].(float64)
				settings["counter"] = count + 1
				return settings, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := svc.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.InDelta(t, float64(writers), settingsMap(t, got)["counter"], 0.001)
}

func TestWithLockedSettingsNilKeepsDocument(t *testing.T) {
	svc := setupAccountService(t)
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, models.CreateAccountRequest{AccountID: "acct-1", Name: "A"})
	require.NoError(t, err)

	require.NoError(t, svc.WithLockedSettings(ctx, "acct-1", func(settings map[string]any) (map[string]any, error) {
		settings["tone"] = "formal"
		return settings, nil
	}))

	// Returning nil declines the write.
	require.NoError(t, svc.WithLockedSettings(ctx, "acct-1", func(settings map[string]any) (map[string]any, error) {
		return nil, nil
	}))

	got, err := svc.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "formal", settingsMap(t, got)["tone"])
}

func settingsMap(t *testing.T, account *models.Account) map[string]any {
	t.Helper()
	settings := map[string]any{}
	require.NoError(t, json.Unmarshal(account.Settings, &settings))
	return settings
}

func TestWithLockedSettingsMissingAccount(t *testing.T) {
	svc := setupAccountService(t)

	err := svc.WithLockedSettings(context.Background(), "acct-missing",
		func(settings map[string]any) (map[string]any, error) {
			return settings, nil
		})
	assert.ErrorIs(t, err, services.ErrNotFound)
}
