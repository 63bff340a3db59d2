package services

import (
	"context"
	"testing"

	"github.com/deedox/platform/internal/models"
	"github.com/deedox/platform/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelConfig_CRUD(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	feed := NewChangeFeed()
	events := feed.Subscribe("t", modelConfigsTable)
	svc := NewModelConfigService(db, feed)

	m, err := svc.Create(ctx, &CreateModelConfigRequest{ID: "gpt-4o", Name: "GPT-4o", APIKey: "sk-1234567890abcd"})
	require.NoError(t, err)
	assert.Equal(t, models.ProviderOpenAI, m.Provider)
	assert.False(t, m.Enabled)
	assert.Equal(t, "sk-1****abcd", m.APIKeyMask)
	assert.Equal(t, ChangeInsert, receive(t, events).Type)

	_, err = svc.Create(ctx, &CreateModelConfigRequest{ID: "gpt-4o", Name: "dup"})
	assert.Error(t, err)

	enabled, err := svc.Toggle(ctx, "gpt-4o")
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, ChangeUpdate, receive(t, events).Type)

	enabled, err = svc.Toggle(ctx, "gpt-4o")
	require.NoError(t, err)
	assert.False(t, enabled)
	receive(t, events)

	empty := ""
	yes := true
	m, err = svc.Update(ctx, "gpt-4o", &UpdateModelConfigRequest{Name: "GPT 4o", Enabled: &yes, APIKey: &empty})
	require.NoError(t, err)
	assert.Equal(t, "GPT 4o", m.Name)
	assert.True(t, m.Enabled)
	assert.Empty(t, m.APIKey)
	receive(t, events)

	opts, err := svc.ListEnabled(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ModelOption{{ID: "gpt-4o", Name: "GPT 4o", Provider: "openai"}}, opts)

	deleted, err := svc.Delete(ctx, "gpt-4o")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, ChangeDelete, receive(t, events).Type)

	deleted, err = svc.Delete(ctx, "gpt-4o")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = svc.Get(ctx, "gpt-4o")
	assert.True(t, IsNotFound(err))
}

func TestModelConfig_CreateSurfacesLookupError(t *testing.T) {
	db := setupTestDB(t)
	svc := NewModelConfigService(db, nil)
	require.NoError(t, db.Migrator().DropTable(&models.ModelConfig{}))

	_, err := svc.Create(context.Background(), &CreateModelConfigRequest{ID: "gpt-4o", Name: "GPT-4o"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check model gpt-4o")
}

func TestModelConfig_ListFilters(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := NewModelConfigService(db, nil)

	for _, req := range []CreateModelConfigRequest{
		{ID: "gpt-4o", Name: "GPT-4o", Enabled: true},
		{ID: "claude-sonnet", Name: "Claude Sonnet", Provider: models.ProviderAnthropic},
		{ID: "llama3", Name: "Llama 3", Provider: models.ProviderOllama, Enabled: true},
	} {
		r := req
		_, err := svc.Create(ctx, &r)
		require.NoError(t, err)
	}

	items, total, err := svc.List(ctx, &ModelConfigListRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, items, 3)

	yes := true
	_, total, err = svc.List(ctx, &ModelConfigListRequest{Enabled: &yes})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	items, _, err = svc.List(ctx, &ModelConfigListRequest{Provider: models.ProviderAnthropic})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "claude-sonnet", items[0].ID)

	items, _, err = svc.List(ctx, &ModelConfigListRequest{Name: "llama"})
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestCredentialService(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	box, err := utils.NewSecretBox("passphrase")
	require.NoError(t, err)

	svc := NewCredentialService(db, box, "")
	key, _, err := svc.ProviderKey(ctx)
	require.NoError(t, err)
	assert.Empty(t, key)

	p, err := svc.Preview(ctx)
	require.NoError(t, err)
	assert.False(t, p.IsSet)

	assert.Error(t, svc.Set(ctx, "   ", nil))

	uid := uint(1)
	require.NoError(t, svc.Set(ctx, "sk-live-abcdefghijkl", &uid))
	require.NoError(t, svc.Set(ctx, "sk-live-0123456789zz", &uid))

	var row models.SystemCredential
	require.NoError(t, db.First(&row, "name = ?", models.CredentialAIProvider).Error)
	assert.NotContains(t, row.Ciphertext, "sk-live")

	key, source, err := svc.ProviderKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-live-0123456789zz", key)
	assert.Equal(t, CredentialSourceDatabase, source)

	p, err = svc.Preview(ctx)
	require.NoError(t, err)
	assert.True(t, p.IsSet)
	assert.Equal(t, "sk-l****89zz", p.Masked)
	assert.NotNil(t, p.UpdatedAt)

	cleared, err := svc.Clear(ctx)
	require.NoError(t, err)
	assert.True(t, cleared)

	withFallback := NewCredentialService(db, box, "sk-from-config")
	key, source, err = withFallback.ProviderKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-config", key)
	assert.Equal(t, CredentialSourceConfig, source)
}
