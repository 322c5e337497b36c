package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadpipeline/leadpipe/internal/config"
	"github.com/leadpipeline/leadpipe/internal/model"
)

func TestInitStore_FailsOnMalformedDatabaseURL(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{DatabaseURL: "://not-a-url"}}

	_, err := initStore(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "init store")
}

func TestInitBlob_ReturnsNilWithoutBucketConfigured(t *testing.T) {
	cfg = &config.Config{Blob: config.BlobConfig{Bucket: ""}}

	b, err := initBlob(context.Background(), nil)

	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestFollowUpBossFactory_RequiresAPIKey(t *testing.T) {
	cfg = &config.Config{FollowUpBoss: config.FollowUpBossConfig{APIKey: ""}}

	client, err := followUpBossFactory()(&model.CrmConnection{})

	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "api_key")
}

func TestFollowUpBossFactory_ConnectionBaseURLOverridesConfig(t *testing.T) {
	cfg = &config.Config{FollowUpBoss: config.FollowUpBossConfig{APIKey: "key", BaseURL: "https://default.example.com"}}

	client, err := followUpBossFactory()(&model.CrmConnection{BaseURL: "https://tenant-specific.example.com"})

	require.NoError(t, err)
	assert.NotNil(t, client)
}
