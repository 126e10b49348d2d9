//go:build integration

package species

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"fieldbook/internal/platform/config"
	"fieldbook/internal/platform/logger"
	platredis "fieldbook/internal/platform/redis"
	"fieldbook/pkg/domain"
	"fieldbook/pkg/testutil/containers"
)

func TestFindByIDSharedRedisCache(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	redisClient, err := platredis.New(config.Redis{URL: rc.Addr})
	require.NoError(t, err)
	require.NotNil(t, redisClient)
	t.Cleanup(func() { _ = redisClient.Close() })

	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder(http.MethodGet, baseURL+"/species/turdus-merula",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
			"id": "turdus-merula", "display_name": "Blackbird", "category": "animal", "language": "en",
		}))

	first := New(baseURL, httpClient, time.Minute, redisClient, logger.Discard())
	entry, err := first.FindByID(ctx, "turdus-merula", domain.LanguageEnglish)
	require.NoError(t, err)
	require.Equal(t, "Blackbird", entry.DisplayName)
	require.Equal(t, 1, httpmock.GetTotalCallCount())

	// A second process with a cold local cache reads the entry from Redis
	// without touching the catalog.
	second := New(baseURL, httpClient, time.Minute, redisClient, logger.Discard())
	entry, err = second.FindByID(ctx, "turdus-merula", domain.LanguageEnglish)
	require.NoError(t, err)
	require.Equal(t, "Blackbird", entry.DisplayName)
	require.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestFindByIDCorruptSharedCacheFallsBack(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	redisClient, err := platredis.New(config.Redis{URL: rc.Addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisClient.Close() })

	require.NoError(t, rc.Client.Set(ctx, "species:en:turdus-merula", "{corrupt", time.Minute).Err())

	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder(http.MethodGet, baseURL+"/species/turdus-merula",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
			"id": "turdus-merula", "display_name": "Blackbird", "category": "animal", "language": "en",
		}))

	catalog := New(baseURL, httpClient, time.Minute, redisClient, logger.Discard())
	entry, err := catalog.FindByID(ctx, "turdus-merula", domain.LanguageEnglish)
	require.NoError(t, err)
	require.Equal(t, "Blackbird", entry.DisplayName)
	require.Equal(t, 1, httpmock.GetTotalCallCount())
}
