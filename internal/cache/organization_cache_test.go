package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/observer"
	storagemock "gitlab.com/timkado/api/daisi-wa-support-console/internal/storage/mock"
)

func init() {
	observer.InitMetrics(false)
}

func TestOrganizationCache_HitAfterMiss(t *testing.T) {
	repo := new(storagemock.OrganizationRepoMock)
	org := model.NewOrganization()
	repo.On("FindByPhoneNumberID", mock.Anything, org.PhoneNumberID).Return(org, nil).Once()

	c := NewOrganizationCache(repo, time.Minute)

	got, err := c.FindByPhoneNumberID(context.Background(), org.PhoneNumberID)
	require.NoError(t, err)
	assert.Equal(t, org.ID, got.ID)

	got, err = c.FindByPhoneNumberID(context.Background(), org.PhoneNumberID)
	require.NoError(t, err)
	assert.Equal(t, org.ID, got.ID)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	repo.AssertExpectations(t)
}

func TestOrganizationCache_Expiry(t *testing.T) {
	repo := new(storagemock.OrganizationRepoMock)
	org := model.NewOrganization()
	repo.On("FindByPhoneNumberID", mock.Anything, org.PhoneNumberID).Return(org, nil).Twice()

	c := NewOrganizationCache(repo, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.FindByPhoneNumberID(context.Background(), org.PhoneNumberID)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = c.FindByPhoneNumberID(context.Background(), org.PhoneNumberID)
	require.NoError(t, err)

	repo.AssertNumberOfCalls(t, "FindByPhoneNumberID", 2)
}

func TestOrganizationCache_NegativeEntry(t *testing.T) {
	repo := new(storagemock.OrganizationRepoMock)
	repo.On("FindByPhoneNumberID", mock.Anything, "999").Return(nil, apperrors.ErrNotFound).Twice()

	c := NewOrganizationCache(repo, time.Hour)
	now := time.Now()
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := c.FindByPhoneNumberID(context.Background(), "999")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	}
	repo.AssertNumberOfCalls(t, "FindByPhoneNumberID", 1)

	// negative entries expire well before positive ones
	now = now.Add(defaultNegativeTTL + time.Second)
	_, err := c.FindByPhoneNumberID(context.Background(), "999")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	repo.AssertNumberOfCalls(t, "FindByPhoneNumberID", 2)
}

func TestOrganizationCache_DatabaseErrorNotCached(t *testing.T) {
	repo := new(storagemock.OrganizationRepoMock)
	repo.On("FindByPhoneNumberID", mock.Anything, "111").Return(nil, apperrors.ErrDatabase).Twice()

	c := NewOrganizationCache(repo, time.Hour)

	_, err := c.FindByPhoneNumberID(context.Background(), "111")
	assert.ErrorIs(t, err, apperrors.ErrDatabase)
	_, err = c.FindByPhoneNumberID(context.Background(), "111")
	assert.ErrorIs(t, err, apperrors.ErrDatabase)

	repo.AssertNumberOfCalls(t, "FindByPhoneNumberID", 2)
}

func TestOrganizationCache_Invalidate(t *testing.T) {
	repo := new(storagemock.OrganizationRepoMock)
	org := model.NewOrganization()
	repo.On("FindByPhoneNumberID", mock.Anything, org.PhoneNumberID).Return(org, nil)

	c := NewOrganizationCache(repo, time.Hour)
	_, _ = c.FindByPhoneNumberID(context.Background(), org.PhoneNumberID)
	c.Invalidate(org.PhoneNumberID)
	_, _ = c.FindByPhoneNumberID(context.Background(), org.PhoneNumberID)

	repo.AssertNumberOfCalls(t, "FindByPhoneNumberID", 2)
}

func TestOrganizationCache_ConcurrentMissesShareQuery(t *testing.T) {
	repo := new(storagemock.OrganizationRepoMock)
	org := model.NewOrganization()
	release := make(chan struct{})
	repo.On("FindByPhoneNumberID", mock.Anything, org.PhoneNumberID).
		Run(func(mock.Arguments) { <-release }).
		Return(org, nil)

	c := NewOrganizationCache(repo, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.FindByPhoneNumberID(context.Background(), org.PhoneNumberID)
			assert.NoError(t, err)
			assert.Equal(t, org.ID, got.ID)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	repo.AssertNumberOfCalls(t, "FindByPhoneNumberID", 1)
}

func TestOrganizationCache_PassThrough(t *testing.T) {
	repo := new(storagemock.OrganizationRepoMock)
	org := model.NewOrganization()
	repo.On("FindByID", mock.Anything, org.ID).Return(org, nil)
	repo.On("FindByVerifyToken", mock.Anything, "tok").Return(org, nil)

	c := NewOrganizationCache(repo, 0)
	assert.Equal(t, defaultTTL, c.ttl)

	got, err := c.FindByID(context.Background(), org.ID)
	require.NoError(t, err)
	assert.Equal(t, org, got)
	got, err = c.FindByVerifyToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, org, got)
}
