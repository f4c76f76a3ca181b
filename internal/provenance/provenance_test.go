package provenance_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/provenance"
	"nft-rental-escrow/internal/repository"
)

type MockMetadataRepo struct {
	mock.Mock
}

func (m *MockMetadataRepo) GetAssetMetadata(ctx context.Context, asset domain.Address) (*domain.AssetMetadata, error) {
	args := m.Called(ctx, asset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AssetMetadata), args.Error(1)
}

func (m *MockMetadataRepo) UpsertAssetMetadata(ctx context.Context, md *domain.AssetMetadata) error {
	return m.Called(ctx, md).Error(0)
}

func TestRegistryVerifier(t *testing.T) {
	ctx := context.Background()
	asset, collection := domain.Address{1}, domain.Address{2}

	t.Run("Verified member", func(t *testing.T) {
		repo := new(MockMetadataRepo)
		repo.On("GetAssetMetadata", ctx, asset).
			Return(&domain.AssetMetadata{AssetID: asset, CollectionID: collection, Verified: true}, nil)

		ok, err := provenance.NewRegistryVerifier(repo).VerifyCollection(ctx, asset, collection)
		require.NoError(t, err)
		assert.True(t, ok)
		repo.AssertExpectations(t)
	})

	t.Run("Unverified or other collection", func(t *testing.T) {
		repo := new(MockMetadataRepo)
		repo.On("GetAssetMetadata", ctx, asset).
			Return(&domain.AssetMetadata{AssetID: asset, CollectionID: collection, Verified: false}, nil).Once()
		repo.On("GetAssetMetadata", ctx, asset).
			Return(&domain.AssetMetadata{AssetID: asset, CollectionID: domain.Address{3}, Verified: true}, nil).Once()

		v := provenance.NewRegistryVerifier(repo)
		ok, err := v.VerifyCollection(ctx, asset, collection)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = v.VerifyCollection(ctx, asset, collection)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Unknown asset", func(t *testing.T) {
		repo := new(MockMetadataRepo)
		repo.On("GetAssetMetadata", ctx, asset).Return(nil, repository.ErrNotFound)

		ok, err := provenance.NewRegistryVerifier(repo).VerifyCollection(ctx, asset, collection)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Registry down", func(t *testing.T) {
		repo := new(MockMetadataRepo)
		cause := errors.New("connection refused")
		repo.On("GetAssetMetadata", ctx, asset).Return(nil, cause)

		_, err := provenance.NewRegistryVerifier(repo).VerifyCollection(ctx, asset, collection)
		assert.ErrorIs(t, err, domain.ErrDependencyUnavailable)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, domain.KindDependency, domain.KindOf(err))
	})
}
