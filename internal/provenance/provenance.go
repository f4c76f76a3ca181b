// Package provenance answers whether an asset is a verified member of a
// collection. The registry itself is maintained by the minting side.
package provenance

import (
	"context"
	"errors"

	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/logger"
	"nft-rental-escrow/internal/repository"
)

type Verifier interface {
	VerifyCollection(ctx context.Context, asset, collection domain.Address) (bool, error)
}

type registryVerifier struct {
	repo repository.MetadataRepository
}

// NewRegistryVerifier verifies membership against stored asset metadata.
func NewRegistryVerifier(repo repository.MetadataRepository) Verifier {
	return &registryVerifier{repo: repo}
}

func (v *registryVerifier) VerifyCollection(ctx context.Context, asset, collection domain.Address) (bool, error) {
	logger.ExternalServiceCall("provenance", "VerifyCollection", "asset", asset.String(), "collection", collection.String())
	md, err := v.repo.GetAssetMetadata(ctx, asset)
	if errors.Is(err, repository.ErrNotFound) {
		logger.ExternalServiceResult("provenance", "VerifyCollection", nil, "known", false)
		return false, nil
	}
	if err != nil {
		logger.ExternalServiceResult("provenance", "VerifyCollection", err)
		return false, domain.DependencyUnavailable("provenance registry", err)
	}
	ok := md.Verified && md.CollectionID == collection
	logger.ExternalServiceResult("provenance", "VerifyCollection", nil, "member", ok)
	return ok, nil
}
