package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/repository"
)

type metadataRepository struct {
	db DBTX
}

func NewMetadataRepository(db DBTX) repository.MetadataRepository {
	return &metadataRepository{db: db}
}

func (r *metadataRepository) GetAssetMetadata(ctx context.Context, asset domain.Address) (*domain.AssetMetadata, error) {
	md := &domain.AssetMetadata{}
	query := `SELECT asset_id, collection_id, verified, updated_on FROM asset_metadata WHERE asset_id = $1`
	err := r.db.QueryRowContext(ctx, query, asset).Scan(&md.AssetID, &md.CollectionID, &md.Verified, &md.UpdatedOn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get asset metadata")
	}
	return md, nil
}

func (r *metadataRepository) UpsertAssetMetadata(ctx context.Context, md *domain.AssetMetadata) error {
	md.UpdatedOn = time.Now().UTC()
	query := `INSERT INTO asset_metadata (asset_id, collection_id, verified, updated_on) VALUES ($1, $2, $3, $4)
	          ON CONFLICT (asset_id) DO UPDATE SET collection_id = EXCLUDED.collection_id,
	              verified = EXCLUDED.verified, updated_on = EXCLUDED.updated_on`
	_, err := r.db.ExecContext(ctx, query, md.AssetID, md.CollectionID, md.Verified, md.UpdatedOn)
	return errors.Wrap(err, "upsert asset metadata")
}
