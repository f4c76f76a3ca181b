package domain

import "time"

// Holding is the standard account holding one asset class (unit) for one owner.
// Vaults are holdings owned by a rental record address.
type Holding struct {
	Address   Address   `json:"address"`
	Unit      Address   `json:"unit"`
	Owner     Address   `json:"owner"`
	Authority Address   `json:"authority"`
	Amount    uint64    `json:"amount"`
	Version   int64     `json:"version"`
	CreatedOn time.Time `json:"created_on"`
	UpdatedOn time.Time `json:"updated_on"`
}

type HoldingKey struct {
	Unit  Address
	Owner Address
}

func (h *Holding) Key() HoldingKey {
	return HoldingKey{Unit: h.Unit, Owner: h.Owner}
}

// AssetMetadata is what the provenance registry knows about an asset.
type AssetMetadata struct {
	AssetID      Address   `json:"asset_id"`
	CollectionID Address   `json:"collection_id"`
	Verified     bool      `json:"verified"`
	UpdatedOn    time.Time `json:"updated_on"`
}
