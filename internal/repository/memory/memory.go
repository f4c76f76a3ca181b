// Package memory is an in-process Store with optimistic transactions. Reads
// inside Atomic remember the commit stamp they observed; commit fails with
// repository.ErrConflict if any of them moved.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/repository"
)

type Store struct {
	mu       sync.Mutex
	rentals  map[domain.Address]*domain.RentalRecord
	holdings map[domain.HoldingKey]*domain.Holding
	metadata map[domain.Address]*domain.AssetMetadata

	// Commit stamps survive deletes so a re-created record never looks
	// unchanged to a transaction that read its previous incarnation.
	clock         uint64
	rentalStamps  map[domain.Address]uint64
	holdingStamps map[domain.HoldingKey]uint64
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		rentals:  make(map[domain.Address]*domain.RentalRecord),
		holdings: make(map[domain.HoldingKey]*domain.Holding),
		metadata: make(map[domain.Address]*domain.AssetMetadata),

		rentalStamps:  make(map[domain.Address]uint64),
		holdingStamps: make(map[domain.HoldingKey]uint64),
	}
}

func (s *Store) Atomic(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := newTx(s)
	if err := fn(t); err != nil {
		return err
	}
	return t.commit()
}

func (s *Store) Rentals() repository.RentalRepository   { return autoRentals{s} }
func (s *Store) Holdings() repository.HoldingRepository { return autoHoldings{s} }
func (s *Store) Metadata() repository.MetadataRepository {
	return metadataRepo{s}
}

type tx struct {
	s *Store

	rentalReads  map[domain.Address]uint64
	rentalWrites map[domain.Address]*domain.RentalRecord // nil marks a delete

	holdingReads  map[domain.HoldingKey]uint64
	holdingWrites map[domain.HoldingKey]*domain.Holding
}

func newTx(s *Store) *tx {
	return &tx{
		s:             s,
		rentalReads:   make(map[domain.Address]uint64),
		rentalWrites:  make(map[domain.Address]*domain.RentalRecord),
		holdingReads:  make(map[domain.HoldingKey]uint64),
		holdingWrites: make(map[domain.HoldingKey]*domain.Holding),
	}
}

func (t *tx) Rentals() repository.RentalRepository   { return txRentals{t} }
func (t *tx) Holdings() repository.HoldingRepository { return txHoldings{t} }

// readRental returns the record as seen by this transaction, or nil.
func (t *tx) readRental(addr domain.Address) *domain.RentalRecord {
	if rec, ok := t.rentalWrites[addr]; ok {
		if rec == nil {
			return nil
		}
		return rec.Clone()
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	rec := t.s.rentals[addr]
	if _, seen := t.rentalReads[addr]; !seen {
		t.rentalReads[addr] = t.s.rentalStamps[addr]
	}
	if rec == nil {
		return nil
	}
	return rec.Clone()
}

func (t *tx) readHolding(key domain.HoldingKey) *domain.Holding {
	if h, ok := t.holdingWrites[key]; ok {
		c := *h
		return &c
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	h := t.s.holdings[key]
	if _, seen := t.holdingReads[key]; !seen {
		t.holdingReads[key] = t.s.holdingStamps[key]
	}
	if h == nil {
		return nil
	}
	c := *h
	return &c
}

func (t *tx) commit() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for addr, seen := range t.rentalReads {
		if t.s.rentalStamps[addr] != seen {
			return repository.ErrConflict
		}
	}
	for key, seen := range t.holdingReads {
		if t.s.holdingStamps[key] != seen {
			return repository.ErrConflict
		}
	}

	t.s.clock++

	for addr, rec := range t.rentalWrites {
		t.s.rentalStamps[addr] = t.s.clock
		if rec == nil {
			delete(t.s.rentals, addr)
			continue
		}
		t.s.rentals[addr] = rec
	}
	for key, h := range t.holdingWrites {
		t.s.holdingStamps[key] = t.s.clock
		t.s.holdings[key] = h
	}
	return nil
}

type txRentals struct{ t *tx }

func (r txRentals) Get(ctx context.Context, addr domain.Address) (*domain.RentalRecord, error) {
	rec := r.t.readRental(addr)
	if rec == nil {
		return nil, repository.ErrNotFound
	}
	return rec, nil
}

func (r txRentals) Create(ctx context.Context, rec *domain.RentalRecord) error {
	if cur := r.t.readRental(rec.Address); cur != nil {
		return repository.ErrConflict
	}
	now := time.Now().UTC()
	rec.Version = 1
	rec.CreatedOn = now
	rec.UpdatedOn = now
	r.t.rentalWrites[rec.Address] = rec.Clone()
	return nil
}

func (r txRentals) Update(ctx context.Context, rec *domain.RentalRecord) error {
	cur := r.t.readRental(rec.Address)
	if cur == nil || cur.Version != rec.Version {
		return repository.ErrConflict
	}
	rec.Version++
	rec.UpdatedOn = time.Now().UTC()
	r.t.rentalWrites[rec.Address] = rec.Clone()
	return nil
}

func (r txRentals) Delete(ctx context.Context, rec *domain.RentalRecord) error {
	cur := r.t.readRental(rec.Address)
	if cur == nil || cur.Version != rec.Version {
		return repository.ErrConflict
	}
	r.t.rentalWrites[rec.Address] = nil
	return nil
}

func (r txRentals) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.RentalRecord, error) {
	return r.t.s.listRentals(func(rec *domain.RentalRecord) bool {
		return rec.Phase == domain.PhaseRented && rec.IsExpired(now)
	}, limit), nil
}

func (r txRentals) ListByOwner(ctx context.Context, owner domain.Address) ([]domain.RentalRecord, error) {
	return r.t.s.listRentals(func(rec *domain.RentalRecord) bool {
		return rec.Owner == owner
	}, 0), nil
}

func (s *Store) listRentals(keep func(*domain.RentalRecord) bool, limit int) []domain.RentalRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.RentalRecord
	for _, rec := range s.rentals {
		if keep(rec) {
			out = append(out, *rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedOn.Before(out[j].CreatedOn)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

type txHoldings struct{ t *tx }

func (h txHoldings) Get(ctx context.Context, unit, owner domain.Address) (*domain.Holding, error) {
	cur := h.t.readHolding(domain.HoldingKey{Unit: unit, Owner: owner})
	if cur == nil {
		return nil, repository.ErrNotFound
	}
	return cur, nil
}

func (h txHoldings) GetOrCreate(ctx context.Context, unit, owner, authority, addr domain.Address) (*domain.Holding, error) {
	key := domain.HoldingKey{Unit: unit, Owner: owner}
	if cur := h.t.readHolding(key); cur != nil {
		return cur, nil
	}
	now := time.Now().UTC()
	created := &domain.Holding{
		Address:   addr,
		Unit:      unit,
		Owner:     owner,
		Authority: authority,
		Version:   1,
		CreatedOn: now,
		UpdatedOn: now,
	}
	h.t.holdingWrites[key] = created
	c := *created
	return &c, nil
}

func (h txHoldings) Transfer(ctx context.Context, unit, from, to domain.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	src := h.t.readHolding(domain.HoldingKey{Unit: unit, Owner: from})
	if src == nil {
		return repository.ErrNotFound
	}
	if src.Amount < amount {
		return repository.ErrInsufficientBalance
	}
	src.Amount -= amount
	h.stage(src)
	return h.Credit(ctx, unit, to, amount)
}

func (h txHoldings) Credit(ctx context.Context, unit, owner domain.Address, amount uint64) error {
	dst := h.t.readHolding(domain.HoldingKey{Unit: unit, Owner: owner})
	if dst == nil {
		return repository.ErrNotFound
	}
	sum, ok := domain.CheckedAdd(dst.Amount, amount)
	if !ok {
		return domain.ErrAmountOverflow
	}
	dst.Amount = sum
	h.stage(dst)
	return nil
}

func (h txHoldings) stage(hd *domain.Holding) {
	hd.Version++
	hd.UpdatedOn = time.Now().UTC()
	h.t.holdingWrites[hd.Key()] = hd
}

// autoRentals and autoHoldings run each call as its own transaction.
type autoRentals struct{ s *Store }

func (a autoRentals) Get(ctx context.Context, addr domain.Address) (rec *domain.RentalRecord, err error) {
	err = a.s.Atomic(ctx, func(tx repository.Tx) error {
		rec, err = tx.Rentals().Get(ctx, addr)
		return err
	})
	return rec, err
}

func (a autoRentals) Create(ctx context.Context, rec *domain.RentalRecord) error {
	return a.s.Atomic(ctx, func(tx repository.Tx) error { return tx.Rentals().Create(ctx, rec) })
}

func (a autoRentals) Update(ctx context.Context, rec *domain.RentalRecord) error {
	return a.s.Atomic(ctx, func(tx repository.Tx) error { return tx.Rentals().Update(ctx, rec) })
}

func (a autoRentals) Delete(ctx context.Context, rec *domain.RentalRecord) error {
	return a.s.Atomic(ctx, func(tx repository.Tx) error { return tx.Rentals().Delete(ctx, rec) })
}

func (a autoRentals) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.RentalRecord, error) {
	return txRentals{newTx(a.s)}.ListExpired(ctx, now, limit)
}

func (a autoRentals) ListByOwner(ctx context.Context, owner domain.Address) ([]domain.RentalRecord, error) {
	return txRentals{newTx(a.s)}.ListByOwner(ctx, owner)
}

type autoHoldings struct{ s *Store }

func (a autoHoldings) Get(ctx context.Context, unit, owner domain.Address) (h *domain.Holding, err error) {
	err = a.s.Atomic(ctx, func(tx repository.Tx) error {
		h, err = tx.Holdings().Get(ctx, unit, owner)
		return err
	})
	return h, err
}

func (a autoHoldings) GetOrCreate(ctx context.Context, unit, owner, authority, addr domain.Address) (h *domain.Holding, err error) {
	err = a.s.Atomic(ctx, func(tx repository.Tx) error {
		h, err = tx.Holdings().GetOrCreate(ctx, unit, owner, authority, addr)
		return err
	})
	return h, err
}

func (a autoHoldings) Transfer(ctx context.Context, unit, from, to domain.Address, amount uint64) error {
	return a.s.Atomic(ctx, func(tx repository.Tx) error { return tx.Holdings().Transfer(ctx, unit, from, to, amount) })
}

func (a autoHoldings) Credit(ctx context.Context, unit, owner domain.Address, amount uint64) error {
	return a.s.Atomic(ctx, func(tx repository.Tx) error { return tx.Holdings().Credit(ctx, unit, owner, amount) })
}

type metadataRepo struct{ s *Store }

func (m metadataRepo) GetAssetMetadata(ctx context.Context, asset domain.Address) (*domain.AssetMetadata, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	md, ok := m.s.metadata[asset]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *md
	return &c, nil
}

func (m metadataRepo) UpsertAssetMetadata(ctx context.Context, md *domain.AssetMetadata) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	md.UpdatedOn = time.Now().UTC()
	c := *md
	m.s.metadata[md.AssetID] = &c
	return nil
}
