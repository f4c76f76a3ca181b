package grpc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	api "nft-rental-escrow/internal/api/grpc"
	"nft-rental-escrow/internal/api/grpc/interceptor"
	"nft-rental-escrow/internal/custody"
	"nft-rental-escrow/internal/deadline"
	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/escrow"
	"nft-rental-escrow/internal/events"
	"nft-rental-escrow/internal/ledger"
	"nft-rental-escrow/internal/provenance"
	"nft-rental-escrow/internal/repository/memory"
	"nft-rental-escrow/internal/security"
	"nft-rental-escrow/internal/taskqueue"
)

var (
	asset      = domain.Address{20}
	collection = domain.Address{21}
	feeUnit    = domain.Address{22}
)

func startServer(t *testing.T) (*api.EscrowServiceClient, *custody.Custodian, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	custodian := custody.NewCustodian(domain.Address{1})
	require.NoError(t, store.Metadata().UpsertAssetMetadata(ctx, &domain.AssetMetadata{
		AssetID: asset, CollectionID: collection, Verified: true,
	}))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	program := escrow.NewProgram(store, custodian, provenance.NewRegistryVerifier(store.Metadata()), escrow.Options{})
	bridge := deadline.NewBridge(custodian, taskqueue.NewRedisQueue(rdb, "end_rental", 100), store.Rentals(), time.Second, nil)
	submitter := ledger.NewSubmitter(program, bridge, events.NewLogPublisher(), nil, ledger.Options{SignatureMaxAge: time.Minute})

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(interceptor.Unary()))
	api.RegisterEscrowServiceServer(srv, api.NewEscrowHandler(submitter, program, bridge, custodian))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return api.NewEscrowServiceClient(conn), custodian, store
}

func fund(t *testing.T, store *memory.Store, c *custody.Custodian, unit, owner domain.Address, amount uint64) {
	t.Helper()
	ctx := context.Background()
	addr, err := c.HoldingAddress(unit, owner)
	require.NoError(t, err)
	_, err = store.Holdings().GetOrCreate(ctx, unit, owner, owner, addr)
	require.NoError(t, err)
	require.NoError(t, store.Holdings().Credit(ctx, unit, owner, amount))
}

func TestEscrowService(t *testing.T) {
	ctx := context.Background()
	client, custodian, store := startServer(t)
	owner, err := security.GenerateSigner()
	require.NoError(t, err)
	renter, err := security.GenerateSigner()
	require.NoError(t, err)
	fund(t, store, custodian, asset, owner.Address(), 1)
	fund(t, store, custodian, feeUnit, renter.Address(), 100)

	derived, err := client.DeriveRecord(ctx, &api.DeriveRecordRequest{AssetID: asset, Owner: owner.Address(), FeeUnit: feeUnit})
	require.NoError(t, err)
	want, bump, err := custodian.RecordAddress(asset, owner.Address())
	require.NoError(t, err)
	assert.Equal(t, want, derived.Record)
	assert.Equal(t, bump, derived.Bump)
	require.NotNil(t, derived.FeeVault)

	t.Run("Unknown record", func(t *testing.T) {
		var header metadata.MD
		_, err := client.GetRental(ctx, &api.GetRentalRequest{Record: derived.Record}, grpc.Header(&header))
		assert.Equal(t, codes.NotFound, status.Code(err))
		assert.NotEmpty(t, header.Get(interceptor.RequestIDHeader))
	})

	t.Run("List then read back", func(t *testing.T) {
		req, err := ledger.Sign(ledger.InstructionList, escrow.ListRequest{
			Owner:         owner.Address(),
			AssetID:       asset,
			CollectionID:  collection,
			FeeUnit:       feeUnit,
			RentAmount:    5,
			DepositAmount: 4,
		}, time.Minute, owner)
		require.NoError(t, err)

		res, err := client.Submit(ctx, &req)
		require.NoError(t, err)
		assert.Equal(t, derived.Record, res.Record.Address)

		got, err := client.GetRental(ctx, &api.GetRentalRequest{Record: derived.Record})
		require.NoError(t, err)
		assert.Equal(t, domain.PhaseListed, got.Record.Phase)
		assert.Equal(t, uint64(5), got.Record.RentAmount)
	})

	t.Run("Rent without the renter's signature", func(t *testing.T) {
		req, err := ledger.Sign(ledger.InstructionRent, escrow.RentRequest{
			Record: derived.Record, Renter: renter.Address(), DurationSecs: 300,
		}, time.Minute, owner)
		require.NoError(t, err)

		_, err = client.Submit(ctx, &req)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("Reschedule a listed record", func(t *testing.T) {
		_, err := client.Reschedule(ctx, &api.RescheduleRequest{Record: derived.Record})
		assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	})

	t.Run("Rent then reschedule", func(t *testing.T) {
		req, err := ledger.Sign(ledger.InstructionRent, escrow.RentRequest{
			Record: derived.Record, Renter: renter.Address(), DurationSecs: 300,
		}, time.Minute, renter)
		require.NoError(t, err)
		res, err := client.Submit(ctx, &req)
		require.NoError(t, err)
		assert.Equal(t, domain.PhaseRented, res.Record.Phase)
		assert.Nil(t, res.Task)

		resched, err := client.Reschedule(ctx, &api.RescheduleRequest{Record: derived.Record})
		require.NoError(t, err)
		assert.Equal(t, derived.Record, resched.Task.Payload.Record)
	})

	t.Run("Empty instruction", func(t *testing.T) {
		_, err := client.Submit(ctx, &ledger.Request{})
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})
}
