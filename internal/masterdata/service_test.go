package masterdata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerstack/ledgerstack/internal/money"
	"github.com/ledgerstack/ledgerstack/internal/platform/httpx"
	"github.com/ledgerstack/ledgerstack/internal/shared"
)

type fakeRepo struct {
	Repository
	clients map[int64]Client
	nextID  int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{clients: make(map[int64]Client)}
}

func (r *fakeRepo) CreateClient(ctx context.Context, client Client) (Client, error) {
	r.nextID++
	client.ID = r.nextID
	r.clients[client.ID] = client
	return client, nil
}

func (r *fakeRepo) GetClient(ctx context.Context, accountID, id int64) (Client, error) {
	c, ok := r.clients[id]
	if !ok || c.AccountID != accountID {
		return Client{}, shared.ErrNotFound
	}
	return c, nil
}

func (r *fakeRepo) CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error) {
	return supplier, nil
}

func (r *fakeRepo) CreateItem(ctx context.Context, item Item) (Item, error) {
	return item, nil
}

func TestCreateClient(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.CreateClient(ctx, 1, Client{Name: "  Acme Traders  "})
	require.NoError(t, err)
	require.Equal(t, "Acme Traders", created.Name, "names are trimmed before persisting")
	require.EqualValues(t, 1, created.AccountID)

	_, err = svc.CreateClient(ctx, 1, Client{Name: "   "})
	require.ErrorIs(t, err, httpx.ErrValidation)

	// Account scoping: another account cannot see the client.
	_, err = svc.GetClient(ctx, 2, created.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestValidateSupplierAndItem(t *testing.T) {
	svc := NewService(newFakeRepo())
	ctx := context.Background()

	_, err := svc.CreateSupplier(ctx, 1, Supplier{Name: ""})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.CreateItem(ctx, 1, Item{Name: "Widget", DefaultPrice: money.MustParse("-1")})
	require.ErrorIs(t, err, httpx.ErrValidation)

	item, err := svc.CreateItem(ctx, 1, Item{Name: "Widget", SKU: " W-1 ", DefaultPrice: money.MustParse("9.99")})
	require.NoError(t, err)
	require.Equal(t, "W-1", item.SKU)
}

func TestGetClientRejectsBadID(t *testing.T) {
	svc := NewService(newFakeRepo())
	_, err := svc.GetClient(context.Background(), 1, 0)
	require.ErrorIs(t, err, httpx.ErrValidation)
}
