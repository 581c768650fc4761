package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerstack/ledgerstack/internal/inventory"
	"github.com/ledgerstack/ledgerstack/internal/money"
	"github.com/ledgerstack/ledgerstack/internal/shared"
)

// memoryRepo emulates the transactional repository: WithTx serialises
// callers and restores a snapshot when the callback fails, mirroring
// rollback semantics.
type memoryRepo struct {
	mu      sync.Mutex
	lots    map[int64]*memLot
	clients map[int64]string
	bills   map[int64]*Bill
	nextID  int64
	seq     int64
}

type memLot struct {
	accountID int64
	quantity  decimal.Decimal
	available decimal.Decimal
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		lots:    make(map[int64]*memLot),
		clients: make(map[int64]string),
		bills:   make(map[int64]*Bill),
	}
}

func (r *memoryRepo) addLot(id, accountID int64, qty string) {
	q := money.MustParse(qty)
	r.lots[id] = &memLot{accountID: accountID, quantity: q, available: q}
}

func (r *memoryRepo) available(id int64) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lots[id].available
}

func (r *memoryRepo) snapshot() (map[int64]*memLot, map[int64]*Bill) {
	lots := make(map[int64]*memLot, len(r.lots))
	for id, l := range r.lots {
		cp := *l
		lots[id] = &cp
	}
	bills := make(map[int64]*Bill, len(r.bills))
	for id, b := range r.bills {
		cp := *b
		cp.Items = append([]BillItem(nil), b.Items...)
		cp.ExtraCharges = append([]ExtraCharge(nil), b.ExtraCharges...)
		bills[id] = &cp
	}
	return lots, bills
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lots, bills := r.snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.lots, r.bills = lots, bills
		return err
	}
	return nil
}

func (r *memoryRepo) GetBill(ctx context.Context, accountID, billID int64) (*Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bills[billID]
	if !ok || b.AccountID != accountID {
		return nil, shared.ErrNotFound
	}
	cp := *b
	cp.Items = append([]BillItem(nil), b.Items...)
	cp.ExtraCharges = append([]ExtraCharge(nil), b.ExtraCharges...)
	cp.ClientName = r.clients[b.ClientID]
	return &cp, nil
}

func (r *memoryRepo) ListBills(ctx context.Context, accountID int64, filter ListFilter) ([]Bill, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Bill
	for _, b := range r.bills {
		if b.AccountID != accountID {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		cp := *b
		cp.ClientName = r.clients[b.ClientID]
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) ClientExists(ctx context.Context, accountID, clientID int64) (bool, error) {
	_, ok := t.repo.clients[clientID]
	return ok, nil
}

// NextBillNumber mirrors the counter-backed allocation: the sequence only
// moves forward, so deletions never free a number for reuse.
func (t *memoryTx) NextBillNumber(ctx context.Context, accountID int64, billDate time.Time) (string, error) {
	t.repo.seq++
	return fmt.Sprintf("BILL-%d-%04d", billDate.Year(), t.repo.seq), nil
}

func (t *memoryTx) InsertBill(ctx context.Context, bill Bill) (int64, error) {
	// Emulates the unique index on (account_id, number).
	for _, b := range t.repo.bills {
		if b.AccountID == bill.AccountID && b.Number == bill.Number {
			return 0, fmt.Errorf("duplicate bill number %s", bill.Number)
		}
	}
	t.repo.nextID++
	bill.ID = t.repo.nextID
	bill.CreatedAt = time.Now().UTC()
	bill.UpdatedAt = bill.CreatedAt
	t.repo.bills[bill.ID] = &bill
	return bill.ID, nil
}

func (t *memoryTx) InsertItems(ctx context.Context, billID int64, items []BillItem) error {
	b := t.repo.bills[billID]
	for i, it := range items {
		it.ID = int64(i + 1)
		it.BillID = billID
		b.Items = append(b.Items, it)
	}
	return nil
}

func (t *memoryTx) InsertExtraCharges(ctx context.Context, billID int64, charges []ExtraCharge) error {
	b := t.repo.bills[billID]
	for i, c := range charges {
		c.ID = int64(i + 1)
		c.BillID = billID
		b.ExtraCharges = append(b.ExtraCharges, c)
	}
	return nil
}

func (t *memoryTx) ReserveLot(ctx context.Context, accountID, lotID int64, qty decimal.Decimal) error {
	lot, ok := t.repo.lots[lotID]
	if !ok || lot.accountID != accountID {
		return inventory.ErrLotNotFound
	}
	if qty.GreaterThan(lot.available) {
		return &inventory.InsufficientStockError{LotID: lotID, Requested: qty, Available: lot.available}
	}
	lot.available = lot.available.Sub(qty)
	return nil
}

func (t *memoryTx) ReleaseLot(ctx context.Context, accountID, lotID int64, qty decimal.Decimal) error {
	lot, ok := t.repo.lots[lotID]
	if !ok || lot.accountID != accountID {
		return inventory.ErrLotNotFound
	}
	lot.available = lot.available.Add(qty)
	if lot.available.GreaterThan(lot.quantity) {
		lot.available = lot.quantity
	}
	return nil
}

func (t *memoryTx) GetBillForUpdate(ctx context.Context, accountID, billID int64) (Bill, error) {
	b, ok := t.repo.bills[billID]
	if !ok || b.AccountID != accountID {
		return Bill{}, shared.ErrNotFound
	}
	cp := *b
	return cp, nil
}

func (t *memoryTx) ListItems(ctx context.Context, billID int64) ([]BillItem, error) {
	b, ok := t.repo.bills[billID]
	if !ok {
		return nil, nil
	}
	return append([]BillItem(nil), b.Items...), nil
}

func (t *memoryTx) UpdateHeader(ctx context.Context, bill Bill) error {
	stored := t.repo.bills[bill.ID]
	bill.Items = stored.Items
	bill.ExtraCharges = stored.ExtraCharges
	bill.UpdatedAt = time.Now().UTC()
	t.repo.bills[bill.ID] = &bill
	return nil
}

func (t *memoryTx) DeleteBillRows(ctx context.Context, billID int64) error {
	delete(t.repo.bills, billID)
	return nil
}

const testAccount = int64(7)

func testService(repo *memoryRepo) *Service {
	repo.clients[1] = "Acme Traders"
	return NewService(repo, nil, nil, nil, nil)
}

func line(lotID int64, qty, price string) BillLineRequest {
	return BillLineRequest{LotID: lotID, Quantity: money.MustParse(qty), SellingPrice: money.MustParse(price)}
}

func createReq(lines ...BillLineRequest) CreateBillRequest {
	return CreateBillRequest{
		ClientID: 1,
		BillDate: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Items:    lines,
	}
}

func TestCreateBillTotals(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(10, testAccount, "100")
	repo.addLot(11, testAccount, "100")
	svc := testService(repo)

	req := createReq(line(10, "2", "10.00"), line(11, "1", "5.50"))
	req.TaxRate = money.MustParse("10")
	req.ExtraCharges = []ExtraChargeRequest{{Name: "Shipping", Amount: money.MustParse("3.00")}}

	bill, err := svc.Create(context.Background(), testAccount, req, "")
	require.NoError(t, err)
	require.True(t, bill.Subtotal.Equal(money.MustParse("25.50")), "subtotal %s", bill.Subtotal)
	require.True(t, bill.Tax.Equal(money.MustParse("2.55")), "tax %s", bill.Tax)
	require.True(t, bill.ExtraTotal.Equal(money.MustParse("3.00")))
	require.True(t, bill.Total.Equal(money.MustParse("31.05")), "total %s", bill.Total)
	require.Equal(t, BillStatusDue, bill.Status)
	require.Len(t, bill.Items, 2)
	require.True(t, repo.available(10).Equal(money.MustParse("98")))
	require.True(t, repo.available(11).Equal(money.MustParse("99")))

	// Reads without intervening mutation are identical.
	again, err := svc.Get(context.Background(), testAccount, bill.ID)
	require.NoError(t, err)
	require.Equal(t, bill, again)
}

func TestCreateValidation(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(10, testAccount, "5")
	svc := testService(repo)
	ctx := context.Background()

	cases := map[string]CreateBillRequest{
		"empty items":    createReq(),
		"zero quantity":  createReq(line(10, "0", "1.00")),
		"negative price": createReq(line(10, "1", "-0.01")),
	}
	over := createReq(line(10, "1", "1.00"))
	over.TaxRate = money.MustParse("100.01")
	cases["tax rate over 100"] = over
	neg := createReq(line(10, "1", "1.00"))
	neg.TaxRate = money.MustParse("-1")
	cases["negative tax rate"] = neg
	charge := createReq(line(10, "1", "1.00"))
	charge.ExtraCharges = []ExtraChargeRequest{{Name: "Fee", Amount: money.MustParse("-2")}}
	cases["negative extra charge"] = charge

	for name, req := range cases {
		_, err := svc.Create(ctx, testAccount, req, "")
		require.ErrorIs(t, err, ErrValidation, name)
	}
	require.True(t, repo.available(10).Equal(money.MustParse("5")), "rejected input must not touch stock")
	require.Empty(t, repo.bills)
}

func TestCreateUnknownClient(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(10, testAccount, "5")
	svc := testService(repo)

	req := createReq(line(10, "1", "1.00"))
	req.ClientID = 99
	_, err := svc.Create(context.Background(), testAccount, req, "")
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.True(t, repo.available(10).Equal(money.MustParse("5")))
}

func TestCreateAbortsOnThirdLine(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, testAccount, "10")
	repo.addLot(2, testAccount, "10")
	repo.addLot(3, testAccount, "1")
	svc := testService(repo)

	req := createReq(line(1, "4", "2.00"), line(2, "4", "2.00"), line(3, "5", "2.00"))
	_, err := svc.Create(context.Background(), testAccount, req, "")

	var stockErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.EqualValues(t, 3, stockErr.LotID)
	require.True(t, stockErr.Requested.Equal(money.MustParse("5")))
	require.True(t, stockErr.Available.Equal(money.MustParse("1")))

	// Lots 1 and 2 were decremented inside the transaction; the rollback
	// must leave them untouched, and no bill rows may survive.
	require.True(t, repo.available(1).Equal(money.MustParse("10")))
	require.True(t, repo.available(2).Equal(money.MustParse("10")))
	require.Empty(t, repo.bills)
}

func TestFirstOffendingLineWins(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, testAccount, "1")
	repo.addLot(2, testAccount, "1")
	svc := testService(repo)

	req := createReq(line(2, "5", "1.00"), line(1, "5", "1.00"))
	_, err := svc.Create(context.Background(), testAccount, req, "")

	var stockErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.EqualValues(t, 2, stockErr.LotID, "caller-supplied order decides which failure is reported")
}

func TestConservationAcrossCycles(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, testAccount, "100.000")
	svc := testService(repo)
	ctx := context.Background()

	before := repo.available(1)
	for i := 0; i < 50; i++ {
		req := createReq(line(1, "3.125", "9.99"))
		bill, err := svc.Create(ctx, testAccount, req, "")
		require.NoError(t, err)
		require.NoError(t, svc.Delete(ctx, testAccount, bill.ID))
	}
	require.True(t, repo.available(1).Equal(before), "stock must return to the exact original value")
}

func TestStatusTransitionsDoNotTouchStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, testAccount, "10")
	svc := testService(repo)
	ctx := context.Background()

	bill, err := svc.Create(ctx, testAccount, createReq(line(1, "4", "1.00")), "")
	require.NoError(t, err)
	reserved := repo.available(1)

	paid, err := svc.UpdateStatus(ctx, testAccount, bill.ID, BillStatusPaid)
	require.NoError(t, err)
	require.Equal(t, BillStatusPaid, paid.Status)
	require.True(t, repo.available(1).Equal(reserved))

	due, err := svc.UpdateStatus(ctx, testAccount, bill.ID, BillStatusDue)
	require.NoError(t, err)
	require.Equal(t, BillStatusDue, due.Status)
	require.True(t, repo.available(1).Equal(reserved))

	_, err = svc.UpdateStatus(ctx, testAccount, bill.ID, "void")
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdateHeaderRecomputesOnlyOnRateChange(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, testAccount, "10")
	svc := testService(repo)
	ctx := context.Background()

	req := createReq(line(1, "2", "10.00"))
	req.TaxRate = money.MustParse("10")
	bill, err := svc.Create(ctx, testAccount, req, "")
	require.NoError(t, err)
	require.True(t, bill.Total.Equal(money.MustParse("22.00")))

	// Notes-only update keeps the derived fields.
	notes := "rush order"
	updated, err := svc.UpdateHeader(ctx, testAccount, bill.ID, UpdateBillHeaderRequest{Notes: &notes})
	require.NoError(t, err)
	require.Equal(t, notes, updated.Notes)
	require.True(t, updated.Tax.Equal(bill.Tax))
	require.True(t, updated.Total.Equal(bill.Total))

	rate := money.MustParse("20")
	updated, err = svc.UpdateHeader(ctx, testAccount, bill.ID, UpdateBillHeaderRequest{TaxRate: &rate})
	require.NoError(t, err)
	require.True(t, updated.Tax.Equal(money.MustParse("4.00")), "tax %s", updated.Tax)
	require.True(t, updated.Total.Equal(money.MustParse("24.00")))
	require.Len(t, updated.Items, 1, "header updates never touch line items")
	require.True(t, repo.available(1).Equal(money.MustParse("8")))

	bad := money.MustParse("101")
	_, err = svc.UpdateHeader(ctx, testAccount, bill.ID, UpdateBillHeaderRequest{TaxRate: &bad})
	require.ErrorIs(t, err, ErrValidation)
}

func TestDeleteMissingLotIsConsistencyError(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, testAccount, "10")
	repo.addLot(2, testAccount, "10")
	svc := testService(repo)
	ctx := context.Background()

	bill, err := svc.Create(ctx, testAccount, createReq(line(1, "2", "1.00"), line(2, "3", "1.00")), "")
	require.NoError(t, err)

	// Simulate the invariant break: the second lot vanishes out from under
	// the bill.
	repo.mu.Lock()
	delete(repo.lots, 2)
	repo.mu.Unlock()

	err = svc.Delete(ctx, testAccount, bill.ID)
	require.ErrorIs(t, err, ErrConsistency)

	// No partial restoration: lot 1 keeps its reservation and the bill
	// still exists.
	require.True(t, repo.available(1).Equal(money.MustParse("8")))
	_, err = svc.Get(ctx, testAccount, bill.ID)
	require.NoError(t, err)
}

func TestDeleteNotFound(t *testing.T) {
	repo := newMemoryRepo()
	svc := testService(repo)
	require.ErrorIs(t, svc.Delete(context.Background(), testAccount, 42), shared.ErrNotFound)
}

func TestConcurrentCreatesNeverOversell(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, testAccount, "10")
	svc := testService(repo)
	ctx := context.Background()

	const workers = 8
	want := money.MustParse("3")

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, testAccount, createReq(line(1, "3", "5.00")), "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	}
	require.Equal(t, 3, succeeded, "only the combinations that fit within stock may succeed")

	remaining := repo.available(1)
	require.False(t, remaining.IsNegative(), "available quantity must never go negative")
	require.True(t, remaining.Equal(money.MustParse("10").Sub(want.Mul(decimal.NewFromInt(int64(succeeded))))))
}

func TestBillNumbersNotReusedAfterDelete(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, testAccount, "100")
	svc := testService(repo)
	ctx := context.Background()

	var bills []*Bill
	for i := 0; i < 3; i++ {
		b, err := svc.Create(ctx, testAccount, createReq(line(1, "1", "1.00")), "")
		require.NoError(t, err)
		bills = append(bills, b)
	}
	require.Equal(t, "BILL-2026-0001", bills[0].Number)
	require.Equal(t, "BILL-2026-0003", bills[2].Number)

	// Deleting a bill in the middle must not make the freed number the next
	// allocation: that would collide with the surviving highest number and
	// block creation for good.
	require.NoError(t, svc.Delete(ctx, testAccount, bills[1].ID))

	after, err := svc.Create(ctx, testAccount, createReq(line(1, "1", "1.00")), "")
	require.NoError(t, err)
	require.Equal(t, "BILL-2026-0004", after.Number)
	require.NotEqual(t, bills[0].Number, after.Number)
	require.NotEqual(t, bills[2].Number, after.Number)
}

type settlementRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (r *settlementRecorder) ObserveSettlement(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]int)
	}
	outcome := "committed"
	if err != nil {
		outcome = "rolled_back"
	}
	r.outcomes[op+"/"+outcome]++
}

func (r *settlementRecorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[key]
}

type statsBumper struct {
	bumps atomic.Int64
}

func (b *statsBumper) Invalidate(ctx context.Context) error {
	b.bumps.Add(1)
	return nil
}

func TestSettlementWritesObservedAndBumpStats(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, testAccount, "10")
	repo.clients[1] = "Acme Traders"
	recorder := &settlementRecorder{}
	bumper := &statsBumper{}
	svc := NewService(repo, nil, nil, recorder, bumper)
	ctx := context.Background()

	bill, err := svc.Create(ctx, testAccount, createReq(line(1, "2", "1.00")), "")
	require.NoError(t, err)
	require.Equal(t, 1, recorder.count("create/committed"))
	require.EqualValues(t, 1, bumper.bumps.Load())

	_, err = svc.Create(ctx, testAccount, createReq(line(1, "99", "1.00")), "")
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.Equal(t, 1, recorder.count("create/rolled_back"))
	require.EqualValues(t, 1, bumper.bumps.Load(), "a rolled-back write must not bump the cache")

	_, err = svc.UpdateStatus(ctx, testAccount, bill.ID, BillStatusPaid)
	require.NoError(t, err)
	require.Equal(t, 1, recorder.count("update_status/committed"))
	require.EqualValues(t, 2, bumper.bumps.Load())

	require.NoError(t, svc.Delete(ctx, testAccount, bill.ID))
	require.Equal(t, 1, recorder.count("delete/committed"))
	require.EqualValues(t, 3, bumper.bumps.Load())
}

func TestListBillsNewestFirst(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, testAccount, "100")
	svc := testService(repo)
	ctx := context.Background()

	first, err := svc.Create(ctx, testAccount, createReq(line(1, "1", "1.00")), "")
	require.NoError(t, err)
	second, err := svc.Create(ctx, testAccount, createReq(line(1, "1", "2.00")), "")
	require.NoError(t, err)

	bills, total, err := svc.List(ctx, testAccount, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, second.ID, bills[0].ID)
	require.Equal(t, first.ID, bills[1].ID)
	require.Equal(t, "Acme Traders", bills[0].ClientName)
}
