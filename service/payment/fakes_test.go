package payment

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/payce-finance/payce/service/db"
	"github.com/payce-finance/payce/service/evm"
	solanasvc "github.com/payce-finance/payce/service/solana"
)

// fakeRequestClient is an in-memory request protocol. Refresh returns
// balances from the refreshBalances queue, sticking on the last entry.
type fakeRequestClient struct {
	mu              sync.Mutex
	nextID          int
	records         map[string]*evm.RequestRecord
	createErrAfter  int // fail the nth create (1-based); 0 disables
	getErr          error
	refreshBalances []*big.Int
	refreshCalls    int
	createCalls     int
}

func newFakeRequestClient() *fakeRequestClient {
	return &fakeRequestClient{records: map[string]*evm.RequestRecord{}}
}

func (f *fakeRequestClient) CreateRequest(_ context.Context, params evm.CreateRequestParams) (*evm.RequestRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErrAfter > 0 && f.createCalls >= f.createErrAfter {
		return nil, fmt.Errorf("gateway rejected request")
	}
	f.nextID++
	rec := &evm.RequestRecord{
		RequestID:      fmt.Sprintf("req-%03d", f.nextID),
		Payee:          params.Payee,
		Payer:          params.Payer,
		ExpectedAmount: new(big.Int).Set(params.ExpectedAmount),
		PaymentNetwork: evm.PaymentNetwork{
			PaymentAddress: params.PaymentAddress,
			FeeAddress:     params.FeeAddress,
			FeeAmount:      params.FeeAmount.String(),
			TokenAddress:   params.TokenAddress,
		},
		Balance:   new(big.Int),
		CreatedAt: time.Now(),
	}
	f.records[rec.RequestID] = rec
	return rec, nil
}

func (f *fakeRequestClient) GetRequest(_ context.Context, requestID string) (*evm.RequestRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.records[requestID]
	if !ok {
		return nil, fmt.Errorf("request %s not found", requestID)
	}
	return rec, nil
}

func (f *fakeRequestClient) Refresh(_ context.Context, requestID string) (*evm.RequestRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[requestID]
	if !ok {
		return nil, fmt.Errorf("request %s not found", requestID)
	}
	if len(f.refreshBalances) > 0 {
		i := f.refreshCalls
		if i >= len(f.refreshBalances) {
			i = len(f.refreshBalances) - 1
		}
		rec.Balance = new(big.Int).Set(f.refreshBalances[i])
	}
	f.refreshCalls++
	return rec, nil
}

// fakeTxClient is an in-memory signer account with canned balances.
type fakeTxClient struct {
	mu        sync.Mutex
	balance   *big.Int
	allowance *big.Int

	approveCalls    int
	payRequestCalls int
	payBatchCalls   int
	batchLines      []evm.BatchLine

	payRequestErr error
	payBatchErr   error
	deployErr     error
	forwarder     common.Address
}

var (
	testSigner     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testFeeProxy   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testBatchProxy = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testEscrow     = common.HexToAddress("0x4444444444444444444444444444444444444444")
	testToken      = common.HexToAddress("0x5555555555555555555555555555555555555555")
	testFeeAddr    = common.HexToAddress("0x6666666666666666666666666666666666666666")
)

func newFakeTxClient(balance, allowance int64) *fakeTxClient {
	return &fakeTxClient{
		balance:   big.NewInt(balance),
		allowance: big.NewInt(allowance),
		forwarder: common.HexToAddress("0x7777777777777777777777777777777777777777"),
	}
}

func (f *fakeTxClient) Address() common.Address { return testSigner }

func (f *fakeTxClient) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeTxClient) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.allowance), nil
}

func (f *fakeTxClient) Approve(_ context.Context, _, _ common.Address, amount *big.Int) (*evm.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approveCalls++
	f.allowance = new(big.Int).Set(amount)
	return &evm.Receipt{TxHash: "0xapprove"}, nil
}

func (f *fakeTxClient) FeeProxyAddress() common.Address   { return testFeeProxy }
func (f *fakeTxClient) BatchProxyAddress() common.Address { return testBatchProxy }
func (f *fakeTxClient) EscrowAddress() common.Address     { return testEscrow }

func (f *fakeTxClient) PayRequest(context.Context, evm.PayParams) (*evm.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payRequestCalls++
	if f.payRequestErr != nil {
		return nil, f.payRequestErr
	}
	return &evm.Receipt{TxHash: "0xpay", BlockNumber: 10}, nil
}

func (f *fakeTxClient) PayBatch(_ context.Context, _ common.Address, lines []evm.BatchLine, _ common.Address) (*evm.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payBatchCalls++
	if f.payBatchErr != nil {
		return nil, f.payBatchErr
	}
	f.batchLines = lines
	return &evm.Receipt{TxHash: "0xbatch", BlockNumber: 11}, nil
}

func (f *fakeTxClient) PayEscrow(context.Context, evm.PayParams) (*evm.Receipt, error) {
	return &evm.Receipt{TxHash: "0xescrow"}, nil
}

func (f *fakeTxClient) PayRequestFromEscrow(context.Context, []byte) (*evm.Receipt, error) {
	return &evm.Receipt{TxHash: "0xrelease"}, nil
}

func (f *fakeTxClient) FreezeRequest(context.Context, []byte) (*evm.Receipt, error) {
	return &evm.Receipt{TxHash: "0xfreeze"}, nil
}

func (f *fakeTxClient) InitiateEmergencyClaim(context.Context, []byte) (*evm.Receipt, error) {
	return &evm.Receipt{TxHash: "0xclaim"}, nil
}

func (f *fakeTxClient) DeployForwarder(context.Context, common.Address, common.Address, []byte) (common.Address, *evm.Receipt, error) {
	if f.deployErr != nil {
		return common.Address{}, nil, f.deployErr
	}
	return f.forwarder, &evm.Receipt{TxHash: "0xdeploy"}, nil
}

// fakeTransferClient fails transfers whose recipient is listed in
// failFor, succeeding otherwise.
type fakeTransferClient struct {
	mu      sync.Mutex
	calls   []solanasvc.TransferParams
	failFor map[string]error
	nextSig int
}

func newFakeTransferClient() *fakeTransferClient {
	return &fakeTransferClient{failFor: map[string]error{}}
}

func (f *fakeTransferClient) Transfer(_ context.Context, params solanasvc.TransferParams) (*solanasvc.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, params)
	if err, ok := f.failFor[params.Recipient.String()]; ok {
		return nil, err
	}
	f.nextSig++
	sig := fmt.Sprintf("sig-%03d", f.nextSig)
	return &solanasvc.TransferResult{
		Signature:   sig,
		Slot:        uint64(100 + f.nextSig),
		ExplorerURL: solanasvc.ExplorerURL(params.Network, sig),
	}, nil
}

// fakeTxStore records created transactions in memory.
type fakeTxStore struct {
	mu        sync.Mutex
	created   []db.CreateTransactionParams
	createErr error
}

func (f *fakeTxStore) CreateTransaction(_ context.Context, params db.CreateTransactionParams) (*db.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, params)
	return &db.Transaction{
		TransactionID: params.TransactionID,
		Sender:        params.Sender,
		Recipient:     params.Recipient,
		Amount:        params.Amount,
		AmountDisplay: params.AmountDisplay,
		Currency:      params.Currency,
		Network:       params.Network,
		Reason:        params.Reason,
		Signature:     params.Signature,
		ExplorerURL:   params.ExplorerURL,
		CreatedAt:     time.Now(),
	}, nil
}

// fakeInvoiceStore enforces the pending-to-paid transition in memory.
type fakeInvoiceStore struct {
	mu       sync.Mutex
	invoices map[string]*db.Invoice
}

func newFakeInvoiceStore() *fakeInvoiceStore {
	return &fakeInvoiceStore{invoices: map[string]*db.Invoice{}}
}

func (f *fakeInvoiceStore) CreateInvoice(_ context.Context, params db.CreateInvoiceParams) (*db.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.invoices[params.TransactionID]; ok {
		return nil, db.ErrDuplicateID
	}
	inv := &db.Invoice{
		TransactionID: params.TransactionID,
		Status:        db.InvoiceStatusPending,
		PayerAddress:  params.PayerAddress,
		PayeeAddress:  params.PayeeAddress,
		Amount:        params.Amount,
		AmountDisplay: params.AmountDisplay,
		Currency:      params.Currency,
		Network:       params.Network,
		Reason:        params.Reason,
		DueDate:       params.DueDate,
		BusinessEmail: params.BusinessEmail,
		ClientEmail:   params.ClientEmail,
		ContentData:   params.ContentData,
		PaymentURL:    params.PaymentURL,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	f.invoices[params.TransactionID] = inv
	return inv, nil
}

func (f *fakeInvoiceStore) MarkInvoicePaid(_ context.Context, transactionID string, paidAt time.Time, explorerURL string) (*db.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[transactionID]
	if !ok {
		return nil, db.ErrInvoiceNotFound
	}
	if inv.Status != db.InvoiceStatusPending {
		return nil, db.ErrInvoiceAlreadyPaid
	}
	inv.Status = db.InvoiceStatusPaid
	inv.PaidAt = &paidAt
	inv.ExplorerURL = &explorerURL
	inv.UpdatedAt = time.Now()
	return inv, nil
}
