package rpc

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"ipledger/core/state"
	"ipledger/core/types"
	nativecommon "ipledger/native/common"
	"ipledger/native/loan"
	"ipledger/native/royalty"
	"ipledger/native/token"
	"ipledger/storage"
)

const (
	testAdmin    = "0x00000000000000000000000000000000000000aa"
	testApprover = "0x00000000000000000000000000000000000000ab"
	testBorrower = "0x0000000000000000000000000000000000000001"
	testAsset    = "0x00000000000000000000000000000000000000000000000000000000000000a1"
)

type testNode struct {
	server  *Server
	manager *state.Manager
	now     *int64
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())

	admin, err := parseAddress(testAdmin)
	require.NoError(t, err)
	approver, err := parseAddress(testApprover)
	require.NoError(t, err)
	require.NoError(t, manager.GrantRole(nativecommon.RoleProtocolAdmin, admin[:]))
	require.NoError(t, manager.GrantRole(nativecommon.RoleLoanApprover, approver[:]))

	now := new(int64)
	*now = 1000
	nowFn := func() int64 { return *now }

	loans := loan.NewEngine()
	loans.SetState(manager)
	loans.SetNowFunc(nowFn)

	royalties := royalty.NewEngine()
	royalties.SetState(manager)
	royalties.SetNowFunc(nowFn)

	tokens := token.NewLedger()
	tokens.SetState(manager)

	// Seed the loan module float so approvals can disburse.
	floatAcc := types.NewAccount()
	floatAcc.Balance = big.NewInt(1_000_000)
	module := loan.ModuleAddress()
	require.NoError(t, manager.PutAccount(module[:], floatAcc))

	server := NewServer(loans, royalties, tokens, manager, slog.Default())
	return &testNode{server: server, manager: manager, now: now}
}

func (n *testNode) call(t *testing.T, method string, params interface{}) (json.RawMessage, *RPCError) {
	t.Helper()
	encoded, err := json.Marshal(params)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []json.RawMessage{encoded},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	n.server.Handler().ServeHTTP(rec, req)

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Result, resp.Error
}

func (n *testNode) mustCall(t *testing.T, method string, params interface{}, out interface{}) {
	t.Helper()
	result, rpcErr := n.call(t, method, params)
	require.Nil(t, rpcErr, "method %s failed: %+v", method, rpcErr)
	if out != nil {
		require.NoError(t, json.Unmarshal(result, out))
	}
}

func (n *testNode) registerAsset(t *testing.T, owner string) {
	t.Helper()
	n.mustCall(t, "assets_register", map[string]string{
		"caller": testAdmin,
		"asset":  testAsset,
		"owner":  owner,
	}, nil)
}

func TestLoanLifecycleOverRPC(t *testing.T) {
	node := newTestNode(t)
	node.registerAsset(t, testBorrower)

	var applied loanView
	node.mustCall(t, "loan_apply", map[string]interface{}{
		"borrower":        testBorrower,
		"collateral":      testAsset,
		"principal":       "1000",
		"interestRateBps": 500,
		"periodSeconds":   3600,
	}, &applied)
	require.Equal(t, uint64(1), applied.ID)
	require.Equal(t, "applied", applied.Status)

	var active loanView
	node.mustCall(t, "loan_approve", map[string]interface{}{
		"caller": testApprover,
		"loanId": applied.ID,
	}, &active)
	require.Equal(t, "active", active.Status)
	require.Equal(t, int64(1000), active.StartTime)
	require.Equal(t, int64(4600), active.EndTime)

	var balance tokenAmountResult
	node.mustCall(t, "token_balance", map[string]string{"address": testBorrower}, &balance)
	require.Equal(t, "1000", balance.Amount)

	// Mint interest cover and grant the module an allowance for the pull.
	node.mustCall(t, "token_mint", map[string]string{
		"caller": testAdmin,
		"to":     testBorrower,
		"amount": "50",
	}, nil)
	node.mustCall(t, "token_approve", map[string]string{
		"owner":   testBorrower,
		"spender": encodeAddress(loan.ModuleAddress()),
		"amount":  "1050",
	}, nil)

	*node.now = active.EndTime // window closes inclusively
	var repaid loanRepayResult
	node.mustCall(t, "loan_repay", map[string]interface{}{
		"caller": testBorrower,
		"loanId": applied.ID,
	}, &repaid)
	require.Equal(t, "repaid", repaid.Loan.Status)
	require.Equal(t, "1050", repaid.TotalRepayment)

	var owner assetOwnerResult
	node.mustCall(t, "assets_owner", map[string]string{"asset": testAsset}, &owner)
	require.Equal(t, testBorrower, owner.Owner)
}

func TestLiquidationOverRPC(t *testing.T) {
	node := newTestNode(t)
	node.registerAsset(t, testBorrower)

	var applied loanView
	node.mustCall(t, "loan_apply", map[string]interface{}{
		"borrower":        testBorrower,
		"collateral":      testAsset,
		"principal":       "1000",
		"interestRateBps": 500,
		"periodSeconds":   3600,
	}, &applied)
	var active loanView
	node.mustCall(t, "loan_approve", map[string]interface{}{
		"caller": testApprover,
		"loanId": applied.ID,
	}, &active)

	// Still inside the window: liquidation is rejected.
	*node.now = active.EndTime
	_, rpcErr := node.call(t, "loan_liquidate", map[string]interface{}{
		"caller": testAdmin,
		"loanId": applied.ID,
	})
	require.NotNil(t, rpcErr)

	*node.now = active.EndTime + 1
	var seized loanView
	node.mustCall(t, "loan_liquidate", map[string]interface{}{
		"caller": testAdmin,
		"loanId": applied.ID,
	}, &seized)
	require.Equal(t, "liquidated", seized.Status)

	var owner assetOwnerResult
	node.mustCall(t, "assets_owner", map[string]string{"asset": testAsset}, &owner)
	require.Equal(t, testAdmin, owner.Owner)
}

func TestRoyaltyLifecycleOverRPC(t *testing.T) {
	node := newTestNode(t)
	node.registerAsset(t, testBorrower)

	var class royaltyClassView
	node.mustCall(t, "royalty_issue", map[string]interface{}{
		"caller":        testBorrower,
		"asset":         testAsset,
		"percentageBps": 1000,
		"amount":        "1000",
	}, &class)
	require.Equal(t, uint64(1000), class.PercentageBps)
	require.Equal(t, "1000", class.TotalSupply)

	holder := "0x0000000000000000000000000000000000000002"
	node.mustCall(t, "royalty_transfer", map[string]string{
		"from":    testBorrower,
		"to":      holder,
		"classId": class.ID,
		"amount":  "250",
	}, nil)

	// Fund the admin and grant the vault an allowance for the deposit pull.
	node.mustCall(t, "token_mint", map[string]string{
		"caller": testAdmin,
		"to":     testAdmin,
		"amount": "1000",
	}, nil)
	node.mustCall(t, "token_approve", map[string]string{
		"owner":   testAdmin,
		"spender": encodeAddress(royalty.VaultAddress()),
		"amount":  "1000",
	}, nil)
	var pool royaltyAmountResult
	node.mustCall(t, "royalty_deposit", map[string]string{
		"caller":  testAdmin,
		"classId": class.ID,
		"amount":  "1000",
	}, &pool)
	require.Equal(t, "1000", pool.Amount)

	var paid royaltyAmountResult
	node.mustCall(t, "royalty_claim", map[string]string{
		"caller":  holder,
		"classId": class.ID,
	}, &paid)
	require.Equal(t, "250", paid.Amount)

	node.mustCall(t, "royalty_pool", map[string]string{"classId": class.ID}, &pool)
	require.Equal(t, "750", pool.Amount)

	var balance tokenAmountResult
	node.mustCall(t, "token_balance", map[string]string{"address": holder}, &balance)
	require.Equal(t, "250", balance.Amount)
}

func TestMutatingMethodsRequireBearerToken(t *testing.T) {
	t.Setenv(authTokenEnv, "secret")
	node := newTestNode(t)

	payload := []byte(`{"jsonrpc":"2.0","id":1,"method":"loan_apply","params":[{}]}`)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	node.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Queries stay open without the token.
	query := []byte(`{"jsonrpc":"2.0","id":1,"method":"loan_get","params":[{"loanId":1}]}`)
	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(query))
	rec = httptest.NewRecorder()
	node.server.Handler().ServeHTTP(rec, req)
	require.NotEqual(t, http.StatusUnauthorized, rec.Code)

	// The right token unlocks mutations.
	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	node.server.Handler().ServeHTTP(rec, req)
	require.NotEqual(t, http.StatusUnauthorized, rec.Code)
}

func TestUnknownMethodReturnsNotFound(t *testing.T) {
	node := newTestNode(t)
	_, rpcErr := node.call(t, "loan_refinance", map[string]string{})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeMethodNotFound, rpcErr.Code)
}

func TestConcurrentClaimsCannotOverdrawPool(t *testing.T) {
	node := newTestNode(t)
	node.registerAsset(t, testBorrower)

	var class royaltyClassView
	node.mustCall(t, "royalty_issue", map[string]interface{}{
		"caller":        testBorrower,
		"asset":         testAsset,
		"percentageBps": 1000,
		"amount":        "1000",
	}, &class)

	node.mustCall(t, "token_mint", map[string]string{
		"caller": testAdmin,
		"to":     testAdmin,
		"amount": "1000",
	}, nil)
	node.mustCall(t, "token_approve", map[string]string{
		"owner":   testAdmin,
		"spender": encodeAddress(royalty.VaultAddress()),
		"amount":  "1000",
	}, nil)
	node.mustCall(t, "royalty_deposit", map[string]string{
		"caller":  testAdmin,
		"classId": class.ID,
		"amount":  "1000",
	}, nil)

	// The sole holder fires claims in parallel. Exactly one may drain the
	// pool; any racing claim that double-paid would push the sum past the
	// 1000 deposited.
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "royalty_claim",
		"params": []map[string]string{{
			"caller":  testBorrower,
			"classId": class.ID,
		}},
	})
	require.NoError(t, err)

	handler := node.server.Handler()
	const attempts = 8
	payouts := make(chan *big.Int, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			var resp struct {
				Result *royaltyAmountResult `json:"result"`
				Error  *RPCError            `json:"error"`
			}
			if json.Unmarshal(rec.Body.Bytes(), &resp) != nil || resp.Error != nil || resp.Result == nil {
				payouts <- big.NewInt(0)
				return
			}
			amount, ok := new(big.Int).SetString(resp.Result.Amount, 10)
			if !ok {
				amount = big.NewInt(0)
			}
			payouts <- amount
		}()
	}
	wg.Wait()
	close(payouts)

	total := big.NewInt(0)
	for amount := range payouts {
		total.Add(total, amount)
	}
	require.Equal(t, "1000", total.String(), "claims paid out more than was deposited")

	var balance tokenAmountResult
	node.mustCall(t, "token_balance", map[string]string{"address": testBorrower}, &balance)
	require.Equal(t, "1000", balance.Amount)
	var pool royaltyAmountResult
	node.mustCall(t, "royalty_pool", map[string]string{"classId": class.ID}, &pool)
	require.Equal(t, "0", pool.Amount)
}

func TestAuthorizationFailuresUseUnauthorizedCode(t *testing.T) {
	node := newTestNode(t)
	node.registerAsset(t, testBorrower)

	var applied loanView
	node.mustCall(t, "loan_apply", map[string]interface{}{
		"borrower":        testBorrower,
		"collateral":      testAsset,
		"principal":       "1000",
		"interestRateBps": 500,
		"periodSeconds":   3600,
	}, &applied)

	// A caller without the approver role is an authorization failure, not a
	// generic server error.
	_, rpcErr := node.call(t, "loan_approve", map[string]interface{}{
		"caller": testBorrower,
		"loanId": applied.ID,
	})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeUnauthorized, rpcErr.Code)

	_, rpcErr = node.call(t, "token_mint", map[string]string{
		"caller": testBorrower,
		"to":     testBorrower,
		"amount": "10",
	})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeUnauthorized, rpcErr.Code)

	// Precondition failures keep the generic code.
	_, rpcErr = node.call(t, "loan_approve", map[string]interface{}{
		"caller": testApprover,
		"loanId": uint64(999),
	})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeServerError, rpcErr.Code)
}

func TestAssetRegisterRequiresAdmin(t *testing.T) {
	node := newTestNode(t)
	_, rpcErr := node.call(t, "assets_register", map[string]string{
		"caller": testBorrower,
		"asset":  testAsset,
		"owner":  testBorrower,
	})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeUnauthorized, rpcErr.Code)
}
