package rpc

import (
	"math/big"
	"net/http"

	"ipledger/core/state"
	"ipledger/native/loan"
	"ipledger/observability/metrics"
)

type loanApplyParams struct {
	Borrower        string `json:"borrower"`
	Collateral      string `json:"collateral"`
	Principal       string `json:"principal"`
	InterestRateBps uint64 `json:"interestRateBps"`
	PeriodSeconds   uint64 `json:"periodSeconds"`
}

type loanActionParams struct {
	Caller string `json:"caller"`
	LoanID uint64 `json:"loanId"`
}

type loanGetParams struct {
	LoanID uint64 `json:"loanId"`
}

type loanView struct {
	ID              uint64 `json:"id"`
	Borrower        string `json:"borrower"`
	Collateral      string `json:"collateral"`
	Principal       string `json:"principal"`
	InterestRateBps uint64 `json:"interestRateBps"`
	PeriodSeconds   uint64 `json:"periodSeconds"`
	StartTime       int64  `json:"startTime"`
	EndTime         int64  `json:"endTime"`
	Status          string `json:"status"`
}

type loanRepayResult struct {
	Loan           loanView `json:"loan"`
	TotalRepayment string   `json:"totalRepayment"`
}

func viewLoan(l *loan.Loan) loanView {
	return loanView{
		ID:              l.ID,
		Borrower:        encodeAddress(l.Borrower),
		Collateral:      encodeRef(l.Collateral),
		Principal:       l.Principal.String(),
		InterestRateBps: l.InterestRateBps,
		PeriodSeconds:   l.PeriodSeconds,
		StartTime:       l.StartTime,
		EndTime:         l.EndTime,
		Status:          l.Status.String(),
	}
}

func (s *Server) handleLoanApply(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params loanApplyParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	borrower, err := parseAddress(params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	collateral, err := parseRef(params.Collateral)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	principal, err := parseAmount(params.Principal)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	var record *loan.Loan
	if err := s.state.Atomic(func(st *state.Manager) error {
		var err error
		record, err = s.loans.WithState(st).Apply(borrower, collateral, principal, params.InterestRateBps, params.PeriodSeconds)
		return err
	}); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	metrics.Protocol().ObserveLoanTransition("apply")
	writeResult(w, req.ID, viewLoan(record))
}

func (s *Server) handleLoanApprove(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params loanActionParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	approver, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	var record *loan.Loan
	if err := s.state.Atomic(func(st *state.Manager) error {
		var err error
		record, err = s.loans.WithState(st).Approve(approver, params.LoanID)
		return err
	}); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	metrics.Protocol().ObserveLoanTransition("approve")
	writeResult(w, req.ID, viewLoan(record))
}

func (s *Server) handleLoanRepay(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params loanActionParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	var (
		record *loan.Loan
		due    *big.Int
	)
	if err := s.state.Atomic(func(st *state.Manager) error {
		var err error
		record, due, err = s.loans.WithState(st).Repay(caller, params.LoanID)
		return err
	}); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	metrics.Protocol().ObserveLoanTransition("repay")
	writeResult(w, req.ID, loanRepayResult{Loan: viewLoan(record), TotalRepayment: due.String()})
}

func (s *Server) handleLoanLiquidate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params loanActionParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	admin, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	var record *loan.Loan
	if err := s.state.Atomic(func(st *state.Manager) error {
		var err error
		record, err = s.loans.WithState(st).Liquidate(admin, params.LoanID)
		return err
	}); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	metrics.Protocol().ObserveLoanTransition("liquidate")
	writeResult(w, req.ID, viewLoan(record))
}

func (s *Server) handleLoanGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params loanGetParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	record, err := s.loans.Loan(params.LoanID)
	if err != nil {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, viewLoan(record))
}
