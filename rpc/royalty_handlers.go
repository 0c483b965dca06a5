package rpc

import (
	"math/big"
	"net/http"

	"ipledger/core/state"
	"ipledger/native/royalty"
	"ipledger/observability/metrics"
)

type royaltyIssueParams struct {
	Caller        string `json:"caller"`
	Asset         string `json:"asset"`
	PercentageBps uint64 `json:"percentageBps"`
	Amount        string `json:"amount"`
}

type royaltyTransferParams struct {
	From    string `json:"from"`
	To      string `json:"to"`
	ClassID string `json:"classId"`
	Amount  string `json:"amount"`
}

type royaltyDepositParams struct {
	Caller  string `json:"caller"`
	ClassID string `json:"classId"`
	Amount  string `json:"amount"`
}

type royaltyClaimParams struct {
	Caller  string `json:"caller"`
	ClassID string `json:"classId"`
}

type royaltyClassParams struct {
	ClassID string `json:"classId"`
}

type royaltyHoldingParams struct {
	ClassID string `json:"classId"`
	Holder  string `json:"holder"`
}

type royaltyClassView struct {
	ID            string `json:"id"`
	Asset         string `json:"asset"`
	PercentageBps uint64 `json:"percentageBps"`
	TotalSupply   string `json:"totalSupply"`
	Issuer        string `json:"issuer"`
	IssuedAt      int64  `json:"issuedAt"`
}

type royaltyAmountResult struct {
	Amount string `json:"amount"`
}

func viewClass(c *royalty.TokenClass) royaltyClassView {
	return royaltyClassView{
		ID:            encodeRef(c.ID),
		Asset:         encodeRef(c.Asset),
		PercentageBps: c.PercentageBps,
		TotalSupply:   c.TotalSupply.String(),
		Issuer:        encodeAddress(c.Issuer),
		IssuedAt:      c.IssuedAt,
	}
}

func (s *Server) handleRoyaltyIssue(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params royaltyIssueParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	asset, err := parseRef(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	var class *royalty.TokenClass
	if err := s.state.Atomic(func(st *state.Manager) error {
		var err error
		class, err = s.royalties.WithState(st).Issue(caller, asset, params.PercentageBps, amount)
		return err
	}); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	metrics.Protocol().ObserveRoyaltyOp("issue")
	writeResult(w, req.ID, viewClass(class))
}

func (s *Server) handleRoyaltyTransfer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params royaltyTransferParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	classID, err := parseRef(params.ClassID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.state.Atomic(func(st *state.Manager) error {
		return s.royalties.WithState(st).Transfer(from, to, classID, amount)
	}); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	metrics.Protocol().ObserveRoyaltyOp("transfer")
	writeResult(w, req.ID, royaltyAmountResult{Amount: amount.String()})
}

func (s *Server) handleRoyaltyDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params royaltyDepositParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	classID, err := parseRef(params.ClassID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	var accumulated *big.Int
	if err := s.state.Atomic(func(st *state.Manager) error {
		var err error
		accumulated, err = s.royalties.WithState(st).Deposit(caller, classID, amount)
		return err
	}); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	metrics.Protocol().ObserveRoyaltyOp("deposit")
	writeResult(w, req.ID, royaltyAmountResult{Amount: accumulated.String()})
}

func (s *Server) handleRoyaltyClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params royaltyClaimParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	classID, err := parseRef(params.ClassID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	var paid *big.Int
	if err := s.state.Atomic(func(st *state.Manager) error {
		var err error
		paid, err = s.royalties.WithState(st).Claim(caller, classID)
		return err
	}); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	metrics.Protocol().ObserveRoyaltyOp("claim")
	writeResult(w, req.ID, royaltyAmountResult{Amount: paid.String()})
}

func (s *Server) handleRoyaltyClass(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params royaltyClassParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	classID, err := parseRef(params.ClassID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	class, err := s.royalties.Class(classID)
	if err != nil {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, viewClass(class))
}

func (s *Server) handleRoyaltyHolding(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params royaltyHoldingParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	classID, err := parseRef(params.ClassID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	holder, err := parseAddress(params.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := s.royalties.Holding(classID, holder)
	if err != nil {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, royaltyAmountResult{Amount: balance.String()})
}

func (s *Server) handleRoyaltyPool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params royaltyClassParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	classID, err := parseRef(params.ClassID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	accumulated, err := s.royalties.Pool(classID)
	if err != nil {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, royaltyAmountResult{Amount: accumulated.String()})
}
