package rpc

import (
	"net/http"

	"ipledger/core/state"
	nativecommon "ipledger/native/common"
)

type assetRegisterParams struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
	Owner  string `json:"owner"`
}

type assetOwnerParams struct {
	Asset string `json:"asset"`
}

type assetOwnerResult struct {
	Asset string `json:"asset"`
	Owner string `json:"owner"`
}

func (s *Server) handleAssetsRegister(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params assetRegisterParams
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
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if !s.state.HasRole(nativecommon.RoleProtocolAdmin, caller[:]) {
		writeError(w, http.StatusForbidden, req.ID, codeUnauthorized, "caller lacks admin role", nil)
		return
	}
	if err := s.state.Atomic(func(st *state.Manager) error {
		return st.AssetRegister(asset, owner)
	}); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeServerError, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, assetOwnerResult{Asset: encodeRef(asset), Owner: encodeAddress(owner)})
}

func (s *Server) handleAssetsOwner(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params assetOwnerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	asset, err := parseRef(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, ok, err := s.state.AssetOwner(asset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "asset reference not registered", nil)
		return
	}
	writeResult(w, req.ID, assetOwnerResult{Asset: encodeRef(asset), Owner: encodeAddress(owner)})
}
