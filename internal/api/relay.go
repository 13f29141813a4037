package api

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/dablocksplug-source/theblock-sub000/internal/apperr"
	"github.com/dablocksplug-source/theblock-sub000/internal/authz"
	"github.com/dablocksplug-source/theblock-sub000/internal/model"
	"github.com/dablocksplug-source/theblock-sub000/internal/relay"
)

type actionRequest struct {
	Actor  string      `json:"actor" binding:"required"`
	Amount json.Number `json:"amount" binding:"required"`
	Expiry uint64      `json:"expiry" binding:"required"`
	authz.SignatureInput
}

type permitRequest struct {
	Owner    string      `json:"owner" binding:"required"`
	Spender  string      `json:"spender" binding:"required"`
	Value    json.Number `json:"value" binding:"required"`
	Deadline uint64      `json:"deadline" binding:"required"`
	authz.SignatureInput
}

type actionWithPermitRequest struct {
	actionRequest
	Permit *permitRequest `json:"permit" binding:"required"`
}

func (r actionRequest) toAction() (model.SignedAction, authz.Signature, error) {
	actor, err := parseAddress("actor", r.Actor)
	if err != nil {
		return model.SignedAction{}, authz.Signature{}, err
	}
	amount, err := parseAmount("amount", r.Amount)
	if err != nil {
		return model.SignedAction{}, authz.Signature{}, err
	}
	sig, err := r.SignatureInput.Resolve()
	if err != nil {
		return model.SignedAction{}, authz.Signature{}, err
	}
	return model.SignedAction{
		Kind:   model.ActionPurchase,
		Actor:  actor,
		Amount: amount,
		Expiry: r.Expiry,
	}, sig, nil
}

func (r permitRequest) toPermit() (model.SignedPermit, authz.Signature, error) {
	owner, err := parseAddress("permit.owner", r.Owner)
	if err != nil {
		return model.SignedPermit{}, authz.Signature{}, err
	}
	spender, err := parseAddress("permit.spender", r.Spender)
	if err != nil {
		return model.SignedPermit{}, authz.Signature{}, err
	}
	value, err := parseAmount("permit.value", r.Value)
	if err != nil {
		return model.SignedPermit{}, authz.Signature{}, err
	}
	sig, err := r.SignatureInput.Resolve()
	if err != nil {
		return model.SignedPermit{}, authz.Signature{}, err
	}
	return model.SignedPermit{Owner: owner, Spender: spender, Value: value, Deadline: r.Deadline}, sig, nil
}

func (s *Server) relayAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, apperr.Wrap(apperr.KindInputValidation, "bind request", err))
		return
	}
	action, sig, err := req.toAction()
	if err != nil {
		s.fail(c, err)
		return
	}

	handle, err := s.deps.Relay.RelayAction(c.Request.Context(), action, sig)
	s.relayed(c, handle, err)
}

func (s *Server) relayActionWithPermit(c *gin.Context) {
	var req actionWithPermitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, apperr.Wrap(apperr.KindInputValidation, "bind request", err))
		return
	}
	action, sig, err := req.toAction()
	if err != nil {
		s.fail(c, err)
		return
	}
	permit, permitSig, err := req.Permit.toPermit()
	if err != nil {
		s.fail(c, err)
		return
	}

	handle, err := s.deps.Relay.RelayActionWithPermit(c.Request.Context(), action, sig, permit, permitSig)
	s.relayed(c, handle, err)
}

func (s *Server) relayed(c *gin.Context, handle relay.TxHandle, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "hash": handle.Hash.Hex()})
}

func parseAddress(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, apperr.New(apperr.KindInputValidation, field, "invalid address")
	}
	return common.HexToAddress(value), nil
}

func parseAmount(field string, value json.Number) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value.String()), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, apperr.New(apperr.KindInputValidation, field, "must be a positive integer")
	}
	return amount, nil
}
