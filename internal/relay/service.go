package relay

import (
	"context"

	"github.com/dablocksplug-source/theblock-sub000/internal/apperr"
	"github.com/dablocksplug-source/theblock-sub000/internal/authz"
	"github.com/dablocksplug-source/theblock-sub000/internal/model"
)

// ActionVerifier verifies purchase authorizations.
type ActionVerifier interface {
	Verify(ctx context.Context, action model.SignedAction, sig authz.Signature) (authz.VerifiedAuthorization, error)
}

// PermitVerifier verifies token permits.
type PermitVerifier interface {
	Verify(ctx context.Context, permit model.SignedPermit, sig authz.Signature) (authz.VerifiedPermit, error)
}

// Service runs verification and submission for both relay flows.
type Service struct {
	actions   ActionVerifier
	permits   PermitVerifier
	submitter *Submitter
}

func NewService(actions ActionVerifier, permits PermitVerifier, submitter *Submitter) *Service {
	return &Service{actions: actions, permits: permits, submitter: submitter}
}

// RelayAction verifies and submits a plain purchase authorization.
func (s *Service) RelayAction(ctx context.Context, action model.SignedAction, sig authz.Signature) (TxHandle, error) {
	verified, err := s.actions.Verify(ctx, action, sig)
	if err != nil {
		return TxHandle{}, err
	}
	return s.submitter.Submit(ctx, Request{Authorization: verified})
}

// RelayActionWithPermit verifies both signatures and submits the combined
// call.
func (s *Service) RelayActionWithPermit(ctx context.Context, action model.SignedAction, sig authz.Signature, permit model.SignedPermit, permitSig authz.Signature) (TxHandle, error) {
	if s.permits == nil {
		return TxHandle{}, apperr.New(apperr.KindInputValidation, "relay permit", "permit flow is not enabled")
	}
	verified, err := s.actions.Verify(ctx, action, sig)
	if err != nil {
		return TxHandle{}, err
	}
	verifiedPermit, err := s.permits.Verify(ctx, permit, permitSig)
	if err != nil {
		return TxHandle{}, err
	}
	return s.submitter.Submit(ctx, Request{Authorization: verified, Permit: &verifiedPermit})
}
