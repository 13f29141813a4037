package authz

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dablocksplug-source/theblock-sub000/internal/apperr"
	"github.com/dablocksplug-source/theblock-sub000/internal/model"
	"github.com/dablocksplug-source/theblock-sub000/internal/retry"
)

var (
	testContract = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testChainID  = big.NewInt(8453)
	testNow      = time.Unix(1_700_000_000, 0)
)

type fakeNonces struct {
	mu     sync.Mutex
	values map[common.Address]*big.Int
	err    error
	calls  int
}

func (f *fakeNonces) Nonce(_ context.Context, account common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.values[account]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeNonces) bump(account common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current := f.values[account]
	if current == nil {
		current = big.NewInt(0)
	}
	f.values[account] = new(big.Int).Add(current, big.NewInt(1))
}

func newTestVerifier(nonces NonceSource) *Verifier {
	return NewVerifier(Config{
		DomainTag: DefaultDomainTag,
		Contract:  testContract,
		ChainID:   testChainID,
		Retry:     retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond},
	}, nonces, nil, WithClock(func() time.Time { return testNow }))
}

func signAction(t *testing.T, key *ecdsa.PrivateKey, action model.SignedAction, nonce int64) Signature {
	t.Helper()
	action.Nonce = big.NewInt(nonce)
	digest := ActionDigest(DefaultDomainTag, action, testContract, testChainID)
	raw, err := crypto.Sign(accounts.TextHash(digest.Bytes()), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig, err := ParseSignature(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return sig
}

func newActor(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func purchase(actor common.Address, amount int64, expiry time.Time) model.SignedAction {
	return model.SignedAction{
		Kind:   model.ActionPurchase,
		Actor:  actor,
		Amount: big.NewInt(amount),
		Expiry: uint64(expiry.Unix()),
	}
}

func TestVerifyRecoversActor(t *testing.T) {
	key, actor := newActor(t)
	nonces := &fakeNonces{values: map[common.Address]*big.Int{actor: big.NewInt(0)}}
	verifier := newTestVerifier(nonces)

	action := purchase(actor, 100, testNow.Add(600*time.Second))
	sig := signAction(t, key, action, 0)

	verified, err := verifier.Verify(context.Background(), action, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.Action.Actor != actor || verified.Action.Nonce.Sign() != 0 {
		t.Fatalf("verified action mismatch: %+v", verified.Action)
	}
	if nonces.calls != 1 {
		t.Fatalf("nonce must be fetched once per call, got %d", nonces.calls)
	}
}

func TestVerifyRejectsEverySingleBitMutation(t *testing.T) {
	key, actor := newActor(t)
	verifier := newTestVerifier(&fakeNonces{values: map[common.Address]*big.Int{}})

	action := purchase(actor, 100, testNow.Add(time.Minute))
	raw := signAction(t, key, action, 0).Bytes()

	for bit := 0; bit < len(raw)*8; bit++ {
		mutated := append([]byte(nil), raw...)
		mutated[bit/8] ^= 1 << (bit % 8)

		sig, err := ParseSignature(mutated)
		if err != nil {
			continue
		}
		if _, err := verifier.VerifyWithNonce(action, sig, big.NewInt(0)); err == nil {
			t.Fatalf("mutation of bit %d still verified", bit)
		}
	}
}

func TestVerifyExpiredBeforeSignatureCheck(t *testing.T) {
	key, actor := newActor(t)
	nonces := &fakeNonces{values: map[common.Address]*big.Int{}}
	verifier := newTestVerifier(nonces)

	action := purchase(actor, 100, testNow.Add(-time.Second))
	sig := signAction(t, key, action, 0)

	_, err := verifier.Verify(context.Background(), action, sig)
	if !apperr.Is(err, apperr.KindExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if nonces.calls != 0 {
		t.Fatalf("expired authorizations must not reach the ledger")
	}
}

func TestVerifyRejectsConsumedNonce(t *testing.T) {
	key, actor := newActor(t)
	nonces := &fakeNonces{values: map[common.Address]*big.Int{actor: big.NewInt(0)}}
	verifier := newTestVerifier(nonces)

	action := purchase(actor, 100, testNow.Add(time.Minute))
	sig := signAction(t, key, action, 0)

	if _, err := verifier.Verify(context.Background(), action, sig); err != nil {
		t.Fatalf("first use: %v", err)
	}

	// the ledger consumes nonce 0 when the relayed call lands
	nonces.bump(actor)

	_, err := verifier.Verify(context.Background(), action, sig)
	if !apperr.Is(err, apperr.KindBadSignature) {
		t.Fatalf("replay should fail as bad signature, got %v", err)
	}
}

func TestVerifyRejectsOtherSigner(t *testing.T) {
	_, actor := newActor(t)
	otherKey, _ := newActor(t)
	verifier := newTestVerifier(&fakeNonces{values: map[common.Address]*big.Int{}})

	action := purchase(actor, 100, testNow.Add(time.Minute))
	sig := signAction(t, otherKey, action, 0)

	if _, err := verifier.Verify(context.Background(), action, sig); !apperr.Is(err, apperr.KindBadSignature) {
		t.Fatalf("expected bad signature, got %v", err)
	}
}

func TestVerifyDigestBindsContractAndChain(t *testing.T) {
	_, actor := newActor(t)
	action := purchase(actor, 100, testNow)
	action.Nonce = big.NewInt(0)

	base := ActionDigest(DefaultDomainTag, action, testContract, testChainID)
	if base == ActionDigest(DefaultDomainTag, action, common.HexToAddress("0x02"), testChainID) {
		t.Fatalf("digest must depend on contract")
	}
	if base == ActionDigest(DefaultDomainTag, action, testContract, big.NewInt(1)) {
		t.Fatalf("digest must depend on chain id")
	}
	if base == ActionDigest("OTHER", action, testContract, testChainID) {
		t.Fatalf("digest must depend on domain tag")
	}
}

func TestVerifyNonceFetchFailureIsTransient(t *testing.T) {
	key, actor := newActor(t)
	nonces := &fakeNonces{err: errors.New("rpc down")}
	verifier := newTestVerifier(nonces)

	action := purchase(actor, 100, testNow.Add(time.Minute))
	_, err := verifier.Verify(context.Background(), action, signAction(t, key, action, 0))
	if !apperr.Is(err, apperr.KindTransient) {
		t.Fatalf("expected transient, got %v", err)
	}
	if nonces.calls != 2 {
		t.Fatalf("expected one retry, got %d calls", nonces.calls)
	}
}

func TestVerifyValidatesInput(t *testing.T) {
	verifier := newTestVerifier(&fakeNonces{values: map[common.Address]*big.Int{}})
	_, actor := newActor(t)

	cases := map[string]model.SignedAction{
		"zero actor":  {Actor: common.Address{}, Amount: big.NewInt(1), Expiry: uint64(testNow.Unix())},
		"zero amount": {Actor: actor, Amount: big.NewInt(0), Expiry: uint64(testNow.Unix())},
		"no expiry":   {Actor: actor, Amount: big.NewInt(1)},
	}
	for name, action := range cases {
		if _, err := verifier.Verify(context.Background(), action, Signature{}); !apperr.Is(err, apperr.KindInputValidation) {
			t.Fatalf("%s: expected input validation, got %v", name, err)
		}
	}
}
