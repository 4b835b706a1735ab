// Package httpapi exposes the vault ledger and reaction counters over HTTP.
//
// Mutating requests carry the signer's account key, an expiry and a base58
// ed25519 signature of auth.CanonicalMessage. The server verifies the
// signature, serialises requests touching the same accounts and then calls
// the core. Expiries more than maxSignatureTTL ahead are refused. Within that
// window a captured request can be replayed; there is no nonce.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/mr-tron/base58/base58"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/accountlock"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/auth"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models/events"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// solExponent scales lamports to SOL.
const solExponent = -9

const maxSignatureTTL = 5 * time.Minute

type VaultService interface {
	Deposit(ctx context.Context, vault models.Identity, depositor auth.Principal, amount uint64) (events.DepositEvent, error)
	Withdraw(ctx context.Context, vault models.Identity, authority auth.Principal, amount uint64) (events.WithdrawEvent, error)
	Vault(ctx context.Context, address models.Identity) (models.Vault, error)
	Balance(ctx context.Context, address models.Identity) (uint64, error)
}

type ReactionService interface {
	AddReaction(ctx context.Context, address, post models.Identity, kind models.ReactionKind, caller auth.Principal) (events.ReactionAddedEvent, error)
	RemoveReaction(ctx context.Context, reaction models.Identity, caller auth.Principal) (events.ReactionRemovedEvent, error)
	Post(ctx context.Context, address models.Identity) (models.Post, error)
}

type Verifier interface {
	Verify(signer models.Identity, message, signature []byte) (auth.Principal, error)
}

type Server struct {
	vaults    VaultService
	reactions ReactionService
	verifier  Verifier
	locks     *accountlock.Locks
	limiter   *keyLimiter
	metrics   http.Handler
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRateLimit limits mutating requests per signer. Zero disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) { s.limiter = newKeyLimiter(rps, burst) }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

func NewServer(vaults VaultService, reactions ReactionService, verifier Verifier, opts ...Option) *Server {
	s := &Server{
		vaults:    vaults,
		reactions: reactions,
		verifier:  verifier,
		locks:     accountlock.New(),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	mux.HandleFunc("GET /vaults/{vault}", s.getVault)
	mux.HandleFunc("POST /vaults/{vault}/deposit", s.deposit)
	mux.HandleFunc("POST /vaults/{vault}/withdraw", s.withdraw)
	mux.HandleFunc("GET /accounts/{address}/balance", s.getBalance)
	mux.HandleFunc("GET /posts/{post}", s.getPost)
	mux.HandleFunc("POST /posts/{post}/reactions", s.addReaction)
	mux.HandleFunc("DELETE /reactions/{reaction}", s.removeReaction)
	return withLogging(s.logger, mux)
}

type signedRequest struct {
	Signer    models.Identity `json:"signer"`
	Expires   int64           `json:"expires"`
	Signature string          `json:"signature"`
}

type amountRequest struct {
	signedRequest
	Amount uint64 `json:"amount"`
}

type reactionRequest struct {
	signedRequest
	Reaction models.Identity     `json:"reaction"`
	Kind     models.ReactionKind `json:"kind"`
}

type vaultResponse struct {
	models.Vault
	BalanceSOL string `json:"balance_sol"`
}

type balanceResponse struct {
	Address    models.Identity `json:"address"`
	Lamports   uint64          `json:"lamports"`
	BalanceSOL string          `json:"balance_sol"`
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	vault, req, principal, err := s.amountCall(w, r, auth.OpDeposit)
	if err != nil {
		s.fail(w, err)
		return
	}
	unlock := s.locks.Lock(vault, req.Signer)
	ev, err := s.vaults.Deposit(r.Context(), vault, principal, req.Amount)
	unlock()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	vault, req, principal, err := s.amountCall(w, r, auth.OpWithdraw)
	if err != nil {
		s.fail(w, err)
		return
	}
	unlock := s.locks.Lock(vault, req.Signer)
	ev, err := s.vaults.Withdraw(r.Context(), vault, principal, req.Amount)
	unlock()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) amountCall(w http.ResponseWriter, r *http.Request, op string) (models.Identity, amountRequest, auth.Principal, error) {
	var req amountRequest
	vault, err := pathIdentity(r, "vault")
	if err != nil {
		return vault, req, auth.Principal{}, err
	}
	if err := decode(w, r, &req); err != nil {
		return vault, req, auth.Principal{}, err
	}
	p, err := s.authenticate(req.signedRequest, auth.CanonicalMessage(op, vault, req.Amount, req.Expires))
	return vault, req, p, err
}

func (s *Server) addReaction(w http.ResponseWriter, r *http.Request) {
	post, err := pathIdentity(r, "post")
	if err != nil {
		s.fail(w, err)
		return
	}
	var req reactionRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	principal, err := s.authenticate(req.signedRequest, auth.CanonicalMessage(reactionOp(req.Kind), req.Reaction, 0, req.Expires))
	if err != nil {
		s.fail(w, err)
		return
	}

	unlock := s.locks.Lock(req.Reaction, post, req.Signer)
	ev, err := s.reactions.AddReaction(r.Context(), req.Reaction, post, req.Kind, principal)
	unlock()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) removeReaction(w http.ResponseWriter, r *http.Request) {
	reaction, err := pathIdentity(r, "reaction")
	if err != nil {
		s.fail(w, err)
		return
	}
	var req signedRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	principal, err := s.authenticate(req, auth.CanonicalMessage(auth.OpRemoveReaction, reaction, 0, req.Expires))
	if err != nil {
		s.fail(w, err)
		return
	}

	unlock := s.locks.Lock(reaction, req.Signer)
	ev, err := s.reactions.RemoveReaction(r.Context(), reaction, principal)
	unlock()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) getVault(w http.ResponseWriter, r *http.Request) {
	address, err := pathIdentity(r, "vault")
	if err != nil {
		s.fail(w, err)
		return
	}
	v, err := s.vaults.Vault(r.Context(), address)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vaultResponse{Vault: v, BalanceSOL: toSOL(v.Balance)})
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	address, err := pathIdentity(r, "address")
	if err != nil {
		s.fail(w, err)
		return
	}
	lamports, err := s.vaults.Balance(r.Context(), address)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: address, Lamports: lamports, BalanceSOL: toSOL(lamports)})
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	address, err := pathIdentity(r, "post")
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := s.reactions.Post(r.Context(), address)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// authenticate verifies the request signature, then rate limits by the
// verified signer.
func (s *Server) authenticate(req signedRequest, message []byte) (auth.Principal, error) {
	if req.Signer.IsZero() {
		return auth.Principal{}, fmt.Errorf("%w: signer is required", errBadRequest)
	}
	now := s.now()
	expires := time.Unix(req.Expires, 0)
	if req.Expires <= 0 || expires.After(now.Add(maxSignatureTTL)) {
		return auth.Principal{}, fmt.Errorf("%w: expires must be within %s", errBadRequest, maxSignatureTTL)
	}
	if now.After(expires) {
		return auth.Principal{}, fmt.Errorf("%w at %s", errExpired, expires.UTC().Format(time.RFC3339))
	}
	sig, err := base58.Decode(req.Signature)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("%w: signature: %v", errBadRequest, err)
	}
	p, err := s.verifier.Verify(req.Signer, message, sig)
	if err != nil {
		return auth.Principal{}, err
	}
	if !s.limiter.allow(p.Identity().String(), now) {
		return auth.Principal{}, errRateLimited
	}
	return p, nil
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
		writeJSON(w, status, errorResponse{Error: code, Message: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: code, Message: err.Error()})
}

func reactionOp(kind models.ReactionKind) string {
	return auth.OpAddReaction + "." + kind.String()
}

func pathIdentity(r *http.Request, name string) (models.Identity, error) {
	id, err := models.ParseIdentity(r.PathValue(name))
	if err != nil {
		return id, fmt.Errorf("%w: %s: %v", errBadRequest, name, err)
	}
	return id, nil
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func toSOL(lamports uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), solExponent).String()
}
