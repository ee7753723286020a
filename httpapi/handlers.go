package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/reimburse/claim"
	"github.com/xraph/reimburse/fund"
	"github.com/xraph/reimburse/subscription"
	"github.com/xraph/reimburse/types"
)

const maxBodyBytes = 1 << 20

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func subscriptionParam(w http.ResponseWriter, r *http.Request) (subscription.ID, bool) {
	id, err := subscription.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid subscription id")
		return 0, false
	}
	return id, true
}

func claimParam(w http.ResponseWriter, r *http.Request) (claim.ID, bool) {
	id, err := claim.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid claim id")
		return 0, false
	}
	return id, true
}

func accountParam(w http.ResponseWriter, r *http.Request) (types.Account, bool) {
	account, err := types.ParseAccount(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid account")
		return types.ZeroAccount, false
	}
	return account, true
}

// page reads limit and offset query parameters.
func page(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	if limit, ok = queryInt(w, q.Get("limit"), "limit"); !ok {
		return 0, 0, false
	}
	if offset, ok = queryInt(w, q.Get("offset"), "offset"); !ok {
		return 0, 0, false
	}
	return limit, offset, true
}

func queryInt(w http.ResponseWriter, v, name string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid "+name)
		return 0, false
	}
	return n, true
}

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

type createSubscriptionRequest struct {
	MonthlyFee    types.Amount `json:"monthly_fee"`
	CoverageLimit types.Amount `json:"coverage_limit"`
	Deductible    types.Amount `json:"deductible"`
	Payment       types.Amount `json:"payment"`
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if !decode(w, r, &req) {
		return
	}
	sub, err := s.ledger.CreateSubscription(r.Context(), callerFrom(r.Context()),
		req.MonthlyFee, req.CoverageLimit, req.Deductible, req.Payment)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := subscriptionParam(w, r)
	if !ok {
		return
	}
	sub, err := s.ledger.GetSubscription(r.Context(), id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

type renewRequest struct {
	Payment types.Amount `json:"payment"`
}

func (s *Server) handleRenewSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := subscriptionParam(w, r)
	if !ok {
		return
	}
	var req renewRequest
	if !decode(w, r, &req) {
		return
	}
	sub, err := s.ledger.RenewSubscription(r.Context(), callerFrom(r.Context()), id, req.Payment)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := subscriptionParam(w, r)
	if !ok {
		return
	}
	sub, err := s.ledger.CancelSubscription(r.Context(), callerFrom(r.Context()), id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// ──────────────────────────────────────────────────
// Claims
// ──────────────────────────────────────────────────

type submitClaimRequest struct {
	SubscriptionID    subscription.ID `json:"subscription_id"`
	Amount            types.Amount    `json:"amount"`
	DocumentReference string          `json:"document_reference"`
	// Fee defaults to the current processing fee.
	Fee *types.Amount `json:"fee,omitempty"`
}

func (s *Server) handleSubmitClaim(w http.ResponseWriter, r *http.Request) {
	var req submitClaimRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	var fee types.Amount
	if req.Fee != nil {
		fee = *req.Fee
	} else {
		current, err := s.ledger.ClaimProcessingFee(ctx)
		if err != nil {
			s.writeLedgerError(w, r, err)
			return
		}
		fee = current
	}

	c, err := s.ledger.SubmitClaim(ctx, callerFrom(ctx), req.SubscriptionID, req.Amount, req.DocumentReference, fee)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListClaims(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	opts := claim.ListOpts{Limit: limit, Offset: offset}
	if v := r.URL.Query().Get("status"); v != "" {
		status, err := claim.ParseStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		opts.Status = &status
	}

	claims, err := s.ledger.ListClaims(r.Context(), opts)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if claims == nil {
		claims = []*claim.Claim{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"claims": claims})
}

func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := claimParam(w, r)
	if !ok {
		return
	}
	c, err := s.ledger.GetClaim(r.Context(), id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleGetVerification(w http.ResponseWriter, r *http.Request) {
	id, ok := claimParam(w, r)
	if !ok {
		return
	}
	v, err := s.ledger.GetVerification(r.Context(), id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleBeginReview(w http.ResponseWriter, r *http.Request) {
	id, ok := claimParam(w, r)
	if !ok {
		return
	}
	c, err := s.ledger.BeginReview(r.Context(), callerFrom(r.Context()), id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type approveRequest struct {
	VerifiedAmount types.Amount `json:"verified_amount"`
}

func (s *Server) handleApproveClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := claimParam(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if !decode(w, r, &req) {
		return
	}
	c, v, err := s.ledger.ApproveClaim(r.Context(), callerFrom(r.Context()), id, req.VerifiedAmount)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"claim": c, "verification": v})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRejectClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := claimParam(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := s.ledger.RejectClaim(r.Context(), callerFrom(r.Context()), id, req.Reason)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleProcessPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := claimParam(w, r)
	if !ok {
		return
	}
	p, err := s.ledger.ProcessPayment(r.Context(), callerFrom(r.Context()), id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

func (s *Server) handleAccountSubscriptions(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	ids, err := s.ledger.GetUserSubscriptions(r.Context(), account)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if ids == nil {
		ids = []subscription.ID{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": account, "subscription_ids": ids})
}

func (s *Server) handleAccountClaims(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	ids, err := s.ledger.GetUserClaims(r.Context(), account)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if ids == nil {
		ids = []claim.ID{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": account, "claim_ids": ids})
}

func (s *Server) handleAccountClaimStats(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	stats, err := s.ledger.ClaimStats(r.Context(), account)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ──────────────────────────────────────────────────
// Funds and settings
// ──────────────────────────────────────────────────

type fundsResponse struct {
	TotalFunds         types.Amount  `json:"total_funds"`
	ClaimProcessingFee types.Amount  `json:"claim_processing_fee"`
	Owner              types.Account `json:"owner"`
}

func (s *Server) handleFunds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		resp fundsResponse
		err  error
	)
	if resp.TotalFunds, err = s.ledger.TotalFunds(ctx); err == nil {
		if resp.ClaimProcessingFee, err = s.ledger.ClaimProcessingFee(ctx); err == nil {
			resp.Owner, err = s.ledger.Owner(ctx)
		}
	}
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type depositRequest struct {
	Amount types.Amount `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := s.ledger.AddFunds(r.Context(), callerFrom(r.Context()), req.Amount)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type withdrawRequest struct {
	Amount    types.Amount  `json:"amount"`
	Recipient types.Account `json:"recipient"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := s.ledger.WithdrawFunds(r.Context(), callerFrom(r.Context()), req.Amount, req.Recipient)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleMovements(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	opts := fund.ListOpts{Kind: fund.Kind(q.Get("kind")), Limit: limit, Offset: offset}
	if v := q.Get("account"); v != "" {
		account, err := types.ParseAccount(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid account")
			return
		}
		opts.Account = account
	}

	movements, err := s.ledger.Movements(r.Context(), opts)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if movements == nil {
		movements = []*fund.Movement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
}

type processingFeeRequest struct {
	Fee types.Amount `json:"fee"`
}

func (s *Server) handleUpdateProcessingFee(w http.ResponseWriter, r *http.Request) {
	var req processingFeeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.ledger.UpdateClaimProcessingFee(r.Context(), callerFrom(r.Context()), req.Fee); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"claim_processing_fee": req.Fee})
}

type ownerRequest struct {
	Owner types.Account `json:"owner"`
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.ledger.TransferOwnership(r.Context(), callerFrom(r.Context()), req.Owner); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": req.Owner})
}
