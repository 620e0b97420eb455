// Package api exposes the settlement engine over HTTP. Every mutating
// endpoint takes the host-supplied caller and attached payments in the
// request body and returns the operation receipt.
//
// All monetary values use shopspring/decimal, encoded as JSON strings.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/marketplace"
	"github.com/atmx/settlement-engine/internal/model"
)

// Service handles marketplace requests.
type Service struct {
	engine *marketplace.Engine
}

// NewService creates the HTTP service over engine.
func NewService(engine *marketplace.Engine) *Service {
	return &Service{engine: engine}
}

// Routes mounts every endpoint on r.
func (s *Service) Routes(r chi.Router) {
	r.Get("/settings", s.GetSettings)

	r.Get("/auctions", s.ListAuctions)
	r.Post("/auctions", s.CreateAuctions)
	r.Post("/auctions/price", s.ChangePrice)
	r.Post("/auctions/bulk-buy", s.BulkBuy)
	r.Post("/auctions/withdraw", s.WithdrawAuctions)
	r.Get("/auctions/{auctionID}", s.GetAuction)
	r.Post("/auctions/{auctionID}/bid", s.Bid)
	r.Post("/auctions/{auctionID}/end", s.EndAuction)
	r.Post("/auctions/{auctionID}/buy", s.Buy)

	r.Post("/offers", s.SendOffer)
	r.Get("/offers/{offerID}", s.GetOffer)
	r.Post("/offers/{offerID}/accept", s.AcceptOffer)
	r.Post("/offers/{offerID}/decline", s.DeclineOffer)
	r.Post("/offers/{offerID}/withdraw", s.WithdrawOffer)
	r.Get("/items/{collection}/{nonce}/offers", s.ListItemOffers)

	r.Post("/global-offers", s.SendGlobalOffer)
	r.Get("/global-offers/{offerID}", s.GetGlobalOffer)
	r.Post("/global-offers/{offerID}/accept", s.AcceptGlobalOffer)
	r.Post("/global-offers/{offerID}/withdraw", s.WithdrawGlobalOffer)
	r.Get("/collections/{collection}/global-offers", s.ListCollectionGlobalOffers)
	r.Get("/collections/{collection}/config", s.GetCollectionConfig)

	r.Post("/deposits", s.Deposit)
	r.Post("/deposits/withdraw", s.WithdrawDeposit)
	r.Post("/claims", s.Claim)
	r.Get("/accounts/{address}/deposits", s.GetDeposits)
	r.Get("/accounts/{address}/claimable", s.GetClaimable)
	r.Get("/accounts/{address}/balances/{token}", s.GetBalance)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/cut", s.SetCut)
		r.Post("/tokens", s.AddToken)
		r.Delete("/tokens/{token}", s.RemoveToken)
		r.Post("/whitelist", s.AddWhitelist)
		r.Delete("/whitelist/{address}", s.RemoveWhitelist)
		r.Post("/auctions/{auctionID}/freeze", s.Freeze)
		r.Post("/auctions/{auctionID}/unfreeze", s.Unfreeze)
		r.Post("/collections", s.SetCollectionConfig)
		r.Post("/mint", s.Mint)
	})
}

// --- Request types ---

// CallRequest is the body of endpoints that need nothing but the caller
// and its attached payments.
type CallRequest struct {
	marketplace.Call
}

// ListRequest is the JSON body for POST /auctions. Listings are
// index-aligned with the attached payments.
type ListRequest struct {
	marketplace.Call
	Listings []marketplace.ListingRequest `json:"listings"`
}

// ChangePriceRequest is the JSON body for POST /auctions/price.
type ChangePriceRequest struct {
	marketplace.Call
	Changes []marketplace.PriceChange `json:"changes"`
}

// AuctionsRequest is the JSON body for bulk buy and batch withdraw.
type AuctionsRequest struct {
	marketplace.Call
	AuctionIDs []uint64 `json:"auction_ids"`
}

// BuyRequest is the JSON body for POST /auctions/{id}/buy. A recipient
// buys on their behalf; Swap converts the payment into the listing
// currency first.
type BuyRequest struct {
	marketplace.Call
	Quantity  decimal.Decimal `json:"quantity"`
	Recipient *model.Address  `json:"recipient,omitempty"`
	Message   string          `json:"message,omitempty"`
	Swap      bool            `json:"swap,omitempty"`
}

// OfferRequest is the JSON body for POST /offers.
type OfferRequest struct {
	marketplace.Call
	Offer marketplace.OfferRequest `json:"offer"`
}

// AcceptOfferRequest is the JSON body for POST /offers/{id}/accept.
type AcceptOfferRequest struct {
	marketplace.Call
	AuctionID uint64 `json:"auction_id,omitempty"`
}

// GlobalOfferRequest is the JSON body for POST /global-offers.
type GlobalOfferRequest struct {
	marketplace.Call
	Offer marketplace.GlobalOfferRequest `json:"offer"`
}

// AcceptGlobalOfferRequest is the JSON body for POST /global-offers/{id}/accept.
type AcceptGlobalOfferRequest struct {
	marketplace.Call
	AuctionIDs []uint64 `json:"auction_ids,omitempty"`
	Signature  []byte   `json:"signature,omitempty"`
}

// CurrencyRequest names one currency and an amount. Used by deposit
// withdrawal and escrow claims.
type CurrencyRequest struct {
	marketplace.Call
	Token       string          `json:"token"`
	Nonce       uint64          `json:"nonce"`
	Amount      decimal.Decimal `json:"amount"`
	Destination model.Address   `json:"destination"`
}

// CutRequest is the JSON body for POST /admin/cut.
type CutRequest struct {
	marketplace.Call
	CutPercentage uint32 `json:"cut_percentage"`
}

// TokenRequest is the JSON body for POST /admin/tokens.
type TokenRequest struct {
	marketplace.Call
	Token string `json:"token"`
}

// AddressRequest is the JSON body for POST /admin/whitelist.
type AddressRequest struct {
	marketplace.Call
	Address model.Address `json:"address"`
}

// CollectionConfigRequest is the JSON body for POST /admin/collections.
type CollectionConfigRequest struct {
	marketplace.Call
	Config model.CollectionConfig `json:"config"`
}

// MintRequest is the JSON body for POST /admin/mint.
type MintRequest struct {
	marketplace.Call
	To       model.Address       `json:"to"`
	Payment  model.Payment       `json:"payment"`
	Metadata *model.ItemMetadata `json:"metadata,omitempty"`
}

// --- Auctions ---

// CreateAuctions handles POST /api/v1/auctions
func (s *Service) CreateAuctions(w http.ResponseWriter, r *http.Request) {
	var req ListRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.List(r.Context(), req.Call, req.Listings)
	respond(w, receipt, err, http.StatusCreated)
}

// ChangePrice handles POST /api/v1/auctions/price
func (s *Service) ChangePrice(w http.ResponseWriter, r *http.Request) {
	var req ChangePriceRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.ChangePrice(r.Context(), req.Call, req.Changes)
	respond(w, receipt, err, http.StatusOK)
}

// Bid handles POST /api/v1/auctions/{auctionID}/bid
func (s *Service) Bid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "auctionID")
	if !ok {
		return
	}
	var req CallRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.Bid(r.Context(), req.Call, id)
	respond(w, receipt, err, http.StatusOK)
}

// EndAuction handles POST /api/v1/auctions/{auctionID}/end
func (s *Service) EndAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "auctionID")
	if !ok {
		return
	}
	var req CallRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.End(r.Context(), req.Call, id)
	respond(w, receipt, err, http.StatusOK)
}

// Buy handles POST /api/v1/auctions/{auctionID}/buy
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "auctionID")
	if !ok {
		return
	}
	var req BuyRequest
	if !decode(w, r, &req) {
		return
	}
	qty := req.Quantity
	if qty.IsZero() {
		qty = decimal.NewFromInt(1)
	}

	var receipt *marketplace.Receipt
	var err error
	switch {
	case req.Recipient != nil && req.Swap:
		writeError(w, "swap cannot be combined with a recipient", http.StatusBadRequest)
		return
	case req.Recipient != nil:
		receipt, err = s.engine.BuyFor(r.Context(), req.Call, id, qty, *req.Recipient, req.Message)
	case req.Swap:
		receipt, err = s.engine.BuyWithSwap(r.Context(), req.Call, id, qty)
	default:
		receipt, err = s.engine.Buy(r.Context(), req.Call, id, qty)
	}
	respond(w, receipt, err, http.StatusOK)
}

// BulkBuy handles POST /api/v1/auctions/bulk-buy
func (s *Service) BulkBuy(w http.ResponseWriter, r *http.Request) {
	var req AuctionsRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.BulkBuy(r.Context(), req.Call, req.AuctionIDs)
	respond(w, receipt, err, http.StatusOK)
}

// WithdrawAuctions handles POST /api/v1/auctions/withdraw
func (s *Service) WithdrawAuctions(w http.ResponseWriter, r *http.Request) {
	var req AuctionsRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.Withdraw(r.Context(), req.Call, req.AuctionIDs)
	respond(w, receipt, err, http.StatusOK)
}

// GetAuction handles GET /api/v1/auctions/{auctionID}
func (s *Service) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "auctionID")
	if !ok {
		return
	}
	a, err := s.engine.Auction(r.Context(), id)
	respond(w, a, err, http.StatusOK)
}

// ListAuctions handles GET /api/v1/auctions
// Optional filters: ?owner=<address>&collection=<id>&nonce=<n>.
func (s *Service) ListAuctions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f marketplace.AuctionFilter
	if owner := q.Get("owner"); owner != "" {
		addr, err := model.ParseAddress(owner)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.Owner = addr
	}
	f.Collection = q.Get("collection")
	if raw := q.Get("nonce"); raw != "" {
		nonce, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, "invalid nonce", http.StatusBadRequest)
			return
		}
		f.Nonce = nonce
	}

	auctions, err := s.engine.Auctions(r.Context(), f)
	if auctions == nil {
		auctions = []model.Auction{}
	}
	respond(w, auctions, err, http.StatusOK)
}

// --- Offers ---

// SendOffer handles POST /api/v1/offers
func (s *Service) SendOffer(w http.ResponseWriter, r *http.Request) {
	var req OfferRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.SendOffer(r.Context(), req.Call, req.Offer)
	respond(w, receipt, err, http.StatusCreated)
}

// GetOffer handles GET /api/v1/offers/{offerID}
func (s *Service) GetOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "offerID")
	if !ok {
		return
	}
	offer, err := s.engine.Offer(r.Context(), id)
	respond(w, offer, err, http.StatusOK)
}

// AcceptOffer handles POST /api/v1/offers/{offerID}/accept
func (s *Service) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "offerID")
	if !ok {
		return
	}
	var req AcceptOfferRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.AcceptOffer(r.Context(), req.Call, id, req.AuctionID)
	respond(w, receipt, err, http.StatusOK)
}

// DeclineOffer handles POST /api/v1/offers/{offerID}/decline
func (s *Service) DeclineOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "offerID")
	if !ok {
		return
	}
	var req CallRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.DeclineOffer(r.Context(), req.Call, id)
	respond(w, receipt, err, http.StatusOK)
}

// WithdrawOffer handles POST /api/v1/offers/{offerID}/withdraw
func (s *Service) WithdrawOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "offerID")
	if !ok {
		return
	}
	var req CallRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.WithdrawOffer(r.Context(), req.Call, id)
	respond(w, receipt, err, http.StatusOK)
}

// ListItemOffers handles GET /api/v1/items/{collection}/{nonce}/offers
func (s *Service) ListItemOffers(w http.ResponseWriter, r *http.Request) {
	nonce, ok := pathID(w, r, "nonce")
	if !ok {
		return
	}
	offers, err := s.engine.OffersByItem(r.Context(), chi.URLParam(r, "collection"), nonce)
	if offers == nil {
		offers = []model.Offer{}
	}
	respond(w, offers, err, http.StatusOK)
}

// --- Global offers ---

// SendGlobalOffer handles POST /api/v1/global-offers
func (s *Service) SendGlobalOffer(w http.ResponseWriter, r *http.Request) {
	var req GlobalOfferRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.SendGlobalOffer(r.Context(), req.Call, req.Offer)
	respond(w, receipt, err, http.StatusCreated)
}

// GetGlobalOffer handles GET /api/v1/global-offers/{offerID}
func (s *Service) GetGlobalOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "offerID")
	if !ok {
		return
	}
	g, err := s.engine.GlobalOffer(r.Context(), id)
	respond(w, g, err, http.StatusOK)
}

// AcceptGlobalOffer handles POST /api/v1/global-offers/{offerID}/accept
func (s *Service) AcceptGlobalOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "offerID")
	if !ok {
		return
	}
	var req AcceptGlobalOfferRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.AcceptGlobalOffer(r.Context(), req.Call, marketplace.GlobalAcceptRequest{
		OfferID:    id,
		AuctionIDs: req.AuctionIDs,
		Signature:  req.Signature,
	})
	respond(w, receipt, err, http.StatusOK)
}

// WithdrawGlobalOffer handles POST /api/v1/global-offers/{offerID}/withdraw
func (s *Service) WithdrawGlobalOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "offerID")
	if !ok {
		return
	}
	var req CallRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.WithdrawGlobalOffer(r.Context(), req.Call, id)
	respond(w, receipt, err, http.StatusOK)
}

// ListCollectionGlobalOffers handles GET /api/v1/collections/{collection}/global-offers
func (s *Service) ListCollectionGlobalOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := s.engine.GlobalOffersByCollection(r.Context(), chi.URLParam(r, "collection"))
	if offers == nil {
		offers = []model.GlobalOffer{}
	}
	respond(w, offers, err, http.StatusOK)
}

// GetCollectionConfig handles GET /api/v1/collections/{collection}/config
func (s *Service) GetCollectionConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.CollectionConfig(r.Context(), chi.URLParam(r, "collection"))
	if err == nil && cfg == nil {
		writeError(w, "collection has no fee policy", http.StatusNotFound)
		return
	}
	respond(w, cfg, err, http.StatusOK)
}

// --- Deposits and escrow ---

// Deposit handles POST /api/v1/deposits
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.Deposit(r.Context(), req.Call)
	respond(w, receipt, err, http.StatusOK)
}

// WithdrawDeposit handles POST /api/v1/deposits/withdraw
func (s *Service) WithdrawDeposit(w http.ResponseWriter, r *http.Request) {
	var req CurrencyRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.WithdrawDeposit(r.Context(), req.Call, req.Token, req.Nonce, req.Amount)
	respond(w, receipt, err, http.StatusOK)
}

// Claim handles POST /api/v1/claims
func (s *Service) Claim(w http.ResponseWriter, r *http.Request) {
	var req CurrencyRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.ClaimEscrowed(r.Context(), req.Call, req.Token, req.Nonce, req.Destination)
	respond(w, receipt, err, http.StatusOK)
}

// GetDeposits handles GET /api/v1/accounts/{address}/deposits
func (s *Service) GetDeposits(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	held, err := s.engine.Deposits(r.Context(), addr)
	if held == nil {
		held = []model.DepositBalance{}
	}
	respond(w, held, err, http.StatusOK)
}

// GetClaimable handles GET /api/v1/accounts/{address}/claimable
func (s *Service) GetClaimable(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	held, err := s.engine.Claimable(r.Context(), addr)
	if held == nil {
		held = []model.ClaimableBalance{}
	}
	respond(w, held, err, http.StatusOK)
}

// GetBalance handles GET /api/v1/accounts/{address}/balances/{token}?nonce=<n>
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	var nonce uint64
	if raw := r.URL.Query().Get("nonce"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, "invalid nonce", http.StatusBadRequest)
			return
		}
		nonce = n
	}
	tokenID := chi.URLParam(r, "token")
	bal, err := s.engine.Balance(r.Context(), addr, tokenID, nonce)
	respond(w, model.Payment{Token: tokenID, Nonce: nonce, Amount: bal}, err, http.StatusOK)
}

// GetSettings handles GET /api/v1/settings
func (s *Service) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.engine.Settings(r.Context())
	respond(w, settings, err, http.StatusOK)
}

// --- Admin ---

// SetCut handles POST /api/v1/admin/cut
func (s *Service) SetCut(w http.ResponseWriter, r *http.Request) {
	var req CutRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.SetCutPercentage(r.Context(), req.Call, req.CutPercentage)
	respond(w, receipt, err, http.StatusOK)
}

// AddToken handles POST /api/v1/admin/tokens
func (s *Service) AddToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.AddAcceptedToken(r.Context(), req.Call, req.Token)
	respond(w, receipt, err, http.StatusOK)
}

// RemoveToken handles DELETE /api/v1/admin/tokens/{token}
func (s *Service) RemoveToken(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.RemoveAcceptedToken(r.Context(), req.Call, chi.URLParam(r, "token"))
	respond(w, receipt, err, http.StatusOK)
}

// AddWhitelist handles POST /api/v1/admin/whitelist
func (s *Service) AddWhitelist(w http.ResponseWriter, r *http.Request) {
	var req AddressRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.AddWhitelist(r.Context(), req.Call, req.Address)
	respond(w, receipt, err, http.StatusOK)
}

// RemoveWhitelist handles DELETE /api/v1/admin/whitelist/{address}
func (s *Service) RemoveWhitelist(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	var req CallRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.RemoveWhitelist(r.Context(), req.Call, addr)
	respond(w, receipt, err, http.StatusOK)
}

// Freeze handles POST /api/v1/admin/auctions/{auctionID}/freeze
func (s *Service) Freeze(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "auctionID")
	if !ok {
		return
	}
	var req CallRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.FreezeAuction(r.Context(), req.Call, id)
	respond(w, receipt, err, http.StatusOK)
}

// Unfreeze handles POST /api/v1/admin/auctions/{auctionID}/unfreeze
func (s *Service) Unfreeze(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "auctionID")
	if !ok {
		return
	}
	var req CallRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.UnfreezeAuction(r.Context(), req.Call, id)
	respond(w, receipt, err, http.StatusOK)
}

// SetCollectionConfig handles POST /api/v1/admin/collections
func (s *Service) SetCollectionConfig(w http.ResponseWriter, r *http.Request) {
	var req CollectionConfigRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.SetCollectionConfig(r.Context(), req.Call, req.Config)
	respond(w, receipt, err, http.StatusOK)
}

// Mint handles POST /api/v1/admin/mint
func (s *Service) Mint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.Mint(r.Context(), req.Call, req.To, req.Payment, req.Metadata)
	respond(w, receipt, err, http.StatusCreated)
}

// --- Helpers ---

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, param), 10, 64)
	if err != nil {
		writeError(w, "invalid "+param, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func pathAddress(w http.ResponseWriter, r *http.Request) (model.Address, bool) {
	addr, err := model.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return addr, false
	}
	return addr, true
}

// respond writes v with status, or maps err onto an HTTP status.
func respond(w http.ResponseWriter, v any, err error, status int) {
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			slog.Error("request failed", "err", err)
			writeError(w, "internal error", code)
			return
		}
		writeError(w, err.Error(), code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, marketplace.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, marketplace.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, marketplace.ErrInsufficientFunds):
		return http.StatusConflict
	case errors.Is(err, marketplace.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
