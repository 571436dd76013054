package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"nft-market-lab/internal/domain"
	"nft-market-lab/internal/market"
	"nft-market-lab/internal/observability"
	"nft-market-lab/internal/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("POST /listings", s.handleListItem)
	mux.HandleFunc("POST /listings/update", s.handleUpdateListing)
	mux.HandleFunc("POST /listings/cancel", s.handleCancelListing)
	mux.HandleFunc("GET /listings", s.handleGetListing)
	mux.HandleFunc("GET /listings/price", s.handleListingPriceIn)

	mux.HandleFunc("POST /buy", s.handleBuyItem)
	mux.HandleFunc("POST /withdraw", s.handleWithdraw)
	mux.HandleFunc("GET /proceeds", s.handleProceeds)

	mux.HandleFunc("POST /tokens", s.handleAddToken)
	mux.HandleFunc("POST /tokens/remove", s.handleRemoveToken)

	mux.HandleFunc("GET /sales", s.handleSales)

	// Sandbox chain state, for scripting scenarios against the service.
	mux.HandleFunc("POST /chain/mint", s.handleMint)
	mux.HandleFunc("POST /chain/approve-asset", s.handleApproveAsset)
	mux.HandleFunc("POST /chain/fund", s.handleFund)
	mux.HandleFunc("POST /chain/approve-spend", s.handleApproveSpend)

	return mux
}

// countOp records the outcome of an engine operation for /stats and /metrics.
func (s *Server) countOp(name string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	} else {
		s.statsMu.Lock()
		s.opsServed[name]++
		s.statsMu.Unlock()
	}
	observability.RecordOperation(name, status, time.Since(start).Seconds())
}

// failureReason labels a settlement error for metrics.
func failureReason(err error) string {
	switch {
	case errors.Is(err, market.ErrNotListed):
		return "not_listed"
	case errors.Is(err, market.ErrTokenNotSupported):
		return "token_not_supported"
	case errors.Is(err, market.ErrPriceNotMet):
		return "price_not_met"
	case errors.Is(err, market.ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, market.ErrReentrant):
		return "reentrant"
	default:
		return "other"
	}
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, market.ErrNotListed):
		return http.StatusNotFound
	case errors.Is(err, market.ErrNotOwner),
		errors.Is(err, registry.ErrNotAdministrator):
		return http.StatusForbidden
	case errors.Is(err, market.ErrAlreadyListed),
		errors.Is(err, market.ErrReentrant):
		return http.StatusConflict
	case errors.Is(err, market.ErrTransferFailed):
		return http.StatusBadGateway
	case errors.Is(err, market.ErrPriceMustBeAboveZero),
		errors.Is(err, market.ErrNotApprovedForMarketplace),
		errors.Is(err, market.ErrTokenNotSupported),
		errors.Is(err, market.ErrPriceNotMet),
		errors.Is(err, market.ErrNoProceeds):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return false
	}
	return true
}

// checkAccount validates a 32-byte base58 address field (tokens, collections,
// derived addresses).
func checkAccount(w http.ResponseWriter, name string, a domain.Address) bool {
	if _, err := domain.ParseAddress(string(a)); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("malformed %s: %v", name, err),
		})
		return false
	}
	return true
}

// checkWallet validates a wallet identity: well-formed and on-curve.
func checkWallet(w http.ResponseWriter, name string, a domain.Address) bool {
	if !checkAccount(w, name, a) {
		return false
	}
	if !a.IsOnCurve() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("%s is not an on-curve wallet address", name),
		})
		return false
	}
	return true
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.statsMu.Lock()
	ops := make(map[string]int, len(s.opsServed))
	for k, v := range s.opsServed {
		ops[k] = v
	}
	uptime := time.Since(s.started).String()
	s.statsMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "running",
		"uptime": uptime,
		"ops":    ops,
	})
}

// wsEnvelope wraps an event for websocket delivery.
type wsEnvelope struct {
	Type domain.EventType `json:"type"`
	Data domain.Event     `json:"data"`
}

// handleWebSocket streams marketplace events to the subscriber until it
// disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ch, unsubscribe := s.bus.Subscribe(
		domain.EventItemListed,
		domain.EventItemCanceled,
		domain.EventItemBought,
		domain.EventTokenAdded,
		domain.EventTokenRemoved,
	)
	defer unsubscribe()

	observability.DefaultMetrics.WSSubscribers.Inc()
	defer observability.DefaultMetrics.WSSubscribers.Dec()

	// Reader drains control frames and detects the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(wsEnvelope{Type: event.Type(), Data: event}); err != nil {
				return
			}
			observability.DefaultMetrics.WSEventsDelivered.Inc()
		}
	}
}

type listingRequest struct {
	Caller       domain.Address `json:"caller"`
	Collection   domain.Address `json:"collection"`
	AssetID      uint64         `json:"asset_id"`
	Price        string         `json:"price"`
	PaymentToken domain.Address `json:"payment_token"`
}

func (s *Server) handleListItem(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !checkWallet(w, "caller", req.Caller) ||
		!checkAccount(w, "collection", req.Collection) ||
		!checkAccount(w, "payment_token", req.PaymentToken) {
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	start := time.Now()
	s.opMu.Lock()
	err = s.market.ListItem(r.Context(), req.Caller, req.Collection, req.AssetID, price, req.PaymentToken)
	s.opMu.Unlock()
	s.countOp("list", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	observability.RecordListingCreated()
	writeJSON(w, http.StatusCreated, map[string]string{"status": "listed"})
}

func (s *Server) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !checkWallet(w, "caller", req.Caller) ||
		!checkAccount(w, "collection", req.Collection) ||
		!checkAccount(w, "payment_token", req.PaymentToken) {
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	start := time.Now()
	s.opMu.Lock()
	err = s.market.UpdateListing(r.Context(), req.Caller, req.Collection, req.AssetID, price, req.PaymentToken)
	s.opMu.Unlock()
	s.countOp("update", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	observability.DefaultMetrics.ListingsUpdated.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleCancelListing(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !checkWallet(w, "caller", req.Caller) || !checkAccount(w, "collection", req.Collection) {
		return
	}

	start := time.Now()
	s.opMu.Lock()
	err := s.market.CancelListing(r.Context(), req.Caller, req.Collection, req.AssetID)
	s.opMu.Unlock()
	s.countOp("cancel", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	observability.DefaultMetrics.ListingsCanceled.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

// listingResponse renders a listing with string amounts.
type listingResponse struct {
	Collection   domain.Address `json:"collection"`
	AssetID      uint64         `json:"asset_id"`
	Seller       domain.Address `json:"seller,omitempty"`
	Price        string         `json:"price"`
	PaymentToken domain.Address `json:"payment_token,omitempty"`
	Listed       bool           `json:"listed"`
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	collection, assetID, ok := listingKey(w, r)
	if !ok {
		return
	}

	listing, err := s.market.GetListing(r.Context(), collection, assetID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listingResponse{
		Collection:   listing.Collection,
		AssetID:      listing.AssetID,
		Seller:       listing.Seller,
		Price:        listing.Price.String(),
		PaymentToken: listing.PaymentToken,
		Listed:       listing.Listed(),
	})
}

func (s *Server) handleListingPriceIn(w http.ResponseWriter, r *http.Request) {
	collection, assetID, ok := listingKey(w, r)
	if !ok {
		return
	}
	token := domain.Address(r.URL.Query().Get("token"))
	if !checkAccount(w, "token", token) {
		return
	}

	quote, err := s.market.ListingPriceIn(r.Context(), collection, assetID, token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":  string(token),
		"amount": quote.String(),
	})
}

type buyRequest struct {
	Buyer          domain.Address `json:"buyer"`
	Collection     domain.Address `json:"collection"`
	AssetID        uint64         `json:"asset_id"`
	PayWithToken   domain.Address `json:"pay_with_token"`
	AttachedNative string         `json:"attached_native,omitempty"`
}

func (s *Server) handleBuyItem(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !checkWallet(w, "buyer", req.Buyer) ||
		!checkAccount(w, "collection", req.Collection) ||
		!checkAccount(w, "pay_with_token", req.PayWithToken) {
		return
	}
	attached, err := parseAmount(req.AttachedNative)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	start := time.Now()
	s.opMu.Lock()
	charged, err := s.settleBuy(r.Context(), &req, attached)
	s.opMu.Unlock()
	s.countOp("buy", start, err)
	if err != nil {
		observability.RecordSettlementFailure(failureReason(err))
		writeError(w, err)
		return
	}
	observability.RecordListingFilled(float64(time.Now().Unix()))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "bought",
		"charged": charged.String(),
		"token":   string(req.PayWithToken),
	})
}

// settleBuy runs the engine's purchase under the host escrow contract: the
// attached native amount moves from the buyer into the treasury up front, and
// moves back whole when the engine reports an error. The engine itself pays
// any overpayment refund out of the escrow on success.
func (s *Server) settleBuy(ctx context.Context, req *buyRequest, attached *big.Int) (*big.Int, error) {
	escrowed := attached != nil && attached.Sign() > 0
	if escrowed {
		if err := s.native.Move(req.Buyer, s.self, attached); err != nil {
			return nil, fmt.Errorf("escrow attached native: %w (%v)", market.ErrPriceNotMet, err)
		}
	}

	charged, err := s.market.BuyItem(ctx, req.Buyer, req.Collection, req.AssetID, req.PayWithToken, attached)
	if err != nil && escrowed {
		if mvErr := s.native.Move(s.self, req.Buyer, attached); mvErr != nil {
			s.logger.Printf("reverse native escrow for %s: %v", req.Buyer, mvErr)
		}
	}
	return charged, err
}

type withdrawRequest struct {
	Caller domain.Address `json:"caller"`
	Token  domain.Address `json:"token"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !checkWallet(w, "caller", req.Caller) || !checkAccount(w, "token", req.Token) {
		return
	}

	start := time.Now()
	s.opMu.Lock()
	withdrawn, err := s.market.WithdrawProceeds(r.Context(), req.Caller, req.Token)
	s.opMu.Unlock()
	s.countOp("withdraw", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "withdrawn",
		"amount": withdrawn.String(),
		"token":  string(req.Token),
	})
}

func (s *Server) handleProceeds(w http.ResponseWriter, r *http.Request) {
	seller := domain.Address(r.URL.Query().Get("seller"))
	token := domain.Address(r.URL.Query().Get("token"))
	if !checkWallet(w, "seller", seller) || !checkAccount(w, "token", token) {
		return
	}

	balance, err := s.market.Proceeds(r.Context(), seller, token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"seller": string(seller),
		"token":  string(token),
		"amount": balance.String(),
	})
}

type tokenRequest struct {
	Caller    domain.Address `json:"caller"`
	Token     domain.Address `json:"token"`
	PriceFeed string         `json:"price_feed,omitempty"`
	Decimals  uint8          `json:"decimals,omitempty"`
}

func (s *Server) handleAddToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !checkWallet(w, "caller", req.Caller) || !checkAccount(w, "token", req.Token) {
		return
	}

	start := time.Now()
	err := s.registry.AddSupportedToken(req.Caller, req.Token, req.PriceFeed, req.Decimals)
	s.countOp("token_add", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	observability.DefaultMetrics.TokensAdded.Inc()
	writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

func (s *Server) handleRemoveToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !checkWallet(w, "caller", req.Caller) || !checkAccount(w, "token", req.Token) {
		return
	}

	start := time.Now()
	err := s.registry.RemoveSupportedToken(req.Caller, req.Token)
	s.countOp("token_remove", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	observability.DefaultMetrics.TokensRemoved.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// saleResponse renders a sale with string amounts.
type saleResponse struct {
	SaleID       string         `json:"sale_id"`
	Collection   domain.Address `json:"collection"`
	AssetID      uint64         `json:"asset_id"`
	Seller       domain.Address `json:"seller"`
	Buyer        domain.Address `json:"buyer"`
	ListingPrice string         `json:"listing_price"`
	ListingToken domain.Address `json:"listing_token"`
	PaidAmount   string         `json:"paid_amount"`
	PaidToken    domain.Address `json:"paid_token"`
	Timestamp    int64          `json:"timestamp_ms"`
}

func (s *Server) handleSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx := r.Context()

	var sales []*domain.Sale
	var err error
	switch {
	case q.Get("seller") != "":
		seller := domain.Address(q.Get("seller"))
		if !checkWallet(w, "seller", seller) {
			return
		}
		sales, err = s.sales.GetBySeller(ctx, seller)
	case q.Get("collection") != "":
		saleCollection := domain.Address(q.Get("collection"))
		if !checkAccount(w, "collection", saleCollection) {
			return
		}
		sales, err = s.sales.GetByCollection(ctx, saleCollection)
	default:
		start, end := int64(0), time.Now().UnixMilli()
		if v := q.Get("from"); v != "" {
			if start, err = strconv.ParseInt(v, 10, 64); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed from"})
				return
			}
		}
		if v := q.Get("to"); v != "" {
			if end, err = strconv.ParseInt(v, 10, 64); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed to"})
				return
			}
		}
		sales, err = s.sales.GetByTimeRange(ctx, start, end)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]saleResponse, 0, len(sales))
	for _, sale := range sales {
		resp = append(resp, saleResponse{
			SaleID:       sale.SaleID,
			Collection:   sale.Collection,
			AssetID:      sale.AssetID,
			Seller:       sale.Seller,
			Buyer:        sale.Buyer,
			ListingPrice: sale.ListingPrice.String(),
			ListingToken: sale.ListingToken,
			PaidAmount:   sale.PaidAmount.String(),
			PaidToken:    sale.PaidToken,
			Timestamp:    sale.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type mintRequest struct {
	Collection domain.Address `json:"collection"`
	AssetID    uint64         `json:"asset_id"`
	Owner      domain.Address `json:"owner"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !checkAccount(w, "collection", req.Collection) || !checkWallet(w, "owner", req.Owner) {
		return
	}
	if err := s.assets.Mint(req.Collection, req.AssetID, req.Owner); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "minted"})
}

type approveAssetRequest struct {
	Collection domain.Address `json:"collection"`
	AssetID    uint64         `json:"asset_id"`
	Granted    bool           `json:"granted"`
}

func (s *Server) handleApproveAsset(w http.ResponseWriter, r *http.Request) {
	var req approveAssetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !checkAccount(w, "collection", req.Collection) {
		return
	}
	s.assets.Approve(req.Collection, req.AssetID, req.Granted)
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

type fundRequest struct {
	Token  domain.Address `json:"token"`
	Owner  domain.Address `json:"owner"`
	Amount string         `json:"amount"`
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !checkAccount(w, "token", req.Token) || !checkWallet(w, "owner", req.Owner) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil || amount == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed amount"})
		return
	}

	if req.Token.IsNative() {
		s.native.SetBalance(req.Owner, amount)
	} else {
		s.bank.SetBalance(req.Token, req.Owner, amount)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "funded"})
}

func (s *Server) handleApproveSpend(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !checkAccount(w, "token", req.Token) || !checkWallet(w, "owner", req.Owner) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil || amount == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed amount"})
		return
	}

	s.bank.Approve(req.Token, req.Owner, amount)
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

// listingKey pulls a (collection, asset_id) pair out of query params.
func listingKey(w http.ResponseWriter, r *http.Request) (domain.Address, uint64, bool) {
	q := r.URL.Query()
	collection := domain.Address(q.Get("collection"))
	if !checkAccount(w, "collection", collection) {
		return "", 0, false
	}
	assetID, err := strconv.ParseUint(q.Get("asset_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed asset_id"})
		return "", 0, false
	}
	return collection, assetID, true
}
