// Package httpapi exposes the lottery engine over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/R3E-Network/lottery_engine/internal/custody"
	"github.com/R3E-Network/lottery_engine/internal/events"
	"github.com/R3E-Network/lottery_engine/internal/httputil"
	"github.com/R3E-Network/lottery_engine/internal/middleware"
	"github.com/R3E-Network/lottery_engine/internal/oracle"
	"github.com/R3E-Network/lottery_engine/internal/settlement"
	"github.com/R3E-Network/lottery_engine/pkg/logger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Ledger is the custody view the API needs for balances and the faucet.
type Ledger interface {
	Balance(assetID, account string) uint64
	Balances(account string) []custody.Balance
	Credit(ctx context.Context, assetID, account string, amount uint64, reference string) error
}

// ProofVerifier recomputes the random value a draw proof commits to.
type ProofVerifier interface {
	Verify(req settlement.DrawRequest, proof string) (uint64, error)
}

// Options configures a Handler.
type Options struct {
	Ledger     Ledger
	Events     events.EventLogger
	Proofs     ProofVerifier
	PriceScale int32
	// DevFaucet enables POST /v1/accounts/{id}/credit for administrators.
	DevFaucet bool
}

// Handler serves the lottery API.
type Handler struct {
	engine     *settlement.Engine
	ledger     Ledger
	events     events.EventLogger
	proofs     ProofVerifier
	log        *logger.Logger
	priceScale int32
	devFaucet  bool
	upgrader   websocket.Upgrader
}

// NewHandler creates a Handler for engine.
func NewHandler(engine *settlement.Engine, log *logger.Logger, opts Options) *Handler {
	if opts.Events == nil {
		opts.Events = events.NoOpLogger{}
	}
	return &Handler{
		engine:     engine,
		ledger:     opts.Ledger,
		events:     opts.Events,
		proofs:     opts.Proofs,
		log:        log,
		priceScale: opts.PriceScale,
		devFaucet:  opts.DevFaucet,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RouterOptions selects the middleware around the API.
type RouterOptions struct {
	// Middleware wraps every route, including /health and /metrics.
	Middleware []mux.MiddlewareFunc
	// Protected wraps the /v1 routes, e.g. authentication and rate limits.
	Protected []mux.MiddlewareFunc
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
}

// NewRouter builds the full route table.
func NewRouter(h *Handler, opts RouterOptions) *mux.Router {
	r := mux.NewRouter()
	r.Use(opts.Middleware...)

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(opts.Protected...)
	h.Register(v1)
	return r
}

// Register adds the /v1 routes to r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/config", h.initConfig).Methods(http.MethodPost)
	r.HandleFunc("/config", h.getConfig).Methods(http.MethodGet)
	r.HandleFunc("/config/assets", h.addAsset).Methods(http.MethodPost)
	r.HandleFunc("/config/assets/{asset}", h.removeAsset).Methods(http.MethodDelete)
	r.HandleFunc("/config/commission", h.updateCommission).Methods(http.MethodPut)

	r.HandleFunc("/rooms", h.initRoom).Methods(http.MethodPost)
	r.HandleFunc("/rooms", h.listRooms).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{id}", h.getRoom).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{id}/entries/native", h.enterNative).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{id}/entries/token", h.enterToken).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{id}/draw", h.draw).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{id}/draw/verify", h.verifyDraw).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{id}/settle", h.settle).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{id}/withdraw", h.withdraw).Methods(http.MethodPost)

	r.HandleFunc("/accounts/{id}/balances", h.balances).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}/credit", h.credit).Methods(http.MethodPost)

	r.HandleFunc("/events", h.recentEvents).Methods(http.MethodGet)
	r.HandleFunc("/events/stream", h.streamEvents).Methods(http.MethodGet)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"boundary_policy": h.engine.BoundaryPolicy().String(),
		"oracle_id":       h.engine.OracleID(),
		"time":            time.Now().UTC(),
	})
}

// requireCaller returns the authenticated caller or writes a 401.
func requireCaller(w http.ResponseWriter, r *http.Request) (settlement.Identity, bool) {
	id, ok := middleware.Caller(r.Context())
	if !ok {
		httputil.Unauthorized(w, r, "caller identity required")
		return "", false
	}
	return id, true
}

func roomID(w http.ResponseWriter, r *http.Request) (settlement.RoomID, bool) {
	id, err := settlement.ParseRoomID(mux.Vars(r)["id"])
	if err != nil {
		httputil.BadRequest(w, r, "invalid room id")
		return 0, false
	}
	return id, true
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// --- configuration ---------------------------------------------------------

type initConfigRequest struct {
	Admins []settlement.Identity `json:"admins"`
}

func (h *Handler) initConfig(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireCaller(w, r); !ok {
		return
	}
	var req initConfigRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	reg, err := h.engine.InitConfig(r.Context(), req.Admins)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, reg)
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	reg, err := h.engine.Registry(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reg)
}

type addAssetRequest struct {
	AssetID  settlement.Identity `json:"asset_id"`
	OracleID settlement.Identity `json:"oracle_id"`
}

func (h *Handler) addAsset(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req addAssetRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	reg, err := h.engine.AddAsset(r.Context(), caller, req.AssetID, req.OracleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, reg)
}

func (h *Handler) removeAsset(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	reg, err := h.engine.RemoveAsset(r.Context(), caller, settlement.Identity(mux.Vars(r)["asset"]))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reg)
}

type commissionRequest struct {
	Rate *uint64 `json:"rate"`
}

func (h *Handler) updateCommission(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req commissionRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Rate == nil {
		httputil.BadRequest(w, r, "rate is required")
		return
	}
	reg, err := h.engine.UpdateCommissionRate(r.Context(), caller, *req.Rate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reg)
}

// --- rooms -----------------------------------------------------------------

type initRoomRequest struct {
	MinLimit uint64 `json:"min_limit"`
	MaxLimit uint64 `json:"max_limit"`
}

func (h *Handler) initRoom(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req initRoomRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	room, err := h.engine.InitRoom(r.Context(), caller, req.MinLimit, req.MaxLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, room)
}

func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.engine.Rooms(r.Context(), queryLimit(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if rooms == nil {
		rooms = []settlement.Room{}
	}
	httputil.WriteJSON(w, http.StatusOK, rooms)
}

func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := roomID(w, r)
	if !ok {
		return
	}
	room, err := h.engine.Room(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, room)
}

type nativeEntryRequest struct {
	Amount uint64 `json:"amount"`
	// Price is a decimal string scaled by the configured price scale.
	Price string `json:"price,omitempty"`
	// PriceFactor is an already scaled integer price. It wins over Price.
	PriceFactor uint64 `json:"price_factor,omitempty"`
}

func (h *Handler) enterNative(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := roomID(w, r)
	if !ok {
		return
	}
	var req nativeEntryRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	factor := req.PriceFactor
	if factor == 0 {
		if req.Price == "" {
			httputil.BadRequest(w, r, "price or price_factor is required")
			return
		}
		var err error
		if factor, err = ParsePrice(req.Price, h.priceScale); err != nil {
			httputil.BadRequest(w, r, err.Error())
			return
		}
	}

	entry, err := h.engine.EnterWithValuation(r.Context(), id, caller, req.Amount, factor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

type tokenEntryRequest struct {
	AssetID settlement.Identity `json:"asset_id"`
	Amount  uint64              `json:"amount,omitempty"`
	// All stakes the caller's entire balance of the asset.
	All bool `json:"all,omitempty"`
}

func (h *Handler) enterToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := roomID(w, r)
	if !ok {
		return
	}
	var req tokenEntryRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	var entry settlement.Entry
	var err error
	if req.All {
		entry, err = h.engine.EnterWithAssetBalance(r.Context(), id, caller, req.AssetID)
	} else {
		entry, err = h.engine.EnterWithAsset(r.Context(), id, caller, req.AssetID, req.Amount)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) draw(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := roomID(w, r)
	if !ok {
		return
	}
	room, err := h.engine.DrawWinner(r.Context(), caller, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, room)
}

type verifyResponse struct {
	RoomID      settlement.RoomID   `json:"room_id"`
	OracleID    settlement.Identity `json:"oracle_id"`
	Proof       string              `json:"proof"`
	RandomValue uint64              `json:"random_value"`
	Recomputed  *uint64             `json:"recomputed_value,omitempty"`
	Valid       bool                `json:"valid"`
}

// verifyDraw recomputes a recorded draw from its proof.
func (h *Handler) verifyDraw(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireCaller(w, r); !ok {
		return
	}
	id, ok := roomID(w, r)
	if !ok {
		return
	}
	if h.proofs == nil {
		httputil.WriteError(w, r, http.StatusNotImplemented, "unsupported", "ProofUnavailable", "randomness oracle does not support proof verification")
		return
	}
	room, err := h.engine.Room(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if room.Draw == nil {
		httputil.WriteError(w, r, http.StatusConflict, string(settlement.KindState), "NoDraw", "room has no recorded draw")
		return
	}

	resp := verifyResponse{
		RoomID:      room.ID,
		OracleID:    room.Draw.OracleID,
		Proof:       room.Draw.Proof,
		RandomValue: room.Draw.RandomValue,
	}
	value, err := h.proofs.Verify(settlement.DrawRequest{
		RoomID:  room.ID,
		Entries: len(room.Entries),
		Total:   room.Draw.Total,
	}, room.Draw.Proof)
	switch {
	case errors.Is(err, oracle.ErrInvalidProof):
	case err != nil:
		h.writeError(w, r, err)
		return
	default:
		resp.Recomputed = &value
		resp.Valid = room.Draw.OracleID == h.engine.OracleID() && value == room.Draw.RandomValue
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type settleRequest struct {
	Payee settlement.Identity `json:"payee"`
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := roomID(w, r)
	if !ok {
		return
	}
	var req settleRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	s, err := h.engine.Settle(r.Context(), caller, id, req.Payee)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := roomID(w, r)
	if !ok {
		return
	}
	if err := h.engine.WithdrawFromRoom(r.Context(), caller, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"room_id": id, "transferred": false})
}

// --- custody ---------------------------------------------------------------

func (h *Handler) balances(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		httputil.WriteError(w, r, http.StatusNotImplemented, "unsupported", "CustodyUnavailable", "custody ledger not configured")
		return
	}
	account := mux.Vars(r)["id"]
	if asset, ok := r.URL.Query()["asset"]; ok {
		httputil.WriteJSON(w, http.StatusOK, []custody.Balance{{
			AssetID: asset[0],
			Amount:  h.ledger.Balance(asset[0], account),
		}})
		return
	}
	balances := h.ledger.Balances(account)
	if balances == nil {
		balances = []custody.Balance{}
	}
	httputil.WriteJSON(w, http.StatusOK, balances)
}

type creditRequest struct {
	AssetID string `json:"asset_id"`
	Amount  uint64 `json:"amount"`
}

func (h *Handler) credit(w http.ResponseWriter, r *http.Request) {
	if !h.devFaucet || h.ledger == nil {
		httputil.WriteError(w, r, http.StatusNotFound, "not_found", "NotFound", "faucet disabled")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	reg, err := h.engine.Registry(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := reg.Authorize(caller); err != nil {
		h.writeError(w, r, err)
		return
	}
	var req creditRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	account := mux.Vars(r)["id"]
	if err := h.ledger.Credit(r.Context(), req.AssetID, account, req.Amount, "faucet:"+caller.String()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.log.WithFields(map[string]interface{}{
		"account":  account,
		"asset_id": req.AssetID,
		"amount":   req.Amount,
		"caller":   caller,
	}).Info("faucet credit")
	httputil.WriteJSON(w, http.StatusOK, custody.Balance{AssetID: req.AssetID, Amount: h.ledger.Balance(req.AssetID, account)})
}
