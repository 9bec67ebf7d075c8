// Package settlement implements the pooled-stake lottery engine: the global
// configuration registry, the room lifecycle, the weighted entry ledger,
// winner selection and the commission split paid out at settlement.
//
// Every Engine operation is all-or-nothing. Operations are serialized
// through a Locker, validate against freshly loaded records, perform their
// collaborator effects, and write every changed record with a single
// Store.Commit. When a step fails after funds moved, the engine reverses
// those transfers before returning the error.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/lottery_engine/internal/events"
	"github.com/R3E-Network/lottery_engine/internal/metrics"
	"github.com/R3E-Network/lottery_engine/pkg/logger"
)

const lockKey = "lottery:engine"

// Operation names used in logs, events and metrics.
const (
	OpInitConfig           = "init_config"
	OpAddAsset             = "add_asset"
	OpRemoveAsset          = "remove_asset"
	OpUpdateCommissionRate = "update_commission_rate"
	OpInitRoom             = "init_room"
	OpEnterWithValuation   = "enter_with_valuation"
	OpEnterWithAsset       = "enter_with_asset"
	OpDrawWinner           = "draw_winner"
	OpSettle               = "settle"
	OpWithdraw             = "withdraw"
)

// Engine runs the lottery operations against its collaborators.
type Engine struct {
	store    Store
	custody  Custody
	oracle   RandomnessOracle
	locker   Locker
	events   events.EventLogger
	metrics  metrics.EngineRecorder
	log      *logger.Logger
	validate func(Identity) error
	now      func() time.Time

	oracleID    Identity
	boundary    BoundaryPolicy
	defaultRate uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithOracleID sets the identity randomness responses must carry.
func WithOracleID(id Identity) Option {
	return func(e *Engine) { e.oracleID = id }
}

// WithBoundaryPolicy selects the winner selection boundary rule.
func WithBoundaryPolicy(p BoundaryPolicy) Option {
	return func(e *Engine) { e.boundary = p }
}

// WithDefaultCommissionRate sets the rate a new registry starts with.
func WithDefaultCommissionRate(rate uint64) Option {
	return func(e *Engine) { e.defaultRate = rate }
}

// WithLocker replaces the in-process lock, e.g. with a distributed one.
func WithLocker(l Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithEventLogger sets the audit event sink.
func WithEventLogger(l events.EventLogger) Option {
	return func(e *Engine) { e.events = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.EngineRecorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithIdentityValidator rejects administrator and payee identities that do
// not pass fn.
func WithIdentityValidator(fn func(Identity) error) Option {
	return func(e *Engine) { e.validate = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine. When oracle knows its own identity it becomes the
// expected oracle unless WithOracleID overrides it.
func New(store Store, custody Custody, oracle RandomnessOracle, log *logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.NewDefault("settlement")
	}
	e := &Engine{
		store:       store,
		custody:     custody,
		oracle:      oracle,
		locker:      NewLocalLocker(),
		events:      events.NoOpLogger{},
		metrics:     metrics.NewNoOpCollector(),
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
		boundary:    BoundaryInclusive,
		defaultRate: DefaultCommissionRate,
	}
	if id, ok := oracle.(IdentifiedOracle); ok {
		e.oracleID = id.ID()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BoundaryPolicy returns the configured selection boundary rule.
func (e *Engine) BoundaryPolicy() BoundaryPolicy { return e.boundary }

// OracleID returns the expected randomness oracle identity.
func (e *Engine) OracleID() Identity { return e.oracleID }

// InitConfig creates the registry with the given administrators.
func (e *Engine) InitConfig(ctx context.Context, admins []Identity) (Registry, error) {
	var out Registry
	err := e.execute(ctx, OpInitConfig, func(tx *txn) error {
		reg, err := e.store.LoadRegistry(ctx)
		switch {
		case errors.Is(err, ErrConfigNotInitialized):
			reg = Registry{}
		case err != nil:
			return classify(err, ErrStorage)
		}
		for _, admin := range admins {
			if err := e.checkIdentity(admin); err != nil {
				return err
			}
		}
		if err := reg.Initialize(admins, e.defaultRate, e.now()); err != nil {
			return err
		}
		if err := tx.commit(ctx, Changes{Registry: &reg}); err != nil {
			return err
		}

		tx.field("administrators", len(reg.Administrators)).field("commission_rate", reg.CommissionRate)
		tx.emit(events.NewEvent(events.EventConfigInitialized).
			Message("configuration initialized").
			Metadata("administrators", strconv.Itoa(len(reg.Administrators))).
			Metadata("commission_rate", strconv.FormatUint(reg.CommissionRate, 10)))
		tx.done("lottery configuration initialized")
		out = reg.Clone()
		return nil
	})
	return out, err
}

// AddAsset whitelists a payment token.
func (e *Engine) AddAsset(ctx context.Context, caller, assetID, oracleID Identity) (Registry, error) {
	var out Registry
	err := e.execute(ctx, OpAddAsset, func(tx *txn) error {
		tx.field("caller", caller).field("asset_id", assetID)
		reg, err := e.loadRegistry(ctx)
		if err != nil {
			return err
		}
		if err := reg.AddAsset(caller, assetID, oracleID, e.now()); err != nil {
			return err
		}
		if err := tx.commit(ctx, Changes{Registry: &reg}); err != nil {
			return err
		}
		tx.emit(events.NewEvent(events.EventAssetAdded).
			Metadata("asset_id", assetID.String()).
			Metadata("oracle_id", oracleID.String()))
		tx.done("asset whitelisted")
		out = reg.Clone()
		return nil
	})
	return out, err
}

// RemoveAsset drops a payment token from the whitelist.
func (e *Engine) RemoveAsset(ctx context.Context, caller, assetID Identity) (Registry, error) {
	var out Registry
	err := e.execute(ctx, OpRemoveAsset, func(tx *txn) error {
		tx.field("caller", caller).field("asset_id", assetID)
		reg, err := e.loadRegistry(ctx)
		if err != nil {
			return err
		}
		if err := reg.RemoveAsset(caller, assetID, e.now()); err != nil {
			return err
		}
		if err := tx.commit(ctx, Changes{Registry: &reg}); err != nil {
			return err
		}
		tx.emit(events.NewEvent(events.EventAssetRemoved).Metadata("asset_id", assetID.String()))
		tx.done("asset removed from whitelist")
		out = reg.Clone()
		return nil
	})
	return out, err
}

// UpdateCommissionRate sets the commission percentage.
func (e *Engine) UpdateCommissionRate(ctx context.Context, caller Identity, rate uint64) (Registry, error) {
	var out Registry
	err := e.execute(ctx, OpUpdateCommissionRate, func(tx *txn) error {
		tx.field("caller", caller).field("commission_rate", rate)
		reg, err := e.loadRegistry(ctx)
		if err != nil {
			return err
		}
		previous := reg.CommissionRate
		if err := reg.UpdateCommissionRate(caller, rate, e.now()); err != nil {
			return err
		}
		if err := tx.commit(ctx, Changes{Registry: &reg}); err != nil {
			return err
		}
		tx.emit(events.NewEvent(events.EventCommissionUpdated).
			Metadata("previous", strconv.FormatUint(previous, 10)).
			Metadata("rate", strconv.FormatUint(rate, 10)))
		tx.done("commission rate updated")
		out = reg.Clone()
		return nil
	})
	return out, err
}

// InitRoom opens the next room with per-entry valuation limits.
func (e *Engine) InitRoom(ctx context.Context, caller Identity, minLimit, maxLimit uint64) (Room, error) {
	var out Room
	err := e.execute(ctx, OpInitRoom, func(tx *txn) error {
		tx.field("caller", caller)
		reg, err := e.loadRegistry(ctx)
		if err != nil {
			return err
		}
		if err := reg.Authorize(caller); err != nil {
			return err
		}

		now := e.now()
		id := reg.NextRoomID()
		tx.room(id)

		room, err := e.store.LoadRoom(ctx, id)
		switch {
		case errors.Is(err, ErrRoomNotFound):
			room = NewRoom(id, caller, now)
		case err != nil:
			return classify(err, ErrStorage)
		}
		if err := room.Start(minLimit, maxLimit, now); err != nil {
			return err
		}
		if err := reg.advanceRoomCount(now); err != nil {
			return err
		}
		if err := tx.commit(ctx, Changes{Registry: &reg, Room: &room}); err != nil {
			return err
		}

		e.metrics.RecordRoomTransition(StatusInProgress.String())
		tx.field("min_limit", minLimit).field("max_limit", maxLimit)
		tx.emit(events.NewEvent(events.EventRoomCreated).
			Metadata("min_limit", strconv.FormatUint(minLimit, 10)).
			Metadata("max_limit", strconv.FormatUint(maxLimit, 10)).
			Metadata("created_by", caller.String()))
		tx.done("room started")
		out = room.Clone()
		return nil
	})
	return out, err
}

// EnterWithValuation records a native deposit valued at rawAmount*priceFactor
// and moves rawAmount into the room's custody.
func (e *Engine) EnterWithValuation(ctx context.Context, roomID RoomID, participant Identity, rawAmount, priceFactor uint64) (Entry, error) {
	var out Entry
	err := e.execute(ctx, OpEnterWithValuation, func(tx *txn) error {
		tx.room(roomID)
		tx.field("participant", participant).field("amount", rawAmount)
		room, err := e.loadRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if err := room.RequireInProgress(); err != nil {
			return err
		}
		weighted, err := Weigh(rawAmount, priceFactor)
		if err != nil {
			return err
		}
		if err := CheckLimits(weighted, room.MinLimit, room.MaxLimit); err != nil {
			return err
		}

		entry := Entry{
			Participant:   participant,
			WeightedValue: weighted,
			RawAmount:     rawAmount,
			PriceFactor:   priceFactor,
			CreatedAt:     e.now(),
		}
		if err := room.Append(entry); err != nil {
			return err
		}
		if err := tx.transferNative(ctx, participant, RoomAccount(roomID), rawAmount); err != nil {
			return err
		}
		if err := tx.commit(ctx, Changes{Room: &room}); err != nil {
			return err
		}

		e.metrics.RecordEntry("native", weighted)
		tx.field("weighted_value", weighted)
		tx.emit(entryEvent(entry, len(room.Entries)-1))
		tx.done("native entry recorded")
		out = entry
		return nil
	})
	return out, err
}

// EnterWithAsset records a whitelisted token deposit valued 1:1.
func (e *Engine) EnterWithAsset(ctx context.Context, roomID RoomID, participant, assetID Identity, rawAmount uint64) (Entry, error) {
	var out Entry
	err := e.execute(ctx, OpEnterWithAsset, func(tx *txn) error {
		entry, err := e.enterAsset(ctx, tx, roomID, participant, assetID, func() (uint64, error) {
			return rawAmount, nil
		})
		out = entry
		return err
	})
	return out, err
}

// EnterWithAssetBalance stakes the participant's entire balance of assetID.
func (e *Engine) EnterWithAssetBalance(ctx context.Context, roomID RoomID, participant, assetID Identity) (Entry, error) {
	var out Entry
	err := e.execute(ctx, OpEnterWithAsset, func(tx *txn) error {
		entry, err := e.enterAsset(ctx, tx, roomID, participant, assetID, func() (uint64, error) {
			bal, err := e.custody.TokenBalance(ctx, assetID, participant)
			return bal, classify(err, ErrTransferRejected)
		})
		out = entry
		return err
	})
	return out, err
}

func (e *Engine) enterAsset(ctx context.Context, tx *txn, roomID RoomID, participant, assetID Identity, amount func() (uint64, error)) (Entry, error) {
	tx.room(roomID)
	tx.field("participant", participant).field("asset_id", assetID)

	reg, err := e.loadRegistry(ctx)
	if err != nil {
		return Entry{}, err
	}
	room, err := e.loadRoom(ctx, roomID)
	if err != nil {
		return Entry{}, err
	}
	if err := room.RequireInProgress(); err != nil {
		return Entry{}, err
	}
	if !reg.IsWhitelisted(assetID) {
		return Entry{}, detailf(ErrAssetNotWhitelisted, "%s", assetID)
	}
	rawAmount, err := amount()
	if err != nil {
		return Entry{}, err
	}
	tx.field("amount", rawAmount)

	entry := Entry{
		Participant:   participant,
		WeightedValue: rawAmount,
		AssetID:       assetID,
		RawAmount:     rawAmount,
		PriceFactor:   1,
		CreatedAt:     e.now(),
	}
	if err := room.Append(entry); err != nil {
		return Entry{}, err
	}
	if err := tx.transferToken(ctx, assetID, participant, RoomAccount(roomID), rawAmount); err != nil {
		return Entry{}, err
	}
	if err := tx.commit(ctx, Changes{Room: &room}); err != nil {
		return Entry{}, err
	}

	e.metrics.RecordEntry("token", rawAmount)
	tx.emit(entryEvent(entry, len(room.Entries)-1))
	tx.done("token entry recorded")
	return entry, nil
}

func entryEvent(entry Entry, index int) *events.EventBuilder {
	b := events.NewEvent(events.EventEntryRecorded).
		Metadata("participant", entry.Participant.String()).
		Metadata("amount", strconv.FormatUint(entry.RawAmount, 10)).
		Metadata("weighted_value", strconv.FormatUint(entry.WeightedValue, 10)).
		Metadata("index", strconv.Itoa(index))
	if !entry.IsNative() {
		b.Metadata("asset_id", entry.AssetID.String())
	}
	return b
}

// DrawWinner requests one random value and closes the room with a winner.
func (e *Engine) DrawWinner(ctx context.Context, caller Identity, roomID RoomID) (Room, error) {
	var out Room
	err := e.execute(ctx, OpDrawWinner, func(tx *txn) error {
		tx.room(roomID)
		tx.field("caller", caller)
		reg, err := e.loadRegistry(ctx)
		if err != nil {
			return err
		}
		if err := reg.Authorize(caller); err != nil {
			return err
		}
		room, err := e.loadRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if err := room.RequireInProgress(); err != nil {
			return err
		}
		if len(room.Entries) == 0 {
			return detailf(ErrNoEntries, "room %s", roomID)
		}
		total, err := SumEntries(room.Entries)
		if err != nil {
			return err
		}
		if total == 0 {
			return detailf(ErrEmptyPot, "room %s", roomID)
		}

		resp, err := e.oracle.Draw(ctx, DrawRequest{RoomID: roomID, Entries: len(room.Entries), Total: total})
		if err != nil {
			return wrap(ErrOracleUnavailable, err)
		}
		if resp.OracleID != e.oracleID {
			return detailf(ErrOracleMismatch, "got %q, want %q", resp.OracleID, e.oracleID)
		}

		sel, err := SelectWinner(room.Entries, resp.Value, e.boundary)
		if err != nil {
			return err
		}
		winner := room.Entries[sel.Index].Participant
		draw := DrawResult{
			OracleID:    resp.OracleID,
			RandomValue: resp.Value,
			Target:      sel.Target,
			Total:       sel.Total,
			WinnerIndex: sel.Index,
			Proof:       resp.Proof,
		}
		if err := room.End(winner, draw, e.now()); err != nil {
			return err
		}
		if err := tx.commit(ctx, Changes{Room: &room}); err != nil {
			return err
		}

		e.metrics.RecordDraw(total)
		e.metrics.RecordRoomTransition(StatusEnded.String())
		tx.field("winner", winner).field("target", sel.Target).field("total", total)
		tx.emit(events.NewEvent(events.EventWinnerDecided).
			Metadata("winner", winner.String()).
			Metadata("random_value", strconv.FormatUint(resp.Value, 10)).
			Metadata("target", strconv.FormatUint(sel.Target, 10)).
			Metadata("boundary", e.boundary.String()))
		tx.done("winner decided")
		out = room.Clone()
		return nil
	})
	return out, err
}

// Settle pays the winner its commission-adjusted share of every custodial
// balance the room holds. payee must be the recorded winner.
func (e *Engine) Settle(ctx context.Context, caller Identity, roomID RoomID, payee Identity) (Settlement, error) {
	var out Settlement
	err := e.execute(ctx, OpSettle, func(tx *txn) error {
		tx.room(roomID)
		tx.field("caller", caller).field("payee", payee)
		reg, err := e.loadRegistry(ctx)
		if err != nil {
			return err
		}
		if err := reg.Authorize(caller); err != nil {
			return err
		}
		room, err := e.loadRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if err := room.RequireSettleable(); err != nil {
			return err
		}
		if payee != room.Winner {
			return detailf(ErrNotWinner, "%s", payee)
		}
		if err := e.checkIdentity(payee); err != nil {
			return err
		}

		total, err := SumEntries(room.Entries)
		if err != nil {
			return err
		}
		account := RoomAccount(roomID)
		native, err := e.custody.NativeBalance(ctx, account)
		if err != nil {
			return classify(err, ErrTransferRejected)
		}
		var tokens []AssetBalance
		for _, asset := range TokenAssets(room.Entries) {
			bal, err := e.custody.TokenBalance(ctx, asset, account)
			if err != nil {
				return classify(err, ErrTransferRejected)
			}
			tokens = append(tokens, AssetBalance{AssetID: asset, Amount: bal})
		}

		s, err := CalculateSettlement(total, reg.CommissionRate, native, tokens)
		if err != nil {
			return err
		}
		s.RoomID = roomID
		s.Winner = room.Winner

		for _, t := range s.Tokens {
			if t.Payout == 0 {
				continue
			}
			if err := tx.transferToken(ctx, t.AssetID, account, payee, t.Payout); err != nil {
				return err
			}
		}
		if s.Native.Payout > 0 {
			if err := tx.transferNative(ctx, account, payee, s.Native.Payout); err != nil {
				return err
			}
		}
		if err := room.MarkSettled(s, e.now()); err != nil {
			return err
		}
		if err := tx.commit(ctx, Changes{Room: &room}); err != nil {
			return err
		}

		for _, t := range s.Tokens {
			e.metrics.RecordPayout(t.AssetID.String(), t.Payout)
		}
		e.metrics.RecordPayout("", s.Native.Payout)
		e.metrics.RecordRoomTransition("settled")

		tx.field("commission", s.Commission).field("native_payout", s.Native.Payout)
		b := events.NewEvent(events.EventRoomSettled).
			Metadata("winner", s.Winner.String()).
			Metadata("commission", strconv.FormatUint(s.Commission, 10)).
			Metadata("native_payout", strconv.FormatUint(s.Native.Payout, 10))
		for _, t := range s.Tokens {
			b.Metadata("payout."+t.AssetID.String(), strconv.FormatUint(t.Payout, 10))
		}
		tx.emit(b)
		tx.done("room settled")
		out = s.clone()
		return nil
	})
	return out, err
}

// WithdrawFromRoom has no defined effect. It checks the caller and the room
// and then returns without moving funds or changing any record.
func (e *Engine) WithdrawFromRoom(ctx context.Context, caller Identity, roomID RoomID) error {
	return e.execute(ctx, OpWithdraw, func(tx *txn) error {
		tx.room(roomID)
		tx.field("caller", caller)
		reg, err := e.loadRegistry(ctx)
		if err != nil {
			return err
		}
		if err := reg.Authorize(caller); err != nil {
			return err
		}
		if _, err := e.loadRoom(ctx, roomID); err != nil {
			return err
		}
		tx.emit(events.NewEvent(events.EventRoomWithdraw).Message("no funds moved"))
		tx.done("withdraw requested; nothing transferred")
		return nil
	})
}

// Registry returns the current configuration.
func (e *Engine) Registry(ctx context.Context) (Registry, error) {
	return e.loadRegistry(ctx)
}

// Room returns one room record.
func (e *Engine) Room(ctx context.Context, id RoomID) (Room, error) {
	return e.loadRoom(ctx, id)
}

// Rooms lists rooms, newest first.
func (e *Engine) Rooms(ctx context.Context, limit int) ([]Room, error) {
	rooms, err := e.store.ListRooms(ctx, limit)
	if err != nil {
		return nil, classify(err, ErrStorage)
	}
	return rooms, nil
}

func (e *Engine) loadRegistry(ctx context.Context) (Registry, error) {
	reg, err := e.store.LoadRegistry(ctx)
	if err != nil {
		return Registry{}, classify(err, ErrStorage)
	}
	if !reg.Initialized {
		return Registry{}, ErrConfigNotInitialized
	}
	return reg.Clone(), nil
}

func (e *Engine) loadRoom(ctx context.Context, id RoomID) (Room, error) {
	room, err := e.store.LoadRoom(ctx, id)
	if err != nil {
		return Room{}, classify(err, ErrStorage)
	}
	return room.Clone(), nil
}

func (e *Engine) checkIdentity(id Identity) error {
	if !id.Valid() {
		return detailf(ErrInvalidIdentity, "empty identity")
	}
	if e.validate == nil {
		return nil
	}
	if err := e.validate(id); err != nil {
		return wrap(detailf(ErrInvalidIdentity, "%s", id), err)
	}
	return nil
}

// execute runs fn under the engine lock and reports its outcome.
func (e *Engine) execute(ctx context.Context, name string, fn func(tx *txn) error) error {
	start := time.Now()
	tx := &txn{engine: e, name: name, fields: logrus.Fields{"operation": name}}

	unlock, err := e.locker.Lock(ctx, lockKey)
	if err != nil {
		err = wrap(ErrStorage, fmt.Errorf("acquire engine lock: %w", err))
		e.report(ctx, tx, start, err)
		return err
	}
	defer unlock()

	err = fn(tx)
	if err != nil {
		tx.rollback(ctx)
	}
	e.report(ctx, tx, start, err)
	return err
}

func (e *Engine) report(ctx context.Context, tx *txn, start time.Time, err error) {
	e.metrics.RecordOperation(tx.name, time.Since(start), err)

	if err != nil {
		kind := string(KindOf(err))
		e.metrics.RecordFailure(tx.name, kind)
		e.log.WithFields(tx.fields).WithField("kind", kind).WithError(err).Warn("lottery operation failed")
		b := events.NewEvent(events.EventOperationFailed).
			Operation(tx.name).
			Room(tx.roomID).
			ErrorFrom(err).
			Metadata("kind", kind).
			Metadata("code", CodeOf(err))
		if callerError(err) {
			b.Severity(events.SeverityWarning)
		}
		b.LogToWithContext(ctx, e.events)
		return
	}

	e.log.WithFields(tx.fields).Info(tx.message)
	for _, b := range tx.pending {
		b.Operation(tx.name).Room(tx.roomID).LogToWithContext(ctx, e.events)
	}
}

// callerError reports whether err was caused by the request rather than by
// a collaborator or the store.
func callerError(err error) bool {
	switch KindOf(err) {
	case KindAuthorization, KindState, KindValidation, KindNotFound:
		return true
	default:
		return false
	}
}

// txn collects the effects of one operation.
type txn struct {
	engine  *Engine
	name    string
	roomID  string
	message string
	fields  logrus.Fields
	undo    []compensation
	pending []*events.EventBuilder
}

type compensation struct {
	desc string
	fn   func(ctx context.Context) error
}

func (tx *txn) field(key string, value any) *txn {
	tx.fields[key] = value
	return tx
}

func (tx *txn) room(id RoomID) {
	tx.roomID = id.String()
	tx.fields["room_id"] = tx.roomID
}

func (tx *txn) emit(b *events.EventBuilder) {
	tx.pending = append(tx.pending, b)
}

func (tx *txn) done(message string) {
	tx.message = message
}

func (tx *txn) commit(ctx context.Context, changes Changes) error {
	if err := tx.engine.store.Commit(ctx, changes); err != nil {
		return classify(err, ErrStorage)
	}
	return nil
}

func (tx *txn) transferNative(ctx context.Context, from, to Identity, amount uint64) error {
	custody := tx.engine.custody
	if err := custody.TransferNative(ctx, from, to, amount); err != nil {
		return classify(err, ErrTransferRejected)
	}
	tx.undo = append(tx.undo, compensation{
		desc: fmt.Sprintf("native %d %s -> %s", amount, to, from),
		fn: func(ctx context.Context) error {
			return custody.TransferNative(ctx, to, from, amount)
		},
	})
	return nil
}

func (tx *txn) transferToken(ctx context.Context, asset, from, to Identity, amount uint64) error {
	custody := tx.engine.custody
	if err := custody.TransferToken(ctx, asset, from, to, amount); err != nil {
		return classify(err, ErrTransferRejected)
	}
	tx.undo = append(tx.undo, compensation{
		desc: fmt.Sprintf("token %s %d %s -> %s", asset, amount, to, from),
		fn: func(ctx context.Context) error {
			return custody.TransferToken(ctx, asset, to, from, amount)
		},
	})
	return nil
}

// rollback reverses completed transfers, newest first. It ignores the
// caller's cancellation so a cancelled request still restores balances.
func (tx *txn) rollback(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := len(tx.undo) - 1; i >= 0; i-- {
		c := tx.undo[i]
		err := c.fn(ctx)
		tx.engine.metrics.RecordCompensation(err)
		if err != nil {
			tx.engine.log.WithFields(tx.fields).WithError(err).
				WithField("compensation", c.desc).
				Error("compensating transfer failed; custody requires manual reconciliation")
		}
	}
	tx.undo = nil
}
