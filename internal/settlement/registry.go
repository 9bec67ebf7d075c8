package settlement

import "time"

const (
	// MaxWhitelistedAssets bounds the registry asset list.
	MaxWhitelistedAssets = 10
	// MaxCommissionRate is the largest accepted commission percentage.
	MaxCommissionRate uint64 = 100
	// DefaultCommissionRate is applied when the registry is created.
	DefaultCommissionRate uint64 = 5
)

// Initialize sets up a fresh registry. Duplicate administrators are
// collapsed; an empty set is rejected.
func (r *Registry) Initialize(admins []Identity, commissionRate uint64, now time.Time) error {
	if r.Initialized {
		return detailf(ErrAlreadyInitialized, "configuration")
	}
	if commissionRate > MaxCommissionRate {
		return detailf(ErrRateOutOfRange, "default rate %d", commissionRate)
	}

	seen := make(map[Identity]struct{}, len(admins))
	set := make([]Identity, 0, len(admins))
	for _, admin := range admins {
		if !admin.Valid() {
			return detailf(ErrInvalidIdentity, "empty administrator identity")
		}
		if _, dup := seen[admin]; dup {
			continue
		}
		seen[admin] = struct{}{}
		set = append(set, admin)
	}
	if len(set) == 0 {
		return ErrInvalidAdministrators
	}

	*r = Registry{
		Initialized:       true,
		RoomCount:         1,
		Administrators:    set,
		WhitelistedAssets: []Asset{},
		CommissionRate:    commissionRate,
		UpdatedAt:         now,
	}
	return nil
}

// IsAdmin reports whether id belongs to the administrator set.
func (r *Registry) IsAdmin(id Identity) bool {
	for _, admin := range r.Administrators {
		if admin == id {
			return true
		}
	}
	return false
}

// Authorize fails with ErrNotAuthorized unless caller is an administrator.
func (r *Registry) Authorize(caller Identity) error {
	if !r.Initialized {
		return ErrConfigNotInitialized
	}
	if !r.IsAdmin(caller) {
		return detailf(ErrNotAuthorized, "%s", caller)
	}
	return nil
}

// Asset looks up a whitelisted asset.
func (r *Registry) Asset(assetID Identity) (Asset, bool) {
	for _, a := range r.WhitelistedAssets {
		if a.AssetID == assetID {
			return a, true
		}
	}
	return Asset{}, false
}

// IsWhitelisted reports whether assetID is accepted for entries.
func (r *Registry) IsWhitelisted(assetID Identity) bool {
	_, ok := r.Asset(assetID)
	return ok
}

// AddAsset appends an asset to the whitelist.
func (r *Registry) AddAsset(caller, assetID, oracleID Identity, now time.Time) error {
	if err := r.Authorize(caller); err != nil {
		return err
	}
	if !assetID.Valid() || !oracleID.Valid() {
		return detailf(ErrInvalidIdentity, "asset and oracle identities are required")
	}
	if len(r.WhitelistedAssets) >= MaxWhitelistedAssets {
		return detailf(ErrAssetListFull, "limit %d", MaxWhitelistedAssets)
	}
	if r.IsWhitelisted(assetID) {
		return detailf(ErrAssetAlreadyExists, "%s", assetID)
	}
	r.WhitelistedAssets = append(r.WhitelistedAssets, Asset{AssetID: assetID, OracleID: oracleID})
	r.UpdatedAt = now
	return nil
}

// RemoveAsset drops an asset from the whitelist. The last entry takes the
// removed slot, so the order of the remaining assets may change.
func (r *Registry) RemoveAsset(caller, assetID Identity, now time.Time) error {
	if err := r.Authorize(caller); err != nil {
		return err
	}
	for i, a := range r.WhitelistedAssets {
		if a.AssetID != assetID {
			continue
		}
		last := len(r.WhitelistedAssets) - 1
		r.WhitelistedAssets[i] = r.WhitelistedAssets[last]
		r.WhitelistedAssets = r.WhitelistedAssets[:last]
		r.UpdatedAt = now
		return nil
	}
	return detailf(ErrAssetNotFound, "%s", assetID)
}

// UpdateCommissionRate sets the commission percentage.
func (r *Registry) UpdateCommissionRate(caller Identity, rate uint64, now time.Time) error {
	if err := r.Authorize(caller); err != nil {
		return err
	}
	if rate > MaxCommissionRate {
		return detailf(ErrRateOutOfRange, "got %d", rate)
	}
	r.CommissionRate = rate
	r.UpdatedAt = now
	return nil
}

// NextRoomID is the identifier the next created room receives.
func (r *Registry) NextRoomID() RoomID {
	return RoomID(r.RoomCount)
}

func (r *Registry) advanceRoomCount(now time.Time) error {
	if r.RoomCount >= uint64(MaxRoomID) {
		return detailf(ErrArithmeticOverflow, "room counter exhausted")
	}
	r.RoomCount++
	r.UpdatedAt = now
	return nil
}
