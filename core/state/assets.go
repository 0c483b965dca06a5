package state

import (
	"errors"

	"github.com/ethereum/go-ethereum/rlp"

	"ipledger/storage"
)

// The asset mirror narrows the external IP registry down to the two
// capabilities the engines consume: an ownership query and a custody
// transfer. References are minted elsewhere; registration is the ingest
// point for them.

var (
	// ErrAssetExists is returned when registering a reference twice.
	ErrAssetExists = errors.New("state: asset reference already registered")
	// ErrAssetNotFound is returned when transferring an unknown reference.
	ErrAssetNotFound = errors.New("state: asset reference not registered")
	// ErrAssetOwnerMismatch is returned when the transfer source does not
	// hold the asset.
	ErrAssetOwnerMismatch = errors.New("state: transfer source does not own asset")
)

func assetOwnerKey(ref [32]byte) []byte {
	return storageKey(assetOwnerPrefix, ref[:])
}

type storedAssetOwner struct {
	Owner [20]byte
}

// AssetRegister records an externally minted reference under its current
// owner. Re-registration is rejected so custody history stays linear.
func (m *Manager) AssetRegister(ref [32]byte, owner [20]byte) error {
	key := assetOwnerKey(ref)
	ok, err := m.db.Has(key)
	if err != nil {
		return err
	}
	if ok {
		return ErrAssetExists
	}
	encoded, err := rlp.EncodeToBytes(&storedAssetOwner{Owner: owner})
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// AssetOwner resolves the current holder of a reference.
func (m *Manager) AssetOwner(ref [32]byte) ([20]byte, bool, error) {
	data, err := m.db.Get(assetOwnerKey(ref))
	if errors.Is(err, storage.ErrNotFound) {
		return [20]byte{}, false, nil
	}
	if err != nil {
		return [20]byte{}, false, err
	}
	stored := new(storedAssetOwner)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return [20]byte{}, false, err
	}
	return stored.Owner, true, nil
}

// AssetTransfer moves custody of a reference. The declared source must match
// the stored owner, which is what makes double-escrowing a collateral asset
// impossible.
func (m *Manager) AssetTransfer(ref [32]byte, from, to [20]byte) error {
	owner, ok, err := m.AssetOwner(ref)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAssetNotFound
	}
	if owner != from {
		return ErrAssetOwnerMismatch
	}
	encoded, err := rlp.EncodeToBytes(&storedAssetOwner{Owner: to})
	if err != nil {
		return err
	}
	return m.db.Put(assetOwnerKey(ref), encoded)
}
