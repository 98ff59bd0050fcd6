package algorand

import (
	"encoding/base64"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"

	mp "github.com/R3E-Network/listing_marketplace/internal/marketplace"
)

// tealUint is the TealValue type tag of integer values.
const tealUint = 2

// decodeGlobalState keeps the integer entries of an application's global
// state, keyed by their decoded names.
func decodeGlobalState(kvs []models.TealKeyValue) (mp.GlobalState, error) {
	out := make(mp.GlobalState, len(kvs))
	for _, kv := range kvs {
		key, err := base64.StdEncoding.DecodeString(kv.Key)
		if err != nil {
			return nil, fmt.Errorf("decode global state key %q: %w", kv.Key, err)
		}
		if kv.Value.Type != tealUint {
			continue
		}
		out[string(key)] = kv.Value.Uint
	}
	return out, nil
}
