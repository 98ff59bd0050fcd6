package marketplace

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageStringRoundTrip(t *testing.T) {
	for _, s := range []Stage{StageUninitialized, StageAssetReady, StageDeployed, StageOptedIn, StageActive, StageClosed} {
		if got := ParseStage(s.String()); got != s {
			t.Errorf("ParseStage(%q) = %v, want %v", s.String(), got, s)
		}
	}
	if got := ParseStage("deployed-unfunded"); got != StageDeployed {
		t.Errorf("alias deployed-unfunded = %v", got)
	}
	if got := ParseStage("bogus"); got != StageUninitialized {
		t.Errorf("unknown stage = %v", got)
	}
	if got := Stage(42).String(); got != "stage(42)" {
		t.Errorf("unknown stage string = %q", got)
	}
}

func TestStageJSON(t *testing.T) {
	data, err := json.Marshal(Checkpoint{Stage: StageOptedIn, AppID: 9})
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":"opted-in","app_id":9}`, string(data))

	var cp Checkpoint
	require.NoError(t, json.Unmarshal(data, &cp))
	assert.Equal(t, StageOptedIn, cp.Stage)
}

func TestStagePartial(t *testing.T) {
	assert.True(t, StageDeployed.IsPartial())
	assert.True(t, StageOptedIn.IsPartial())
	assert.False(t, StageActive.IsPartial())
	assert.False(t, StageAssetReady.IsPartial())
	assert.NotEqual(t, StageDeployed.Describe(), StageOptedIn.Describe())
}

func TestWorkflowErrorUnwrapsKindAndCause(t *testing.T) {
	cause := errors.New("pool error")
	err := fmt.Errorf("wrapped: %w", &WorkflowError{
		Op:         "create",
		Step:       "opt-in",
		Kind:       ErrOptIn,
		Checkpoint: Checkpoint{Stage: StageDeployed, AppID: 12},
		Err:        cause,
	})

	assert.ErrorIs(t, err, ErrOptIn)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrPurchase)
	assert.Equal(t, ErrOptIn, KindOf(err))
	assert.Equal(t, "opt_in", KindName(KindOf(err)))
	assert.Contains(t, err.Error(), "create: step opt-in")
	assert.Contains(t, err.Error(), "(left deployed, app 12)")
}

func TestKindOfPlainErrors(t *testing.T) {
	assert.Equal(t, ErrInvalidInput, KindOf(fmt.Errorf("%w: quantity", ErrInvalidInput)))
	assert.Nil(t, KindOf(errors.New("other")))
	assert.Equal(t, "", KindName(nil))
	assert.Equal(t, "unknown", KindName(errors.New("other")))
}

func TestPurchaseAmount(t *testing.T) {
	got, err := PurchaseAmount(10, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000), got)

	_, err = PurchaseAmount(2, math.MaxUint64)
	assert.ErrorIs(t, err, ErrInvalidInput)

	got, err = PurchaseAmount(1, math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got)
}

func TestGlobalStateAccessors(t *testing.T) {
	gs := GlobalState{GlobalKeyUnitaryPrice: 5}
	price, ok := gs.UnitaryPrice()
	assert.True(t, ok)
	assert.Equal(t, uint64(5), price)

	_, ok = gs.AssetID()
	assert.False(t, ok)
}

func TestListingViewJSON(t *testing.T) {
	found := Found(Listing{AppID: 3, AssetID: 2, UnitaryPrice: 1, UnitsLeft: 4, Seller: "S"})
	data, err := json.Marshal(found)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"found","listing":{"app_id":3,"app_address":"","asset_id":2,"unitary_price":1,"units_left":4,"seller":"S"}}`, string(data))

	failed := QueryFailed(3, errors.New("timeout"))
	data, err = json.Marshal(failed)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"query_failed","listing":{"app_id":3,"app_address":"","asset_id":0,"unitary_price":0,"units_left":0,"seller":""},"reason":"timeout"}`, string(data))
	assert.True(t, failed.Fields().IsZero())
	assert.False(t, failed.Equal(NotFound(3, nil)))
}

func TestFeesDefaults(t *testing.T) {
	f := Fees{ExtraFee: 2_000}.withDefaults()
	assert.Equal(t, Fees{FundingAmount: 200_000, ExtraFee: 2_000, DeleteFee: 3_000}, f)
	assert.Equal(t, uint64(1_000_000), MicroAlgosPerAlgo)
}
