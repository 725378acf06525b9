package services

import (
	"math"
	"math/rand"

	"treasure-dig-system/models"
)

// MinYieldFloor guarantees every successful dig yields a strictly positive,
// displayable token amount.
const MinYieldFloor = 1e-6

// RandSource is the randomness the reward calculator draws from.
// *rand.Rand satisfies it; tests inject a seeded source.
type RandSource interface {
	Float64() float64
}

// globalRand routes through math/rand's locked global source, safe for
// concurrent request handlers.
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// DefaultRand is the production randomness source.
var DefaultRand RandSource = globalRand{}

// RewardResult is the outcome of one reward computation. TokenAmount and
// USDValue are sampled independently: the USD value is anchored to the
// box's dig cost, never derived from the token amount (and vice versa).
// USDValue is display/broadcast information only and must never feed back
// into the payout.
type RewardResult struct {
	TokenAmount float64 `json:"token_amount"`
	USDValue    float64 `json:"usd_value"`
}

// ComputeReward computes the payout for one dig against a box. Pure
// function of box configuration, the box's currently available balance and
// the injected randomness — no persisted state.
//
// The token amount is clamped to the available balance (a box never pays
// out more than it holds) and floored to MinYieldFloor.
func ComputeReward(box *models.Box, available float64, rng RandSource) RewardResult {
	var amount float64
	switch box.RewardMode {
	case models.RewardModeRandom:
		lo := math.Min(box.RewardMin, box.RewardMax)
		hi := math.Max(box.RewardMin, box.RewardMax)
		amount = lo + rng.Float64()*(hi-lo)
	default:
		amount = box.RewardFixed
	}

	if amount > available {
		amount = available
	}
	if amount < MinYieldFloor {
		amount = MinYieldFloor
	}

	// Skewed draw anchored to cost: most digs land well under the dig cost,
	// a small tail reaches several multiples of it. The quartic keeps the
	// distribution bottom-heavy.
	r := rng.Float64()
	usd := box.CostPerDig * (0.25 + 5.75*math.Pow(r, 4))

	return RewardResult{TokenAmount: amount, USDValue: usd}
}
