// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.2
//

package gorloc

import "math"

//-------------------------------------------------------------------
// Log-distance path loss model
//-------------------------------------------------------------------
// rssi = txPower - 10 * n * log10(d / D0)
// with txPower the received power [dBm] at the reference distance D0
// and n the path loss exponent. Typical exponents: 2.0 free space,
// 1.6-1.8 indoor line of sight, 2.7-3.5 urban, 3-5 shadowed urban.

// PathLossRssi returns the modeled received power [dBm] at distance d.
func PathLossRssi(txPower, pathLoss, d float64) float64 {
	if d < MIN_DISTANCE {
		d = MIN_DISTANCE
	}
	return txPower - 10.0*pathLoss*math.Log10(d/D0)
}

// PathLossDistance returns the distance implied by a received power.
func PathLossDistance(txPower, pathLoss, rssi float64) float64 {
	return D0 * math.Pow(10.0, (txPower-rssi)/(10.0*pathLoss))
}

// Partial derivative of the modeled rssi w.r.t. the path loss exponent
func RssiDPathLoss(d float64) float64 {
	if d < MIN_DISTANCE {
		d = MIN_DISTANCE
	}
	return -10.0 * math.Log10(d/D0)
}

// Partial derivative of the modeled rssi w.r.t. source coordinate j
// (p: source position, a: anchor position)
func RssiDPos(pathLoss float64, p, a Point, j int) float64 {
	d := p.DistanceTo(a)
	if d < MIN_DISTANCE {
		d = MIN_DISTANCE
	}
	return -10.0 * pathLoss / LN10 * (p[j] - a[j]) / SQ(d)
}

//-------------------------------------------------------------------
// Power unit conversions
//-------------------------------------------------------------------

// DBmToMW converts a power in dBm to milliwatts.
func DBmToMW(dbm float64) float64 {
	return math.Pow(10.0, dbm/10.0)
}

// MWToDBm converts a power in milliwatts to dBm (mw must be positive).
func MWToDBm(mw float64) float64 {
	return 10.0 * math.Log10(mw)
}
