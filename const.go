// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.2
//

package gorloc

const (
	D0            = 1.0                // Reference distance of the log-distance model [unit]
	LN10          = 2.302585092994046  // Natural logarithm of 10
	MIN_DISTANCE  = 1e-9               // Smallest distance admitted by the propagation model [unit]
	DEF_TX_POWER  = 0.0                // Default transmitted power [dBm]
	DEF_PATH_LOSS = 2.0                // Default path loss exponent (free space)
	MIN_PATH_LOSS = 0.1                // Lower clamp for estimated path loss exponents
	MAX_PATH_LOSS = 10.0               // Upper clamp for estimated path loss exponents
)
