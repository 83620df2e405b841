// Package netcode implements a server-authoritative multiplayer netcode core:
// a fixed-tick simulation loop, client-side prediction and reconciliation, a
// FishNet-style graphical smoother, and the wire protocol tying both ends
// together.
//
// The package is parameterised over two opaque types supplied by the game
// built on top of it: a World (W) holding game state, and an Input (I)
// carrying one tick of player intent. The core never inspects W except
// through the Simulator and PredictionScope capabilities a caller supplies;
// it never inspects I beyond the InputTimestamp method every Input must
// expose (HasTimestamp).
package netcode
