package models

// Encryption parameters for at-rest protection of contact addresses
const (
	NonceSize  = 12
	KeySize    = 32
	Iterations = 100000
)
