package solver

import "math/rand/v2"

// splitmix64 is the SplitMix64 finalizer, used to spread consecutive seeds
// across the PCG state space.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// runSource returns the random stream of run i. Streams depend only on the
// base seed and the run index, never on scheduling.
func runSource(seed uint64, run int) *rand.PCG {
	return rand.NewPCG(splitmix64(seed), splitmix64(seed+uint64(run)+1))
}
