// Package sched implements the scheduler core: the round-robin policy,
// the three-level MFQ policy, and the PRNG the lottery level draws
// against. Grounded on original_source/proc.c's scheduler(),
// MFQscheduler(), random(), and totalTickets().
package sched

// RNG is a 4-state Tausworthe-style pseudo-random generator, a direct
// port of proc.c's static random() — z1..z4 recurrences XORed together
// and reduced mod max. It is explicitly NOT cryptographic quality
// (spec.md's non-goals rule that out); its only job is to pick a lottery
// winner deterministically from a seed so scheduling runs are
// reproducible in tests.
type RNG struct {
	z1, z2, z3, z4 uint32
}

// NewRNG seeds the generator. proc.c seeds all four state words to the
// literal 12345; passing that same seed reproduces the source's sequence
// exactly. A seed of 0 is replaced by 12345.
func NewRNG(seed uint32) *RNG {
	if seed == 0 {
		seed = 12345
	}
	return &RNG{z1: seed, z2: seed, z3: seed, z4: seed}
}

func tausStep(z, s1, s2, s3 uint32, m uint32) uint32 {
	b := (((z << s1) ^ z) >> s2)
	return ((z & m) << s3) ^ b
}

// Next advances the generator and returns a pseudo-random value.
func (r *RNG) Next() uint32 {
	r.z1 = tausStep(r.z1, 13, 19, 12, 4294967294)
	r.z2 = tausStep(r.z2, 2, 25, 4, 4294967288)
	r.z3 = tausStep(r.z3, 3, 11, 17, 4294967280)
	r.z4 = 1664525*r.z4 + 1013904223
	return r.z1 ^ r.z2 ^ r.z3 ^ r.z4
}

// Intn returns a pseudo-random value in [0, max), mirroring random(max)'s
// mod-and-absolute-value reduction. max <= 0 always returns 0.
func (r *RNG) Intn(max int) int {
	if max <= 0 {
		return 0
	}
	v := int64(int32(r.Next()))
	if v < 0 {
		v = -v
	}
	return int(v % int64(max))
}
