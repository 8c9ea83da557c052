// Package joinbench holds the configuration and error taxonomy shared by the
// join benchmarking harness.
package joinbench

import (
	"fmt"
	"strings"
)

// JoinType selects how the generator relates the keys of R and S
type JoinType int

const (
	PKFK JoinType = iota // R holds the primary keys, S references them
	FKFK                 // both sides reference a shared key universe
)

var joinTypeNames = []string{"PK_FK", "FK_FK"}

func (t JoinType) String() string {
	if t < 0 || int(t) >= len(joinTypeNames) {
		return fmt.Sprintf("JoinType(%d)", int(t))
	}
	return joinTypeNames[t]
}

// ParseJoinType accepts PK_FK or FK_FK, case-insensitive
func ParseJoinType(s string) (JoinType, error) {
	for i, name := range joinTypeNames {
		if strings.EqualFold(s, name) {
			return JoinType(i), nil
		}
	}
	return 0, &ConfigError{Field: "type", Value: s, Reason: "expected PK_FK or FK_FK"}
}

func (t *JoinType) UnmarshalText(text []byte) error {
	v, err := ParseJoinType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t JoinType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Distribution is the key distribution of the foreign side(s)
type Distribution int

const (
	Uniform Distribution = iota
	Zipf
)

var distributionNames = []string{"UNIFORM", "ZIPF"}

func (d Distribution) String() string {
	if d < 0 || int(d) >= len(distributionNames) {
		return fmt.Sprintf("Distribution(%d)", int(d))
	}
	return distributionNames[d]
}

// ParseDistribution accepts UNIFORM or ZIPF, case-insensitive
func ParseDistribution(s string) (Distribution, error) {
	for i, name := range distributionNames {
		if strings.EqualFold(s, name) {
			return Distribution(i), nil
		}
	}
	return 0, &ConfigError{Field: "dist", Value: s, Reason: "expected UNIFORM or ZIPF"}
}

func (d *Distribution) UnmarshalText(text []byte) error {
	v, err := ParseDistribution(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Distribution) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Algorithm selects the join variant
type Algorithm int

const (
	LIB  Algorithm = iota // library-delegated join
	PHJ                   // partitioned (radix) hash join
	SMJ                   // sort-merge join
	SHJ                   // shared hash join
	SMJI                  // sort-merge join probing a sparse index

	numAlgorithms
)

var algorithmNames = []string{"LIB", "PHJ", "SMJ", "SHJ", "SMJI"}

// Algorithms returns every supported algorithm in selector order
func Algorithms() []Algorithm {
	out := make([]Algorithm, 0, numAlgorithms)
	for a := Algorithm(0); a < numAlgorithms; a++ {
		out = append(out, a)
	}
	return out
}

// Valid reports whether a is within the supported set
func (a Algorithm) Valid() bool {
	return a >= 0 && a < numAlgorithms
}

func (a Algorithm) String() string {
	if !a.Valid() {
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
	return algorithmNames[a]
}

// ParseAlgorithm accepts a label (LIB, PHJ, ...) or its numeric selector
func ParseAlgorithm(s string) (Algorithm, error) {
	for i, name := range algorithmNames {
		if strings.EqualFold(s, name) {
			return Algorithm(i), nil
		}
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && Algorithm(n).Valid() {
		return Algorithm(n), nil
	}
	return 0, &ConfigError{Field: "algo", Value: s, Reason: "expected one of " + strings.Join(algorithmNames, ", ")}
}

func (a *Algorithm) UnmarshalText(text []byte) error {
	v, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a Algorithm) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// FKFKSemantics decides how FK_FK relations cover the shared key universe
type FKFKSemantics int

const (
	// Covering places every universe key once in each relation before
	// drawing the remaining rows, so every key matches on both sides.
	Covering FKFKSemantics = iota
	// Independent draws every row independently from the universe.
	Independent
)

var fkfkNames = []string{"covering", "independent"}

func (f FKFKSemantics) String() string {
	if f < 0 || int(f) >= len(fkfkNames) {
		return fmt.Sprintf("FKFKSemantics(%d)", int(f))
	}
	return fkfkNames[f]
}

// ParseFKFKSemantics accepts covering or independent
func ParseFKFKSemantics(s string) (FKFKSemantics, error) {
	for i, name := range fkfkNames {
		if strings.EqualFold(s, name) {
			return FKFKSemantics(i), nil
		}
	}
	return 0, &ConfigError{Field: "fkfk", Value: s, Reason: "expected covering or independent"}
}

func (f *FKFKSemantics) UnmarshalText(text []byte) error {
	v, err := ParseFKFKSemantics(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func (f FKFKSemantics) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}
