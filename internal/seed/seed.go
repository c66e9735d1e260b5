// Package seed makes training runs reproducible.
package seed

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// EnvVar carries the seed to child processes
const EnvVar = "TRAINKIT_SEED"

// All seeds the global math/rand source, exports the seed in EnvVar and
// returns a private generator seeded with the same value. The generator is
// returned even if exporting the seed fails.
//
// gorgonia's built-in initialisers use their own time-seeded generators, so
// reproducible weights must come from Normal or Uniform with the returned
// generator.
func All(seed int64) (*rand.Rand, error) {
	rand.Seed(seed) //nolint:staticcheck
	r := rand.New(rand.NewSource(seed))
	if err := os.Setenv(EnvVar, strconv.FormatInt(seed, 10)); err != nil {
		return r, fmt.Errorf("failed to export seed: %w", err)
	}
	return r, nil
}

// FromEnv returns the seed exported by All, if any
func FromEnv() (int64, bool) {
	v, ok := os.LookupEnv(EnvVar)
	if !ok {
		return 0, false
	}
	seed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return seed, true
}

// Normal returns a weight initialiser drawing from N(0, stdev²) with r
func Normal(r *rand.Rand, stdev float64) gorgonia.InitWFn {
	return initWith(func() float64 { return r.NormFloat64() * stdev })
}

// Uniform returns a weight initialiser drawing from U(low, high) with r
func Uniform(r *rand.Rand, low, high float64) gorgonia.InitWFn {
	return initWith(func() float64 { return low + r.Float64()*(high-low) })
}

func initWith(draw func() float64) gorgonia.InitWFn {
	return func(dt tensor.Dtype, s ...int) interface{} {
		size := tensor.Shape(s).TotalSize()
		switch dt {
		case tensor.Float64:
			out := make([]float64, size)
			for i := range out {
				out[i] = draw()
			}
			return out
		case tensor.Float32:
			out := make([]float32, size)
			for i := range out {
				out[i] = float32(draw())
			}
			return out
		default:
			panic(fmt.Sprintf("seed: dtype %v not supported", dt))
		}
	}
}
