// Package folio generates the human readable identifiers printed on
// prescriptions.
package folio

import (
	"fmt"
	"math/rand"
	"time"
)

const Prefix = "REC"

// Generator builds folios of the form REC-YYMMDD-NNN. NNN is drawn from
// [0, 999], so two prescriptions on the same day collide about once in a
// thousand; the store retries.
type Generator struct {
	intn func(n int) int
}

// New returns a Generator using intn as its random source. A nil intn uses
// math/rand.
func New(intn func(n int) int) *Generator {
	if intn == nil {
		intn = rand.Intn
	}
	return &Generator{intn: intn}
}

func (g *Generator) Next(now time.Time) string {
	n := g.intn(1000)
	if n < 0 {
		n = -n
	}
	return fmt.Sprintf("%s-%s-%03d", Prefix, now.Format("060102"), n%1000)
}

// Sequence returns an intn that yields values in order and then repeats the
// last one.
func Sequence(values ...int) func(int) int {
	i := 0
	return func(int) int {
		if len(values) == 0 {
			return 0
		}
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	}
}
