package technical

import "github.com/Alias1177/fxsignal/internal/model"

// PivotSet is one family of pivot levels. S4/R4 are only set for Camarilla.
type PivotSet struct {
	PP float64 `json:"pp"`
	S1 float64 `json:"s1"`
	S2 float64 `json:"s2"`
	S3 float64 `json:"s3"`
	S4 float64 `json:"s4,omitempty"`
	R1 float64 `json:"r1"`
	R2 float64 `json:"r2"`
	R3 float64 `json:"r3"`
	R4 float64 `json:"r4,omitempty"`
}

// Pivots holds the four pivot families derived from one bar
type Pivots struct {
	Classic   PivotSet `json:"classic"`
	Fibonacci PivotSet `json:"fibonacci"`
	Woodie    PivotSet `json:"woodie"`
	Camarilla PivotSet `json:"camarilla"`
}

// CalculatePivots derives classic, Fibonacci, Woodie and Camarilla pivots
// from the high, low and close of bar
func CalculatePivots(bar model.Bar) Pivots {
	high, low, last := bar.High, bar.Low, bar.Close
	rng := high - low

	pp := (high + low + last) / 3
	classic := PivotSet{
		PP: pp,
		S1: 2*pp - high,
		S2: pp - rng,
		S3: low - 2*(high-pp),
		R1: 2*pp - low,
		R2: pp + rng,
		R3: high + 2*(pp-low),
	}

	fib := PivotSet{
		PP: pp,
		S1: pp - 0.382*rng,
		S2: pp - 0.618*rng,
		S3: pp - rng,
		R1: pp + 0.382*rng,
		R2: pp + 0.618*rng,
		R3: pp + rng,
	}

	ppw := (high + low + 2*last) / 4
	woodie := PivotSet{
		PP: ppw,
		S1: 2*ppw - high,
		S2: ppw - rng,
		S3: classic.S1 - rng,
		R1: 2*ppw - low,
		R2: ppw + rng,
		R3: classic.R1 + rng,
	}

	k := rng * 1.1
	camarilla := PivotSet{
		PP: pp,
		S1: last - k/12,
		S2: last - k/6,
		S3: last - k/4,
		S4: last - k/2,
		R1: last + k/12,
		R2: last + k/6,
		R3: last + k/4,
		R4: last + k/2,
	}

	return Pivots{Classic: classic, Fibonacci: fib, Woodie: woodie, Camarilla: camarilla}
}
