package ode

import "fmt"

// Tableau is the Butcher tableau of an explicit Runge-Kutta method.
// E holds the weights of the embedded error estimate (B minus the lower order
// weights). A nil E marks a fixed-step method.
type Tableau struct {
	Name  string
	Order int
	C     []float64
	A     [][]float64
	B     []float64
	E     []float64
}

func (tab *Tableau) Stages() int {
	return len(tab.B)
}

func (tab *Tableau) Adaptive() bool {
	return tab.E != nil
}

func (tab *Tableau) Validate() error {
	s := len(tab.B)
	if s == 0 || tab.Order <= 0 || len(tab.C) != s || len(tab.A) != s {
		return ErrInvalidTableau
	}
	for i, row := range tab.A {
		if len(row) > i {
			return ErrInvalidTableau
		}
	}
	if tab.E != nil && len(tab.E) != s {
		return ErrInvalidTableau
	}
	return nil
}

// DormandPrince returns the Dormand-Prince 5(4) pair (RK45).
//
// J.R. Dormand & P.J. Prince, "A family of embedded Runge-Kutta formulae",
// J. Comp. Appl. Math. 6 (1980) 19-26.
func DormandPrince() *Tableau {
	return &Tableau{
		Name:  "RK45",
		Order: 5,
		C:     []float64{0, 1.0 / 5.0, 3.0 / 10.0, 4.0 / 5.0, 8.0 / 9.0, 1, 1},
		A: [][]float64{
			{},
			{1.0 / 5.0},
			{3.0 / 40.0, 9.0 / 40.0},
			{44.0 / 45.0, -56.0 / 15.0, 32.0 / 9.0},
			{19372.0 / 6561.0, -25360.0 / 2187.0, 64448.0 / 6561.0, -212.0 / 729.0},
			{9017.0 / 3168.0, -355.0 / 33.0, 46732.0 / 5247.0, 49.0 / 176.0, -5103.0 / 18656.0},
			{35.0 / 384.0, 0, 500.0 / 1113.0, 125.0 / 192.0, -2187.0 / 6784.0, 11.0 / 84.0},
		},
		B: []float64{35.0 / 384.0, 0, 500.0 / 1113.0, 125.0 / 192.0, -2187.0 / 6784.0, 11.0 / 84.0, 0},
		E: []float64{
			35.0/384.0 - 5179.0/57600.0,
			0,
			500.0/1113.0 - 7571.0/16695.0,
			125.0/192.0 - 393.0/640.0,
			-2187.0/6784.0 + 92097.0/339200.0,
			11.0/84.0 - 187.0/2100.0,
			-1.0 / 40.0,
		},
	}
}

// BogackiShampine returns the Bogacki-Shampine 3(2) pair (RK23).
func BogackiShampine() *Tableau {
	return &Tableau{
		Name:  "RK23",
		Order: 3,
		C:     []float64{0, 0.5, 0.75, 1},
		A: [][]float64{
			{},
			{0.5},
			{0, 0.75},
			{2.0 / 9.0, 1.0 / 3.0, 4.0 / 9.0},
		},
		B: []float64{2.0 / 9.0, 1.0 / 3.0, 4.0 / 9.0, 0},
		E: []float64{
			2.0/9.0 - 7.0/24.0,
			1.0/3.0 - 1.0/4.0,
			4.0/9.0 - 1.0/3.0,
			-1.0 / 8.0,
		},
	}
}

// RK4 returns the classic fixed-step fourth order method.
func RK4() *Tableau {
	return &Tableau{
		Name:  "RK4",
		Order: 4,
		C:     []float64{0, 0.5, 0.5, 1},
		A: [][]float64{
			{},
			{0.5},
			{0, 0.5},
			{0, 0, 1},
		},
		B: []float64{1.0 / 6.0, 1.0 / 3.0, 1.0 / 3.0, 1.0 / 6.0},
	}
}

// ParseMethod maps a method name to its tableau.
func ParseMethod(name string) (*Tableau, error) {
	switch name {
	case "RK45", "rk45", "dopri5":
		return DormandPrince(), nil
	case "RK23", "rk23":
		return BogackiShampine(), nil
	case "RK4", "rk4":
		return RK4(), nil
	default:
		return nil, fmt.Errorf("invalid ode method: %q", name)
	}
}
