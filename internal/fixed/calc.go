package fixed

// Calc chains arithmetic and keeps the first error. Once an operation fails
// every later call returns the zero value, so a formula can be written
// straight through and checked once with Err.
//
//	var c fixed.Calc
//	fee := c.MulDiv(size, bps, divisor)
//	net := c.Sub(collateral, fee)
//	if err := c.Err(); err != nil { ... }
type Calc struct {
	err error
}

// Err returns the first error encountered, if any.
func (c *Calc) Err() error { return c.err }

func (c *Calc) keep(r Int, err error) Int {
	if c.err != nil {
		return Int{}
	}
	if err != nil {
		c.err = err
		return Int{}
	}
	return r
}

// Add returns a + b.
func (c *Calc) Add(a, b Int) Int { return c.keep(a.Add(b)) }

// Sub returns a - b.
func (c *Calc) Sub(a, b Int) Int { return c.keep(a.Sub(b)) }

// Mul returns a * b.
func (c *Calc) Mul(a, b Int) Int { return c.keep(a.Mul(b)) }

// Div returns a / b truncated toward zero.
func (c *Calc) Div(a, b Int) Int { return c.keep(a.Div(b)) }

// MulDiv returns a * b / d.
func (c *Calc) MulDiv(a, b, d Int) Int { return c.keep(a.MulDiv(b, d)) }

// Abs returns |a|.
func (c *Calc) Abs(a Int) Int { return c.keep(a.Abs()) }
