package dsl

import (
	"sync"

	"github.com/roach88/gwt/internal/report"
)

type clause struct {
	method string
	block  *Block
	label  string
	origin report.Origin
}

// Chain is the list of assertions checked by the test one Then
// registered. And appends to it until that test starts executing; from
// then on the list is sealed.
type Chain struct {
	reg *Registry

	mu      sync.Mutex
	clauses []clause
	sealed  bool
}

// And appends another assertion, checked after the previous ones within
// the same test instance and sharing its Context.
func (c *Chain) And(args ...any) error {
	return c.add("And", args)
}

// Then is And under another name, for chains that read better that way.
func (c *Chain) Then(args ...any) error {
	return c.add("Then", args)
}

// Len returns the number of clauses.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clauses)
}

func (c *Chain) add(method string, args []any) error {
	_, block, origin, err := c.reg.parse(method, args)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return usageErrorf(ErrCodeChainSealed, "%s cannot extend a Then whose test has already started", method)
	}
	label := report.Label(origin, method, c.sameLine(method, origin))
	c.clauses = append(c.clauses, clause{method: method, block: block, label: label, origin: origin})
	c.reg.chain = c
	c.reg.mostRecent = registrarChain
	return nil
}

// sameLine counts the clauses already added by calls to method on
// origin's line.
func (c *Chain) sameLine(method string, origin report.Origin) int {
	n := 0
	for _, cl := range c.clauses {
		if cl.method == method && cl.origin.File == origin.File && cl.origin.Line == origin.Line {
			n++
		}
	}
	return n
}

// seal freezes the list and returns a copy for execution.
func (c *Chain) seal() []clause {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
	return append([]clause(nil), c.clauses...)
}
