package orchard

// Cursor walks the rows of a query one at a time. The current row's lock is
// held until Next moves on. The cursor keeps a view open from the first call
// to Next until iteration ends or Reset is called.
type Cursor struct {
	query *Query

	// Current iteration state
	currentArchetype *Archetype
	storageIndex     int
	entityIndex      int
	remaining        int
	held             *rowLock
	row              Row

	// Initialization state
	initialized     bool
	matchedStorages []*Archetype
}

func newCursor(query *Query) *Cursor {
	return &Cursor{query: query}
}

// Next advances to the next enabled matching row and locks it
func (c *Cursor) Next() bool {
	c.releaseRow()
	if !c.initialized {
		c.initialize()
	}
	for c.storageIndex < len(c.matchedStorages) {
		c.currentArchetype = c.matchedStorages[c.storageIndex]
		c.remaining = c.currentArchetype.Len()

		for c.entityIndex < c.remaining {
			row := c.entityIndex
			c.entityIndex++
			lock := c.currentArchetype.locks[row]
			lock.lock(c.query.write)
			if !c.query.includeDisabled && !c.currentArchetype.isEnabled(row) {
				lock.unlock(c.query.write)
				continue
			}
			c.held = lock
			c.row = Row{
				rowView: rowView{world: c.query.world, arch: c.currentArchetype, index: row},
				write:   c.query.write,
			}
			return true
		}
		c.storageIndex++
		c.entityIndex = 0
	}
	c.Reset()
	return false
}

// Row is the row Next stopped at, valid until the following call to Next
func (c *Cursor) Row() *Row {
	return &c.row
}

func (c *Cursor) initialize() {
	c.query.world.beginView()
	c.matchedStorages = c.query.archetypes()
	c.initialized = true
}

func (c *Cursor) releaseRow() {
	if c.held != nil {
		c.held.unlock(c.query.write)
		c.held = nil
	}
}

// Reset releases the current row and the view. Calling it on an idle cursor
// is a no-op.
func (c *Cursor) Reset() {
	c.releaseRow()
	if !c.initialized {
		return
	}
	c.storageIndex = 0
	c.entityIndex = 0
	c.remaining = 0
	c.currentArchetype = nil
	c.matchedStorages = nil
	c.initialized = false
	c.row = Row{}
	c.query.world.endView()
}

// RemainingInArchetype is the number of rows after the current one in its
// archetype, disabled rows included
func (c *Cursor) RemainingInArchetype() int {
	return c.remaining - c.entityIndex
}

// TotalMatched counts the rows of every matched archetype
func (c *Cursor) TotalMatched() int {
	total := 0
	for _, arch := range c.query.archetypes() {
		total += arch.Len()
	}
	return total
}
