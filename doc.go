/*
Package orchard provides the storage and query core of an Entity-Component-System runtime.

Entities with the same component signature share an archetype, which stores its components
in a table with one element type per component slot. Rows stay dense through swap-removal, and everything that needs
to follow an entity across such moves (references, guards, queries) is repaired through
storage notifications.

Core Concepts:

  - Entity: an id plus a name, an enabled flag and a set of components.
  - Component: any registered Go type, or a script type registered by name. An entity may
    hold several instances of one type.
  - Archetype: the rows of every entity sharing one exact signature.
  - Query: a live view over the archetypes matching an And/Or/Not filter.
  - Reference: a handle resolving to the same entity after its row moved.

Basic Usage:

	world := orchard.Factory.NewWorld()

	// Define components
	position := orchard.FactoryNewComponent[Position]()
	velocity := orchard.FactoryNewComponent[Velocity]()

	// Create entities
	id, _ := world.CreateEntity("ship", true, Position{}, Velocity{X: 1})

	// Query entities and process them
	query := orchard.Factory.NewQuery()
	movers := world.Query(query.And(orchard.Write(position), orchard.Read(velocity)))

	movers.ForEach(func(row *orchard.Row) error {
		pos := position.GetFromRow(row)
		vel := velocity.GetFromRow(row)
		pos.X += vel.X
		pos.Y += vel.Y
		return nil
	})

While a query iterates or a guard is held, structural changes must go through the Enqueue
methods of the world. They are applied once the last view closes.

Systems and their per-frame scheduling live in the scheduler subpackage.
*/
package orchard
