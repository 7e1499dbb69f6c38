package orchard_test

import (
	"fmt"

	"github.com/TheBitDrifter/orchard"
)

// Position is a simple component for 2D coordinates
type Position struct {
	X float64
	Y float64
}

// Velocity is a simple component for 2D movement
type Velocity struct {
	X float64
	Y float64
}

// Name is a simple component for entity identification
type Name struct {
	Value string
}

var (
	position = orchard.FactoryNewComponent[Position]()
	velocity = orchard.FactoryNewComponent[Velocity]()
	name     = orchard.FactoryNewComponent[Name]()
)

// Example shows basic orchard usage with entity creation and queries
func Example_basic() {
	world := orchard.Factory.NewWorld()

	// Create entities
	for range 5 {
		world.CreateEntity("", true, Position{})
	}
	for range 3 {
		world.CreateEntity("", true, Position{}, Velocity{})
	}

	// Create one named entity
	world.CreateEntity("player", true,
		Position{X: 10, Y: 20},
		Velocity{X: 1, Y: 2},
		Name{Value: "Player"},
	)

	// Query for all entities with position and velocity
	query := orchard.Factory.NewQuery()
	moving := world.Query(query.And(orchard.Read(position), orchard.Read(velocity)))
	fmt.Printf("Found %d entities with position and velocity\n", moving.Count())

	// Process the named entity
	named := world.Query(query.And(position, orchard.Read(velocity), orchard.Read(name)))
	named.ForEach(func(row *orchard.Row) error {
		pos := position.GetFromRow(row)
		vel := velocity.GetFromRow(row)
		nme := name.GetFromRow(row)

		// Update position based on velocity
		pos.X += vel.X
		pos.Y += vel.Y

		fmt.Printf("Updated %s to position (%.1f, %.1f)\n", nme.Value, pos.X, pos.Y)
		return nil
	})

	// Output:
	// Found 4 entities with position and velocity
	// Updated Player to position (11.0, 22.0)
}

// Example_queries shows how to use different query operations
func Example_queries() {
	world := orchard.Factory.NewWorld()

	// Create different entity types
	for range 3 {
		world.CreateEntity("", true, Position{})
		world.CreateEntity("", true, Position{}, Velocity{})
		world.CreateEntity("", true, Position{}, Name{})
		world.CreateEntity("", true, Position{}, Velocity{}, Name{})
	}

	query := orchard.Factory.NewQuery()

	// AND query: entities with position AND velocity
	andQuery := world.Query(query.And(position, velocity))
	fmt.Printf("AND query matched %d entities\n", andQuery.Count())

	// OR query: entities with velocity OR name
	orQuery := world.Query(query.Or(velocity, name))
	fmt.Printf("OR query matched %d entities\n", orQuery.Count())

	// NOT query: entities with position but NOT velocity
	notQuery := world.Query(query.And(position, query.Not(velocity)))
	fmt.Printf("NOT query matched %d entities\n", notQuery.Count())

	// Output:
	// AND query matched 6 entities
	// OR query matched 9 entities
	// NOT query matched 6 entities
}

// Example_references shows how references follow entities across moves
func Example_references() {
	world := orchard.Factory.NewWorld()
	id, _ := world.CreateEntity("mover", true, Position{X: 1})
	ref, _ := world.EntityReference(id)

	// Adding a component moves the entity to another archetype
	world.AddComponents(id, Velocity{X: 2})

	guard, err := ref.Write()
	if err != nil {
		fmt.Println(err)
		return
	}
	vel, _ := velocity.GetFromWriteGuard(guard)
	vel.X *= 10
	guard.Release()

	world.RemoveEntity(id)
	_, err = ref.Read()
	fmt.Println(ref.Alive(), err)

	// Output:
	// false reference to entity 1 points to deleted data
}

// Example_deferred shows structural changes queued during iteration
func Example_deferred() {
	world := orchard.Factory.NewWorld()
	for i := range 3 {
		world.CreateEntity(fmt.Sprintf("e%d", i), true, Position{X: float64(i)})
	}

	query := orchard.Factory.NewQuery()
	positions := world.Query(query.And(orchard.Read(position)))
	positions.ForEach(func(row *orchard.Row) error {
		if position.GetFromRow(row).X > 0 {
			return world.EnqueueRemoveEntity(row.ID())
		}
		return nil
	})
	fmt.Println("entities left:", world.Len())

	// Output:
	// entities left: 1
}
