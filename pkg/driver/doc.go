// Package driver provides read and load access to the knowledge graph.
//
// The search engine depends only on GraphAccess. Three implementations are
// provided:
//   - Neo4j: server graph with native vector search (APOC required)
//   - Ladybug: embedded graph database (requires CGO)
//   - Memory: in-process graph, loaded from YAML fixtures
//
// # Usage
//
//	// Neo4j
//	g, err := driver.NewNeo4jDriver(uri, username, password, "neo4j")
//
//	// Ladybug (embedded)
//	g, err := driver.NewLadybugDriver(dbPath)
//
//	// Memory, from a fixture
//	fx, err := driver.ReadGraphFixture("graph.yaml")
//	g, err := driver.NewMemoryDriverFromFixture(ctx, fx, nil)
//
// Every driver also implements GraphWriter, so LoadGraph can copy a fixture
// into any of them.
//
// # Relation views
//
// A stored edge a-[R]->b is reported twice by GetRelations: once from a
// (forward) and once from b (reverse). Queries filter on the viewing side,
// so a Source filter returns every edge touching that entity.
//
// # Type Helpers
//
// type_helpers.go converts database values to Go types without panicking on
// type assertion failures and decodes stored property observations.
package driver
