// Package types defines the core data types shared by the kgroute packages.
//
// This package contains the fundamental types used throughout kgroute:
//   - Entity / Relation: nodes and directed edges read from the knowledge graph
//   - PropertyBag: ordered, schema-less property values with observation counts
//   - ScoredEntity / ScoredRelation: graph elements carrying a cumulative path weight
//   - Route, Frontier, EvidenceBundle: the per-route search state
//   - RouteResult / AnswerResult: what a search produces
//   - Message / Response: the chat exchange used by language model clients
//
// # Rendering
//
// Entities and relations are rendered for judges with EntityText and RelationText:
//
//	(Movie: INCEPTION, desc: "2010 film", props: {year: 2010})
//	(Movie: INCEPTION)-[DIRECTED_BY]->(Person: CHRISTOPHER NOLAN)
//	(Person: CHRISTOPHER NOLAN)<-[DIRECTED_BY]-(Movie: INCEPTION)
//
// Multi-valued properties are rendered with time-decayed confidence percentages.
package types
