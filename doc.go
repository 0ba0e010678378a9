// Package kgroute answers natural-language questions by exploring a knowledge
// graph along several planned reasoning routes and reconciling their answers.
//
// Each question is first answered directly from the model's own knowledge.
// A planner then proposes up to MaxRoutes routes, each a list of
// sub-objectives. Routes are explored one at a time: topic entities are
// aligned to graph entities, and every hop asks a relevance judge which
// relations and neighbouring entities to keep. After each hop a sufficiency
// judge decides whether the evidence answers the question. Once two routes
// have finished, a consensus judge either accepts a final answer or asks for
// another route.
//
// # Basic Usage
//
// Build the graph driver and judges, then create a client:
//
//	graph, err := driver.NewNeo4jDriver("bolt://localhost:7687", "neo4j", "password", "neo4j")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	chat, err := nlp.NewClient(config.NLPModelConfig{Provider: "openai", Model: "gpt-4o-mini"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	j := judge.NewLLMJudge(chat, judge.Options{Domain: "movie"})
//
//	client, err := kgroute.NewClient(graph, kgroute.Models{
//		Planner:     j,
//		Relevance:   j,
//		Sufficiency: j,
//		Topics:      j,
//	}, nil, slog.Default())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close(ctx)
//
// Or build everything from a configuration file:
//
//	cfg, err := config.Load()
//	client, err := kgroute.NewClientFromConfig(ctx, cfg, logger)
//
// # Answering Questions
//
//	result, err := client.Answer(ctx, "Who directed the movie Heat?", &kgroute.AnswerOptions{
//		QueryTime: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
//		MaxRoutes: 3,
//	})
//	fmt.Println(result.Answer, result.Decision)
//
// result.Routes holds every explored route with its evidence, so callers can
// show why an answer was chosen.
//
// # Graph Backends
//
// Neo4j, Ladybug (embedded) and an in-memory graph loaded from a YAML
// fixture are supported through driver.GraphAccess. The in-memory graph is
// meant for tests and demos.
package kgroute
