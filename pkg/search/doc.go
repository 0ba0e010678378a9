// Package search answers questions by confidence-weighted route exploration
// over a knowledge graph.
//
// A Planner splits the question into routes, ordered lists of
// sub-objectives. Each route is explored independently:
//
//   - topic strings are aligned to graph entities, which seed the hop-0
//     frontier with weights summing to at most 1;
//   - every hop the Expander asks a RelevanceJudge to score the relation
//     types around the frontier, then the concrete triplets behind them, and
//     keeps the best Width triplets as evidence;
//   - after every hop a SufficiencyJudge decides whether the evidence answers
//     the question.
//
// A route stops when the evidence is sufficient, when a hop adds nothing, or
// after Depth hops. The Finalizer runs routes one at a time next to a direct
// attempt that uses no graph evidence, and returns as soon as a majority of
// answers agree or the consensus judge settles the question.
//
// # Usage
//
//	engine := search.NewEngine(graph, judge, judge, judge, search.DefaultConfig(),
//	    search.WithTopicExtractor(judge),
//	    search.WithEmbedder(emb),
//	)
//	res, err := engine.Answer(ctx, "Who composed the score of Inception?", search.AnswerOptions{})
//
// Judges and the graph are ports: any failure below them degrades the answer
// to "I don't know." instead of failing the call.
package search
