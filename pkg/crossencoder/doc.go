/*
Package crossencoder scores graph candidates against a route with a
cross-encoder reranker.

Cross-encoders read the query and each passage together, so they rank more
accurately than comparing separate embeddings, at the cost of one model pass
per pair. Judge adapts a reranker to search.RelevanceJudge: the route text is
the query and every candidate rendering is a passage.

Usage:

	reranker, err := crossencoder.NewEmbedEverythingClient("BAAI/bge-reranker-base")
	if err != nil {
		log.Fatal(err)
	}
	defer reranker.Close()

	judge := crossencoder.NewJudge(reranker)
	scores, err := judge.ScoreCandidates(ctx, routeContext, candidates)
*/
package crossencoder
