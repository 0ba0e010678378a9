package prompts

import (
	"fmt"
	"strings"

	"github.com/soundprediction/kgroute/pkg/nlp"
	"github.com/soundprediction/kgroute/pkg/types"
)

// RouteOutcome is one planned route as shown to the consensus prompt.
// Routes not yet explored have Done unset.
type RouteOutcome struct {
	Objectives string
	Reference  string
	Answer     string
	Done       bool
}

const planSystem = `You are a helpful assistant who is good at answering questions in the {domain} domain by using knowledge from an external knowledge graph. Before answering the question, break it down so that the information can be looked up in the knowledge graph step by step. Break the process of answering the question into as few sub-objectives as possible based on semantic analysis.
A query time is also provided; include the time information when applicable.

There can be multiple routes to break down the question; aim for {routes} possible routes. Every route may have a different solving efficiency: order the routes by their solving efficiency.
Return your reasoning and sub-objectives as lists of strings in a flat JSON of format: {"reason": "...", "routes": [[<a list of sub-objectives>], [<a list of sub-objectives>], ...]}. (TIP: escape any double quotes in strings to keep the JSON valid)

Domain-specific Hints:
{hints}

-Example-
Q: Which of the countries in the Caribbean has the smallest country calling code?
Query Time: 03/05/2024, 23:35:21 PT
Output: {
"reason": "Identifying Caribbean countries first limits the scope of the search, while listing every calling code worldwide before filtering processes a larger set. Routes are ordered by how specific their first step is.",
"routes": [["List all Caribbean countries", "Determine the country calling code for each country", "Identify the country with the smallest calling code"],
           ["Identify the smallest country calling code globally", "Filter by Caribbean countries", "Select the smallest among them"],
           ["List all country calling codes worldwide", "Filter the calling codes by Caribbean countries", "Find the smallest one"]]
}`

const planUser = `Q: {question}
Query Time: {query_time}
Output Format (flat JSON): {"reason": "...", "routes": [[<a list of sub-objectives>], [<a list of sub-objectives>], ...]}
Output:`

// planPrompt decomposes a question into ordered solving routes.
func planPrompt(context map[string]interface{}) ([]types.Message, error) {
	if err := requireKeys(context, KeyQuestion); err != nil {
		return nil, err
	}
	domain := domainOf(context)
	sysPrompt := fill(planSystem, map[string]string{
		"domain": domain,
		"routes": fmt.Sprint(intOr(context, KeyRoutes, 5)),
		"hints":  Hints(domain),
	})
	userPrompt := fill(planUser, map[string]string{
		"question":   str(context, KeyQuestion),
		"query_time": str(context, KeyQueryTime),
	})
	logPrompts(loggerFrom(context), sysPrompt, userPrompt)
	return []types.Message{
		nlp.NewSystemMessage(sysPrompt),
		nlp.NewUserMessage(userPrompt),
	}, nil
}

const topicsSystem = `-Goal-
You are presented with a question in the {domain} domain, its query time, and a potential route to solve it.

1) Determine the topic entities asked in the query and in each step of the solving route. The topic entities are used as source entities to search a knowledge graph for answers.
Mention the entity type explicitly when it makes the search more precise.

2) Extract those topic entities into a string list in the format of ["entity1", "entity2", ...].
Extract the entities informatively, combining adjectives or surrounding information.
A query time is provided; include the time information when applicable.

*NEVER include ANY EXPLANATION or NOTE in the output, ONLY OUTPUT JSON*

######################
-Examples-
Question: Who wins the best actor award in 2020 Oscars?
Solving Route: ["List the nominees for the best actor award in the 2020 Oscars", "Identify the winner among the nominees"]
Query Time: 03/05/2024, 23:35:21 PT
Output: ["2020 Oscars best actor award"]

Question: Which movie wins the best visual effect award in this year's Oscars?
Query Time: 03/19/2024, 23:49:30 PT
Solving Route: ["Retrieve the list of nominees of this year's best visual effects Oscars award", "Find the winner from the nominees"]
Output: ["2024 Oscars best visual effect award"]

Question: How many countries were "Inception" filmed in?
Query Time: 03/19/2024, 22:59:20 PT
Solving Route: ["Retrieve information about the movie 'Inception'", "Extract filming locations", "Count the countries"]
Output: ["Inception Movie"]`

const topicsUser = `Question: {question}
Query Time: {query_time}
Solving Route: {route}

Output Format: ["entity1", "entity2", ...]
Output:`

// topicsPrompt extracts topic entity names for one route.
func topicsPrompt(context map[string]interface{}) ([]types.Message, error) {
	if err := requireKeys(context, KeyQuestion); err != nil {
		return nil, err
	}
	sysPrompt := fill(topicsSystem, map[string]string{"domain": domainOf(context)})
	userPrompt := fill(topicsUser, map[string]string{
		"question":   str(context, KeyQuestion),
		"query_time": str(context, KeyQueryTime),
		"route":      str(context, KeyRoute),
	})
	logPrompts(loggerFrom(context), sysPrompt, userPrompt)
	return []types.Message{
		nlp.NewSystemMessage(sysPrompt),
		nlp.NewUserMessage(userPrompt),
	}, nil
}

const formatNote = `Entities are given as "ent_i: (<entity_type>: <entity_name>, desc: "description", props: {key: [val_1 (70%, ctx:context), val_2 (30%, ctx:context)], ...})" and relations as "rel_i: (<source_type>: <source_name>)-[<relation_name>, desc: "description", props: {...}]->(<target_type>: <target_name>)", where "i" is the index, the arrow ("->" or "<-") is the relation direction, the percentage is a confidence score and "ctx" is an optional context under which the value is valid. A property may have a single value, or several values of varying confidence under different contexts.`

const alignSystem = `-Goal-
You are presented with a question in the {domain} domain, its query time, a potential route to solve it, and a list of entities retrieved from a noisy knowledge graph.
Identify all entities relevant to answering the steps of the solving route and, therefore, the question. The graph may be noisy and facts may be split across similar entities, so identify every relevant entity.
Score relevance from 0 to 1 (at most 3 decimal places; the scores of all entities sum to 1).

-Steps-
1. ` + formatNote + `

2. Score *ALL POSSIBLE* entities that help answer the solving route, and give a short reason.
Return the index (ent_i) and score in a valid JSON of the format: {"reason": "reason", "relevant_entities": {"ent_i": 0.6, "ent_j": 0.3, ...}}. (TIP: escape any double quotes in strings to keep the JSON valid)

*NEVER include ANY EXPLANATION or NOTE in the output, ONLY OUTPUT JSON*

######################
-Examples-
Question: How many countries were "Inception" filmed in?
Solving Route: ["Retrieve information about the movie 'Inception'", "Extract filming locations", "Count the countries"]
Query Time: 03/05/2024, 23:35:21 PT
Entities: ent_0: (Movie: INCEPTION, desc: "2010 sci-fi action film", props: {year: 2010, rating: 8.6})
ent_1: (Movie: INCEPTION: THE COBOL JOB, props: {release_date: 2010-12-07})
ent_2: (Movie: INVASION, props: {release_date: 2005-10-06})
Output: {"reason": "ent_0 is the movie 'Inception' the route asks about.", "relevant_entities": {"ent_0": 1}}

Question: Can you tell me the name of the actress who starred in the film that won the best picture oscar in 2018?
Solving Route: ["Find the Best Picture Oscar winner for 2018", "Retrieve the cast of the film", "Identify the lead actress"]
Query Time: 03/19/2024, 22:59:20 PT
Entities: ent_0: (Award: ACTRESS IN A LEADING ROLE, props: {year: 2018, type: OSCAR AWARD})
ent_1: (Award: ACTOR IN A LEADING ROLE, props: {year: 2018, type: OSCAR AWARD})
ent_2: (Award: BEST PICTURE, props: {year: 2018, type: OSCAR AWARD})
Output: {"reason": "ent_2 is the 2018 best picture award the route starts from; ent_0 may also help identify the actress.", "relevant_entities": {"ent_2": 0.8, "ent_0": 0.2}}`

const alignUser = `Question: {question}
Query Time: {query_time}
Solving Route: {route}
Entities: {entities}

Output Format (flat JSON): {"reason": "reason", "relevant_entities": {"ent_i": 0.6, "ent_j": 0.3, ...}}
Output:`

// alignEntitiesPrompt scores retrieved graph entities against a route.
func alignEntitiesPrompt(context map[string]interface{}) ([]types.Message, error) {
	if err := requireKeys(context, KeyQuestion, KeyEntities); err != nil {
		return nil, err
	}
	sysPrompt := fill(alignSystem, map[string]string{"domain": domainOf(context)})
	userPrompt := fill(alignUser, map[string]string{
		"question":   str(context, KeyQuestion),
		"query_time": str(context, KeyQueryTime),
		"route":      str(context, KeyRoute),
		"entities":   str(context, KeyEntities),
	})
	logPrompts(loggerFrom(context), sysPrompt, userPrompt)
	return []types.Message{
		nlp.NewSystemMessage(sysPrompt),
		nlp.NewUserMessage(userPrompt),
	}, nil
}

const relationsSystem = `-Goal-
You are given a question in the {domain} domain, its query time, a potential route to solve it, an entity, and a list of relation types starting from or ending at it.
Retrieve up to {width} relations that contribute to answering the steps of the solving route and, therefore, the question. Rate their relevance from 0 to 1 (at most 3 decimal places; the scores of the selected relations sum to 1).

-Steps-
1. ` + formatNote + ` Target entities are shown by type only.

2. Select relations only from the given list and give a short reason for your scoring.
Return the index (rel_i) and score in a JSON of the format: {"reason": "reason", "relevant_relations": {"rel_i": score_i, "rel_j": score_j, ...}}.
(TIP: escape any double quotes in strings to keep the JSON valid)

*NEVER include ANY EXPLANATION or NOTE in the output, ONLY OUTPUT JSON*

Domain-specific Hints:
{hints}

######################
-Examples-
Question: Which movie wins the best visual effect award in 2006 Oscars?
Solving Route: ["Identify the 2006 Oscars best visual effects winner directly from the knowledge graph"]
Entity: (Award: VISUAL EFFECTS, props: {year: 2006, type: OSCAR AWARD})
Relations: rel_0: (Award: VISUAL EFFECTS)-[HELD_IN]->(Year: )
rel_1: (Award: VISUAL EFFECTS)-[NOMINATED_FOR]->(Movie: )
rel_2: (Award: VISUAL EFFECTS)-[WON]->(Movie: )
Output: {"reason": "The question asks for the movie that won the award, so rel_2 is most relevant. A winning movie was also nominated, so rel_1 has slight relevance.", "relevant_relations": {"rel_2": 0.7, "rel_0": 0.2, "rel_1": 0.1}}`

const relationsUser = `Question: {question}
Query Time: {query_time}
Solving Route: {route}

Entity: {entity}
Relations: {relations}

Output Format (flat JSON): {"reason": "reason", "relevant_relations": {"rel_i": score_i, "rel_j": score_j, ...}}
Output:`

// pruneRelationsPrompt scores the relation types around one entity.
func pruneRelationsPrompt(context map[string]interface{}) ([]types.Message, error) {
	if err := requireKeys(context, KeyQuestion, KeyEntity, KeyRelations); err != nil {
		return nil, err
	}
	domain := domainOf(context)
	sysPrompt := fill(relationsSystem, map[string]string{
		"domain": domain,
		"width":  fmt.Sprint(intOr(context, KeyWidth, 30)),
		"hints":  Hints(domain),
	})
	userPrompt := fill(relationsUser, map[string]string{
		"question":   str(context, KeyQuestion),
		"query_time": str(context, KeyQueryTime),
		"route":      str(context, KeyRoute),
		"entity":     str(context, KeyEntity),
		"relations":  str(context, KeyRelations),
	})
	logPrompts(loggerFrom(context), sysPrompt, userPrompt)
	return []types.Message{
		nlp.NewSystemMessage(sysPrompt),
		nlp.NewUserMessage(userPrompt),
	}, nil
}

const tripletsSystem = `-Goal-
You are presented with a question in the {domain} domain, its query time, and a potential route to solve it.
You are then given a source entity and a list of directed relations starting from or ending at it, in the format (source entity)-[relation]->(target entity).
Score each relation's contribution to answering the steps of the solving route and, therefore, the question, from 0 to 1 (at most 3 decimal places; the scores of all relations sum to 1).

-Steps-
1. ` + formatNote + `

2. Assess the relevance of the relation type and its properties, together with the target entity and its properties, to the question.

3. Return the index (rel_i) and score in a valid JSON of the format: {"reason": "reason", "relevant_relations": {"rel_i": score_i, "rel_j": score_j, ...}}.
(TIP: escape any double quotes in strings to keep the JSON valid)

*NEVER include ANY EXPLANATION or NOTE in the output, ONLY OUTPUT JSON*

Domain-specific Hints:
{hints}

##### Examples #####
Question: The movie featured Miley Cyrus and was produced by Tobin Armbrust?
Query Time: 03/19/2024, 22:59:20 PT
Solving Route: ["List movies produced by Tobin Armbrust", "Filter by movies featuring Miley Cyrus", "Identify the movie"]
Source Entity: (Person: TOBIN ARMBRUST)
Relations: rel_0: (Person: TOBIN ARMBRUST)-[PRODUCED]->(Movie: THE RESIDENT)
rel_1: (Person: TOBIN ARMBRUST)-[PRODUCED]->(Movie: SO UNDERCOVER, props: {featured: Miley Cyrus, Jeremy Piven})
rel_2: (Person: TOBIN ARMBRUST)-[PRODUCED]->(Movie: BEGIN AGAIN, props: {featured: Keira Knightley, Mark Ruffalo})
Output: {"reason": "'So Undercover' features Miley Cyrus and was produced by Tobin Armbrust; the other movies do not match.", "relevant_relations": {"rel_1": 1.0}}`

const tripletsUser = `Question: {question}
Query Time: {query_time}
Solving Route: {route}

Source Entity: {entity}
Relations: {relations}

Output Format (flat JSON): {"reason": "reason", "relevant_relations": {"rel_i": score_i, "rel_j": score_j, ...}}
Output:`

// pruneTripletsPrompt scores concrete triplets from one source entity.
func pruneTripletsPrompt(context map[string]interface{}) ([]types.Message, error) {
	if err := requireKeys(context, KeyQuestion, KeyEntity, KeyRelations); err != nil {
		return nil, err
	}
	domain := domainOf(context)
	sysPrompt := fill(tripletsSystem, map[string]string{
		"domain": domain,
		"hints":  Hints(domain),
	})
	userPrompt := fill(tripletsUser, map[string]string{
		"question":   str(context, KeyQuestion),
		"query_time": str(context, KeyQueryTime),
		"route":      str(context, KeyRoute),
		"entity":     str(context, KeyEntity),
		"relations":  str(context, KeyRelations),
	})
	logPrompts(loggerFrom(context), sysPrompt, userPrompt)
	return []types.Message{
		nlp.NewSystemMessage(sysPrompt),
		nlp.NewUserMessage(userPrompt),
	}, nil
}

const evaluateSystem = `-Goal-
You are presented with a question in the {domain} domain, its query time, and a potential route to solve it. Given the entities and triplets retrieved from a noisy knowledge graph, determine whether these references and your knowledge are sufficient to answer the question (Yes or No).
- If yes, answer the question using fewer than 50 words.
- If no, respond with 'I don't know'.

1. ` + formatNote + `
If several conflicting candidates are found, use the one with stronger supporting evidence, such as temporally aligned triplets or additional supporting properties.

2. Return your judgment in a JSON of the format {"sufficient": "Yes/No", "reason": "...", "answer": "..."} (TIP: escape any double quotes in strings to keep the JSON valid)

*NEVER include ANY EXPLANATION or NOTE in the output, ONLY OUTPUT JSON*

Domain-specific Hints:
{hints}

#### Examples ####
Question: The artist nominated for The Long Winter lived where?
Knowledge Triplets: rel_0: (Book: THE LONG WINTER)-[WRITTEN_BY]->(Person: LAURA INGALLS WILDER)
rel_1: (Person: LAURA INGALLS WILDER)-[LIVED_IN]->(Place: DE SMET)
Output: {"sufficient": "Yes", "reason": "The author of The Long Winter, Laura Ingalls Wilder, lived in De Smet.", "answer": "De Smet."}

Question: Who is the coach of the team owned by Steve Bisciotti?
Knowledge Triplets: rel_0: (Person: STEVE BISCIOTTI)-[OWNS]->(Team: BALTIMORE RAVENS)
rel_1: (Person: STEVE BISCIOTTI)-[FOUNDED]->(Organization: ALLEGIS GROUP)
Output: {"sufficient": "No", "reason": "The team is the Baltimore Ravens, but its coach is not mentioned in the triplets.", "answer": "I don't know."}`

const evaluateUser = `Question: {question}
Query Time: {query_time}
Solving Route: {route}
Knowledge Entities: {entities}
Knowledge Triplets: {triplets}

Output Format (flat JSON): {"sufficient": "Yes/No", "reason": "...", "answer": "..."}
Output:`

// evaluatePrompt judges whether a route's evidence answers the question.
func evaluatePrompt(context map[string]interface{}) ([]types.Message, error) {
	if err := requireKeys(context, KeyQuestion); err != nil {
		return nil, err
	}
	domain := domainOf(context)
	sysPrompt := fill(evaluateSystem, map[string]string{
		"domain": domain,
		"hints":  Hints(domain),
	})
	userPrompt := fill(evaluateUser, map[string]string{
		"question":   str(context, KeyQuestion),
		"query_time": str(context, KeyQueryTime),
		"route":      str(context, KeyRoute),
		"entities":   orNone(str(context, KeyEntities)),
		"triplets":   orNone(str(context, KeyTriplets)),
	})
	logPrompts(loggerFrom(context), sysPrompt, userPrompt)
	return []types.Message{
		nlp.NewSystemMessage(sysPrompt),
		nlp.NewUserMessage(userPrompt),
	}, nil
}

const consensusSystem = `-Goal-
You are presented with a question in the {domain} domain and its query time. Answer the question *accurately*: you are rewarded for a correct answer and *penalized* for a wrong one.

A confident but careless friend has provided a tentative answer, the "attempt". It is not trusted, so a list of potential routes to solve the question was identified. Some of the routes have been followed, each with the knowledge graph entities and triplets it retrieved and a tentative answer.
` + formatNote + `

Act as a rigorous judge of whether the answers reach a consensus before the solving routes run out. Consensus means at least half of the answers (including the friend's attempt) agree on a specific answer.
Follow these strategies exactly:

1. If there is a consensus, respond with "Yes" and summarize the answers into a final answer followed by a short explanation.

2. If there is no consensus and unexplored solving routes remain, respond with "No" and give no final answer. The next solving route will be explored.

3. If there is no consensus and no unexplored solving routes remain, respond with "Yes" and summarize the answers into a final answer followed by a short explanation.
If the answers conflict, prefer the one with more votes, then the one with stronger supporting evidence such as temporally aligned triplets or additional supporting properties.

4. If none of the solving routes gives a reasonable answer (all "I don't know"), fall back to the friend's attempt.

If the references do not contain the information needed to answer the question, respond with 'I don't know'. There is no reward or penalty for "I don't know", which is preferable to a wrong answer.

Return the output in a JSON of the format: {"judgement": "Yes/No", "final_answer": "<Your Final Answer>. <A short explanation of how to interpret the final answer>"}

*NEVER include ANY EXPLANATION or NOTE in the output, ONLY OUTPUT JSON*

Domain-specific Hints:
{hints}`

const consensusUser = `Question: {question}
Query Time: {query_time}
Attempt: {attempt}
`

// consensusPrompt asks whether the explored routes agree on an answer.
func consensusPrompt(context map[string]interface{}) ([]types.Message, error) {
	if err := requireKeys(context, KeyQuestion); err != nil {
		return nil, err
	}
	history, _ := context[KeyHistory].([]RouteOutcome)
	domain := domainOf(context)
	sysPrompt := fill(consensusSystem, map[string]string{
		"domain": domain,
		"hints":  Hints(domain),
	})

	var sb strings.Builder
	sb.WriteString(fill(consensusUser, map[string]string{
		"question":   str(context, KeyQuestion),
		"query_time": str(context, KeyQueryTime),
		"attempt":    str(context, KeyAttempt),
	}))
	sb.WriteString(RouteHistory(history))
	sb.WriteString(`Output Format (flat JSON): {"judgement": "Yes/No", "final_answer": "<Your Final Answer>. <A short explanation of how to interpret the final answer>"}`)
	sb.WriteString("\nOutput:")
	userPrompt := sb.String()

	logPrompts(loggerFrom(context), sysPrompt, userPrompt)
	return []types.Message{
		nlp.NewSystemMessage(sysPrompt),
		nlp.NewUserMessage(userPrompt),
	}, nil
}

// RouteHistory renders planned routes, explored ones with their reference
// and answer, under a header counting the unexplored remainder.
func RouteHistory(history []RouteOutcome) string {
	done := 0
	for _, h := range history {
		if h.Done {
			done++
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "\nWe have identified %d solving route(s) below, and have %d unexplored solving route left.:\n", len(history), len(history)-done)
	for i, h := range history {
		fmt.Fprintf(&sb, "Route %d: %s\n", i+1, h.Objectives)
		if h.Done {
			sb.WriteString("Reference: " + h.Reference + "\n")
			sb.WriteString("Answer: " + h.Answer + "\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

const directSystem = `-Goal-
You are provided with a question in the {domain} domain and its query time. Determine whether your knowledge is sufficient to answer the question (Yes or No).
- If yes, answer the question succinctly, using the fewest words possible.
- If no, respond with 'I don't know'.
Explain your reasoning and provide supporting evidence from your knowledge.

Return your judgment in a JSON of the format {"sufficient": "Yes/No", "reason": "...", "answer": "..."} (TIP: escape any double quotes in strings to keep the JSON valid)
*NEVER include ANY EXPLANATION or NOTE in the output, ONLY OUTPUT JSON*

#### Examples ####
Question: What state is home to the university that is represented in sports by George Washington Colonials men's basketball?
Output: {"sufficient": "Yes", "reason": "The George Washington Colonials represent George Washington University, which is in Washington, D.C.", "answer": "Washington, D.C."}

Question: Who was the artist nominated for an award for You Drive Me Crazy?
Output: {"sufficient": "Yes", "reason": "'You Drive Me Crazy' was performed by Britney Spears, who was nominated for awards for the song.", "answer": "Britney Spears"}`

const directUser = `Question: {question}
Query Time: {query_time}

Output Format (flat JSON): {"sufficient": "Yes/No", "reason": "...", "answer": "..."}
Output:`

// answerDirectlyPrompt answers from model knowledge, without graph evidence.
func answerDirectlyPrompt(context map[string]interface{}) ([]types.Message, error) {
	if err := requireKeys(context, KeyQuestion); err != nil {
		return nil, err
	}
	sysPrompt := fill(directSystem, map[string]string{"domain": domainOf(context)})
	userPrompt := fill(directUser, map[string]string{
		"question":   str(context, KeyQuestion),
		"query_time": str(context, KeyQueryTime),
	})
	logPrompts(loggerFrom(context), sysPrompt, userPrompt)
	return []types.Message{
		nlp.NewSystemMessage(sysPrompt),
		nlp.NewUserMessage(userPrompt),
	}, nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "None"
	}
	return s
}
